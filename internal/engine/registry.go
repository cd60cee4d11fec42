package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/brainseg/internal/ctxlog"
	"github.com/vk/brainseg/internal/fsutil"
)

// Outputs names the files an engine left in the case directory.
type Outputs struct {
	LabelMap string // required: the discrete segmentation
	ProbMap  string // optional: per-class probability channels (4D)
}

// Handler implements an engine's file conventions in Go.
type Handler struct {
	// Prepare stages the input volume inside the case directory (copying
	// and renaming as the engine expects) and returns the staged basename.
	Prepare func(caseDir, inputPath string) (string, error)
	// Collect locates the engine's output files after a successful run.
	Collect func(caseDir, stagedName string) (Outputs, error)
}

// Module registers one or more engine handlers with a registry.
type Module interface {
	Register(r *Registry)
}

// Engine is a manifest paired with its handler, ready to run.
type Engine struct {
	Manifest *Manifest
	Handler  *Handler
}

// Registry holds the engine manifests loaded from disk and the Go handlers
// compiled into the binary, keyed by engine name.
type Registry struct {
	manifests map[string]*Manifest
	handlers  map[string]*Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		manifests: make(map[string]*Manifest),
		handlers:  make(map[string]*Handler),
	}
}

// RegisterHandler binds a handler to an engine name. Registering the same
// name twice is a programmer error.
func (r *Registry) RegisterHandler(name string, h *Handler) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("engine handler %q registered twice", name))
	}
	r.handlers[name] = h
}

// LoadManifests parses every .hcl file under path and merges the engine
// blocks into the registry.
func (r *Registry) LoadManifests(ctx context.Context, path string) error {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return fmt.Errorf("failed to scan engine manifests in %q: %w", path, err)
	}
	logger.Debug("Discovered engine manifest files.", "path", path, "count", len(files))

	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return fmt.Errorf("failed to parse manifest %s: %w", file, diags)
		}
		manifests, err := parseManifestBody(hclFile.Body, file)
		if err != nil {
			return err
		}
		for _, m := range manifests {
			if _, exists := r.manifests[m.Name]; exists {
				return fmt.Errorf("engine %q is declared more than once", m.Name)
			}
			r.manifests[m.Name] = m
			logger.Debug("Loaded engine manifest.", "engine", m.Name, "file", file)
		}
	}
	return nil
}

// Validate checks manifest/handler parity: every manifest must have a
// handler of the same name. Handlers without manifests are fine; the binary
// compiles in all known engines while an image ships only the manifests for
// the models it bundles.
func (r *Registry) Validate() error {
	for name := range r.manifests {
		if _, ok := r.handlers[name]; !ok {
			return fmt.Errorf("engine manifest %q has no registered handler (known handlers: %s)",
				name, strings.Join(sortedKeys(r.handlers), ", "))
		}
	}
	return nil
}

// Names returns the loaded manifest names in sorted order.
func (r *Registry) Names() []string {
	return sortedKeys(r.manifests)
}

// Lookup returns the named engine.
func (r *Registry) Lookup(name string) (*Engine, error) {
	m, ok := r.manifests[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (installed: %s)", name, strings.Join(r.Names(), ", "))
	}
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("engine %q has no registered handler", name)
	}
	return &Engine{Manifest: m, Handler: h}, nil
}

// Default returns the sole installed engine, or an error when the choice is
// ambiguous and --engine is required.
func (r *Registry) Default() (*Engine, error) {
	names := r.Names()
	switch len(names) {
	case 0:
		return nil, fmt.Errorf("no engine manifests installed")
	case 1:
		return r.Lookup(names[0])
	default:
		return nil, fmt.Errorf("multiple engines installed (%s); choose one with --engine", strings.Join(names, ", "))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
