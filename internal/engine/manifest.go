package engine

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// LabelSet describes the label values an engine emits: the background value
// plus a name per foreground structure.
type LabelSet struct {
	Background int
	Names      map[int]string
}

// Values returns the foreground label values in ascending order.
func (l LabelSet) Values() []int {
	out := make([]int, 0, len(l.Names))
	for v := range l.Names {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Contains reports whether v is a valid label value, background included.
func (l LabelSet) Contains(v int) bool {
	if v == l.Background {
		return true
	}
	_, ok := l.Names[v]
	return ok
}

// SpacingPolicy is the voxel-spacing gate an engine declares: spacing within
// [Min, Max] mm per axis passes through, anything else is resliced to the
// Isotropic target before inference.
type SpacingPolicy struct {
	Min       float64
	Max       float64
	Isotropic float64
}

// Manifest is one parsed engine block. Command element expressions stay
// unevaluated until BuildCommand supplies the per-case variables.
type Manifest struct {
	Name        string
	Description string
	Checkpoint  string
	Env         map[string]string
	Labels      LabelSet
	Spacing     *SpacingPolicy

	commandExprs []hcl.Expression
	workdirExpr  hcl.Expression
}

// CaseVars are the run-time values exposed to manifest expressions.
type CaseVars struct {
	Dir       string // the per-case temp directory
	InputFile string // staged input basename inside Dir
	InputPath string // full path of the staged input
	Device    string // "cpu" or "cuda"
}

func (m *Manifest) evalContext(vars CaseVars) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"case": cty.ObjectVal(map[string]cty.Value{
				"dir":        cty.StringVal(vars.Dir),
				"input_file": cty.StringVal(vars.InputFile),
				"input_path": cty.StringVal(vars.InputPath),
			}),
			"model": cty.ObjectVal(map[string]cty.Value{
				"checkpoint": cty.StringVal(m.Checkpoint),
			}),
			"device": cty.ObjectVal(map[string]cty.Value{
				"kind": cty.StringVal(vars.Device),
			}),
		},
	}
}

// BuildCommand evaluates the manifest's command expressions against the
// given case and returns the argv to execute.
func (m *Manifest) BuildCommand(vars CaseVars) ([]string, error) {
	evalCtx := m.evalContext(vars)
	argv := make([]string, 0, len(m.commandExprs))
	for i, expr := range m.commandExprs {
		val, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("engine %q: failed to evaluate command element %d: %w", m.Name, i, diags)
		}
		val, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, fmt.Errorf("engine %q: command element %d is not a string: %w", m.Name, i, err)
		}
		argv = append(argv, val.AsString())
	}
	return argv, nil
}

// Workdir evaluates the optional workdir expression, defaulting to the case
// directory.
func (m *Manifest) Workdir(vars CaseVars) (string, error) {
	if m.workdirExpr == nil {
		return vars.Dir, nil
	}
	val, diags := m.workdirExpr.Value(m.evalContext(vars))
	if diags.HasErrors() {
		return "", fmt.Errorf("engine %q: failed to evaluate workdir: %w", m.Name, diags)
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("engine %q: workdir is not a string: %w", m.Name, err)
	}
	return val.AsString(), nil
}

// fileRoot decodes the top-level blocks of a manifest file.
type fileRoot struct {
	Engines []*engineBlock `hcl:"engine,block"`
	Remain  hcl.Body       `hcl:",remain"`
}

type engineBlock struct {
	Name        string            `hcl:"name,label"`
	Description string            `hcl:"description,optional"`
	Checkpoint  string            `hcl:"checkpoint,optional"`
	Command     hcl.Expression    `hcl:"command"`
	Workdir     hcl.Expression    `hcl:"workdir,optional"`
	Env         map[string]string `hcl:"env,optional"`
	Labels      *labelsBlock      `hcl:"labels,block"`
	Spacing     *spacingBlock     `hcl:"spacing,block"`
}

type labelsBlock struct {
	Background int               `hcl:"background,optional"`
	Names      map[string]string `hcl:"names"`
}

type spacingBlock struct {
	Min       float64 `hcl:"min"`
	Max       float64 `hcl:"max"`
	Isotropic float64 `hcl:"isotropic"`
}

// translate validates a decoded engine block and turns it into a Manifest.
func (b *engineBlock) translate(filename string) (*Manifest, error) {
	if b.Name == "" {
		return nil, fmt.Errorf("%s: engine block is missing its name label", filename)
	}

	// Split the command into per-element expressions now so a malformed
	// manifest fails at load time, not mid-run.
	cmdExprs, diags := hcl.ExprList(b.Command)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s: engine %q: command must be a list: %w", filename, b.Name, diags)
	}
	if len(cmdExprs) == 0 {
		return nil, fmt.Errorf("%s: engine %q: command must not be empty", filename, b.Name)
	}

	if b.Labels == nil || len(b.Labels.Names) == 0 {
		return nil, fmt.Errorf("%s: engine %q: a labels block with at least one name is required", filename, b.Name)
	}
	names := make(map[int]string, len(b.Labels.Names))
	for key, name := range b.Labels.Names {
		v, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%s: engine %q: label key %q is not an integer", filename, b.Name, key)
		}
		if v == b.Labels.Background {
			return nil, fmt.Errorf("%s: engine %q: label %d collides with the background value", filename, b.Name, v)
		}
		names[v] = name
	}

	var spacing *SpacingPolicy
	if b.Spacing != nil {
		if b.Spacing.Min <= 0 || b.Spacing.Max <= b.Spacing.Min || b.Spacing.Isotropic <= 0 {
			return nil, fmt.Errorf("%s: engine %q: spacing block requires 0 < min < max and a positive isotropic target", filename, b.Name)
		}
		spacing = &SpacingPolicy{Min: b.Spacing.Min, Max: b.Spacing.Max, Isotropic: b.Spacing.Isotropic}
	}

	var workdir hcl.Expression
	if b.Workdir != nil {
		// gohcl leaves optional expression attributes as a synthetic null
		// literal when absent; only keep genuinely provided ones.
		if vars := b.Workdir.Variables(); len(vars) > 0 {
			workdir = b.Workdir
		} else if val, _ := b.Workdir.Value(nil); !val.IsNull() {
			workdir = b.Workdir
		}
	}

	return &Manifest{
		Name:         b.Name,
		Description:  b.Description,
		Checkpoint:   b.Checkpoint,
		Env:          b.Env,
		Labels:       LabelSet{Background: b.Labels.Background, Names: names},
		Spacing:      spacing,
		commandExprs: cmdExprs,
		workdirExpr:  workdir,
	}, nil
}

// ParseManifest decodes every engine block in one HCL body, for callers that
// already hold parsed file contents (the registry loader and tests).
func parseManifestBody(body hcl.Body, filename string) ([]*Manifest, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", filename, diags)
	}
	manifests := make([]*Manifest, 0, len(root.Engines))
	for _, block := range root.Engines {
		m, err := block.translate(filename)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
