package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifestFile(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
}

func TestRegistry_LoadAndLookup(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeManifestFile(t, dir, "mdgru.hcl", validManifest)
	reg := New()
	reg.RegisterHandler("mdgru", &Handler{})

	// --- Act ---
	err := reg.LoadManifests(context.Background(), dir)

	// --- Assert ---
	require.NoError(t, err)
	require.NoError(t, reg.Validate())
	assert.Equal(t, []string{"mdgru"}, reg.Names())

	eng, err := reg.Lookup("mdgru")
	require.NoError(t, err)
	assert.Equal(t, "mdgru", eng.Manifest.Name)
}

func TestRegistry_DuplicateManifest(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The same engine name declared in two files.
	dir := t.TempDir()
	writeManifestFile(t, dir, "a.hcl", validManifest)
	writeManifestFile(t, dir, "b.hcl", validManifest)
	reg := New()

	// --- Act ---
	err := reg.LoadManifests(context.Background(), dir)

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestRegistry_ValidateRejectsHandlerlessManifest(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeManifestFile(t, dir, "mdgru.hcl", validManifest)
	reg := New()
	reg.RegisterHandler("nnunet", &Handler{})
	require.NoError(t, reg.LoadManifests(context.Background(), dir))

	// --- Act ---
	err := reg.Validate()

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registered handler")
}

func TestRegistry_ValidateAllowsManifestlessHandler(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The binary compiles in every known engine, but an image only ships the
	// manifests for the models it bundles.
	reg := New()
	reg.RegisterHandler("mdgru", &Handler{})
	reg.RegisterHandler("nnunet", &Handler{})

	// --- Act / Assert ---
	require.NoError(t, reg.Validate())
}

func TestRegistry_DoubleHandlerRegistrationPanics(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg := New()
	reg.RegisterHandler("mdgru", &Handler{})

	// --- Act / Assert ---
	assert.Panics(t, func() {
		reg.RegisterHandler("mdgru", &Handler{})
	})
}

func TestRegistry_Default(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	writeManifestFile(t, dir, "mdgru.hcl", validManifest)
	reg := New()
	reg.RegisterHandler("mdgru", &Handler{})
	require.NoError(t, reg.LoadManifests(context.Background(), dir))

	// --- Act ---
	eng, err := reg.Default()

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "mdgru", eng.Manifest.Name)
}

func TestRegistry_DefaultAmbiguousWithTwoEngines(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	second := `
engine "nnunet" {
  command = ["true"]
  labels {
    names = { "1" = "x" }
  }
}
`
	dir := t.TempDir()
	writeManifestFile(t, dir, "mdgru.hcl", validManifest)
	writeManifestFile(t, dir, "nnunet.hcl", second)
	reg := New()
	require.NoError(t, reg.LoadManifests(context.Background(), dir))

	// --- Act ---
	_, err := reg.Default()

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--engine")
}
