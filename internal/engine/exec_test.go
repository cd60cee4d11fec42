package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execTestEngine(t *testing.T, command string) *Engine {
	t.Helper()
	src := `
engine "e" {
  command = ` + command + `
  labels {
    names = { "1" = "x" }
  }
}
`
	return &Engine{Manifest: parseTestManifest(t, src)[0], Handler: &Handler{}}
}

func TestEngineRun_Succeeds(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	caseDir := t.TempDir()
	eng := execTestEngine(t, `["touch", "${case.dir}/done"]`)

	// --- Act ---
	err := eng.Run(context.Background(), CaseVars{Dir: caseDir, Device: "cpu"}, nil)

	// --- Assert ---
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(caseDir, "done"))
	assert.NoError(t, statErr, "the command should have run inside the case directory")
}

func TestEngineRun_FailureIncludesOutputTail(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	caseDir := t.TempDir()
	eng := execTestEngine(t, `["sh", "-c", "echo boom >&2; exit 3"]`)

	// --- Act ---
	err := eng.Run(context.Background(), CaseVars{Dir: caseDir, Device: "cpu"}, nil)

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestEngineRun_CancellationKillsProcess(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	caseDir := t.TempDir()
	eng := execTestEngine(t, `["sleep", "60"]`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// --- Act ---
	start := time.Now()
	err := eng.Run(ctx, CaseVars{Dir: caseDir, Device: "cpu"}, nil)

	// --- Assert ---
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second, "cancellation must not wait for the sleep to finish")
}

func TestEngineRun_ExtraEnvReachesProcess(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	caseDir := t.TempDir()
	eng := execTestEngine(t, `["sh", "-c", "printf %s \"$MARKER\" > ${case.dir}/env.txt"]`)

	// --- Act ---
	err := eng.Run(context.Background(), CaseVars{Dir: caseDir, Device: "cpu"}, []string{"MARKER=hello"})

	// --- Assert ---
	require.NoError(t, err)
	got, readErr := os.ReadFile(filepath.Join(caseDir, "env.txt"))
	require.NoError(t, readErr)
	assert.Equal(t, "hello", string(got))
}
