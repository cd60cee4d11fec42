package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/brainseg/internal/cli"
	"github.com/vk/brainseg/internal/pipeline"
)

func TestRun_Help(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}

	// --- Act ---
	// The "-h" flag should print usage and exit cleanly.
	err := run(context.Background(), out, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRun_MissingInputIsUsageError(t *testing.T) {
	t.Parallel()

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, nil)

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestRun_MissingEnginesDirFails(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{
		"-engines-path", filepath.Join(t.TempDir(), "missing"),
		"in.nii.gz",
	}

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, args)

	// --- Assert ---
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("wrapped: %w", pipeline.ErrInputNotFound), want: 3},
		{err: pipeline.ErrUnsupportedFormat, want: 4},
		{err: pipeline.ErrDeviceUnavailable, want: 5},
		{err: pipeline.ErrInferenceFailed, want: 6},
		{err: pipeline.ErrOutputExists, want: 1},
		{err: errors.New("anything else"), want: 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "error: %v", tt.err)
	}
}
