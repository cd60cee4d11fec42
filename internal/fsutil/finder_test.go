package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeExtensions(t *testing.T) {
	t.Parallel()

	// --- Act / Assert ---
	assert.True(t, HasVolumeExt("/data/t1.nii.gz"))
	assert.True(t, HasVolumeExt("t1.nii"))
	assert.False(t, HasVolumeExt("t1.dcm"))
	assert.False(t, HasVolumeExt("t1"))

	assert.Equal(t, ".nii.gz", VolumeExt("/data/t1.nii.gz"))
	assert.Equal(t, ".nii", VolumeExt("t1.nii"))
	assert.Equal(t, "", VolumeExt("t1.mha"))

	assert.Equal(t, "/data/t1", TrimVolumeExt("/data/t1.nii.gz"))
	assert.Equal(t, "t1", TrimVolumeExt("t1.nii"))
	assert.Equal(t, "t1.mha", TrimVolumeExt("t1.mha"))
}

func TestFindVolumes(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	for _, name := range []string{"b.nii.gz", "a.nii", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.nii.gz"), 0o755))

	// --- Act ---
	got, err := FindVolumes(dir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.nii"),
		filepath.Join(dir, "b.nii.gz"),
	}, got, "volumes come back sorted, directories and other files excluded")
}

func TestFindFilesByExtension(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"a.hcl", "nested/b.hcl", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	// --- Act ---
	got, err := FindFilesByExtension(dir, ".hcl")

	// --- Assert ---
	require.NoError(t, err)
	assert.Len(t, got, 2, "the scan is recursive")
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	// --- Act ---
	err := CopyFile(src, dst)

	// --- Assert ---
	require.NoError(t, err)
	got, readErr := os.ReadFile(dst)
	require.NoError(t, readErr)
	assert.Equal(t, "payload", string(got))
}
