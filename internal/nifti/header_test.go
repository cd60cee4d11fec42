package nifti

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVolume() *Image {
	aff := Diag(1, 1.1, 1.2)
	aff[0][3] = -90
	aff[1][3] = -126
	aff[2][3] = -72
	img := NewImage(4, 3, 2, aff)
	for i := range img.Data {
		img.Data[i] = float64(i) - 5.5
	}
	return img
}

func TestSaveLoad_RoundTripCompressed(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := testVolume()
	path := filepath.Join(t.TempDir(), "vol.nii.gz")

	// --- Act ---
	require.NoError(t, src.Save(path))
	got, err := Load(path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, src.Nx, got.Nx)
	assert.Equal(t, src.Ny, got.Ny)
	assert.Equal(t, src.Nz, got.Nz)
	assert.Equal(t, 1, got.Nt)
	assert.Equal(t, DTFloat32, got.Datatype)
	assert.True(t, src.Affine.AlmostEqual(got.Affine, 1e-4), "affine should survive a save/load cycle")
	require.Len(t, got.Data, len(src.Data))
	for i := range src.Data {
		assert.InDelta(t, src.Data[i], got.Data[i], 1e-4)
	}
}

func TestSaveLoad_RoundTripUncompressed(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := testVolume()
	path := filepath.Join(t.TempDir(), "vol.nii")

	// --- Act ---
	require.NoError(t, src.Save(path))
	got, err := Load(path)

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, src.Affine.AlmostEqual(got.Affine, 1e-4))
	assert.InDelta(t, src.Data[0], got.Data[0], 1e-4)
}

func TestSaveLoad_IntegerDatatypeClamps(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A label map saved as uint8 must clamp out-of-range values instead of
	// wrapping around.
	src := testVolume()
	src.Datatype = DTUint8
	src.Data[0] = -3
	src.Data[1] = 300
	src.Data[2] = 2
	path := filepath.Join(t.TempDir(), "labels.nii.gz")

	// --- Act ---
	require.NoError(t, src.Save(path))
	got, err := Load(path)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, DTUint8, got.Datatype)
	assert.Equal(t, 0.0, got.Data[0])
	assert.Equal(t, 255.0, got.Data[1])
	assert.Equal(t, 2.0, got.Data[2])
}

func TestLoad_RejectsGarbage(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "garbage.nii")
	require.NoError(t, os.WriteFile(path, []byte("this is not a nifti volume"), 0o600))

	// --- Act ---
	_, err := Load(path)

	// --- Assert ---
	require.Error(t, err)
}

func TestLoad_RejectsTruncatedVolume(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Save a valid volume, then chop the voxel payload short.
	src := testVolume()
	path := filepath.Join(t.TempDir(), "trunc.nii")
	require.NoError(t, src.Save(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-16], 0o600))

	// --- Act ---
	_, err = Load(path)

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestLoad_RejectsOneByteFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Too short even for the gzip sniff.
	path := filepath.Join(t.TempDir(), "tiny.nii")
	require.NoError(t, os.WriteFile(path, []byte{0x1f}, 0o600))

	// --- Act ---
	_, err := Load(path)

	// --- Assert ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a NIfTI file")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	// --- Act ---
	_, err := Load(filepath.Join(t.TempDir(), "nope.nii.gz"))

	// --- Assert ---
	require.Error(t, err)
}
