package resample_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/brainseg/internal/nifti"
	"github.com/vk/brainseg/internal/resample"
	"github.com/vk/brainseg/internal/testutil"
)

func TestToReference_IdenticalGridIsLossless(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := testutil.Volume(4, 5, 6)

	// --- Act ---
	got, err := resample.ToReference(src, src, resample.Trilinear)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, src.Data, got.Data, "resampling onto the same grid must not change any voxel")
	assert.True(t, src.Affine.AlmostEqual(got.Affine, 0))
}

func TestToReference_NearestRecoversLabelsAfterReorientation(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A label cube on an LPI grid; canonicalizing moves it to RAS+.
	aff := nifti.Diag(-1, -1, -1)
	aff[0][3] = 7
	aff[1][3] = 7
	aff[2][3] = 7
	labels := testutil.LabelVolume(8, 8, 8, 2, aff)
	canonical, changed := labels.ToCanonical()
	require.True(t, changed)

	// --- Act ---
	// Map the canonical labels back onto the original grid.
	got, err := resample.ToReference(canonical, labels, resample.Nearest)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, labels.Data, got.Data, "nearest-neighbour resampling must reproduce the labels exactly")
}

func TestToReference_OutsideSourceIsZero(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A small source far away from a larger reference grid.
	src := testutil.Volume(2, 2, 2)
	src.Affine[0][3] = 1000
	ref := nifti.NewImage(4, 4, 4, nifti.Identity())

	// --- Act ---
	got, err := resample.ToReference(src, ref, resample.Trilinear)

	// --- Assert ---
	require.NoError(t, err)
	for _, v := range got.Data {
		assert.Zero(t, v)
	}
}

func TestToReference_Rejects4DSource(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := testutil.Volume(2, 2, 2)
	src.Nt = 3
	ref := testutil.Volume(2, 2, 2)

	// --- Act ---
	_, err := resample.ToReference(src, ref, resample.Nearest)

	// --- Assert ---
	require.Error(t, err)
}

func TestToSpacing_HalvesDimensionsAtDoubleSpacing(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := testutil.Volume(10, 10, 10)

	// --- Act ---
	got, err := resample.ToSpacing(src, 2.0, resample.Trilinear, false)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, [3]int{5, 5, 5}, [3]int{got.Nx, got.Ny, got.Nz})
	spacing := got.Affine.Spacing()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 2.0, spacing[i], 1e-12)
	}
	// Origin is untouched.
	assert.Equal(t, src.Affine[0][3], got.Affine[0][3])
}

func TestToSpacing_AnisotropicToIsotropic(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A 0.5 x 0.5 x 3.0 mm grid, as scanners deliver it.
	src := testutil.VolumeWithAffine(20, 20, 10, nifti.Diag(0.5, 0.5, 3.0))

	// --- Act ---
	got, err := resample.ToSpacing(src, 1.0, resample.Trilinear, false)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, [3]int{10, 10, 30}, [3]int{got.Nx, got.Ny, got.Nz})
}

func TestToSpacing_ClampsNegativeIntensities(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := testutil.Volume(6, 6, 6)
	for i := range src.Data {
		src.Data[i] = -1
	}

	// --- Act ---
	got, err := resample.ToSpacing(src, 1.5, resample.Trilinear, true)

	// --- Assert ---
	require.NoError(t, err)
	for _, v := range got.Data {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestToSpacing_RejectsNonPositiveTarget(t *testing.T) {
	t.Parallel()

	// --- Act ---
	_, err := resample.ToSpacing(testutil.Volume(2, 2, 2), 0, resample.Nearest, false)

	// --- Assert ---
	require.Error(t, err)
}
