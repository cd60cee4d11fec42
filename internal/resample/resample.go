// Package resample maps volumes between voxel grids through world space,
// using the affines carried by the images. It offers nearest-neighbour
// interpolation for label maps and trilinear interpolation for intensity
// and probability volumes.
package resample

import (
	"fmt"
	"math"

	"github.com/vk/brainseg/internal/nifti"
)

// Interp selects the interpolation kernel.
type Interp int

const (
	// Nearest picks the closest source voxel; mandatory for label maps.
	Nearest Interp = iota
	// Trilinear blends the eight surrounding source voxels.
	Trilinear
)

// ToReference samples src onto the voxel grid of ref: every output voxel is
// mapped through ref's affine into world space and back through src's
// inverted affine. Voxels falling outside src evaluate to 0. The result
// carries ref's dimensions and affine and src's datatype.
func ToReference(src, ref *nifti.Image, interp Interp) (*nifti.Image, error) {
	if src.Nt != 1 {
		return nil, fmt.Errorf("resample expects a 3D volume, got %d channels", src.Nt)
	}
	inv, err := src.Affine.Invert()
	if err != nil {
		return nil, fmt.Errorf("source affine is not invertible: %w", err)
	}
	// Maps ref voxel indices straight to src voxel indices.
	m := inv.Mul(ref.Affine)

	out := nifti.NewImage(ref.Nx, ref.Ny, ref.Nz, ref.Affine)
	out.Datatype = src.Datatype
	for k := 0; k < ref.Nz; k++ {
		for j := 0; j < ref.Ny; j++ {
			for i := 0; i < ref.Nx; i++ {
				x, y, z := m.Apply(float64(i), float64(j), float64(k))
				out.Set(i, j, k, sample(src, x, y, z, interp))
			}
		}
	}
	return out, nil
}

// ToSpacing reslices src onto a grid with the given isotropic voxel size,
// keeping the origin and axis directions. The output extent is the source
// extent rounded to the new spacing. When clampNegative is set, negative
// interpolated intensities are forced to 0.
func ToSpacing(src *nifti.Image, iso float64, interp Interp, clampNegative bool) (*nifti.Image, error) {
	if iso <= 0 {
		return nil, fmt.Errorf("target spacing must be positive, got %g", iso)
	}
	spacing := src.Affine.Spacing()
	dims := [3]int{src.Nx, src.Ny, src.Nz}
	var outDims [3]int
	for i := 0; i < 3; i++ {
		outDims[i] = int(math.Round(float64(dims[i]) * spacing[i] / iso))
		if outDims[i] < 1 {
			outDims[i] = 1
		}
	}

	// Scale each direction column to the new voxel size; origin unchanged.
	aff := src.Affine
	for j := 0; j < 3; j++ {
		scale := iso / spacing[j]
		for r := 0; r < 3; r++ {
			aff[r][j] *= scale
		}
	}

	ref := nifti.NewImage(outDims[0], outDims[1], outDims[2], aff)
	out, err := ToReference(src, ref, interp)
	if err != nil {
		return nil, err
	}
	if clampNegative {
		for i, v := range out.Data {
			if v < 0 {
				out.Data[i] = 0
			}
		}
	}
	return out, nil
}

func sample(img *nifti.Image, x, y, z float64, interp Interp) float64 {
	if interp == Nearest {
		i := int(math.Round(x))
		j := int(math.Round(y))
		k := int(math.Round(z))
		if i < 0 || i >= img.Nx || j < 0 || j >= img.Ny || k < 0 || k >= img.Nz {
			return 0
		}
		return img.At(i, j, k)
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	z0 := int(math.Floor(z))
	fx := x - float64(x0)
	fy := y - float64(y0)
	fz := z - float64(z0)

	var acc float64
	for dz := 0; dz <= 1; dz++ {
		wz := fz
		if dz == 0 {
			wz = 1 - fz
		}
		for dy := 0; dy <= 1; dy++ {
			wy := fy
			if dy == 0 {
				wy = 1 - fy
			}
			for dx := 0; dx <= 1; dx++ {
				wx := fx
				if dx == 0 {
					wx = 1 - fx
				}
				w := wx * wy * wz
				if w == 0 {
					continue
				}
				acc += w * valueAt(img, x0+dx, y0+dy, z0+dz)
			}
		}
	}
	return acc
}

func valueAt(img *nifti.Image, i, j, k int) float64 {
	if i < 0 || i >= img.Nx || j < 0 || j >= img.Ny || k < 0 || k >= img.Nz {
		return 0
	}
	return img.At(i, j, k)
}
