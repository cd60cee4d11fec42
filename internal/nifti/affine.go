package nifti

import (
	"fmt"
	"math"
)

// Affine is a 4x4 voxel-index-to-world transform in row-major order. The
// last row is always [0 0 0 1].
type Affine [4][4]float64

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Diag returns a diagonal scaling transform with the given voxel sizes.
func Diag(sx, sy, sz float64) Affine {
	return Affine{
		{sx, 0, 0, 0},
		{0, sy, 0, 0},
		{0, 0, sz, 0},
		{0, 0, 0, 1},
	}
}

// Mul returns the composition a∘b, the transform that applies b first and
// then a.
func (a Affine) Mul(b Affine) Affine {
	var out Affine
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Apply maps the point (x, y, z) through the transform.
func (a Affine) Apply(x, y, z float64) (float64, float64, float64) {
	return a[0][0]*x + a[0][1]*y + a[0][2]*z + a[0][3],
		a[1][0]*x + a[1][1]*y + a[1][2]*z + a[1][3],
		a[2][0]*x + a[2][1]*y + a[2][2]*z + a[2][3]
}

// Invert returns the inverse transform. Because the last row is [0 0 0 1],
// the inverse is computed from the 3x3 rotation/scaling block and the
// translation column directly.
func (a Affine) Invert() (Affine, error) {
	m := a
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-12 {
		return Affine{}, fmt.Errorf("affine is singular (det=%g)", det)
	}

	inv := Identity()
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) / det
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) / det
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) / det
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) / det
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) / det
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) / det
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) / det
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) / det
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) / det

	// t' = -R⁻¹ · t
	tx, ty, tz := a[0][3], a[1][3], a[2][3]
	inv[0][3] = -(inv[0][0]*tx + inv[0][1]*ty + inv[0][2]*tz)
	inv[1][3] = -(inv[1][0]*tx + inv[1][1]*ty + inv[1][2]*tz)
	inv[2][3] = -(inv[2][0]*tx + inv[2][1]*ty + inv[2][2]*tz)
	return inv, nil
}

// Spacing returns the voxel size along each voxel axis, the Euclidean norm
// of the corresponding affine column.
func (a Affine) Spacing() [3]float64 {
	var out [3]float64
	for j := 0; j < 3; j++ {
		out[j] = math.Sqrt(a[0][j]*a[0][j] + a[1][j]*a[1][j] + a[2][j]*a[2][j])
	}
	return out
}

// AlmostEqual reports whether every element of a and b is within tol.
func (a Affine) AlmostEqual(b Affine, tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
