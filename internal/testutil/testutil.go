// Package testutil holds shared helpers for the test suites: a thread-safe
// log buffer and builders for small synthetic NIfTI volumes.
package testutil

import (
	"bytes"
	"sync"

	"github.com/vk/brainseg/internal/nifti"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Volume builds a small RAS+ 1mm isotropic volume whose voxel values encode
// their own flat index, which makes resampling results easy to assert on.
func Volume(nx, ny, nz int) *nifti.Image {
	img := nifti.NewImage(nx, ny, nz, nifti.Identity())
	for i := range img.Data {
		img.Data[i] = float64(i)
	}
	return img
}

// VolumeWithAffine is Volume with an explicit voxel-to-world transform.
func VolumeWithAffine(nx, ny, nz int, affine nifti.Affine) *nifti.Image {
	img := Volume(nx, ny, nz)
	img.Affine = affine
	return img
}

// LabelVolume builds a volume carrying the given label in a centered cube
// and background elsewhere.
func LabelVolume(nx, ny, nz, label int, affine nifti.Affine) *nifti.Image {
	img := nifti.NewImage(nx, ny, nz, affine)
	img.Datatype = nifti.DTUint8
	for k := nz / 4; k < nz-nz/4; k++ {
		for j := ny / 4; j < ny-ny/4; j++ {
			for i := nx / 4; i < nx-nx/4; i++ {
				img.Set(i, j, k, float64(label))
			}
		}
	}
	return img
}
