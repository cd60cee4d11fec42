package nifti

import "fmt"

// Image is an in-memory volume: voxel data in NIfTI order (x fastest, then
// y, z, and channel), the canonical voxel-to-world affine, and the datatype
// the volume should be written back as.
type Image struct {
	Nx, Ny, Nz int
	Nt         int // channels along the 4th axis; 1 for plain 3D volumes
	Affine     Affine
	Datatype   int16
	Data       []float64
}

// NewImage allocates a zero-filled 3D float32 volume with the given
// dimensions and affine.
func NewImage(nx, ny, nz int, aff Affine) *Image {
	return &Image{
		Nx: nx, Ny: ny, Nz: nz, Nt: 1,
		Affine:   aff,
		Datatype: DTFloat32,
		Data:     make([]float64, nx*ny*nz),
	}
}

// NumVoxels returns the number of voxels in one channel.
func (img *Image) NumVoxels() int {
	return img.Nx * img.Ny * img.Nz
}

// index returns the flat data index of (i, j, k) in channel c.
func (img *Image) index(i, j, k, c int) int {
	return i + img.Nx*(j+img.Ny*(k+img.Nz*c))
}

// At returns the voxel value at (i, j, k) in channel 0.
func (img *Image) At(i, j, k int) float64 {
	return img.Data[img.index(i, j, k, 0)]
}

// Set assigns the voxel value at (i, j, k) in channel 0.
func (img *Image) Set(i, j, k int, v float64) {
	img.Data[img.index(i, j, k, 0)] = v
}

// Channel extracts one channel of a 4D volume as a standalone 3D image
// sharing the spatial affine.
func (img *Image) Channel(c int) (*Image, error) {
	if c < 0 || c >= img.Nt {
		return nil, fmt.Errorf("channel %d out of range (volume has %d)", c, img.Nt)
	}
	n := img.NumVoxels()
	out := &Image{
		Nx: img.Nx, Ny: img.Ny, Nz: img.Nz, Nt: 1,
		Affine:   img.Affine,
		Datatype: img.Datatype,
		Data:     make([]float64, n),
	}
	copy(out.Data, img.Data[c*n:(c+1)*n])
	return out, nil
}

// SameGrid reports whether other has identical spatial dimensions.
func (img *Image) SameGrid(other *Image) bool {
	return img.Nx == other.Nx && img.Ny == other.Ny && img.Nz == other.Nz
}
