package nifti

import (
	"math"
	"sort"
)

// axisAssignment describes, for each voxel axis, which world axis it mostly
// points along and in which direction.
type axisAssignment struct {
	world [3]int  // world axis index per voxel axis
	neg   [3]bool // true when the voxel axis points along the negative world axis
	ok    bool
}

// assignAxes pairs each voxel axis with a distinct world axis, greedily by
// the magnitude of the affine entries. Scanner affines are close to signed
// permutation matrices, so the greedy choice is the right one.
func assignAxes(a Affine) axisAssignment {
	type cand struct {
		world, voxel int
		mag          float64
		neg          bool
	}
	var cands []cand
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cands = append(cands, cand{world: i, voxel: j, mag: math.Abs(a[i][j]), neg: a[i][j] < 0})
		}
	}
	sort.Slice(cands, func(x, y int) bool { return cands[x].mag > cands[y].mag })

	var out axisAssignment
	var worldUsed, voxelUsed [3]bool
	assigned := 0
	for _, c := range cands {
		if worldUsed[c.world] || voxelUsed[c.voxel] || c.mag == 0 {
			continue
		}
		worldUsed[c.world] = true
		voxelUsed[c.voxel] = true
		out.world[c.voxel] = c.world
		out.neg[c.voxel] = c.neg
		assigned++
	}
	out.ok = assigned == 3
	return out
}

// AxCodes returns the anatomical axis codes of the affine, one letter per
// voxel axis: R/L, A/P, S/I depending on which world direction the axis
// points along. A T1 stored in radiological convention reports "LAS".
func AxCodes(a Affine) string {
	asn := assignAxes(a)
	if !asn.ok {
		return "???"
	}
	pos := [3]byte{'R', 'A', 'S'}
	neg := [3]byte{'L', 'P', 'I'}
	var out [3]byte
	for j := 0; j < 3; j++ {
		if asn.neg[j] {
			out[j] = neg[asn.world[j]]
		} else {
			out[j] = pos[asn.world[j]]
		}
	}
	return string(out[:])
}

// ToCanonical returns a copy of the image reoriented to the closest RAS+
// orientation by permuting and flipping voxel axes, with the affine updated
// so every voxel keeps its world coordinates. The second return value is
// false when the image is already RAS+ and the receiver is returned
// unchanged.
func (img *Image) ToCanonical() (*Image, bool) {
	asn := assignAxes(img.Affine)
	if !asn.ok {
		return img, false
	}

	// perm[i] is the source voxel axis that becomes output axis i; flip[i]
	// reverses it so the output axis points along the positive world axis.
	var perm [3]int
	var flip [3]bool
	for j := 0; j < 3; j++ {
		perm[asn.world[j]] = j
		flip[asn.world[j]] = asn.neg[j]
	}
	if perm == [3]int{0, 1, 2} && flip == [3]bool{} {
		return img, false
	}

	srcDims := [3]int{img.Nx, img.Ny, img.Nz}
	var dstDims [3]int
	for i := 0; i < 3; i++ {
		dstDims[i] = srcDims[perm[i]]
	}

	// New affine: columns are the (possibly negated) source columns, and the
	// origin absorbs the flipped extents.
	aff := Identity()
	for i := 0; i < 3; i++ {
		sign := 1.0
		if flip[i] {
			sign = -1.0
		}
		for r := 0; r < 3; r++ {
			aff[r][i] = sign * img.Affine[r][perm[i]]
		}
	}
	for r := 0; r < 3; r++ {
		origin := img.Affine[r][3]
		for i := 0; i < 3; i++ {
			if flip[i] {
				origin += img.Affine[r][perm[i]] * float64(srcDims[perm[i]]-1)
			}
		}
		aff[r][3] = origin
	}

	out := &Image{
		Nx: dstDims[0], Ny: dstDims[1], Nz: dstDims[2], Nt: img.Nt,
		Affine:   aff,
		Datatype: img.Datatype,
		Data:     make([]float64, len(img.Data)),
	}

	var src [3]int
	for c := 0; c < img.Nt; c++ {
		for k := 0; k < dstDims[2]; k++ {
			for j := 0; j < dstDims[1]; j++ {
				for i := 0; i < dstDims[0]; i++ {
					dst := [3]int{i, j, k}
					for axis := 0; axis < 3; axis++ {
						v := dst[axis]
						if flip[axis] {
							v = dstDims[axis] - 1 - v
						}
						src[perm[axis]] = v
					}
					out.Data[out.index(i, j, k, c)] = img.Data[img.index(src[0], src[1], src[2], c)]
				}
			}
		}
	}
	return out, true
}
