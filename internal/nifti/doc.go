// Package nifti implements a single-file NIfTI-1 reader and writer covering
// the subset of the format the segmentation pipeline needs: 3D and 4D
// volumes, the common scalar datatypes, gzip compression, and the
// qform/sform affine machinery.
//
// On load, the three possible voxel-to-world transforms (sform, qform,
// pixdim scaling) are collapsed into one canonical affine, which is the only
// transform the rest of the pipeline reasons about. On save, that affine is
// written back as the sform. Voxel data is surfaced as float64 with any
// scl_slope/scl_inter scaling already applied.
package nifti
