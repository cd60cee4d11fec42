package nifti

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Supported NIfTI-1 datatype codes.
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTUint16  int16 = 512
)

const (
	headerSize    = 348
	dataOffset    = 352
	sformAligned  = 1 // NIFTI_XFORM_SCANNER_ANAT; good enough for our output
	gzipMagicByte = 0x1f
)

// header mirrors the on-disk NIfTI-1 header layout. Field order and widths
// must not change; binary.Read/Write rely on it summing to exactly 348
// bytes.
type header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte

	Dim                          [8]int16
	IntentP1, IntentP2, IntentP3 float32
	IntentCode                   int16
	Datatype                     int16
	Bitpix                       int16
	SliceStart                   int16
	Pixdim                       [8]float32
	VoxOffset                    float32
	SclSlope                     float32
	SclInter                     float32
	SliceEnd                     int16
	SliceCode                    byte
	XYZTUnits                    byte
	CalMax, CalMin               float32
	SliceDuration                float32
	Toffset                      float32
	Glmax, Glmin                 int32

	Descrip [80]byte
	AuxFile [24]byte

	QformCode                     int16
	SformCode                     int16
	QuaternB, QuaternC, QuaternD  float32
	QoffsetX, QoffsetY, QoffsetZ  float32
	SrowX                         [4]float32
	SrowY                         [4]float32
	SrowZ                         [4]float32
	IntentName                    [16]byte
	Magic                         [4]byte
}

// bitpixFor returns the bits-per-voxel for a datatype code.
func bitpixFor(dt int16) (int16, error) {
	switch dt {
	case DTUint8:
		return 8, nil
	case DTInt16, DTUint16:
		return 16, nil
	case DTInt32, DTFloat32:
		return 32, nil
	case DTFloat64:
		return 64, nil
	default:
		return 0, fmt.Errorf("unsupported NIfTI datatype code %d", dt)
	}
}

// Load reads a NIfTI-1 volume from disk, transparently decompressing gzip
// content. Both 3D volumes and 4D volumes (time/channel axis) are accepted.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(f, path)
}

func decode(r io.Reader, name string) (*Image, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("%q is not a NIfTI file: %w", name, err)
	}
	var src io.Reader = br
	if head[0] == gzipMagicByte && head[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream in %q: %w", name, err)
		}
		defer gz.Close()
		src = gz
	}

	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%q is not a NIfTI file: only %d bytes", name, len(raw))
	}

	var hdr header
	order := binary.ByteOrder(binary.LittleEndian)
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), order, &hdr); err != nil {
		return nil, fmt.Errorf("failed to parse NIfTI header of %q: %w", name, err)
	}
	if hdr.SizeofHdr != headerSize {
		order = binary.BigEndian
		if err := binary.Read(bytes.NewReader(raw[:headerSize]), order, &hdr); err != nil || hdr.SizeofHdr != headerSize {
			return nil, fmt.Errorf("%q is not a NIfTI file: bad header size", name)
		}
	}

	magic := string(hdr.Magic[:3])
	if magic == "ni1" {
		return nil, fmt.Errorf("%q is a two-file (hdr/img) NIfTI pair, which is not supported", name)
	}
	if magic != "n+1" {
		return nil, fmt.Errorf("%q is not a NIfTI file: bad magic %q", name, magic)
	}

	ndim := int(hdr.Dim[0])
	if ndim < 3 || ndim > 4 {
		return nil, fmt.Errorf("%q has %d dimensions; only 3D and 4D volumes are supported", name, ndim)
	}
	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	nt := 1
	if ndim == 4 {
		nt = int(hdr.Dim[4])
		if nt < 1 {
			nt = 1
		}
	}
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("%q has invalid dimensions %dx%dx%d", name, nx, ny, nz)
	}

	bitpix, err := bitpixFor(hdr.Datatype)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	elemSize := int(bitpix) / 8

	offset := int(hdr.VoxOffset)
	if offset < headerSize {
		offset = dataOffset
	}
	nvox := nx * ny * nz * nt
	if len(raw) < offset+nvox*elemSize {
		return nil, fmt.Errorf("%q is truncated: want %d data bytes, have %d",
			name, nvox*elemSize, len(raw)-offset)
	}
	data := decodeVoxels(raw[offset:offset+nvox*elemSize], hdr.Datatype, order)

	// Apply scl_slope/scl_inter when nontrivial. slope == 0 means "unset".
	slope, inter := float64(hdr.SclSlope), float64(hdr.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return &Image{
		Nx: nx, Ny: ny, Nz: nz, Nt: nt,
		Affine:   affineFromHeader(&hdr),
		Datatype: hdr.Datatype,
		Data:     data,
	}, nil
}

func decodeVoxels(raw []byte, dt int16, order binary.ByteOrder) []float64 {
	var n int
	switch dt {
	case DTUint8:
		n = len(raw)
	case DTInt16, DTUint16:
		n = len(raw) / 2
	case DTInt32, DTFloat32:
		n = len(raw) / 4
	case DTFloat64:
		n = len(raw) / 8
	}
	data := make([]float64, n)
	switch dt {
	case DTUint8:
		for i := 0; i < n; i++ {
			data[i] = float64(raw[i])
		}
	case DTInt16:
		for i := 0; i < n; i++ {
			data[i] = float64(int16(order.Uint16(raw[i*2:])))
		}
	case DTUint16:
		for i := 0; i < n; i++ {
			data[i] = float64(order.Uint16(raw[i*2:]))
		}
	case DTInt32:
		for i := 0; i < n; i++ {
			data[i] = float64(int32(order.Uint32(raw[i*4:])))
		}
	case DTFloat32:
		for i := 0; i < n; i++ {
			data[i] = float64(math.Float32frombits(order.Uint32(raw[i*4:])))
		}
	case DTFloat64:
		for i := 0; i < n; i++ {
			data[i] = math.Float64frombits(order.Uint64(raw[i*8:]))
		}
	}
	return data
}

// affineFromHeader resolves the canonical affine: sform wins, then qform,
// then plain pixdim scaling.
func affineFromHeader(hdr *header) Affine {
	if hdr.SformCode > 0 {
		aff := Identity()
		for j := 0; j < 4; j++ {
			aff[0][j] = float64(hdr.SrowX[j])
			aff[1][j] = float64(hdr.SrowY[j])
			aff[2][j] = float64(hdr.SrowZ[j])
		}
		return aff
	}
	if hdr.QformCode > 0 {
		return affineFromQuaternion(hdr)
	}
	return Diag(float64(hdr.Pixdim[1]), float64(hdr.Pixdim[2]), float64(hdr.Pixdim[3]))
}

// affineFromQuaternion reconstructs the qform rotation per the NIfTI-1
// definition: R built from quaternion (a,b,c,d), columns scaled by the
// voxel sizes, third column flipped when qfac (pixdim[0]) is negative.
func affineFromQuaternion(hdr *header) Affine {
	b := float64(hdr.QuaternB)
	c := float64(hdr.QuaternC)
	d := float64(hdr.QuaternD)
	a := 1.0 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// Special case per the reference implementation: a 180 degree
		// rotation; normalize (b,c,d) to unit length.
		a = 0
		norm := math.Sqrt(b*b + c*c + d*d)
		if norm > 0 {
			b, c, d = b/norm, c/norm, d/norm
		}
	} else {
		a = math.Sqrt(a)
	}

	r := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - b*b - c*c},
	}

	sx := math.Abs(float64(hdr.Pixdim[1]))
	sy := math.Abs(float64(hdr.Pixdim[2]))
	sz := math.Abs(float64(hdr.Pixdim[3]))
	qfac := 1.0
	if hdr.Pixdim[0] < 0 {
		qfac = -1.0
	}

	aff := Identity()
	for i := 0; i < 3; i++ {
		aff[i][0] = r[i][0] * sx
		aff[i][1] = r[i][1] * sy
		aff[i][2] = r[i][2] * sz * qfac
	}
	aff[0][3] = float64(hdr.QoffsetX)
	aff[1][3] = float64(hdr.QoffsetY)
	aff[2][3] = float64(hdr.QoffsetZ)
	return aff
}

// Save writes the image to disk as single-file NIfTI-1, gzip-compressed when
// the path ends in ".gz". The canonical affine is written as the sform;
// the qform is left unset, which every conforming reader falls back from.
func (img *Image) Save(path string) error {
	dt := img.Datatype
	if dt == 0 {
		dt = DTFloat32
	}
	bitpix, err := bitpixFor(dt)
	if err != nil {
		return err
	}

	var hdr header
	hdr.SizeofHdr = headerSize
	hdr.Regular = 'r'
	if img.Nt > 1 {
		hdr.Dim[0] = 4
		hdr.Dim[4] = int16(img.Nt)
	} else {
		hdr.Dim[0] = 3
		hdr.Dim[4] = 1
	}
	hdr.Dim[1] = int16(img.Nx)
	hdr.Dim[2] = int16(img.Ny)
	hdr.Dim[3] = int16(img.Nz)
	for i := 5; i < 8; i++ {
		hdr.Dim[i] = 1
	}

	spacing := img.Affine.Spacing()
	hdr.Pixdim[0] = 1
	hdr.Pixdim[1] = float32(spacing[0])
	hdr.Pixdim[2] = float32(spacing[1])
	hdr.Pixdim[3] = float32(spacing[2])
	hdr.Pixdim[4] = 1

	hdr.Datatype = dt
	hdr.Bitpix = bitpix
	hdr.VoxOffset = dataOffset
	hdr.SclSlope = 1
	hdr.SclInter = 0

	hdr.SformCode = sformAligned
	hdr.QformCode = 0
	for j := 0; j < 4; j++ {
		hdr.SrowX[j] = float32(img.Affine[0][j])
		hdr.SrowY[j] = float32(img.Affine[1][j])
		hdr.SrowZ[j] = float32(img.Affine[2][j])
	}
	copy(hdr.Magic[:], "n+1\x00")

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("failed to encode NIfTI header: %w", err)
	}
	// Four bytes of extension padding between header and voxel data.
	buf.Write([]byte{0, 0, 0, 0})
	if err := encodeVoxels(&buf, img.Data, dt); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return fmt.Errorf("failed to finish gzip stream for %q: %w", path, err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeVoxels(buf *bytes.Buffer, data []float64, dt int16) error {
	var scratch [8]byte
	for _, v := range data {
		switch dt {
		case DTUint8:
			buf.WriteByte(uint8(clamp(math.Round(v), 0, 255)))
		case DTInt16:
			binary.LittleEndian.PutUint16(scratch[:2], uint16(int16(clamp(math.Round(v), math.MinInt16, math.MaxInt16))))
			buf.Write(scratch[:2])
		case DTUint16:
			binary.LittleEndian.PutUint16(scratch[:2], uint16(clamp(math.Round(v), 0, math.MaxUint16)))
			buf.Write(scratch[:2])
		case DTInt32:
			binary.LittleEndian.PutUint32(scratch[:4], uint32(int32(clamp(math.Round(v), math.MinInt32, math.MaxInt32))))
			buf.Write(scratch[:4])
		case DTFloat32:
			binary.LittleEndian.PutUint32(scratch[:4], math.Float32bits(float32(v)))
			buf.Write(scratch[:4])
		case DTFloat64:
			binary.LittleEndian.PutUint64(scratch[:8], math.Float64bits(v))
			buf.Write(scratch[:8])
		default:
			return fmt.Errorf("unsupported NIfTI datatype code %d", dt)
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
