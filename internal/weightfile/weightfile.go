// Package weightfile persists a packed 4-bit weight matrix to disk.
//
// The in-memory packed layout itself has no header; consumers must know N, K,
// BlkLen and zero-point presence to interpret it. This container records
// exactly those parameters so a packed matrix can be mapped back in without
// out-of-band metadata:
//
//	offset 0   magic "Q4WM"
//	offset 4   version (uint16 LE)
//	offset 6   flags (uint16 LE): bit0 zero points present, bit1 int8-mode interleave
//	offset 8   n, k, blkLen (uint32 LE each)
//	offset 20  reserved (uint32)
//	offset 24  packed code bytes, then scales (float32 LE), then packed zero points
package weightfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	mmapw "github.com/edsrzf/mmap-go"
	"golang.org/x/exp/mmap"

	"github.com/lth/go-q4gemm/internal/q4blk"
)

var fileMagic = [4]byte{'Q', '4', 'W', 'M'}

const (
	fileVersion = uint16(1)
	headerSize  = 24

	flagZeroPoints = uint16(1 << 0)
	flagInt8Mode   = uint16(1 << 1)
)

// Matrix is a packed weight matrix together with the parameters needed to
// interpret its layout.
type Matrix struct {
	N, K, BlkLen int
	Int8Mode     bool

	Codes      []byte
	Scales     []float32
	ZeroPoints []byte // nil when quantization is symmetric
}

func (m *Matrix) sectionSizes() (codes, scales, zps int, err error) {
	if m.BlkLen < q4blk.MinBlkLen || m.BlkLen%q4blk.MinBlkLen != 0 {
		return 0, 0, 0, fmt.Errorf("weightfile: bad block length %d", m.BlkLen)
	}
	codes = q4blk.PackedSize(m.N, m.K, m.BlkLen)
	scales = m.N * q4blk.BlockCount(m.K, m.BlkLen) * 4
	if m.ZeroPoints != nil {
		zps = q4blk.ZeroPointSize(m.N, m.K, m.BlkLen)
	}
	if len(m.Codes) != codes || len(m.Scales)*4 != scales || (m.ZeroPoints != nil && len(m.ZeroPoints) != zps) {
		return 0, 0, 0, fmt.Errorf("weightfile: section sizes do not match %dx%d blkLen=%d", m.N, m.K, m.BlkLen)
	}
	return codes, scales, zps, nil
}

// Write creates (or truncates) path and writes the matrix through a
// read-write memory mapping.
func Write(path string, m *Matrix) error {
	codesLen, scalesLen, zpsLen, err := m.sectionSizes()
	if err != nil {
		return err
	}
	total := headerSize + codesLen + scalesLen + zpsLen

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(int64(total)); err != nil {
		return fmt.Errorf("size file: %w", err)
	}

	mm, err := mmapw.Map(f, mmapw.RDWR, 0)
	if err != nil {
		return fmt.Errorf("mmap file: %w", err)
	}
	defer mm.Unmap()

	copy(mm[0:4], fileMagic[:])
	binary.LittleEndian.PutUint16(mm[4:], fileVersion)
	flags := uint16(0)
	if m.ZeroPoints != nil {
		flags |= flagZeroPoints
	}
	if m.Int8Mode {
		flags |= flagInt8Mode
	}
	binary.LittleEndian.PutUint16(mm[6:], flags)
	binary.LittleEndian.PutUint32(mm[8:], uint32(m.N))
	binary.LittleEndian.PutUint32(mm[12:], uint32(m.K))
	binary.LittleEndian.PutUint32(mm[16:], uint32(m.BlkLen))
	binary.LittleEndian.PutUint32(mm[20:], 0)

	off := headerSize
	copy(mm[off:], m.Codes)
	off += codesLen
	for _, s := range m.Scales {
		binary.LittleEndian.PutUint32(mm[off:], math.Float32bits(s))
		off += 4
	}
	copy(mm[off:], m.ZeroPoints)

	if err := mm.Flush(); err != nil {
		return fmt.Errorf("flush mmap: %w", err)
	}
	return nil
}

// Open memory-maps path and reads the matrix back out.
func Open(path string) (*Matrix, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap file: %w", err)
	}
	defer r.Close()

	var hdr [headerSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if [4]byte(hdr[0:4]) != fileMagic {
		return nil, fmt.Errorf("weightfile: bad magic %q", hdr[0:4])
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != fileVersion {
		return nil, fmt.Errorf("weightfile: unsupported version %d", v)
	}
	flags := binary.LittleEndian.Uint16(hdr[6:])

	m := &Matrix{
		N:        int(binary.LittleEndian.Uint32(hdr[8:])),
		K:        int(binary.LittleEndian.Uint32(hdr[12:])),
		BlkLen:   int(binary.LittleEndian.Uint32(hdr[16:])),
		Int8Mode: flags&flagInt8Mode != 0,
	}
	if m.BlkLen < q4blk.MinBlkLen || m.BlkLen%q4blk.MinBlkLen != 0 {
		return nil, fmt.Errorf("weightfile: bad block length %d", m.BlkLen)
	}

	codesLen := q4blk.PackedSize(m.N, m.K, m.BlkLen)
	scaleCount := m.N * q4blk.BlockCount(m.K, m.BlkLen)
	zpsLen := 0
	if flags&flagZeroPoints != 0 {
		zpsLen = q4blk.ZeroPointSize(m.N, m.K, m.BlkLen)
	}
	if int64(headerSize+codesLen+scaleCount*4+zpsLen) != int64(r.Len()) {
		return nil, fmt.Errorf("weightfile: file size %d does not match header", r.Len())
	}

	body := make([]byte, codesLen+scaleCount*4+zpsLen)
	if _, err := r.ReadAt(body, headerSize); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	m.Codes = body[:codesLen]
	m.Scales = make([]float32, scaleCount)
	for i := range m.Scales {
		m.Scales[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[codesLen+i*4:]))
	}
	if zpsLen > 0 {
		m.ZeroPoints = body[codesLen+scaleCount*4:]
	}
	return m, nil
}
