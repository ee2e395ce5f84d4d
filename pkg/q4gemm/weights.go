package q4gemm

import (
	"fmt"

	"github.com/lth/go-q4gemm/internal/q4blk"
	"github.com/lth/go-q4gemm/internal/weightfile"
)

// PackedWeights bundles a packed n x k weight matrix with its quantization
// parameters. Codes are in the interleaved kernel layout for Mode.
type PackedWeights struct {
	N, K, BlkLen int
	Mode         ComputeMode

	Codes      []byte
	Scales     []float32
	ZeroPoints []byte // nil when quantization is symmetric
}

// QuantizeWeights quantizes a dense row-major k x n float32 weight matrix to
// 4-bit blocks and packs the codes for mode. Symmetric quantization fixes the
// zero point at 8 and omits the zero-point array; asymmetric derives one per
// block.
func QuantizeWeights(b []float32, n, k, blkLen int, mode ComputeMode, symmetric bool, opts ...Option) (*PackedWeights, error) {
	if err := checkMode(mode); err != nil {
		return nil, err
	}
	if err := checkBlkLen(blkLen); err != nil {
		return nil, err
	}
	if err := checkDims(n, k); err != nil {
		return nil, err
	}
	if len(b) < k*n {
		return nil, fmt.Errorf("q4gemm: weight matrix too small: %d < %d", len(b), k*n)
	}

	raw, scales, zeroPoints := q4blk.QuantizeMatrix(b, n, k, blkLen, symmetric)
	packed := make([]byte, len(raw))
	if err := Pack(n, k, blkLen, mode, raw, packed, opts...); err != nil {
		return nil, err
	}

	return &PackedWeights{
		N:          n,
		K:          k,
		BlkLen:     blkLen,
		Mode:       mode,
		Codes:      packed,
		Scales:     scales,
		ZeroPoints: zeroPoints,
	}, nil
}

// Gemm multiplies the row-major m x K activation matrix a against the packed
// weights and stores the m x N result in c.
func (w *PackedWeights) Gemm(a, c []float32, m int, bias []float32, opts ...Option) error {
	return Gemm(w.BlkLen, w.Mode, a, w.Codes, w.Scales, w.ZeroPoints, c, m, w.N, w.K, bias, opts...)
}

// Dequantize expands the packed weights into dense float panels; see
// DequantizeWeights for the layout. Only float-mode weights can be expanded,
// as the int8 interleave is not what the dense path reads.
func (w *PackedWeights) Dequantize(dst []float32) error {
	if w.Mode != CompFp32 {
		return fmt.Errorf("q4gemm: cannot dequantize %s-mode weights for the dense path", w.Mode)
	}
	return DequantizeWeights(w.BlkLen, dst, w.Codes, w.Scales, w.ZeroPoints, w.N, w.K)
}

// Save writes the packed weights to path in the weight container format.
func (w *PackedWeights) Save(path string) error {
	if err := checkMode(w.Mode); err != nil {
		return err
	}
	return weightfile.Write(path, &weightfile.Matrix{
		N:          w.N,
		K:          w.K,
		BlkLen:     w.BlkLen,
		Int8Mode:   w.Mode == CompInt8,
		Codes:      w.Codes,
		Scales:     w.Scales,
		ZeroPoints: w.ZeroPoints,
	})
}

// LoadWeights memory-maps a weight container written by Save.
func LoadWeights(path string) (*PackedWeights, error) {
	m, err := weightfile.Open(path)
	if err != nil {
		return nil, err
	}
	mode := CompFp32
	if m.Int8Mode {
		mode = CompInt8
	}
	return &PackedWeights{
		N:          m.N,
		K:          m.K,
		BlkLen:     m.BlkLen,
		Mode:       mode,
		Codes:      m.Codes,
		Scales:     m.Scales,
		ZeroPoints: m.ZeroPoints,
	}, nil
}
