package q4gemm

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lth/go-q4gemm/internal/kernels"
	"github.com/lth/go-q4gemm/internal/parallel"
	"github.com/lth/go-q4gemm/internal/q4blk"
	"github.com/lth/go-q4gemm/internal/q8blk"
)

// PackedSize returns the byte size of the packed code buffer for an n x k
// weight matrix. The size is the same in both compute modes.
func PackedSize(n, k, blkLen int, mode ComputeMode) (int, error) {
	if err := checkMode(mode); err != nil {
		return 0, err
	}
	if err := checkBlkLen(blkLen); err != nil {
		return 0, err
	}
	if err := checkDims(n, k); err != nil {
		return 0, err
	}
	return kernels.Active().PackedSize(n, k, blkLen, mode == CompInt8), nil
}

// Pack transforms raw per-block 4-bit codes (two per byte, element 2i in the
// low nibble) into the interleaved layout the compute kernels read. The
// interleave differs between modes, so packed must be re-created when
// switching modes. packed must hold PackedSize bytes.
func Pack(n, k, blkLen int, mode ComputeMode, raw, packed []byte, opts ...Option) error {
	size, err := PackedSize(n, k, blkLen, mode)
	if err != nil {
		return err
	}
	if len(raw) < size || len(packed) < size {
		return fmt.Errorf("q4gemm: pack buffers too small: raw %d, packed %d, need %d", len(raw), len(packed), size)
	}

	o := resolveOptions(opts)
	blockCountK := q4blk.BlockCount(k, blkLen)
	units := n * blockCountK
	int8Mode := mode == CompInt8

	// Packing is a pure byte shuffle; below a few thousand blocks the fan-out
	// costs more than the work.
	const minUnitsParallel = 4096
	if o.Threads <= 1 || units < minUnitsParallel {
		kernels.Active().Pack(n, k, blkLen, int8Mode, raw, packed)
		return nil
	}

	var g errgroup.Group
	g.SetLimit(o.Threads)
	chunk := (units + o.Threads - 1) / o.Threads
	for begin := 0; begin < units; begin += chunk {
		end := begin + chunk
		if end > units {
			end = units
		}
		b, e := begin, end
		g.Go(func() error {
			q4blk.PackBlocks(blkLen, int8Mode, raw, packed, b, e)
			return nil
		})
	}
	return g.Wait()
}

// PerCallWorkspaceSize returns the scratch byte size a Gemm call over an
// m x n x k problem needs: room for m quantized activation rows in int8 mode,
// zero in float mode.
func PerCallWorkspaceSize(m, n, k, blkLen int, mode ComputeMode) (int, error) {
	if err := checkMode(mode); err != nil {
		return 0, err
	}
	if err := checkBlkLen(blkLen); err != nil {
		return 0, err
	}
	if err := checkDims(m, n, k); err != nil {
		return 0, err
	}
	return kernels.Active().WorkspaceSize(m, n, k, blkLen, mode == CompInt8), nil
}

// PerCallWorkspaceAlignment returns the required alignment of the scratch
// buffer. Buffers from make([]byte, ...) already satisfy it.
func PerCallWorkspaceAlignment(blkLen int, mode ComputeMode) (int, error) {
	if err := checkMode(mode); err != nil {
		return 0, err
	}
	if err := checkBlkLen(blkLen); err != nil {
		return 0, err
	}
	return kernels.Active().WorkspaceAlign(blkLen, mode == CompInt8), nil
}

// QuantizeActivationRow quantizes one dense activation row into the int8
// block format consumed by GemmInt8Mode. quantized must hold
// PerCallWorkspaceSize(1, ...) bytes for the row.
func QuantizeActivationRow(blkLen int, row []float32, countK int, quantized []byte) error {
	if err := checkBlkLen(blkLen); err != nil {
		return err
	}
	if err := checkDims(countK); err != nil {
		return err
	}
	if len(row) < countK {
		return fmt.Errorf("q4gemm: activation row too small: %d < %d", len(row), countK)
	}
	if need := q8blk.RowSize(countK, blkLen); len(quantized) < need {
		return fmt.Errorf("q4gemm: quantized row buffer too small: %d < %d", len(quantized), need)
	}
	kernels.Active().QuantizeRow(blkLen, row, countK, quantized)
	return nil
}

// GemmFloatMode computes C = A·B (+ bias) in float mode. A is row-major
// m x k, C is row-major m x n; both use tight strides. Rows fan out over the
// worker pool.
func GemmFloatMode(blkLen int, a []float32, packedB []byte, scales []float32, zeroPoints []byte, c []float32, m, n, k int, bias []float32, opts ...Option) error {
	if err := checkBlkLen(blkLen); err != nil {
		return err
	}
	if err := checkDims(m, n, k); err != nil {
		return err
	}
	if err := checkWeightBuffers(n, k, blkLen, packedB, scales, zeroPoints); err != nil {
		return err
	}
	if len(a) < m*k || len(c) < m*n {
		return fmt.Errorf("q4gemm: matrix buffers too small: a %d (need %d), c %d (need %d)", len(a), m*k, len(c), m*n)
	}
	if bias != nil && len(bias) < n {
		return fmt.Errorf("q4gemm: bias too small: %d < %d", len(bias), n)
	}

	o := resolveOptions(opts)
	kern := kernels.Active()
	blockCountK := q4blk.BlockCount(k, blkLen)

	parallel.For(sharedPool(o.Threads), m, o.Threads, func(begin, end int) {
		for row := begin; row < end; row++ {
			kern.GemmFloatRow(blkLen, a[row*k:(row+1)*k], packedB, scales, zeroPoints,
				c[row*n:(row+1)*n], n, k, blockCountK, bias)
		}
	})
	return nil
}

// GemmInt8Mode computes C = A·B (+ bias) in int8 mode from activation rows
// already quantized with QuantizeActivationRow. blockCountK is the number of
// weight blocks along K; ldc is the row stride of C in elements. It returns
// the number of rows processed, which is m on success.
func GemmInt8Mode(blkLen int, quantA, packedB []byte, scales []float32, zeroPoints []byte, c []float32, m, n, blockCountK, ldc int, bias []float32, opts ...Option) (int, error) {
	if err := checkBlkLen(blkLen); err != nil {
		return 0, err
	}
	if err := checkDims(m, n, blockCountK); err != nil {
		return 0, err
	}
	if ldc < n {
		return 0, fmt.Errorf("q4gemm: ldc %d < n %d", ldc, n)
	}
	rowBytes := blockCountK * q8blk.BlkSize(blkLen)
	if len(quantA) < m*rowBytes {
		return 0, fmt.Errorf("q4gemm: quantized activations too small: %d < %d", len(quantA), m*rowBytes)
	}
	if len(packedB) < n*blockCountK*q4blk.BlockBytes(blkLen) {
		return 0, fmt.Errorf("q4gemm: packed weights too small: %d < %d", len(packedB), n*blockCountK*q4blk.BlockBytes(blkLen))
	}
	if len(scales) < n*blockCountK {
		return 0, fmt.Errorf("q4gemm: scales too small: %d < %d", len(scales), n*blockCountK)
	}
	if zeroPoints != nil && len(zeroPoints) < n*q4blk.ZeroPointColBytes(blockCountK) {
		return 0, fmt.Errorf("q4gemm: zero points too small: %d < %d", len(zeroPoints), n*q4blk.ZeroPointColBytes(blockCountK))
	}
	if len(c) < (m-1)*ldc+n {
		return 0, fmt.Errorf("q4gemm: output buffer too small: %d < %d", len(c), (m-1)*ldc+n)
	}
	if bias != nil && len(bias) < n {
		return 0, fmt.Errorf("q4gemm: bias too small: %d < %d", len(bias), n)
	}

	o := resolveOptions(opts)
	kern := kernels.Active()

	parallel.For(sharedPool(o.Threads), m, o.Threads, func(begin, end int) {
		kern.GemmInt8(blkLen, quantA[begin*rowBytes:], packedB, scales, zeroPoints,
			c[begin*ldc:], end-begin, n, blockCountK, ldc, bias)
	})
	return m, nil
}

// Gemm is the high-level driver: it allocates the per-call workspace,
// quantizes activation rows when the mode requires it, and runs the selected
// kernel. A is row-major m x k, C is row-major m x n.
func Gemm(blkLen int, mode ComputeMode, a []float32, packedB []byte, scales []float32, zeroPoints []byte, c []float32, m, n, k int, bias []float32, opts ...Option) error {
	if err := checkMode(mode); err != nil {
		return err
	}
	if mode == CompFp32 {
		return GemmFloatMode(blkLen, a, packedB, scales, zeroPoints, c, m, n, k, bias, opts...)
	}

	if err := checkBlkLen(blkLen); err != nil {
		return err
	}
	if err := checkDims(m, n, k); err != nil {
		return err
	}
	if len(a) < m*k {
		return fmt.Errorf("q4gemm: activation buffer too small: %d < %d", len(a), m*k)
	}

	o := resolveOptions(opts)
	kern := kernels.Active()
	blockCountK := q4blk.BlockCount(k, blkLen)
	rowBytes := blockCountK * q8blk.BlkSize(blkLen)
	workspace := make([]byte, m*rowBytes)

	parallel.For(sharedPool(o.Threads), m, o.Threads, func(begin, end int) {
		for row := begin; row < end; row++ {
			kern.QuantizeRow(blkLen, a[row*k:(row+1)*k], k, workspace[row*rowBytes:(row+1)*rowBytes])
		}
	})

	_, err := GemmInt8Mode(blkLen, workspace, packedB, scales, zeroPoints, c, m, n, blockCountK, n, bias, opts...)
	return err
}

// DequantizedSize returns the float count DequantizeWeights writes: columns
// are grouped into 16-wide panels, so n rounds up to a multiple of 16.
func DequantizedSize(n, k int) int {
	return (n + 15) / 16 * 16 * k
}

// DequantizeWeights expands packed weights into dense float panels for use by
// a non-quantized SGEMM. dst must hold DequantizedSize(n, k) floats; see the
// kernel documentation for the panel layout.
func DequantizeWeights(blkLen int, dst []float32, packedB []byte, scales []float32, zeroPoints []byte, n, k int) error {
	if err := checkBlkLen(blkLen); err != nil {
		return err
	}
	if err := checkDims(n, k); err != nil {
		return err
	}
	if err := checkWeightBuffers(n, k, blkLen, packedB, scales, zeroPoints); err != nil {
		return err
	}
	if len(dst) < DequantizedSize(n, k) {
		return fmt.Errorf("q4gemm: dequantized buffer too small: %d < %d", len(dst), DequantizedSize(n, k))
	}
	kernels.Active().DequantB(blkLen, dst, packedB, scales, zeroPoints, n, k, q4blk.BlockCount(k, blkLen))
	return nil
}
