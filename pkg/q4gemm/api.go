// Package q4gemm provides matrix multiplication against 4-bit block-quantized
// weights: C = A·B (+ bias), with A dense row-major float32 and B packed as
// blocks of 4-bit codes with per-block scales and optional zero points.
//
// Callers pack B once with Pack (or PackedWeights), then multiply with
// GemmFloatMode (dequantize-and-multiply) or GemmInt8Mode (integer dot
// products over block-quantized activations). Kernel variants are selected by
// a process-wide dispatch table assembled once per hardware target; targets
// without wide vector units transparently use the reference kernels.
//
// This layer validates dimensions and buffer sizes; the kernels underneath
// trust their preconditions and run check-free.
package q4gemm

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/lth/go-q4gemm/internal/parallel"
	"github.com/lth/go-q4gemm/internal/q4blk"
)

// ComputeMode selects how the inner products are computed.
type ComputeMode int

const (
	// CompFp32 dequantizes weight blocks and multiplies in float32.
	CompFp32 ComputeMode = iota
	// CompInt8 quantizes activation rows to int8 blocks and computes integer
	// dot products rescaled per block.
	CompInt8
)

func (m ComputeMode) String() string {
	switch m {
	case CompFp32:
		return "fp32"
	case CompInt8:
		return "int8"
	default:
		return fmt.Sprintf("ComputeMode(%d)", int(m))
	}
}

// MinBlkLen is the smallest supported quantization block length; BlkLen must
// be a multiple of it.
const MinBlkLen = q4blk.MinBlkLen

// Options configures a call's parallelism.
type Options struct {
	// Threads is the number of concurrent workers. 0 means GOMAXPROCS;
	// 1 forces serial execution.
	Threads int
}

// Option is a functional option for a single call.
type Option func(*Options)

// WithThreads sets the number of concurrent workers.
func WithThreads(n int) Option {
	return func(o *Options) {
		o.Threads = n
	}
}

func resolveOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Threads <= 0 {
		o.Threads = runtime.GOMAXPROCS(0)
	}
	return o
}

var (
	poolOnce sync.Once
	pool     *parallel.Pool
)

// sharedPool returns the process-wide worker pool, or nil when the call runs
// serially. The pool is sized to GOMAXPROCS once; per-call thread counts
// bound how many chunks a call fans out, not the pool size.
func sharedPool(threads int) *parallel.Pool {
	if threads <= 1 {
		return nil
	}
	poolOnce.Do(func() {
		pool = parallel.NewPool(runtime.GOMAXPROCS(0))
	})
	return pool
}

func checkMode(mode ComputeMode) error {
	if mode != CompFp32 && mode != CompInt8 {
		return fmt.Errorf("q4gemm: unknown compute mode %d", int(mode))
	}
	return nil
}

func checkBlkLen(blkLen int) error {
	if blkLen < MinBlkLen || blkLen%MinBlkLen != 0 {
		return fmt.Errorf("q4gemm: block length %d is not a positive multiple of %d", blkLen, MinBlkLen)
	}
	return nil
}

func checkDims(dims ...int) error {
	for _, d := range dims {
		if d <= 0 {
			return fmt.Errorf("q4gemm: dimensions must be positive, got %v", dims)
		}
	}
	return nil
}

func checkWeightBuffers(n, k, blkLen int, packedB []byte, scales []float32, zeroPoints []byte) error {
	blockCountK := q4blk.BlockCount(k, blkLen)
	if len(packedB) < q4blk.PackedSize(n, k, blkLen) {
		return fmt.Errorf("q4gemm: packed weights too small: %d < %d", len(packedB), q4blk.PackedSize(n, k, blkLen))
	}
	if len(scales) < n*blockCountK {
		return fmt.Errorf("q4gemm: scales too small: %d < %d", len(scales), n*blockCountK)
	}
	if zeroPoints != nil && len(zeroPoints) < q4blk.ZeroPointSize(n, k, blkLen) {
		return fmt.Errorf("q4gemm: zero points too small: %d < %d", len(zeroPoints), q4blk.ZeroPointSize(n, k, blkLen))
	}
	return nil
}
