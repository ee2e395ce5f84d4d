// Package kernels implements the 4-bit quantized GEMM kernel family and the
// dispatch table that selects among kernel variants.
//
// Two compute modes exist: CompFp32 dequantizes weight blocks and multiplies
// in float, CompInt8 quantizes activations to int8 blocks and computes
// integer dot products rescaled per block. Kernel variants are specialized by
// block length (16 / 32 / larger) and selected once per call, never inside
// the hot loops.
//
// Hot-path functions trust their preconditions (BlkLen a multiple of 16,
// buffers correctly sized); validation belongs to the calling layer.
package kernels

import (
	"github.com/lth/go-q4gemm/internal/q4blk"
	"github.com/lth/go-q4gemm/internal/q8blk"
)

// Table is the kernel dispatch table: one fixed set of entry points per
// hardware target, assembled once at process start and immutable thereafter.
// It is safe for concurrent use by any number of simultaneous GEMM calls.
type Table struct {
	// PackedSize returns the packed code-byte size for an N x K weight
	// matrix. Identical for both compute modes.
	PackedSize func(n, k, blkLen int, int8Mode bool) int

	// Pack transforms raw per-block codes into the interleaved packed layout.
	Pack func(n, k, blkLen int, int8Mode bool, raw, packed []byte)

	// WorkspaceSize returns the per-call scratch size: room for one quantized
	// activation row per row of A in int8 mode, zero bytes in float mode.
	WorkspaceSize func(m, n, k, blkLen int, int8Mode bool) int

	// WorkspaceAlign returns the required scratch alignment.
	WorkspaceAlign func(blkLen int, int8Mode bool) int

	// GemmFloatRow computes one output row in float mode: for each of countN
	// columns, the dot product of the A row against the dequantized column,
	// plus optional bias. Results are stored (not accumulated) into c.
	GemmFloatRow func(blkLen int, a []float32, packedB []byte, scales []float32, zeroPoints []byte, c []float32, countN, countK, blockCountK int, bias []float32)

	// GemmInt8 computes countM x countN outputs in integer mode from
	// quantized activation rows and returns the number of rows processed.
	// ldc is the row stride of c in elements.
	GemmInt8 func(blkLen int, quantA, packedB []byte, scales []float32, zeroPoints []byte, c []float32, countM, countN, blockCountK, ldc int, bias []float32) int

	// QuantizeRow quantizes one activation row into the workspace format.
	QuantizeRow func(blkLen int, a []float32, countK int, quantA []byte)

	// DequantB expands packed weights into dense float panels for the
	// non-quantized SGEMM fallback (see DequantBForSgemm for the layout).
	DequantB func(blkLen int, dst []float32, packedB []byte, scales []float32, zeroPoints []byte, countN, countK, blockCountK int)
}

var tiledTable = &Table{
	PackedSize:     packedSize,
	Pack:           q4blk.Pack,
	WorkspaceSize:  workspaceSize,
	WorkspaceAlign: workspaceAlign,
	GemmFloatRow:   gemmFloatRow,
	GemmInt8:       gemmInt8,
	QuantizeRow:    q8blk.QuantizeRow,
	DequantB:       dequantBForSgemm,
}

var referenceTable = &Table{
	PackedSize:     packedSize,
	Pack:           q4blk.Pack,
	WorkspaceSize:  workspaceSize,
	WorkspaceAlign: workspaceAlign,
	GemmFloatRow:   refGemmFloatRow,
	GemmInt8:       refGemmInt8,
	QuantizeRow:    q8blk.QuantizeRow,
	DequantB:       dequantBForSgemm,
}

var active = func() *Table {
	if wideVectors {
		return tiledTable
	}
	return referenceTable
}()

// Active returns the table installed for this process's hardware target.
// Targets without wide vector units fall back to the reference kernels, so a
// usable table always exists.
func Active() *Table {
	return active
}

// Reference returns the generic scalar table. It is the fallback for
// unsupported targets and the ground truth for kernel tests.
func Reference() *Table {
	return referenceTable
}

func packedSize(n, k, blkLen int, int8Mode bool) int {
	_ = int8Mode // same size regardless of compute mode
	return q4blk.PackedSize(n, k, blkLen)
}

func workspaceSize(m, n, k, blkLen int, int8Mode bool) int {
	_ = n
	if !int8Mode {
		return 0
	}
	return q8blk.WorkspaceSize(m, k, blkLen)
}

func workspaceAlign(blkLen int, int8Mode bool) int {
	_ = blkLen
	if !int8Mode {
		return 1
	}
	return q8blk.Alignment
}
