// Package q8blk implements the block-quantized int8 activation format used by
// the integer compute mode.
//
// One quantized activation row is a sequence of blocks, each holding a
// float32 scale (little endian) followed by BlkLen signed int8 codes. The
// reconstructed value of code c is c * scale. Rows are produced fresh into a
// per-call workspace and never persisted.
package q8blk

import (
	"encoding/binary"
	"math"
)

// ScaleBytes is the size of the per-block scale preceding the codes.
const ScaleBytes = 4

// Alignment is the required workspace alignment (that of a float32 scale).
const Alignment = 4

// BlkSize returns the byte size of one quantized activation block.
func BlkSize(blkLen int) int {
	return ScaleBytes + blkLen
}

// RowSize returns the byte size of one quantized activation row covering
// countK elements. Partial trailing blocks still occupy a full block.
func RowSize(countK, blkLen int) int {
	blockCountK := (countK + blkLen - 1) / blkLen
	return blockCountK * BlkSize(blkLen)
}

// WorkspaceSize returns the workspace byte size for quantizing m rows.
func WorkspaceSize(m, countK, blkLen int) int {
	return m * RowSize(countK, blkLen)
}

// Scale reads the scale of the block starting at blk[0].
func Scale(blk []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(blk))
}

// PutScale stores the scale of the block starting at blk[0].
func PutScale(blk []byte, s float32) {
	binary.LittleEndian.PutUint32(blk, math.Float32bits(s))
}

// Codes returns the int8 code bytes of the block starting at blk[0].
func Codes(blk []byte, blkLen int) []byte {
	return blk[ScaleBytes : ScaleBytes+blkLen]
}
