// Package q4blk defines the packed 4-bit block-quantized weight format.
//
// A weight matrix B (K rows x N columns) is stored column major as blocks of
// BlkLen values along the K dimension. Each block carries one float32 scale
// and, optionally, one 4-bit zero point. Codes are unsigned 4-bit values
// packed two per byte; the reconstructed value of code q is
// (q - zeroPoint) * scale, with the zero point defaulting to 8 (the unsigned
// midpoint) when absent.
//
// Scales and zero points live in arrays parallel to the code bytes: one
// float32 scale per block, and one packed zero-point byte per two consecutive
// blocks of a column (low nibble = even block index, high nibble = odd).
package q4blk

// MinBlkLen is the smallest supported block length. BlkLen must always be a
// multiple of this.
const MinBlkLen = 16

// DefaultZeroPoint is the implied zero point when no zero-point array is
// stored.
const DefaultZeroPoint = 8

// BlockCount returns the number of quantization blocks covering k elements.
func BlockCount(k, blkLen int) int {
	return (k + blkLen - 1) / blkLen
}

// BlockBytes returns the number of code bytes in one block.
func BlockBytes(blkLen int) int {
	return blkLen / 2
}

// PackedSize returns the total number of code bytes for an N x K matrix.
// Scales and zero points are sized separately. The size is the same for both
// compute modes.
func PackedSize(n, k, blkLen int) int {
	return n * BlockCount(k, blkLen) * BlockBytes(blkLen)
}

// ZeroPointColBytes returns the number of packed zero-point bytes per column.
func ZeroPointColBytes(blockCountK int) int {
	return (blockCountK + 1) / 2
}

// ZeroPointSize returns the total number of packed zero-point bytes for an
// N x K matrix.
func ZeroPointSize(n, k, blkLen int) int {
	return n * ZeroPointColBytes(BlockCount(k, blkLen))
}

// SubBlkLen returns the interleave sub-block width used by Pack for the given
// compute mode. The int8 kernels consume 32-wide groups except at
// BlkLen == 16; the float kernels always consume 16-wide groups.
func SubBlkLen(int8Mode bool, blkLen int) int {
	if int8Mode && blkLen != 16 {
		return 32
	}
	return 16
}

// ZeroPoint extracts the 4-bit zero point for block blkIdx from a column's
// packed zero-point bytes.
func ZeroPoint(zpCol []byte, blkIdx int) uint8 {
	b := zpCol[blkIdx/2]
	if blkIdx&1 == 1 {
		return b >> 4
	}
	return b & 0x0F
}

// PackZeroPoints packs one 4-bit zero point per block into dst, two per byte.
// dst must have ZeroPointColBytes(len(zps)) bytes.
func PackZeroPoints(zps []uint8, dst []byte) {
	for i := range dst {
		dst[i] = 0
	}
	for i, zp := range zps {
		if i&1 == 1 {
			dst[i/2] |= (zp & 0x0F) << 4
		} else {
			dst[i/2] |= zp & 0x0F
		}
	}
}

// Dequant reconstructs the real value of one code.
func Dequant(code, zeroPoint uint8, scale float32) float32 {
	return (float32(code) - float32(zeroPoint)) * scale
}
