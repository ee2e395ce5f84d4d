package q8blk

import "math"

// subChunk is the reduction width for the amax scan. The reduction is
// associative, so chunk boundaries only affect float rounding order.
const subChunk = 16

// QuantizeRow quantizes one activation row of countK float32 values into
// blocks of blkLen int8 codes, each preceded by its scale. dst must hold
// RowSize(countK, blkLen) bytes. Positions past countK within the final block
// are zero filled so downstream dot products over a full block never read
// undefined values.
//
// The scale is amax/127 per block; an all-zero block gets scale 0 and
// all-zero codes rather than a divide by zero. Rounding is to nearest with
// ties away from zero, matching the vector round-to-nearest instructions the
// hardware kernels use.
func QuantizeRow(blkLen int, a []float32, countK int, dst []byte) {
	blkSize := BlkSize(blkLen)

	for k, blkOff := 0, 0; k < countK; k, blkOff = k+blkLen, blkOff+blkSize {
		elems := blkLen
		if countK-k < elems {
			elems = countK - k
		}
		blk := dst[blkOff : blkOff+blkSize]

		amax := float32(0)
		for c := 0; c < elems; c += subChunk {
			chunkEnd := c + subChunk
			if chunkEnd > elems {
				chunkEnd = elems
			}
			chunkMax := float32(0)
			for i := c; i < chunkEnd; i++ {
				v := a[k+i]
				if v < 0 {
					v = -v
				}
				if v > chunkMax {
					chunkMax = v
				}
			}
			if chunkMax > amax {
				amax = chunkMax
			}
		}

		scale := amax / 127
		invScale := float32(0)
		if scale != 0 {
			invScale = 1 / scale
		}
		PutScale(blk, scale)

		codes := Codes(blk, blkLen)
		for i := 0; i < elems; i++ {
			// math.Round resolves ties away from zero.
			codes[i] = byte(int8(math.Round(float64(a[k+i] * invScale))))
		}
		for i := elems; i < blkLen; i++ {
			codes[i] = 0
		}
	}
}
