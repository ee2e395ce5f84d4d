package kernels

import (
	"github.com/lth/go-q4gemm/internal/q4blk"
	"github.com/lth/go-q4gemm/internal/q8blk"
)

// Reference kernels: straightforward scalar loops with no tiling, used both
// as the fallback table on targets without wide vector units and as ground
// truth in tests. Numerics match the tiled kernels (same per-element formula
// and accumulation order per output element).

func refGemmFloatRow(blkLen int, a []float32, packedB []byte, scales []float32, zeroPoints []byte, c []float32, countN, countK, blockCountK int, bias []float32) {
	blkBytes := q4blk.BlockBytes(blkLen)
	strideData := blockCountK * blkBytes
	strideZP := q4blk.ZeroPointColBytes(blockCountK)

	for n := 0; n < countN; n++ {
		data := packedB[n*strideData:]
		colScales := scales[n*blockCountK:]
		var colZPs []byte
		if zeroPoints != nil {
			colZPs = zeroPoints[n*strideZP:]
		}

		var acc float32
		for k, blkIdx := 0, 0; k < countK; k, blkIdx = k+blkLen, blkIdx+1 {
			kBlkLen := countK - k
			if kBlkLen > blkLen {
				kBlkLen = blkLen
			}

			scale := colScales[blkIdx]
			offset := float32(q4blk.DefaultZeroPoint)
			if colZPs != nil {
				offset = float32(q4blk.ZeroPoint(colZPs, blkIdx))
			}

			blk := data[blkIdx*blkBytes:]
			for kk := 0; kk < kBlkLen; kk++ {
				q := q4blk.CodeAt(blk, kk, fp32SubBlk)
				acc += a[k+kk] * ((float32(q) - offset) * scale)
			}
		}

		if bias != nil {
			acc += bias[n]
		}
		c[n] = acc
	}
}

func refGemmInt8(blkLen int, quantA, packedB []byte, scales []float32, zeroPoints []byte, c []float32, countM, countN, blockCountK, ldc int, bias []float32) int {
	blkBytes := q4blk.BlockBytes(blkLen)
	q8Blk := q8blk.BlkSize(blkLen)
	strideA := blockCountK * q8Blk
	strideData := blockCountK * blkBytes
	strideZP := q4blk.ZeroPointColBytes(blockCountK)
	subBlkLen := q4blk.SubBlkLen(true, blkLen)

	for m := 0; m < countM; m++ {
		aRow := quantA[m*strideA:]

		for n := 0; n < countN; n++ {
			data := packedB[n*strideData:]
			colScales := scales[n*blockCountK:]
			var colZPs []byte
			if zeroPoints != nil {
				colZPs = zeroPoints[n*strideZP:]
			}

			var acc float32
			for blkIdx := 0; blkIdx < blockCountK; blkIdx++ {
				aBlk := aRow[blkIdx*q8Blk : (blkIdx+1)*q8Blk]
				scale := q8blk.Scale(aBlk) * colScales[blkIdx]

				zp := int32(q4blk.DefaultZeroPoint)
				if colZPs != nil {
					zp = int32(q4blk.ZeroPoint(colZPs, blkIdx))
				}

				aCodes := q8blk.Codes(aBlk, blkLen)
				blk := data[blkIdx*blkBytes:]
				var dot int32
				for i := 0; i < blkLen; i++ {
					q := int32(q4blk.CodeAt(blk, i, subBlkLen)) - zp
					dot += int32(int8(aCodes[i])) * q
				}

				acc += float32(dot) * scale
			}

			if bias != nil {
				acc += bias[n]
			}
			c[m*ldc+n] = acc
		}
	}

	return countM
}
