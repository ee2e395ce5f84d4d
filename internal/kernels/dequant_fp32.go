package kernels

import "github.com/lth/go-q4gemm/internal/q4blk"

// dequantBForSgemm expands packed weights into dense float panels for the
// non-quantized SGEMM fallback. Output is grouped in 16-column panels laid
// out [panel][k][16]: element (k, n) lands at
//
//	dst[(n/16)*16*countK + k*16 + n%16]
//
// so a dense kernel streams 16 adjacent column values per row. Columns beyond
// countN in the trailing panel are zero filled. dst must hold
// ceil(countN/16)*16*countK floats.
func dequantBForSgemm(blkLen int, dst []float32, packedB []byte, scales []float32, zeroPoints []byte, countN, countK, blockCountK int) {
	const panelCols = 16

	strideData := blockCountK * q4blk.BlockBytes(blkLen)
	strideScale := blockCountK
	strideZP := q4blk.ZeroPointColBytes(blockCountK)

	for n0 := 0; n0 < countN; n0 += panelCols {
		panel := dst[n0*countK : (n0+panelCols)*countK]
		cols := countN - n0
		if cols > panelCols {
			cols = panelCols
		}
		if cols < panelCols {
			for i := range panel {
				panel[i] = 0
			}
		}

		for i := 0; i < cols; i++ {
			col := n0 + i
			data := packedB[col*strideData:]
			colScales := scales[col*strideScale:]
			var colZPs []byte
			if zeroPoints != nil {
				colZPs = zeroPoints[col*strideZP:]
			}

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

				blk := data[blkIdx*q4blk.BlockBytes(blkLen):]
				for kk := 0; kk < kBlkLen; kk++ {
					q := q4blk.CodeAt(blk, kk, fp32SubBlk)
					panel[(k+kk)*panelCols+i] = (float32(q) - offset) * scale
				}
			}
		}
	}
}
