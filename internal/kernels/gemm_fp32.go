package kernels

import "github.com/lth/go-q4gemm/internal/q4blk"

// Float-mode kernel: dequantize B blocks and multiply against the dense A
// row. Columns are processed four at a time with independent accumulators,
// falling back to single columns for the tail; accumulators are reduced into
// the output only once, after the full K loop.

const fp32NCols = 4

// fp32SubBlk is the code group width the float-mode packed layout is
// interleaved at (see q4blk.Pack).
const fp32SubBlk = 16

func gemmFloatRow(blkLen int, a []float32, packedB []byte, scales []float32, zeroPoints []byte, c []float32, countN, countK, blockCountK int, bias []float32) {
	strideData := blockCountK * q4blk.BlockBytes(blkLen)
	strideScale := blockCountK
	strideZP := q4blk.ZeroPointColBytes(blockCountK)

	n := 0
	for ; n+fp32NCols <= countN; n += fp32NCols {
		fp32DotCols(fp32NCols, blkLen, a,
			packedB[n*strideData:], scales[n*strideScale:], colZeroPoints(zeroPoints, n, strideZP),
			c[n:], countK, strideData, strideScale, strideZP, colBias(bias, n))
	}
	for ; n < countN; n++ {
		fp32DotCols(1, blkLen, a,
			packedB[n*strideData:], scales[n*strideScale:], colZeroPoints(zeroPoints, n, strideZP),
			c[n:], countK, strideData, strideScale, strideZP, colBias(bias, n))
	}
}

// fp32DotCols computes nCols adjacent output elements of one row. nCols is 1
// or 4. Zero-point presence is resolved per block, outside the element loop.
func fp32DotCols(nCols, blkLen int, a []float32, data []byte, scales []float32, zps []byte, out []float32, countK, strideData, strideScale, strideZP int, bias []float32) {
	blkBytes := q4blk.BlockBytes(blkLen)

	var acc [fp32NCols]float32
	dataOff := 0

	for k, blkIdx := 0, 0; k < countK; k, blkIdx = k+blkLen, blkIdx+1 {
		kBlkLen := countK - k
		if kBlkLen > blkLen {
			kBlkLen = blkLen
		}

		var scale, offset [fp32NCols]float32
		for i := 0; i < nCols; i++ {
			scale[i] = scales[i*strideScale+blkIdx]
		}
		if zps != nil {
			for i := 0; i < nCols; i++ {
				offset[i] = float32(q4blk.ZeroPoint(zps[i*strideZP:], blkIdx))
			}
		} else {
			for i := 0; i < nCols; i++ {
				offset[i] = q4blk.DefaultZeroPoint
			}
		}

		for kk := 0; kk < kBlkLen; kk += fp32SubBlk {
			valid := kBlkLen - kk
			if valid > fp32SubBlk {
				valid = fp32SubBlk
			}
			base := dataOff + kk/2

			for i := 0; i < nCols; i++ {
				grp := data[i*strideData+base : i*strideData+base+fp32SubBlk/2]

				// Packed byte j carries code j (low nibble) and code j+8
				// (high nibble).
				for j := 0; j < valid && j < 8; j++ {
					bval := (float32(grp[j]&0x0F) - offset[i]) * scale[i]
					acc[i] += a[k+kk+j] * bval
				}
				for j := 8; j < valid; j++ {
					bval := (float32(grp[j-8]>>4) - offset[i]) * scale[i]
					acc[i] += a[k+kk+j] * bval
				}
			}
		}

		dataOff += blkBytes
	}

	for i := 0; i < nCols; i++ {
		sum := acc[i]
		if bias != nil {
			sum += bias[i]
		}
		out[i] = sum
	}
}

func colZeroPoints(zps []byte, n, strideZP int) []byte {
	if zps == nil {
		return nil
	}
	return zps[n*strideZP:]
}

func colBias(bias []float32, n int) []float32 {
	if bias == nil {
		return nil
	}
	return bias[n:]
}
