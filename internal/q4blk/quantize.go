package q4blk

import "math"

// QuantizeMatrix quantizes a dense row-major K x N float32 weight matrix into
// raw (pre-packing) 4-bit blocks, producing the column-major code layout Pack
// consumes plus the parallel scale and zero-point arrays.
//
// Symmetric mode anchors the range on the largest-magnitude value: the scale
// is that value divided by -8 and the zero point is fixed at 8, so no
// zero-point array is produced. Asymmetric mode spans [min(v,0), max(v,0)]
// across 16 levels and derives a per-block zero point.
//
// Rows beyond k within the last block of a column quantize as zeros, matching
// the zero padding the kernels assume.
func QuantizeMatrix(b []float32, n, k, blkLen int, symmetric bool) (codes []byte, scales []float32, zeroPoints []byte) {
	blockCountK := BlockCount(k, blkLen)
	blkBytes := BlockBytes(blkLen)

	codes = make([]byte, PackedSize(n, k, blkLen))
	scales = make([]float32, n*blockCountK)
	var zps []uint8
	if !symmetric {
		zps = make([]uint8, blockCountK)
		zeroPoints = make([]byte, ZeroPointSize(n, k, blkLen))
	}

	zpColBytes := ZeroPointColBytes(blockCountK)

	for col := 0; col < n; col++ {
		for blkIdx := 0; blkIdx < blockCountK; blkIdx++ {
			k0 := blkIdx * blkLen
			elems := blkLen
			if k-k0 < elems {
				elems = k - k0
			}

			var scale float32
			var zp uint8
			if symmetric {
				// Signed value with the largest magnitude sets the range.
				bmax := float32(0)
				for i := 0; i < elems; i++ {
					v := b[(k0+i)*n+col]
					if abs32(v) > abs32(bmax) {
						bmax = v
					}
				}
				scale = bmax / -8
				zp = DefaultZeroPoint
			} else {
				vmin, vmax := float32(0), float32(0)
				for i := 0; i < elems; i++ {
					v := b[(k0+i)*n+col]
					if v < vmin {
						vmin = v
					}
					if v > vmax {
						vmax = v
					}
				}
				scale = (vmax - vmin) / 15
				zpf := float64(0)
				if scale != 0 {
					zpf = float64(0 - vmin/scale)
				}
				zp = uint8(math.Min(15, math.Max(0, math.RoundToEven(zpf))))
			}

			invScale := float32(0)
			if scale != 0 {
				invScale = 1 / scale
			}

			scales[col*blockCountK+blkIdx] = scale
			if !symmetric {
				zps[blkIdx] = zp
			}

			blk := codes[(col*blockCountK+blkIdx)*blkBytes : (col*blockCountK+blkIdx+1)*blkBytes]
			for i := 0; i < blkLen; i++ {
				q := float64(zp) // padding quantizes to the zero point
				if i < elems {
					q = math.RoundToEven(float64(b[(k0+i)*n+col]*invScale) + float64(zp))
					q = math.Min(15, math.Max(0, q))
				}
				if i&1 == 0 {
					blk[i/2] = uint8(q) & 0x0F
				} else {
					blk[i/2] |= (uint8(q) & 0x0F) << 4
				}
			}
		}

		if !symmetric {
			PackZeroPoints(zps, zeroPoints[col*zpColBytes:(col+1)*zpColBytes])
		}
	}

	return codes, scales, zeroPoints
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
