package kernels

import (
	"github.com/lth/go-q4gemm/internal/q4blk"
	"github.com/lth/go-q4gemm/internal/q8blk"
)

// Integer-mode kernels: both operands are int8 blocks (B's 4-bit codes
// widened and zero-point-subtracted), dotted in int32 and rescaled by the
// product of the per-block scales. Output is computed in 2x2 micro-tiles so
// each decoded B block serves two rows, with 1x1 tiles for the remainders.
//
// Block-length variants differ in how a block's codes are grouped in the
// packed layout: a single 16-wide group (BlkLen 16), a single 32-wide group
// (BlkLen 32), or a loop of 32-wide sub-blocks (larger). The variant and the
// zero-point presence are resolved once, before the tile loops.

func gemmInt8(blkLen int, quantA, packedB []byte, scales []float32, zeroPoints []byte, c []float32, countM, countN, blockCountK, ldc int, bias []float32) int {
	kr := int8Kernel{
		blkLen:      blkLen,
		blkBytes:    q4blk.BlockBytes(blkLen),
		q8Blk:       q8blk.BlkSize(blkLen),
		blockCountK: blockCountK,
		strideData:  blockCountK * q4blk.BlockBytes(blkLen),
		strideScale: blockCountK,
		strideZP:    q4blk.ZeroPointColBytes(blockCountK),
		ldc:         ldc,
		quantA:      quantA,
		packedB:     packedB,
		scales:      scales,
		zeroPoints:  zeroPoints,
		c:           c,
		bias:        bias,
		buf0:        make([]int8, blkLen),
		buf1:        make([]int8, blkLen),
	}
	kr.strideA = blockCountK * kr.q8Blk

	switch {
	case blkLen == 16:
		kr.decode = decodeBlk16
	case blkLen == 32:
		kr.decode = decodeBlk32
	default:
		kr.decode = decodeBlkBig
	}

	m := 0
	for ; m+2 <= countM; m += 2 {
		n := 0
		for ; n+2 <= countN; n += 2 {
			kr.compute2x2(m, n)
		}
		if n < countN {
			kr.compute1x1(m, n)
			kr.compute1x1(m+1, n)
		}
	}
	if m < countM {
		for n := 0; n < countN; n++ {
			kr.compute1x1(m, n)
		}
	}

	return countM
}

type int8Kernel struct {
	blkLen, blkBytes, q8Blk    int
	blockCountK                int
	strideA, strideData        int
	strideScale, strideZP, ldc int
	quantA, packedB            []byte
	scales                     []float32
	zeroPoints                 []byte
	c, bias                    []float32
	decode                     func(bBlk []byte, zp int32, dst []int8)
	buf0, buf1                 []int8
}

func (kr *int8Kernel) compute2x2(m, n int) {
	aRow0 := kr.quantA[m*kr.strideA:]
	aRow1 := kr.quantA[(m+1)*kr.strideA:]
	bCol0 := kr.packedB[n*kr.strideData:]
	bCol1 := kr.packedB[(n+1)*kr.strideData:]
	sc0 := kr.scales[n*kr.strideScale:]
	sc1 := kr.scales[(n+1)*kr.strideScale:]
	var zc0, zc1 []byte
	if kr.zeroPoints != nil {
		zc0 = kr.zeroPoints[n*kr.strideZP:]
		zc1 = kr.zeroPoints[(n+1)*kr.strideZP:]
	}

	var acc00, acc01, acc10, acc11 float32
	aOff, bOff := 0, 0

	for blkIdx := 0; blkIdx < kr.blockCountK; blkIdx++ {
		aBlk0 := aRow0[aOff : aOff+kr.q8Blk]
		aBlk1 := aRow1[aOff : aOff+kr.q8Blk]
		sA0 := q8blk.Scale(aBlk0)
		sA1 := q8blk.Scale(aBlk1)
		sB0 := sc0[blkIdx]
		sB1 := sc1[blkIdx]

		zp0 := int32(q4blk.DefaultZeroPoint)
		zp1 := int32(q4blk.DefaultZeroPoint)
		if zc0 != nil {
			zp0 = int32(q4blk.ZeroPoint(zc0, blkIdx))
			zp1 = int32(q4blk.ZeroPoint(zc1, blkIdx))
		}

		// Decode each B block once, reuse for both rows.
		kr.decode(bCol0[bOff:bOff+kr.blkBytes], zp0, kr.buf0)
		kr.decode(bCol1[bOff:bOff+kr.blkBytes], zp1, kr.buf1)

		a0 := q8blk.Codes(aBlk0, kr.blkLen)
		a1 := q8blk.Codes(aBlk1, kr.blkLen)

		acc00 += float32(dotDecoded(a0, kr.buf0)) * (sA0 * sB0)
		acc01 += float32(dotDecoded(a0, kr.buf1)) * (sA0 * sB1)
		acc10 += float32(dotDecoded(a1, kr.buf0)) * (sA1 * sB0)
		acc11 += float32(dotDecoded(a1, kr.buf1)) * (sA1 * sB1)

		aOff += kr.q8Blk
		bOff += kr.blkBytes
	}

	base := m*kr.ldc + n
	if kr.bias != nil {
		b0, b1 := kr.bias[n], kr.bias[n+1]
		kr.c[base] = acc00 + b0
		kr.c[base+1] = acc01 + b1
		kr.c[base+kr.ldc] = acc10 + b0
		kr.c[base+kr.ldc+1] = acc11 + b1
	} else {
		kr.c[base] = acc00
		kr.c[base+1] = acc01
		kr.c[base+kr.ldc] = acc10
		kr.c[base+kr.ldc+1] = acc11
	}
}

func (kr *int8Kernel) compute1x1(m, n int) {
	aRow := kr.quantA[m*kr.strideA:]
	bCol := kr.packedB[n*kr.strideData:]
	sc := kr.scales[n*kr.strideScale:]
	var zc []byte
	if kr.zeroPoints != nil {
		zc = kr.zeroPoints[n*kr.strideZP:]
	}

	var acc float32
	aOff, bOff := 0, 0

	for blkIdx := 0; blkIdx < kr.blockCountK; blkIdx++ {
		aBlk := aRow[aOff : aOff+kr.q8Blk]
		scale := q8blk.Scale(aBlk) * sc[blkIdx]

		zp := int32(q4blk.DefaultZeroPoint)
		if zc != nil {
			zp = int32(q4blk.ZeroPoint(zc, blkIdx))
		}

		kr.decode(bCol[bOff:bOff+kr.blkBytes], zp, kr.buf0)
		acc += float32(dotDecoded(q8blk.Codes(aBlk, kr.blkLen), kr.buf0)) * scale

		aOff += kr.q8Blk
		bOff += kr.blkBytes
	}

	if kr.bias != nil {
		acc += kr.bias[n]
	}
	kr.c[m*kr.ldc+n] = acc
}

// decodeBlk16 widens one BlkLen==16 packed block to zero-point-adjusted int8:
// byte j carries code j (low nibble) and code j+8 (high nibble).
func decodeBlk16(bBlk []byte, zp int32, dst []int8) {
	for j := 0; j < 8; j++ {
		b := bBlk[j]
		dst[j] = int8(int32(b&0x0F) - zp)
		dst[j+8] = int8(int32(b>>4) - zp)
	}
}

// decodeBlk32 widens one 32-wide packed group: byte j carries code j and
// code j+16.
func decodeBlk32(bBlk []byte, zp int32, dst []int8) {
	for j := 0; j < 16; j++ {
		b := bBlk[j]
		dst[j] = int8(int32(b&0x0F) - zp)
		dst[j+16] = int8(int32(b>>4) - zp)
	}
}

// decodeBlkBig handles BlkLen > 32 as a run of 32-wide sub-blocks.
func decodeBlkBig(bBlk []byte, zp int32, dst []int8) {
	for sub := 0; sub*16 < len(bBlk); sub++ {
		decodeBlk32(bBlk[sub*16:sub*16+16], zp, dst[sub*32:sub*32+32])
	}
}

func dotDecoded(aCodes []byte, b []int8) int32 {
	var sum int32
	for i, bv := range b {
		sum += int32(int8(aCodes[i])) * int32(bv)
	}
	return sum
}
