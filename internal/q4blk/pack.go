package q4blk

// Pack reorders raw per-block 4-bit codes into the sub-block interleaved
// layout the compute kernels load from. Within each sub-block of S codes
// (S/2 bytes), packed byte j holds code j in its low nibble and code j+S/2 in
// its high nibble, a fold-in-half interleave:
//
//	src: | v0 v1 | v2 v3 | ... | vE vF |
//	dst: | v0 v8 | v1 v9 | ... | v7 vF |     (S == 16)
//
// For S == 32 the same interleave applies at stride 16. raw and packed must
// each hold PackedSize(n, k, blkLen) bytes. BlkLen must be a multiple of 16;
// this is a caller contract, not a runtime check.
func Pack(n, k, blkLen int, int8Mode bool, raw, packed []byte) {
	if size := PackedSize(n, k, blkLen); len(raw) < size || len(packed) < size {
		panic("q4blk.Pack: buffer smaller than PackedSize")
	}
	blockCountK := BlockCount(k, blkLen)
	PackBlocks(blkLen, int8Mode, raw, packed, 0, n*blockCountK)
}

// PackBlocks packs the flat block-unit range [begin, end). Block units are
// numbered column major: unit = col*blockCountK + blkIdx. Units are fully
// independent, so disjoint ranges may be packed concurrently.
func PackBlocks(blkLen int, int8Mode bool, raw, packed []byte, begin, end int) {
	blkBytes := BlockBytes(blkLen)
	subBlkLen := SubBlkLen(int8Mode, blkLen)
	subBytes := subBlkLen / 2
	pairs := subBlkLen / 4

	for unit := begin; unit < end; unit++ {
		src := raw[unit*blkBytes : (unit+1)*blkBytes]
		dst := packed[unit*blkBytes : (unit+1)*blkBytes]

		for off := 0; off < blkBytes; off += subBytes {
			for j := 0; j < pairs; j++ {
				src0 := src[off+j]
				src1 := src[off+j+subBytes/2]

				dst[off+2*j] = (src0 & 0x0F) | ((src1 & 0x0F) << 4)
				dst[off+2*j+1] = (src0 >> 4) | (src1 & 0xF0)
			}
		}
	}
}

// Unpack inverts Pack, restoring the linear per-block code layout.
func Unpack(n, k, blkLen int, int8Mode bool, packed, raw []byte) {
	if size := PackedSize(n, k, blkLen); len(raw) < size || len(packed) < size {
		panic("q4blk.Unpack: buffer smaller than PackedSize")
	}
	blockCountK := BlockCount(k, blkLen)
	blkBytes := BlockBytes(blkLen)
	subBlkLen := SubBlkLen(int8Mode, blkLen)
	subBytes := subBlkLen / 2
	pairs := subBlkLen / 4

	for unit := 0; unit < n*blockCountK; unit++ {
		src := packed[unit*blkBytes : (unit+1)*blkBytes]
		dst := raw[unit*blkBytes : (unit+1)*blkBytes]

		for off := 0; off < blkBytes; off += subBytes {
			for j := 0; j < pairs; j++ {
				even := src[off+2*j]
				odd := src[off+2*j+1]

				dst[off+j] = (even & 0x0F) | ((odd & 0x0F) << 4)
				dst[off+j+subBytes/2] = (even >> 4) | (odd & 0xF0)
			}
		}
	}
}

// CodeAt reads the logical code at position i within one packed block. Used
// by slow paths and tooling; the kernels decode whole sub-blocks inline.
func CodeAt(packedBlk []byte, i, subBlkLen int) uint8 {
	subBytes := subBlkLen / 2
	base := (i / subBlkLen) * subBytes
	j := i % subBlkLen
	if j < subBlkLen/2 {
		return packedBlk[base+j] & 0x0F
	}
	return packedBlk[base+j-subBlkLen/2] >> 4
}
