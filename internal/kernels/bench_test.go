package kernels

import (
	"math/rand"
	"testing"

	"github.com/lth/go-q4gemm/internal/q4blk"
)

func BenchmarkGemmFloatRow(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	n, k, blkLen := 1024, 1024, 32
	w := makeTestWeights(rng, n, k, blkLen, false, false)
	a := randRow(rng, k)
	c := make([]float32, n)
	blockCountK := q4blk.BlockCount(k, blkLen)

	b.SetBytes(int64(len(w.packed)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gemmFloatRow(blkLen, a, w.packed, w.scales, nil, c, n, k, blockCountK, nil)
	}
}

func BenchmarkGemmInt8(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	m, n, k, blkLen := 8, 1024, 1024, 32
	w := makeTestWeights(rng, n, k, blkLen, true, false)
	a := randRow(rng, m*k)
	quantA := quantizeRows(a, m, k, blkLen)
	c := make([]float32, m*n)
	blockCountK := q4blk.BlockCount(k, blkLen)

	b.SetBytes(int64(len(w.packed)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gemmInt8(blkLen, quantA, w.packed, w.scales, nil, c, m, n, blockCountK, n, nil)
	}
}

func BenchmarkPack(b *testing.B) {
	rng := rand.New(rand.NewSource(3))
	n, k, blkLen := 1024, 1024, 32
	raw := make([]byte, q4blk.PackedSize(n, k, blkLen))
	for i := range raw {
		raw[i] = byte(rng.Intn(256))
	}
	packed := make([]byte, len(raw))

	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q4blk.Pack(n, k, blkLen, true, raw, packed)
	}
}
