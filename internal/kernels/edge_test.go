package kernels

import (
	"math"
	"math/rand"
	"testing"

	"github.com/lth/go-q4gemm/internal/q4blk"
)

func TestZeroActivationRowGivesExactZero(t *testing.T) {
	rng := rand.New(rand.NewSource(71))
	n, k, blkLen := 7, 48, 16
	blockCountK := q4blk.BlockCount(k, blkLen)

	wFloat := makeTestWeights(rng, n, k, blkLen, false, true)
	a := make([]float32, k)
	c := make([]float32, n)
	gemmFloatRow(blkLen, a, wFloat.packed, wFloat.scales, wFloat.zeroPoints, c, n, k, blockCountK, nil)
	for i, v := range c {
		if v != 0 {
			t.Errorf("float mode: c[%d] = %f, expected exactly 0", i, v)
		}
	}

	wInt8 := makeTestWeights(rng, n, k, blkLen, true, true)
	quantA := quantizeRows(a, 1, k, blkLen)
	gemmInt8(blkLen, quantA, wInt8.packed, wInt8.scales, wInt8.zeroPoints, c, 1, n, blockCountK, n, nil)
	for i, v := range c {
		if v != 0 {
			t.Errorf("int8 mode: c[%d] = %f, expected exactly 0", i, v)
		}
	}
}

func TestZeroScaleBlockContributesNothing(t *testing.T) {
	rng := rand.New(rand.NewSource(72))
	n, k, blkLen := 3, 64, 16
	blockCountK := q4blk.BlockCount(k, blkLen)

	w := makeTestWeights(rng, n, k, blkLen, false, false)
	for i := range w.scales {
		w.scales[i] = 0 // every block degenerates to the zero matrix
	}
	a := randRow(rng, k)

	c := make([]float32, n)
	gemmFloatRow(blkLen, a, w.packed, w.scales, nil, c, n, k, blockCountK, nil)
	for i, v := range c {
		if v != 0 || math.IsNaN(float64(v)) {
			t.Errorf("c[%d] = %f, expected exactly 0", i, v)
		}
	}
}

// A first-row selector times B recovers B's first row exactly in float mode
// and within activation quantization error in int8 mode.
func TestSelectorRowRecoversWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(73))
	m, n, k, blkLen := 2, 5, 17, 16
	blockCountK := q4blk.BlockCount(k, blkLen)

	a := make([]float32, m*k)
	a[0] = 1        // row 0 selects B's first row
	a[k] = 1        // row 1 identical, exercises the 2x2 tile path
	bias := []float32{0, 0, 0, 0, 0}

	wFloat := makeTestWeights(rng, n, k, blkLen, false, true)
	c := make([]float32, m*n)
	for row := 0; row < m; row++ {
		gemmFloatRow(blkLen, a[row*k:(row+1)*k], wFloat.packed, wFloat.scales, wFloat.zeroPoints,
			c[row*n:(row+1)*n], n, k, blockCountK, bias)
	}
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			want := wFloat.valueAt(col, 0)
			if c[row*n+col] != want {
				t.Errorf("float mode: c[%d][%d] = %f, expected exactly %f", row, col, c[row*n+col], want)
			}
		}
	}

	wInt8 := makeTestWeights(rng, n, k, blkLen, true, true)
	quantA := quantizeRows(a, m, k, blkLen)
	cInt8 := make([]float32, m*n)
	gemmInt8(blkLen, quantA, wInt8.packed, wInt8.scales, wInt8.zeroPoints, cInt8, m, n, blockCountK, n, bias)
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			want := float64(wInt8.valueAt(col, 0))
			if !closeEnough(cInt8[row*n+col], want, 0.02) {
				t.Errorf("int8 mode: c[%d][%d] = %f, expected about %f", row, col, cInt8[row*n+col], want)
			}
		}
	}
}
