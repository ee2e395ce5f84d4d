package q4gemm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randMatrix(rng *rand.Rand, size int) []float32 {
	m := make([]float32, size)
	for i := range m {
		m[i] = rng.Float32()*2 - 1
	}
	return m
}

// denseWeights expands packed float-mode weights into a k x n row-major
// float64 matrix via the panel dequantizer.
func denseWeights(t *testing.T, w *PackedWeights) []float64 {
	t.Helper()
	panels := make([]float32, DequantizedSize(w.N, w.K))
	require.NoError(t, w.Dequantize(panels))

	dense := make([]float64, w.K*w.N)
	for col := 0; col < w.N; col++ {
		for row := 0; row < w.K; row++ {
			dense[row*w.N+col] = float64(panels[(col/16)*16*w.K+row*16+col%16])
		}
	}
	return dense
}

func TestGemmFloatModeMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewSource(51))
	m, n, k, blkLen := 3, 21, 70, 32

	b := randMatrix(rng, k*n)
	a := randMatrix(rng, m*k)
	bias := randMatrix(rng, n)

	for _, symmetric := range []bool{true, false} {
		w, err := QuantizeWeights(b, n, k, blkLen, CompFp32, symmetric)
		require.NoError(t, err)
		dense := denseWeights(t, w)

		c := make([]float32, m*n)
		require.NoError(t, GemmFloatMode(blkLen, a, w.Codes, w.Scales, w.ZeroPoints, c, m, n, k, bias, WithThreads(1)))

		for row := 0; row < m; row++ {
			for col := 0; col < n; col++ {
				want := float64(bias[col])
				for kk := 0; kk < k; kk++ {
					want += float64(a[row*k+kk]) * dense[kk*n+col]
				}
				assert.InDelta(t, want, c[row*n+col], 1e-3, "symmetric=%v row=%d col=%d", symmetric, row, col)
			}
		}
	}
}

func TestGemmInt8ModeApproximatesFloatMode(t *testing.T) {
	rng := rand.New(rand.NewSource(52))
	m, n, k, blkLen := 4, 10, 96, 32

	b := randMatrix(rng, k*n)
	a := randMatrix(rng, m*k)

	wFloat, err := QuantizeWeights(b, n, k, blkLen, CompFp32, false)
	require.NoError(t, err)
	wInt8, err := QuantizeWeights(b, n, k, blkLen, CompInt8, false)
	require.NoError(t, err)

	cFloat := make([]float32, m*n)
	require.NoError(t, wFloat.Gemm(a, cFloat, m, nil))
	cInt8 := make([]float32, m*n)
	require.NoError(t, wInt8.Gemm(a, cInt8, m, nil))

	// Int8 mode quantizes the activations, so the two modes agree only to
	// within that quantization error.
	for i := range cFloat {
		assert.InDelta(t, float64(cFloat[i]), float64(cInt8[i]), 0.05*(1+abs64(cFloat[i])), "element %d", i)
	}
}

func abs64(v float32) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}

func TestGemmThreadCountDoesNotChangeResults(t *testing.T) {
	rng := rand.New(rand.NewSource(53))
	m, n, k, blkLen := 8, 12, 64, 16

	b := randMatrix(rng, k*n)
	a := randMatrix(rng, m*k)

	for _, mode := range []ComputeMode{CompFp32, CompInt8} {
		w, err := QuantizeWeights(b, n, k, blkLen, mode, true)
		require.NoError(t, err)

		serial := make([]float32, m*n)
		require.NoError(t, w.Gemm(a, serial, m, nil, WithThreads(1)))
		parallel := make([]float32, m*n)
		require.NoError(t, w.Gemm(a, parallel, m, nil, WithThreads(4)))

		// Row partitioning never changes per-row arithmetic.
		assert.Equal(t, serial, parallel, "mode=%s", mode)
	}
}

func TestGemmInt8ModeReportsRows(t *testing.T) {
	rng := rand.New(rand.NewSource(54))
	m, n, k, blkLen := 3, 4, 32, 16

	b := randMatrix(rng, k*n)
	a := randMatrix(rng, m*k)
	w, err := QuantizeWeights(b, n, k, blkLen, CompInt8, true)
	require.NoError(t, err)

	wsSize, err := PerCallWorkspaceSize(m, n, k, blkLen, CompInt8)
	require.NoError(t, err)
	workspace := make([]byte, wsSize)
	rowBytes := wsSize / m
	for row := 0; row < m; row++ {
		require.NoError(t, QuantizeActivationRow(blkLen, a[row*k:(row+1)*k], k, workspace[row*rowBytes:(row+1)*rowBytes]))
	}

	blockCountK := (k + blkLen - 1) / blkLen
	c := make([]float32, m*n)
	rows, err := GemmInt8Mode(blkLen, workspace, w.Codes, w.Scales, w.ZeroPoints, c, m, n, blockCountK, n, nil, WithThreads(1))
	require.NoError(t, err)
	assert.Equal(t, m, rows)

	// Same result through the high-level driver.
	c2 := make([]float32, m*n)
	require.NoError(t, w.Gemm(a, c2, m, nil, WithThreads(1)))
	assert.Equal(t, c2, c)
}

func TestWorkspaceQueries(t *testing.T) {
	size, err := PerCallWorkspaceSize(4, 8, 100, 32, CompFp32)
	require.NoError(t, err)
	assert.Zero(t, size)

	// 100 elements at blkLen 32 is 4 blocks of 4+32 bytes per row.
	size, err = PerCallWorkspaceSize(4, 8, 100, 32, CompInt8)
	require.NoError(t, err)
	assert.Equal(t, 4*4*36, size)

	align, err := PerCallWorkspaceAlignment(32, CompInt8)
	require.NoError(t, err)
	assert.Equal(t, 4, align)

	align, err = PerCallWorkspaceAlignment(32, CompFp32)
	require.NoError(t, err)
	assert.Equal(t, 1, align)
}

func TestPackParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(55))
	// Large enough that the parallel path actually engages.
	n, k, blkLen := 64, 1024, 16

	size, err := PackedSize(n, k, blkLen, CompInt8)
	require.NoError(t, err)
	raw := make([]byte, size)
	for i := range raw {
		raw[i] = byte(rng.Intn(256))
	}

	serial := make([]byte, size)
	require.NoError(t, Pack(n, k, blkLen, CompInt8, raw, serial, WithThreads(1)))
	parallel := make([]byte, size)
	require.NoError(t, Pack(n, k, blkLen, CompInt8, raw, parallel, WithThreads(4)))
	assert.Equal(t, serial, parallel)
}

func TestValidation(t *testing.T) {
	_, err := PackedSize(4, 64, 24, CompFp32)
	assert.ErrorContains(t, err, "block length")

	_, err = PackedSize(4, 64, 32, ComputeMode(9))
	assert.ErrorContains(t, err, "compute mode")

	_, err = PackedSize(0, 64, 32, CompFp32)
	assert.ErrorContains(t, err, "dimensions")

	err = GemmFloatMode(20, make([]float32, 4), nil, nil, nil, make([]float32, 4), 1, 4, 4, nil)
	assert.ErrorContains(t, err, "block length")

	// Undersized packed weights.
	err = GemmFloatMode(16, make([]float32, 16), make([]byte, 1), make([]float32, 1), nil, make([]float32, 1), 1, 1, 16, nil)
	assert.ErrorContains(t, err, "packed weights too small")

	err = QuantizeActivationRow(16, make([]float32, 8), 16, make([]byte, 64))
	assert.ErrorContains(t, err, "activation row too small")

	_, err = GemmInt8Mode(16, make([]byte, 20), make([]byte, 8), make([]float32, 1), nil, make([]float32, 1), 1, 1, 1, 0, nil)
	assert.ErrorContains(t, err, "ldc")
}
