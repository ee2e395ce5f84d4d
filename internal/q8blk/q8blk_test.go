package q8blk

import (
	"math"
	"testing"
)

func TestSizes(t *testing.T) {
	if got := BlkSize(32); got != 36 {
		t.Errorf("BlkSize(32) = %d, expected 36", got)
	}
	if got := RowSize(17, 16); got != 2*20 {
		t.Errorf("RowSize(17, 16) = %d, expected 40", got)
	}
	if got := WorkspaceSize(3, 64, 32); got != 3*2*36 {
		t.Errorf("WorkspaceSize(3, 64, 32) = %d, expected %d", got, 3*2*36)
	}
}

func TestScaleRoundTrip(t *testing.T) {
	blk := make([]byte, BlkSize(16))
	PutScale(blk, 0.03125)
	if got := Scale(blk); got != 0.03125 {
		t.Errorf("Scale = %f, expected 0.03125", got)
	}
}

func TestQuantizeRowKnownValues(t *testing.T) {
	// amax = 127 makes the scale exactly 1, so codes equal rounded inputs.
	blkLen := 16
	a := make([]float32, blkLen)
	a[0] = 127
	a[1] = -127
	a[2] = 2.5  // tie rounds away from zero
	a[3] = -2.5 // tie rounds away from zero
	a[4] = 1.49
	a[5] = -1.51
	a[6] = 100.2

	dst := make([]byte, RowSize(blkLen, blkLen))
	QuantizeRow(blkLen, a, blkLen, dst)

	if got := Scale(dst); got != 1 {
		t.Fatalf("scale = %f, expected 1", got)
	}
	expected := []int8{127, -127, 3, -3, 1, -2, 100}
	codes := Codes(dst, blkLen)
	for i, v := range expected {
		if int8(codes[i]) != v {
			t.Errorf("codes[%d] = %d, expected %d", i, int8(codes[i]), v)
		}
	}
	for i := 7; i < blkLen; i++ {
		if codes[i] != 0 {
			t.Errorf("codes[%d] = %d, expected 0", i, int8(codes[i]))
		}
	}
}

func TestQuantizeRowScale(t *testing.T) {
	blkLen := 32
	a := make([]float32, blkLen)
	for i := range a {
		a[i] = float32(i) - 16
	}

	dst := make([]byte, RowSize(blkLen, blkLen))
	QuantizeRow(blkLen, a, blkLen, dst)

	wantScale := float32(16) / 127
	if got := Scale(dst); math.Abs(float64(got-wantScale)) > 1e-7 {
		t.Fatalf("scale = %f, expected %f", got, wantScale)
	}

	// Reconstruction error is at most half a step.
	codes := Codes(dst, blkLen)
	for i := range a {
		got := float32(int8(codes[i])) * Scale(dst)
		if math.Abs(float64(got-a[i])) > float64(wantScale)/2+1e-6 {
			t.Errorf("codes[%d]: reconstructed %f, source %f", i, got, a[i])
		}
	}
}

func TestQuantizeRowZeroBlock(t *testing.T) {
	blkLen := 16
	a := make([]float32, blkLen)
	dst := make([]byte, RowSize(blkLen, blkLen))
	for i := range dst {
		dst[i] = 0xFF
	}
	QuantizeRow(blkLen, a, blkLen, dst)

	if got := Scale(dst); got != 0 {
		t.Errorf("scale = %f, expected 0", got)
	}
	for i, c := range Codes(dst, blkLen) {
		if c != 0 {
			t.Errorf("codes[%d] = %d, expected 0", i, c)
		}
	}
}

func TestQuantizeRowPartialTail(t *testing.T) {
	// countK = 17 with blkLen = 16: second block holds one value, rest zeros.
	blkLen, countK := 16, 17
	a := make([]float32, countK)
	for i := range a {
		a[i] = float32(i + 1)
	}

	dst := make([]byte, RowSize(countK, blkLen))
	for i := range dst {
		dst[i] = 0xFF
	}
	QuantizeRow(blkLen, a, countK, dst)

	tail := dst[BlkSize(blkLen):]
	wantScale := float32(17) / 127
	if got := Scale(tail); math.Abs(float64(got-wantScale)) > 1e-7 {
		t.Fatalf("tail scale = %f, expected %f", got, wantScale)
	}
	codes := Codes(tail, blkLen)
	if int8(codes[0]) != 127 {
		t.Errorf("tail codes[0] = %d, expected 127", int8(codes[0]))
	}
	for i := 1; i < blkLen; i++ {
		if codes[i] != 0 {
			t.Errorf("tail codes[%d] = %d, expected 0", i, codes[i])
		}
	}
}
