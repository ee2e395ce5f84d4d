package parallel

import (
	"sync/atomic"
	"testing"
)

func TestNewPoolSmallSizes(t *testing.T) {
	if p := NewPool(0); p != nil {
		t.Error("NewPool(0) should return nil")
	}
	if p := NewPool(1); p != nil {
		t.Error("NewPool(1) should return nil")
	}
}

func TestRunNilPool(t *testing.T) {
	var p *Pool
	var count int32
	p.Run(
		func() { atomic.AddInt32(&count, 1) },
		nil,
		func() { atomic.AddInt32(&count, 1) },
	)
	if count != 2 {
		t.Errorf("executed %d tasks, expected 2", count)
	}
}

func TestRunExecutesAllTasks(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var count int32
	tasks := make([]func(), 100)
	for i := range tasks {
		tasks[i] = func() { atomic.AddInt32(&count, 1) }
	}
	p.Run(tasks...)
	if count != 100 {
		t.Errorf("executed %d tasks, expected 100", count)
	}
}

func TestForCoversRangeExactlyOnce(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	for _, tc := range []struct{ n, chunks int }{
		{0, 4}, {1, 4}, {7, 3}, {100, 4}, {5, 16},
	} {
		hits := make([]int32, tc.n)
		For(p, tc.n, tc.chunks, func(begin, end int) {
			for i := begin; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			if h != 1 {
				t.Errorf("n=%d chunks=%d: index %d visited %d times", tc.n, tc.chunks, i, h)
			}
		}
	}
}

func TestForNilPoolRunsSerially(t *testing.T) {
	var calls int
	For(nil, 10, 4, func(begin, end int) {
		calls++
		if begin != 0 || end != 10 {
			t.Errorf("range [%d, %d), expected [0, 10)", begin, end)
		}
	})
	if calls != 1 {
		t.Errorf("fn called %d times, expected 1", calls)
	}
}
