// Package parallel provides the worker-pool fan-out used to parallelize
// packing and to split GEMM calls across disjoint row ranges. Tasks are
// bounded computations over fixed-size inputs; nothing blocks or suspends,
// and there is no cancellation.
package parallel

import "sync"

// Pool is a fixed set of worker goroutines fed from a shared job channel.
// A nil *Pool is valid and runs everything on the calling goroutine.
type Pool struct {
	jobs chan job
}

type job struct {
	fn func()
	wg *sync.WaitGroup
}

// NewPool starts size workers. Sizes below two return nil: the dispatch
// overhead would exceed any gain, so callers fall through to serial
// execution.
func NewPool(size int) *Pool {
	if size <= 1 {
		return nil
	}
	// Buffer beyond the worker count so submitters rarely block while a
	// burst of small tasks drains.
	p := &Pool{jobs: make(chan job, size*3)}
	for i := 0; i < size; i++ {
		go func() {
			for j := range p.jobs {
				j.fn()
				j.wg.Done()
			}
		}()
	}
	return p
}

// Run executes the tasks and waits for all of them to finish.
func (p *Pool) Run(tasks ...func()) {
	if p == nil {
		for _, task := range tasks {
			if task != nil {
				task()
			}
		}
		return
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		if task == nil {
			continue
		}
		wg.Add(1)
		p.jobs <- job{fn: task, wg: &wg}
	}
	wg.Wait()
}

// Close stops the workers once queued jobs drain. Run must not be called
// after Close.
func (p *Pool) Close() {
	if p != nil {
		close(p.jobs)
	}
}

// For splits [0, n) into at most chunks contiguous ranges and runs fn on
// each. Ranges are disjoint, so fn may write to per-range state without
// synchronization.
func For(p *Pool, n, chunks int, fn func(begin, end int)) {
	if n <= 0 {
		return
	}
	if p == nil || chunks <= 1 || n == 1 {
		fn(0, n)
		return
	}
	if chunks > n {
		chunks = n
	}

	chunkSize := (n + chunks - 1) / chunks
	tasks := make([]func(), 0, chunks)
	for begin := 0; begin < n; begin += chunkSize {
		end := begin + chunkSize
		if end > n {
			end = n
		}
		b, e := begin, end
		tasks = append(tasks, func() { fn(b, e) })
	}
	p.Run(tasks...)
}
