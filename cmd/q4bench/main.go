// Command q4bench benchmarks the quantized GEMM kernels over a synthetic
// problem and reports throughput.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/lth/go-q4gemm/pkg/q4gemm"
)

var (
	mFlag      = flag.Int("m", 128, "Rows of A / C")
	nFlag      = flag.Int("n", 2048, "Columns of C (weight columns)")
	kFlag      = flag.Int("k", 2048, "Inner dimension")
	blkLen     = flag.Int("blklen", 32, "Quantization block length (multiple of 16)")
	modeFlag   = flag.String("mode", "int8", "Compute mode: fp32 or int8")
	threads    = flag.Int("threads", runtime.NumCPU(), "Worker threads")
	iters      = flag.Int("iters", 20, "Timed iterations")
	asymmetric = flag.Bool("asymmetric", false, "Use asymmetric quantization (per-block zero points)")
	seed       = flag.Int64("seed", 1, "RNG seed for synthetic data")
)

func main() {
	flag.Parse()

	var mode q4gemm.ComputeMode
	switch *modeFlag {
	case "fp32":
		mode = q4gemm.CompFp32
	case "int8":
		mode = q4gemm.CompInt8
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (want fp32 or int8)\n", *modeFlag)
		os.Exit(2)
	}

	m, n, k := *mFlag, *nFlag, *kFlag
	rng := rand.New(rand.NewSource(*seed))

	weights := make([]float32, k*n)
	for i := range weights {
		weights[i] = rng.Float32()*2 - 1
	}
	a := make([]float32, m*k)
	for i := range a {
		a[i] = rng.Float32()*2 - 1
	}
	c := make([]float32, m*n)

	packStart := time.Now()
	w, err := q4gemm.QuantizeWeights(weights, n, k, *blkLen, mode, !*asymmetric,
		q4gemm.WithThreads(*threads))
	if err != nil {
		log.Fatalf("quantize weights: %v", err)
	}
	packElapsed := time.Since(packStart)

	// Warmup outside the timed loop so pool startup and page faults settle.
	if err := w.Gemm(a, c, m, nil, q4gemm.WithThreads(*threads)); err != nil {
		log.Fatalf("gemm: %v", err)
	}

	wallStart := time.Now()
	cpuStart := cpuTime()
	for i := 0; i < *iters; i++ {
		if err := w.Gemm(a, c, m, nil, q4gemm.WithThreads(*threads)); err != nil {
			log.Fatalf("gemm: %v", err)
		}
	}
	wall := time.Since(wallStart)
	cpu := cpuTime() - cpuStart

	flops := 2 * float64(m) * float64(n) * float64(k) * float64(*iters)
	p := message.NewPrinter(language.English)
	p.Printf("problem: m=%d n=%d k=%d blklen=%d mode=%s threads=%d\n",
		m, n, k, *blkLen, mode, *threads)
	p.Printf("packed:  %d weight bytes in %v\n", len(w.Codes), packElapsed)
	p.Printf("timing:  %d iters in %v wall (%v/iter)\n", *iters, wall, wall/time.Duration(*iters))
	if cpu > 0 {
		p.Printf("cpu:     %v total (%.2fx of wall)\n", cpu, float64(cpu)/float64(wall))
	}
	p.Printf("rate:    %.2f GFLOP/s\n", flops/wall.Seconds()/1e9)
}
