// Command q4inspect prints the parameters of a packed weight file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/lth/go-q4gemm/pkg/q4gemm"
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: %s <weights.q4wm>", os.Args[0])
	}

	w, err := q4gemm.LoadWeights(flag.Arg(0))
	if err != nil {
		log.Fatalf("load weights: %v", err)
	}

	quant := "symmetric"
	if w.ZeroPoints != nil {
		quant = "asymmetric"
	}
	fmt.Printf("dims:         %d x %d\n", w.N, w.K)
	fmt.Printf("block length: %d\n", w.BlkLen)
	fmt.Printf("mode:         %s\n", w.Mode)
	fmt.Printf("quantization: %s\n", quant)
	fmt.Printf("code bytes:   %d\n", len(w.Codes))
	fmt.Printf("scales:       %d\n", len(w.Scales))
	if w.ZeroPoints != nil {
		fmt.Printf("zero points:  %d bytes\n", len(w.ZeroPoints))
	}
}
