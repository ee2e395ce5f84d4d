//go:build arm64 && !noasm

package kernels

import "golang.org/x/sys/cpu"

var wideVectors = cpu.ARM64.HasASIMD
