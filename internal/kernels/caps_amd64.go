//go:build amd64 && !noasm

package kernels

import "golang.org/x/sys/cpu"

// Wide vector units make the tiled kernel variants worthwhile; without them
// the reference table is installed instead.
var wideVectors = cpu.X86.HasAVX2
