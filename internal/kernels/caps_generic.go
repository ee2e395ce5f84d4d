//go:build (!amd64 && !arm64) || noasm

package kernels

// No wide vector units assumed on other targets.
var wideVectors = false
