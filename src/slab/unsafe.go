package slab

import (
	"math/bits"
	"unsafe"
)

func sizeofT[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func trailingZeros8(b byte) int {
	return bits.TrailingZeros8(b)
}

// ptrOffset returns the byte offset of p from base, or -1 if p precedes
// base (never valid for a pointer into the same backing array).
func ptrOffset[T any](base, p *T) int {
	bp := uintptr(unsafe.Pointer(base))
	pp := uintptr(unsafe.Pointer(p))
	if pp < bp {
		return -1
	}
	return int(pp - bp)
}
