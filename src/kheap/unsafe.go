package kheap

import "unsafe"

// ptrDiff returns the byte offset of p from base within the same
// backing array, or -1 if p precedes base.
func ptrDiff(base, p *byte) int {
	bp := uintptr(unsafe.Pointer(base))
	pp := uintptr(unsafe.Pointer(p))
	if pp < bp {
		return -1
	}
	return int(pp - bp)
}
