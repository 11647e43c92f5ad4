// Package kheap implements the remainder of component B: the
// anonymous-page pool, the kernel heap built on top of it, and the
// kernel stack pool. See spec §4.B.
//
// Grounded on the teacher's mem.Physmem_t/Dmap direct-map idiom
// (biscuit/src/mem/mem.go, dmap.go) for turning a physical allocation
// into a dereferenceable buffer, and on kush-os's AnonPool.cpp,
// Heap.cpp and StackPool.cpp for the pool/heap/stack-slot split named
// in spec §4.B.
package kheap

import (
	"sync"

	"biscuit/src/arena"
	"biscuit/src/defs"
	"biscuit/src/phys"
)

const pageSize = defs.PGSIZE

// AnonPool is a reserved kernel virtual range backed by the physical
// allocator. It is deliberately simple, as spec §4.B calls for: no
// per-page reuse, a monotonically advancing watermark, and (per the
// kush-os behavior preserved in spec §9's open questions) PutPages is a
// documented no-op — anonymous-pool memory leaks by design.
type AnonPool struct {
	mu        sync.Mutex
	phys      *phys.Allocator
	stick     *arena.Stick
	vbase     uintptr
	watermark uintptr
}

// NewAnonPool reserves a kernel-virtual range starting at vbase, backed
// by phys and dereferenced through stick.
func NewAnonPool(vbase uintptr, phys *phys.Allocator, stick *arena.Stick) *AnonPool {
	return &AnonPool{phys: phys, stick: stick, vbase: vbase, watermark: vbase}
}

// GetPages draws n pages per page of requested VA: a single contiguous
// physical allocation (rounded up to a power of two by the physical
// allocator) is mapped as this call's slice of the pool's VA range and
// zeroed. It implements slab.PageSource.
func (p *AnonPool) GetPages(n int) ([]byte, bool) {
	if n <= 0 {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	addr := p.phys.Alloc(n)
	if addr == 0 {
		return nil, false
	}
	p.stick.Zero(addr, n*pageSize)
	p.watermark += uintptr(n * pageSize)
	return p.stick.Bytes(addr, n*pageSize), true
}

// PutPages is a no-op: the minimum AnonPool never reclaims VA or the
// physical pages backing it. This mirrors kush-os's AnonPool::free,
// which is empty in the original source — a known, documented leak,
// not an oversight in this port.
func (p *AnonPool) PutPages(buf []byte) {}

// Watermark reports the next VA this pool would hand out, for
// diagnostics only.
func (p *AnonPool) Watermark() uintptr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}
