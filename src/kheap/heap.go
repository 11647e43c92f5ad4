package kheap

import "sync"

const minAlign = 16

type freeBlock struct{ off, size int }

type arenaBuf struct {
	buf  []byte
	free []freeBlock // sorted by offset, never adjacent-unmerged
}

// take finds the first free block able to satisfy size and splits it,
// returning the offset handed out.
func (a *arenaBuf) take(size int) (int, bool) {
	for i, fb := range a.free {
		if fb.size < size {
			continue
		}
		off := fb.off
		if fb.size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = freeBlock{off: fb.off + size, size: fb.size - size}
		}
		return off, true
	}
	return 0, false
}

// give returns [off, off+size) to the free list, coalescing with
// adjacent free blocks.
func (a *arenaBuf) give(off, size int) {
	i := 0
	for ; i < len(a.free); i++ {
		if a.free[i].off > off {
			break
		}
	}
	merged := freeBlock{off: off, size: size}
	// merge with predecessor
	if i > 0 && a.free[i-1].off+a.free[i-1].size == merged.off {
		merged.off = a.free[i-1].off
		merged.size += a.free[i-1].size
		i--
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	// merge with successor
	if i < len(a.free) && merged.off+merged.size == a.free[i].off {
		merged.size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	a.free = append(a.free, freeBlock{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = merged
}

func (a *arenaBuf) indexOf(b []byte) (int, bool) {
	if len(b) == 0 || len(a.buf) == 0 {
		return 0, false
	}
	base := &a.buf[0]
	p := &b[0]
	off := ptrDiff(base, p)
	if off < 0 || off+len(b) > len(a.buf) {
		return 0, false
	}
	return off, true
}

// KernelHeap is the kernel's general-purpose allocator: a sequential-
// fit free-list allocator over arenas drawn from an AnonPool, protected
// by a single lock (spec §4.B "mutually excluded by a single
// spinlock").
type KernelHeap struct {
	mu       sync.Mutex
	pool     *AnonPool
	arenas   []*arenaBuf
	growPages int
}

// NewKernelHeap returns a heap that grows by at least growPages pages
// (rounded up further if a single request is larger) each time its
// arenas run out of room.
func NewKernelHeap(pool *AnonPool, growPages int) *KernelHeap {
	if growPages <= 0 {
		growPages = 4
	}
	return &KernelHeap{pool: pool, growPages: growPages}
}

// Alloc returns a zeroed buffer of at least size bytes, or nil if the
// backing anonymous pool is exhausted.
func (h *KernelHeap) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	size = roundup(size, minAlign)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, a := range h.arenas {
		if off, ok := a.take(size); ok {
			return a.buf[off : off+size : off+size]
		}
	}
	pages := h.growPages
	if need := (size + pageSize - 1) / pageSize; need > pages {
		pages = need
	}
	buf, ok := h.pool.GetPages(pages)
	if !ok {
		return nil
	}
	a := &arenaBuf{buf: buf, free: []freeBlock{{off: 0, size: len(buf)}}}
	h.arenas = append(h.arenas, a)
	off, ok := a.take(size)
	if !ok {
		panic("kheap: freshly grown arena cannot satisfy its own request")
	}
	return a.buf[off : off+size : off+size]
}

// Free returns b, which must be a slice previously returned by Alloc
// with its original length, to the heap.
func (h *KernelHeap) Free(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, a := range h.arenas {
		if off, ok := a.indexOf(b); ok {
			a.give(off, len(b))
			return
		}
	}
	panic("kheap: free of buffer not owned by this heap")
}

func roundup(v, b int) int {
	return (v + b - 1) / b * b
}
