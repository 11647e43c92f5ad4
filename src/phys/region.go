// Package phys implements the buddy-style physical page allocator of
// component A: one or more Regions, each with per-order free lists, a
// per-order allocation bitmap, and an in-region slab of block
// descriptors. See spec §3.1 and §4.A.
//
// Grounded on the teacher's mem.Physmem_t per-order free-list/bitmap
// bookkeeping (biscuit/src/mem/mem.go) and on kush-os's
// PhysRegion.cpp/PhysicalAllocator.cpp for the bottom-up seeding and
// slab-of-descriptors design named in spec §9's design notes (an
// index-into-slab representation rather than a pointer chain, so the
// free lists need no rewriting during the VM-available fixup).
package phys

import (
	"math/bits"
	"sync"

	"biscuit/src/defs"
)

// MaxOrder mirrors defs.MaxOrder: a free block's order k holds 2^k pages.
const MaxOrder = defs.MaxOrder

// PGSIZE and PGSHIFT mirror defs for readability in this package.
const (
	PGSIZE  = defs.PGSIZE
	PGSHIFT = defs.PGSHIFT
)

type blockDesc struct {
	addr  uintptr
	order int32
	next  int32 // index into Region.descs, -1 = end of list
}

const descNil int32 = -1

type orderState struct {
	freeHead int32
	bitmap   []byte // bit set iff the block at that index is allocated
}

// Region is a single qualifying physical RAM range. See spec §3.1.
type Region struct {
	mu sync.Mutex

	regionBase uintptr
	regionEnd  uintptr
	usableBase uintptr
	usablePages uint32

	orders [MaxOrder + 1]orderState

	descs      []blockDesc
	descBitmap []byte // bit set iff that descriptor slot is free

	fixedUp bool
}

func descSize() uintptr { return 24 } // addr(8) + order(4) + next(4), padded to 8-byte alignment

// qualifies reports whether a region of the given length can hold at
// least one maximum-order block plus its own bookkeeping overhead.
func qualifies(length int) bool {
	return length > 0 && length/PGSIZE >= (1<<MaxOrder)*2
}

// NewRegion constructs a Region over [base, base+length). It reserves
// room for the per-order bitmaps and the block-descriptor slab at the
// bottom of the region (per spec §3.1's "usable base" definition) sized against the
// region's raw page count, then seeds the free lists bottom-up,
// greedily taking the largest aligned order at each step (spec §4.A
// Initialization step 2). Returns ok=false if the region does not
// qualify.
func NewRegion(base uintptr, length int) (*Region, bool) {
	if !qualifies(length) {
		return nil, false
	}
	rawPages := uint32(length / PGSIZE)

	// Size the per-order bitmaps against the raw page count: an upper
	// bound on how many blocks of each order the region could ever
	// hold, independent of where the usable base actually lands.
	var bitmapBytesTotal uintptr
	bitmapSizes := make([]uintptr, MaxOrder+1)
	for k := 0; k <= MaxOrder; k++ {
		blocks := rawPages >> uint(k)
		if blocks == 0 {
			blocks = 1
		}
		sz := uintptr((blocks + 7) / 8)
		bitmapSizes[k] = sz
		bitmapBytesTotal += sz
	}

	// Worst case every usable page becomes its own order-0 free block
	// simultaneously, so the descriptor slab must hold one descriptor
	// per raw page.
	descCap := int(rawPages)
	descBytes := uintptr(descCap) * descSize()
	descBitmapBytes := uintptr((descCap + 7) / 8)

	overhead := bitmapBytesTotal + descBytes + descBitmapBytes
	usableBase := roundup(base+overhead, uintptr(PGSIZE))
	regionEnd := base + uintptr(length)
	if usableBase >= regionEnd {
		return nil, false
	}
	usablePages := uint32((regionEnd - usableBase) / uintptr(PGSIZE))
	if usablePages < (1 << MaxOrder) {
		return nil, false
	}

	r := &Region{
		regionBase:  base,
		regionEnd:   regionEnd,
		usableBase:  usableBase,
		usablePages: usablePages,
		descs:       make([]blockDesc, descCap),
		descBitmap:  make([]byte, descBitmapBytes),
	}
	for i := range r.descBitmap {
		r.descBitmap[i] = 0xff
	}
	// Clear the padding bits beyond descCap so allocDesc never returns
	// an out-of-range index.
	for i := descCap; i < len(r.descBitmap)*8; i++ {
		r.descBitmap[i/8] &^= 1 << uint(i%8)
	}
	for k := 0; k <= MaxOrder; k++ {
		r.orders[k] = orderState{freeHead: descNil, bitmap: make([]byte, bitmapSizes[k])}
	}

	r.seed()
	return r, true
}

// seed populates the free lists bottom-up: at each step it takes the
// largest order that is both alignment-compatible with the current
// physical address and fits within what remains (spec §4.A step 2).
func (r *Region) seed() {
	var offsetPages uint32
	remaining := r.usablePages
	for remaining > 0 {
		align := MaxOrder
		if absPage := uint32(r.usableBase>>PGSHIFT) + offsetPages; absPage != 0 {
			align = bits.TrailingZeros32(absPage)
			if align > MaxOrder {
				align = MaxOrder
			}
		}
		size := 31 - bits.LeadingZeros32(remaining) // floor(log2(remaining))
		if size > MaxOrder {
			size = MaxOrder
		}
		k := align
		if size < k {
			k = size
		}
		addr := r.usableBase + uintptr(offsetPages)*uintptr(PGSIZE)
		idx := r.allocDesc()
		r.descs[idx] = blockDesc{addr: addr, order: int32(k), next: r.orders[k].freeHead}
		r.orders[k].freeHead = idx
		offsetPages += 1 << uint(k)
		remaining -= 1 << uint(k)
	}
}

// Fixup is the one-shot conversion from the "early" region-relative
// addressing used during bring-up to kernel-virtual addressing (spec
// §3.1, §4.A "VM available fixup"). Because free-list links here are
// already slab indices rather than pointers (spec §9's design note),
// there is nothing to rewrite; Fixup only flips the gate that allows
// general Alloc/Free traffic, matching the "initialize via an explicit
// init() sequence ... boot order is part of the contract" design note.
func (r *Region) Fixup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fixedUp {
		panic("phys: region fixed up twice")
	}
	r.fixedUp = true
}

func (r *Region) assertFixedUp() {
	if !r.fixedUp {
		panic("phys: region used before VM-available fixup")
	}
}

// Base, End and UsableBase expose region geometry for diagnostics.
func (r *Region) Base() uintptr       { return r.regionBase }
func (r *Region) End() uintptr        { return r.regionEnd }
func (r *Region) UsableBase() uintptr { return r.usableBase }
func (r *Region) UsablePages() uint32 { return r.usablePages }

func (r *Region) contains(addr uintptr) bool {
	return addr >= r.usableBase && addr < r.regionEnd
}

func (r *Region) blockIndex(order int, addr uintptr) uint32 {
	return uint32((addr - r.usableBase) >> (PGSHIFT + uint(order)))
}

func (r *Region) bitSet(order int, addr uintptr) bool {
	idx := r.blockIndex(order, addr)
	bm := r.orders[order].bitmap
	byteI := idx / 8
	if int(byteI) >= len(bm) {
		return false
	}
	return bm[byteI]&(1<<(idx%8)) != 0
}

func (r *Region) setBit(order int, addr uintptr, val bool) {
	idx := r.blockIndex(order, addr)
	bm := r.orders[order].bitmap
	byteI := idx / 8
	if val {
		bm[byteI] |= 1 << (idx % 8)
	} else {
		bm[byteI] &^= 1 << (idx % 8)
	}
}

func (r *Region) allocDesc() int32 {
	for i, b := range r.descBitmap {
		if b == 0 {
			continue
		}
		bit := bits.TrailingZeros8(b)
		idx := i*8 + bit
		if idx >= len(r.descs) {
			continue
		}
		r.descBitmap[i] &^= 1 << uint(bit)
		return int32(idx)
	}
	panic("phys: block descriptor slab exhausted")
}

func (r *Region) freeDesc(idx int32) {
	byteI, bit := idx/8, uint(idx%8)
	if r.descBitmap[byteI]&(1<<bit) != 0 {
		panic("phys: double free of block descriptor")
	}
	r.descs[idx] = blockDesc{}
	r.descBitmap[byteI] |= 1 << bit
}

func (r *Region) popFree(order int) (uintptr, bool) {
	idx := r.orders[order].freeHead
	if idx == descNil {
		return 0, false
	}
	d := r.descs[idx]
	r.orders[order].freeHead = d.next
	addr := d.addr
	r.freeDesc(idx)
	return addr, true
}

func (r *Region) pushFree(order int, addr uintptr) {
	idx := r.allocDesc()
	r.descs[idx] = blockDesc{addr: addr, order: int32(order), next: r.orders[order].freeHead}
	r.orders[order].freeHead = idx
}

// removeFree unlinks the free-list entry for addr at the given order,
// if present, and returns whether it was found.
func (r *Region) removeFree(order int, addr uintptr) bool {
	prev := descNil
	cur := r.orders[order].freeHead
	for cur != descNil {
		d := &r.descs[cur]
		if d.addr == addr {
			if prev == descNil {
				r.orders[order].freeHead = d.next
			} else {
				r.descs[prev].next = d.next
			}
			r.freeDesc(cur)
			return true
		}
		prev = cur
		cur = d.next
	}
	return false
}

// alloc attempts to satisfy an order-k allocation from this region
// alone: an exact free block, or split down from the smallest larger
// free block available (spec §4.A Allocation).
func (r *Region) alloc(order int) (uintptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertFixedUp()

	for k := order; k <= MaxOrder; k++ {
		addr, ok := r.popFree(k)
		if !ok {
			continue
		}
		for k > order {
			k--
			half := uintptr(1) << uint(k+int(PGSHIFT))
			buddy := addr + half
			r.pushFree(k, buddy)
			r.setBit(k, buddy, false)
		}
		r.setBit(order, addr, true)
		return addr, true
	}
	return 0, false
}

func (r *Region) buddyOf(order int, addr uintptr) uintptr {
	span := uintptr(1) << uint(order+int(PGSHIFT))
	return addr ^ span
}

// free returns an order-k block to this region, coalescing with its
// buddy while possible (spec §4.A Free). Panics if the block was not
// allocated, per the §7 fatal-invariant contract.
func (r *Region) free(addr uintptr, order int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertFixedUp()

	if !r.bitSet(order, addr) {
		panic("phys: free of unallocated or already-free block")
	}
	r.setBit(order, addr, false)

	curOrder, curAddr := order, addr
	for curOrder < MaxOrder {
		buddy := r.buddyOf(curOrder, curAddr)
		span := uint32(1) << uint(curOrder)
		buddyOffsetPages := uint32((buddy - r.usableBase) >> PGSHIFT)
		if buddyOffsetPages+span > r.usablePages {
			break // buddy would fall outside the region: nothing to coalesce with
		}
		if r.bitSet(curOrder, buddy) {
			break // buddy is allocated
		}
		if !r.removeFree(curOrder, buddy) {
			break // buddy isn't a tracked free block (region overhead edge)
		}
		if buddy < curAddr {
			curAddr = buddy
		}
		curOrder++
	}
	r.pushFree(curOrder, curAddr)
}

// reserve marks the single page at addr allocated without requiring a
// prior Alloc call, splitting down from whatever free block currently
// covers it. Used during bring-up to carve out pages already in use
// (e.g. the kernel image). Returns false if addr falls outside the
// region or is already allocated.
func (r *Region) reserve(addr uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertFixedUp()

	if !r.contains(addr) || addr%uintptr(PGSIZE) != 0 {
		return false
	}
	// Find the order whose free list currently covers addr by trying
	// each order from largest to smallest and checking containment.
	for k := MaxOrder; k >= 0; k-- {
		span := uintptr(1) << uint(k+int(PGSHIFT))
		blockAddr := util_rounddown(addr, span)
		if r.bitSet(k, blockAddr) {
			continue
		}
		if !r.removeFree(k, blockAddr) {
			continue
		}
		// split blockAddr (order k) down to order 0, keeping the half
		// containing addr, freeing the other halves.
		cur := blockAddr
		for o := k; o > 0; o-- {
			half := uintptr(1) << uint(o-1+int(PGSHIFT))
			lo, hi := cur, cur+half
			var keep, other uintptr
			if addr < hi {
				keep, other = lo, hi
			} else {
				keep, other = hi, lo
			}
			r.pushFree(o-1, other)
			r.setBit(o-1, other, false)
			cur = keep
		}
		r.setBit(0, cur, true)
		return true
	}
	return false
}

func roundup(v, b uintptr) uintptr {
	return (v + b - 1) / b * b
}

func util_rounddown(v, b uintptr) uintptr {
	return v - v%b
}
