// Package pte implements the architecture PTE handler of component C:
// an opaque, per-Map object over a 2-level x86 (non-PAE) page
// directory/page table, with the kernel half shared across every
// address space (spec §3.3, §4.C).
//
// Grounded on the teacher's vm.Vm_t/mem.Pmap_t pairing
// (biscuit/src/vm/as.go, mem/mem.go: a page-table root page drawn from
// the physical allocator and dereferenced through the direct map) and
// on gopher-os's recursive page-directory walk (kernel/mem/vmm/pdt.go,
// translate.go) for the present/absent table-walk idiom. Hardware
// vector/IOAPIC/APIC programming and TLB-shootdown IPI delivery are
// out of scope (spec §1); invalidate is the seam a real platform would
// hook to flush the TLB and notify other cores.
package pte

import (
	"sync"

	"biscuit/src/arena"
	"biscuit/src/phys"
)

const (
	entriesPerTable = 1024
	pdShift         = 22
	ptShift         = 12
	idxMask         = 0x3ff
	pageSize        = 4096

	addrMask uint32 = 0xfffff000
)

// Flag bits for a leaf PTE (and, permissively, for PDEs: a PDE is
// always present+writable+user once allocated, with the actual
// restriction carried by the leaf).
const (
	FlagPresent Flags = 1 << 0
	FlagWrite   Flags = 1 << 1
	FlagUser    Flags = 1 << 2
	FlagNoCache Flags = 1 << 4
	FlagGlobal  Flags = 1 << 8
	FlagExec    Flags = 1 << 9 // software-defined: x86 non-PAE paging has no hardware NX bit
)

// Flags describes the permissions to install on a mapped page.
type Flags uint32

// KernelPDStart is the page-directory index at which the kernel half
// of every address space begins (a 1GiB/3GiB split: indices
// [0,KernelPDStart) are user space, [KernelPDStart,1024) are kernel
// space and are aliased across every Map per spec §3.3's invariant).
const KernelPDStart = 768

type table [entriesPerTable]uint32

// Handler is the per-Map hardware page-table representation.
type Handler struct {
	mu    sync.RWMutex
	phys  *phys.Allocator
	stick *arena.Stick
	pd    uintptr // physical address of this map's page directory
	owned map[uintptr]bool // PT pages (by physical addr) this Handler allocated and must free on Destroy
}

// New constructs a Handler with a fresh page directory. If inherit is
// non-nil, the kernel-half PDEs present in it at this moment are copied,
// so the two handlers share those page-table pages for the kernel
// range. A kernel-half page table that either handler allocates later,
// for a 4MiB window that had no PDE when New ran, is installed only in
// that handler's own page directory and is not seen by the other.
func New(p *phys.Allocator, stick *arena.Stick, inherit *Handler) *Handler {
	pdAddr := p.Alloc(1)
	if pdAddr == 0 {
		panic("pte: out of physical memory allocating a page directory")
	}
	stick.Zero(pdAddr, pageSize)
	h := &Handler{phys: p, stick: stick, pd: pdAddr, owned: map[uintptr]bool{}}
	if inherit != nil {
		inherit.mu.RLock()
		dst := h.table()
		src := inherit.table()
		for i := KernelPDStart; i < entriesPerTable; i++ {
			dst[i] = src[i]
		}
		inherit.mu.RUnlock()
	}
	return h
}

func (h *Handler) table() *table {
	return arena.Ref[table](h.stick, h.pd)
}

func (h *Handler) ptTable(addr uintptr) *table {
	return arena.Ref[table](h.stick, addr)
}

func split(virt uintptr) (pdIdx, ptIdx int) {
	return int((virt >> pdShift) & idxMask), int((virt >> ptShift) & idxMask)
}

// MapPage installs a leaf PTE for virt -> phys with the given flags,
// allocating an intermediate page-table page from the physical
// allocator if this is the first mapping in its 4MiB window (spec
// §4.C).
func (h *Handler) MapPage(virt, physAddr uintptr, flags Flags) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	pdIdx, ptIdx := split(virt)
	pd := h.table()
	var ptAddr uintptr
	if pd[pdIdx]&uint32(FlagPresent) == 0 {
		ptAddr = h.phys.Alloc(1)
		if ptAddr == 0 {
			return false
		}
		h.stick.Zero(ptAddr, pageSize)
		pd[pdIdx] = uint32(ptAddr) | uint32(FlagPresent|FlagWrite|FlagUser)
		if pdIdx < KernelPDStart {
			h.owned[ptAddr] = true
		}
	} else {
		ptAddr = uintptr(pd[pdIdx] & addrMask)
	}
	pt := h.ptTable(ptAddr)
	pt[ptIdx] = uint32(physAddr)&addrMask | uint32(flags)
	h.invalidate(virt)
	return true
}

// UnmapPage clears the leaf PTE for virt, if any.
func (h *Handler) UnmapPage(virt uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pdIdx, ptIdx := split(virt)
	pd := h.table()
	if pd[pdIdx]&uint32(FlagPresent) == 0 {
		return
	}
	ptAddr := uintptr(pd[pdIdx] & addrMask)
	pt := h.ptTable(ptAddr)
	pt[ptIdx] = 0
	h.invalidate(virt)
}

// GetMapping returns the physical address and flags mapped at virt, or
// ok=false if virt is not mapped.
func (h *Handler) GetMapping(virt uintptr) (physAddr uintptr, flags Flags, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	pdIdx, ptIdx := split(virt)
	pd := h.table()
	if pd[pdIdx]&uint32(FlagPresent) == 0 {
		return 0, 0, false
	}
	ptAddr := uintptr(pd[pdIdx] & addrMask)
	pt := h.ptTable(ptAddr)
	e := pt[ptIdx]
	if e&uint32(FlagPresent) == 0 {
		return 0, 0, false
	}
	return uintptr(e & addrMask), Flags(e &^ addrMask), true
}

// Destroy frees every page-table page this Handler owns (its page
// directory and every user-half page table it allocated). Kernel-half
// page tables are never freed here since they are shared (spec §4.D:
// "the PTE handler is torn down last", after every view has already
// been removed by the owning Map).
func (h *Handler) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for addr := range h.owned {
		h.phys.Free(addr, 1)
	}
	h.owned = nil
	h.phys.Free(h.pd, 1)
	h.pd = 0
}

// Root returns the physical address of this handler's page directory,
// the hosted stand-in for the value that would be loaded into CR3.
func (h *Handler) Root() uintptr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pd
}
