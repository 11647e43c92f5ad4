// Package vm implements component D: the virtual-memory Map and
// MapEntry pair. A MapEntry is a reference-counted memory-object view
// (a physical range or an anonymous, lazily-populated range) that can
// be installed into one or more Maps at once, the mechanism shared
// memory (spec scenario S3) is built on. A Map is one address space's
// ordered set of installed views plus the architecture page table
// backing it.
//
// Grounded on the teacher's vm.Vm_t/Vminfo_t/Bounds_t family
// (biscuit/src/vm/as.go: a sorted slice of regions, fixed vs. hinted
// placement, and lazy fault-in of anonymous pages) and on kush-os's
// vm::Map / vm::MapEntry split (Map.cpp, MapEntry.cpp, MapTree.h) for
// the explicit add/remove/fault contract and the
// added_to_map/removed_from_map callback pair used to keep a shared
// MapEntry's installations in sync across every address space it
// appears in.
package vm

import (
	"sync"
	"sync/atomic"

	"biscuit/src/arena"
	"biscuit/src/defs"
	"biscuit/src/phys"
	"biscuit/src/pte"
)

const pageSize = 1 << defs.PGSHIFT

// Kind distinguishes a MapEntry backed by a fixed physical range
// (devices, firmware tables) from one backed by lazily-allocated
// anonymous memory.
type Kind int

const (
	KindPhys Kind = iota
	KindAnon
)

type installation struct {
	m    *Map
	base uintptr
}

// MapEntry is a memory-object view: the unit of sharing between
// address spaces. It is reference counted (the Go-side stand-in for
// the contract's Arc<MapEntry>) so that Map.Destroy and Resize can
// tell when the last address space referencing it has let go.
type MapEntry struct {
	mu      sync.Mutex
	kind    Kind
	length  int
	flags   pte.Flags
	kernel  bool
	refs    int32

	physBase uintptr // KindPhys only

	phys      *phys.Allocator // KindAnon only
	stick     *arena.Stick    // KindAnon only
	anonPages map[int]uintptr // KindAnon only: page index -> physical address

	installs []installation
}

// MakePhys returns a MapEntry that maps a fixed physical range,
// eagerly, as soon as it is installed into a Map.
func MakePhys(physBase uintptr, length int, flags pte.Flags, kernel bool) *MapEntry {
	return &MapEntry{kind: KindPhys, physBase: physBase, length: length, flags: flags, kernel: kernel, refs: 1}
}

// MakeAnon returns a MapEntry backed by anonymous memory, populated
// lazily by page faults (and immediately for any page already faulted
// in by the time it is installed into a second Map).
func MakeAnon(length int, flags pte.Flags, kernel bool, p *phys.Allocator, stick *arena.Stick) *MapEntry {
	return &MapEntry{kind: KindAnon, length: length, flags: flags, kernel: kernel, phys: p, stick: stick, anonPages: map[int]uintptr{}, refs: 1}
}

// AddRef increments the entry's reference count; called by Map.Add.
func (e *MapEntry) AddRef() { atomic.AddInt32(&e.refs, 1) }

// Release decrements the entry's reference count, returning the count
// after the decrement. When it reaches zero the entry is no longer
// installed anywhere and the caller (Map.Remove) should let it be
// collected; any anon pages still owned are freed at that point.
func (e *MapEntry) Release() int32 {
	n := atomic.AddInt32(&e.refs, -1)
	if n == 0 && e.kind == KindAnon {
		e.mu.Lock()
		for idx, addr := range e.anonPages {
			e.phys.Free(addr, 1)
			delete(e.anonPages, idx)
		}
		e.mu.Unlock()
	}
	return n
}

// Length returns the entry's current logical length in bytes.
func (e *MapEntry) Length() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.length
}

// Flags returns the entry's current default permission flags.
func (e *MapEntry) Flags() pte.Flags {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags
}

// UpdateFlags records new default permissions. Pages already faulted
// in or mapped keep whatever flags they were installed with; only new
// mappings and future fault-ins see the update.
func (e *MapEntry) UpdateFlags(newFlags pte.Flags) {
	e.mu.Lock()
	e.flags = newFlags
	e.mu.Unlock()
}

// Resize changes the entry's logical length. Growing only extends the
// length; nothing is allocated until a fault touches the new range.
// Shrinking releases any anon pages beyond the new cutoff and unmaps
// them from every Map the entry is currently installed in.
func (e *MapEntry) Resize(newLength int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if newLength >= e.length {
		e.length = newLength
		return
	}
	if e.kind == KindAnon {
		cutoff := newLength / pageSize
		if newLength%pageSize != 0 {
			cutoff++
		}
		for idx, addr := range e.anonPages {
			if idx < cutoff {
				continue
			}
			for _, inst := range e.installs {
				inst.m.pte.UnmapPage(inst.base + uintptr(idx*pageSize))
			}
			e.phys.Free(addr, 1)
			delete(e.anonPages, idx)
		}
	} else {
		cutoffBytes := newLength
		for _, inst := range e.installs {
			for off := cutoffBytes; off < e.length; off += pageSize {
				inst.m.pte.UnmapPage(inst.base + uintptr(off))
			}
		}
	}
	e.length = newLength
}

// addedToMap is the added_to_map callback: it performs the initial
// mapping work for a freshly installed view.
func (e *MapEntry) addedToMap(m *Map, base uintptr, flagMask pte.Flags) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.installs = append(e.installs, installation{m: m, base: base})

	effective := e.flags & flagMask
	switch e.kind {
	case KindPhys:
		for off := 0; off < e.length; off += pageSize {
			m.pte.MapPage(base+uintptr(off), e.physBase+uintptr(off), effective)
		}
	case KindAnon:
		for idx, addr := range e.anonPages {
			m.pte.MapPage(base+uintptr(idx*pageSize), addr, effective)
		}
	}
}

// removedFromMap is the removed_from_map callback: the inverse of
// addedToMap, unmapping the entry's entire window from m.
func (e *MapEntry) removedFromMap(m *Map, base uintptr, length int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, inst := range e.installs {
		if inst.m == m && inst.base == base {
			e.installs = append(e.installs[:i], e.installs[i+1:]...)
			break
		}
	}
	for off := 0; off < length; off += pageSize {
		m.pte.UnmapPage(base + uintptr(off))
	}
}

// handlePageFault resolves a fault at offset bytes into the entry,
// installed at base within m. Only anonymous entries service lazy
// faults: a fault against an already-present page, or against a
// physical entry, is not handled here and propagates as a real
// protection violation.
func (e *MapEntry) handlePageFault(m *Map, base uintptr, offset int, present, write bool) bool {
	if present || e.kind != KindAnon {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := offset / pageSize
	if addr, ok := e.anonPages[idx]; ok {
		// Already resolved by a racing fault on another core; just
		// make sure this Map's view of it is installed.
		m.pte.MapPage(base+uintptr(idx*pageSize), addr, e.flags)
		return true
	}

	addr := e.phys.Alloc(1)
	if addr == 0 {
		return false
	}
	e.stick.Zero(addr, pageSize)
	e.anonPages[idx] = addr
	m.pte.MapPage(base+uintptr(idx*pageSize), addr, e.flags)
	return true
}
