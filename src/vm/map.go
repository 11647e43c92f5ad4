package vm

import (
	"errors"
	"sort"
	"sync"

	"biscuit/src/pte"
)

var (
	// ErrOverlap is returned by Add when a fixed-base request
	// intersects an existing view.
	ErrOverlap = errors.New("vm: requested window overlaps an existing view")
	// ErrNoSpace is returned by Add when a search-range request finds
	// no gap large enough.
	ErrNoSpace = errors.New("vm: no gap large enough in search range")
)

// Range is a half-open virtual address search window, [Base, Limit).
type Range struct {
	Base, Limit uintptr
}

type view struct {
	base   uintptr
	length int
	flags  pte.Flags
	entry  *MapEntry
}

// Map is one address space: an ordered, non-overlapping set of
// installed views backed by a single architecture page table.
type Map struct {
	mu    sync.Mutex
	pte   *pte.Handler
	views []*view // kept sorted by base
}

// New wraps an existing PTE handler (typically produced by pte.New,
// possibly inheriting the kernel half from a reference Map) as an
// empty Map.
func New(h *pte.Handler) *Map {
	return &Map{pte: h}
}

// PTE returns the Map's underlying architecture page-table handler.
func (m *Map) PTE() *pte.Handler { return m.pte }

func (m *Map) indexAtOrAfter(base uintptr) int {
	return sort.Search(len(m.views), func(i int) bool { return m.views[i].base >= base })
}

func (m *Map) overlaps(base uintptr, length int) bool {
	end := base + uintptr(length)
	for _, v := range m.views {
		vEnd := v.base + uintptr(v.length)
		if base < vEnd && v.base < end {
			return true
		}
	}
	return false
}

// Add installs entry into the map at a fixed base (if base != nil) or
// by searching search for the first sufficiently large gap, and
// returns the virtual address it was installed at.
func (m *Map) Add(entry *MapEntry, base *uintptr, search Range, length int, flagMask pte.Flags) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var installBase uintptr
	if base != nil {
		installBase = *base
		if m.overlaps(installBase, length) {
			return 0, ErrOverlap
		}
	} else {
		found, ok := m.findGap(search, length)
		if !ok {
			return 0, ErrNoSpace
		}
		installBase = found
	}

	idx := m.indexAtOrAfter(installBase)
	v := &view{base: installBase, length: length, flags: entry.Flags() & flagMask, entry: entry}
	m.views = append(m.views, nil)
	copy(m.views[idx+1:], m.views[idx:])
	m.views[idx] = v

	entry.AddRef()
	entry.addedToMap(m, installBase, flagMask)
	return installBase, nil
}

func (m *Map) findGap(search Range, length int) (uintptr, bool) {
	cursor := search.Base
	for _, v := range m.views {
		if v.base < cursor {
			if v.base+uintptr(v.length) > cursor {
				cursor = v.base + uintptr(v.length)
			}
			continue
		}
		if v.base >= cursor && v.base-cursor >= uintptr(length) {
			return cursor, true
		}
		if v.base+uintptr(v.length) > cursor {
			cursor = v.base + uintptr(v.length)
		}
	}
	if search.Limit-cursor >= uintptr(length) {
		return cursor, true
	}
	return 0, false
}

// Remove tears down every view backed by entry within this map,
// unmapping its pages and releasing the map's reference.
func (m *Map) Remove(entry *MapEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.views[:0]
	for _, v := range m.views {
		if v.entry != entry {
			kept = append(kept, v)
			continue
		}
		entry.removedFromMap(m, v.base, v.length)
		entry.Release()
	}
	m.views = kept
}

// RemoveRange is a raw unmap of [va, va+length) for low-level callers
// that bypass entry bookkeeping entirely (e.g. tearing down a range
// known to already be view-free).
func (m *Map) RemoveRange(va uintptr, length int) {
	for off := 0; off < length; off += pageSize {
		m.pte.UnmapPage(va + uintptr(off))
	}
}

// Get looks up the page-table mapping at va.
func (m *Map) Get(va uintptr) (phys uintptr, flags pte.Flags, ok bool) {
	return m.pte.GetMapping(va)
}

// Contains reports whether entry is installed anywhere in this map.
func (m *Map) Contains(entry *MapEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.views {
		if v.entry == entry {
			return true
		}
	}
	return false
}

// RegionBase returns the base virtual address entry is installed at
// in this map.
func (m *Map) RegionBase(entry *MapEntry) (uintptr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.views {
		if v.entry == entry {
			return v.base, true
		}
	}
	return 0, false
}

// RegionInfo returns entry's installed base, length and flags in this map.
func (m *Map) RegionInfo(entry *MapEntry) (base uintptr, length int, flags pte.Flags, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.views {
		if v.entry == entry {
			return v.base, v.length, v.flags, true
		}
	}
	return 0, 0, 0, false
}

// FindRegion returns the entry covering va and the byte offset into
// it, or ok=false if va falls in no view.
func (m *Map) FindRegion(va uintptr) (entry *MapEntry, offset int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.views {
		if va >= v.base && va < v.base+uintptr(v.length) {
			return v.entry, int(va - v.base), true
		}
	}
	return nil, 0, false
}

// HandlePageFault dispatches a fault at va to the view covering it.
func (m *Map) HandlePageFault(va uintptr, present, write bool) bool {
	m.mu.Lock()
	var v *view
	for _, cand := range m.views {
		if va >= cand.base && va < cand.base+uintptr(cand.length) {
			v = cand
			break
		}
	}
	m.mu.Unlock()
	if v == nil {
		return false
	}
	return v.entry.handlePageFault(m, v.base, int(va-v.base), present, write)
}

// Destroy removes every view in reverse address order (highest base
// first, since views are kept sorted by base) and then
// tears down the underlying page table, per the invariant that the
// PTE handler is torn down last.
func (m *Map) Destroy() {
	m.mu.Lock()
	views := make([]*view, len(m.views))
	copy(views, m.views)
	m.views = nil
	m.mu.Unlock()

	for i := len(views) - 1; i >= 0; i-- {
		v := views[i]
		v.entry.removedFromMap(m, v.base, v.length)
		v.entry.Release()
	}
	m.pte.Destroy()
}
