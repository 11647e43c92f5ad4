package vm

import (
	"testing"

	"biscuit/src/arena"
	"biscuit/src/phys"
	"biscuit/src/pte"
)

func testEnv(t *testing.T) (*phys.Allocator, *arena.Stick) {
	t.Helper()
	st, err := arena.New(0, 16<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	r, ok := phys.NewRegion(0, 16<<20)
	if !ok {
		t.Fatal("region should qualify")
	}
	r.Fixup()
	p := phys.New()
	p.AddRegion(r)
	return p, st
}

func TestAddOverlapRejected(t *testing.T) {
	p, st := testEnv(t)
	m := New(pte.New(p, st, nil))

	e1 := MakeAnon(2*pageSize, pte.FlagPresent|pte.FlagWrite|pte.FlagUser, false, p, st)
	base := uintptr(0x10000000)
	if _, err := m.Add(e1, &base, Range{}, 2*pageSize, ^pte.Flags(0)); err != nil {
		t.Fatal(err)
	}

	e2 := MakeAnon(pageSize, pte.FlagPresent|pte.FlagUser, false, p, st)
	overlapBase := base + pageSize
	if _, err := m.Add(e2, &overlapBase, Range{}, pageSize, ^pte.Flags(0)); err != ErrOverlap {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}
}

func TestSearchInsertFindsGap(t *testing.T) {
	p, st := testEnv(t)
	m := New(pte.New(p, st, nil))
	search := Range{Base: 0x10000000, Limit: 0x10000000 + 16*pageSize}

	e1 := MakeAnon(3*pageSize, pte.FlagPresent|pte.FlagUser, false, p, st)
	b1, err := m.Add(e1, nil, search, 3*pageSize, ^pte.Flags(0))
	if err != nil {
		t.Fatal(err)
	}

	e2 := MakeAnon(2*pageSize, pte.FlagPresent|pte.FlagUser, false, p, st)
	b2, err := m.Add(e2, nil, search, 2*pageSize, ^pte.Flags(0))
	if err != nil {
		t.Fatal(err)
	}
	if b2 < b1+3*pageSize {
		t.Fatalf("second region %#x overlaps the first's window ending at %#x", b2, b1+3*pageSize)
	}
}

func TestAnonLazyFaultAndSharedMapping(t *testing.T) {
	p, st := testEnv(t)
	m1 := New(pte.New(p, st, nil))
	m2 := New(pte.New(p, st, nil))

	e := MakeAnon(pageSize, pte.FlagPresent|pte.FlagWrite|pte.FlagUser, false, p, st)
	base1 := uintptr(0x20000000)
	if _, err := m1.Add(e, &base1, Range{}, pageSize, ^pte.Flags(0)); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := m1.Get(base1); ok {
		t.Fatal("anon page should not be mapped before any fault")
	}

	if !m1.HandlePageFault(base1, false, true) {
		t.Fatal("expected the fault to be handled")
	}
	phys1, _, ok := m1.Get(base1)
	if !ok {
		t.Fatal("expected a mapping to exist after the fault")
	}

	// Install the same entry into a second map at a different base: the
	// already-faulted-in page must show up immediately (shared memory).
	base2 := uintptr(0x30000000)
	if _, err := m2.Add(e, &base2, Range{}, pageSize, ^pte.Flags(0)); err != nil {
		t.Fatal(err)
	}
	phys2, _, ok := m2.Get(base2)
	if !ok || phys2 != phys1 {
		t.Fatalf("expected shared entry to be mapped at install time, got %#x, %v", phys2, ok)
	}
}

func TestFindRegionAndRemove(t *testing.T) {
	p, st := testEnv(t)
	m := New(pte.New(p, st, nil))
	e := MakeAnon(4*pageSize, pte.FlagPresent|pte.FlagUser, false, p, st)
	base := uintptr(0x40000000)
	if _, err := m.Add(e, &base, Range{}, 4*pageSize, ^pte.Flags(0)); err != nil {
		t.Fatal(err)
	}

	got, off, ok := m.FindRegion(base + 2*pageSize)
	if !ok || got != e || off != 2*pageSize {
		t.Fatalf("got %v, %d, %v", got, off, ok)
	}

	if !m.HandlePageFault(base, false, false) {
		t.Fatal("fault should be handled")
	}
	m.Remove(e)
	if _, _, ok := m.Get(base); ok {
		t.Fatal("expected mapping to be gone after Remove")
	}
	if _, _, ok := m.FindRegion(base); ok {
		t.Fatal("expected no region after Remove")
	}
}

func TestResizeShrinkFreesPages(t *testing.T) {
	p, st := testEnv(t)
	m := New(pte.New(p, st, nil))
	e := MakeAnon(4*pageSize, pte.FlagPresent|pte.FlagWrite|pte.FlagUser, false, p, st)
	base := uintptr(0x50000000)
	if _, err := m.Add(e, &base, Range{}, 4*pageSize, ^pte.Flags(0)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if !m.HandlePageFault(base+uintptr(i*pageSize), false, true) {
			t.Fatal("fault should be handled")
		}
	}

	e.Resize(1 * pageSize)
	if _, _, ok := m.Get(base + 2*pageSize); ok {
		t.Fatal("expected page beyond new length to be unmapped")
	}
	if _, _, ok := m.Get(base); !ok {
		t.Fatal("expected page within new length to remain mapped")
	}
}

func TestMapDestroyTearsDownPTELast(t *testing.T) {
	p, st := testEnv(t)
	h := pte.New(p, st, nil)
	m := New(h)
	e := MakeAnon(pageSize, pte.FlagPresent|pte.FlagUser, false, p, st)
	base := uintptr(0x60000000)
	if _, err := m.Add(e, &base, Range{}, pageSize, ^pte.Flags(0)); err != nil {
		t.Fatal(err)
	}
	m.Destroy()
	if h.Root() != 0 {
		t.Fatal("expected the page directory to be freed by Destroy")
	}
}
