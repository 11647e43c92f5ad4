package kheap

import (
	"context"
	"testing"

	"biscuit/src/arena"
	"biscuit/src/phys"
)

func testArena(t *testing.T) (*phys.Allocator, *arena.Stick) {
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
	a := phys.New()
	a.AddRegion(r)
	return a, st
}

func TestHeapAllocFreeReuse(t *testing.T) {
	p, st := testArena(t)
	pool := NewAnonPool(0, p, st)
	h := NewKernelHeap(pool, 1)

	b1 := h.Alloc(100)
	if b1 == nil {
		t.Fatal("alloc failed")
	}
	h.Free(b1)
	b2 := h.Alloc(100)
	if b2 == nil {
		t.Fatal("alloc after free failed")
	}
	if len(h.arenas) != 1 {
		t.Fatalf("expected the freed block to be reused, got %d arenas", len(h.arenas))
	}
}

func TestHeapCoalesces(t *testing.T) {
	p, st := testArena(t)
	pool := NewAnonPool(0, p, st)
	h := NewKernelHeap(pool, 1)

	a := h.Alloc(64)
	b := h.Alloc(64)
	c := h.Alloc(64)
	h.Free(a)
	h.Free(c)
	h.Free(b)

	big := h.Alloc(64*3 - 8)
	if big == nil {
		t.Fatal("expected coalesced free space to satisfy a larger request")
	}
}

func TestStackPoolGetRelease(t *testing.T) {
	p, st := testArena(t)
	sp := NewStackPool(p, st, 2, 2)

	top1, slot1, err := sp.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if top1%uintptr(pageSize) != 0 {
		t.Fatal("stack top should be page-aligned")
	}

	_, slot2, err := sp.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if slot1 == slot2 {
		t.Fatal("two concurrent stacks got the same slot")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := sp.Get(ctx); err == nil {
		t.Fatal("expected Get to fail once the pool is exhausted and the context is done")
	}

	sp.Release(slot1)
	top3, _, err := sp.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if top3 != top1 {
		t.Fatalf("expected the released slot's backing pages to be reused, got %#x want %#x", top3, top1)
	}
}
