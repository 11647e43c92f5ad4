package phys

import "testing"

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	r, ok := NewRegion(0, 64<<20) // 64MiB
	if !ok {
		t.Fatal("region should qualify")
	}
	r.Fixup()
	a := New()
	a.AddRegion(r)
	return a
}

func TestAllocAlignment(t *testing.T) {
	a := newTestAllocator(t)
	for n := 1; n <= 1<<(MaxOrder-1); n <<= 1 {
		addr := a.Alloc(n)
		if addr == 0 {
			t.Fatalf("alloc(%d) failed", n)
		}
		order, _ := orderFor(n)
		align := uintptr(1) << uint(order+int(PGSHIFT))
		if addr%align != 0 {
			t.Fatalf("alloc(%d) = %#x not aligned to %#x", n, addr, align)
		}
		a.Free(addr, n)
	}
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	before := snapshot(a)

	var addrs []uintptr
	for i := 0; i < 8; i++ {
		addr := a.Alloc(4)
		if addr == 0 {
			t.Fatal("alloc failed")
		}
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		a.Free(addr, 4)
	}

	after := snapshot(a)
	if before != after {
		t.Fatalf("allocator state not restored: before=%v after=%v", before, after)
	}
}

func TestAllocRejectsOutOfRange(t *testing.T) {
	a := newTestAllocator(t)
	if addr := a.Alloc(0); addr != 0 {
		t.Fatal("alloc(0) should fail")
	}
	if addr := a.Alloc(1 << MaxOrder); addr != 0 {
		t.Fatal("alloc(2^MAX) should fail")
	}
}

func TestFreeOfUnallocatedPanics(t *testing.T) {
	a := newTestAllocator(t)
	addr := a.Alloc(1)
	a.Free(addr, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic freeing an already-free block")
		}
	}()
	a.Free(addr, 1)
}

func TestReserveThenAllocDoesNotDoubleAllocate(t *testing.T) {
	a := newTestAllocator(t)
	r := a.Regions()[0]
	target := r.UsableBase() + uintptr(5*PGSIZE)
	if !a.Reserve(target) {
		t.Fatal("reserve failed")
	}

	seen := map[uintptr]bool{}
	for {
		addr := a.Alloc(1)
		if addr == 0 {
			break
		}
		if addr == target {
			t.Fatal("reserved page was handed out by Alloc")
		}
		if seen[addr] {
			t.Fatalf("page %#x allocated twice", addr)
		}
		seen[addr] = true
	}
}

func snapshot(a *Allocator) uint32 {
	var free uint32
	for _, r := range a.Regions() {
		for k := 0; k <= MaxOrder; k++ {
			idx := r.orders[k].freeHead
			for idx != descNil {
				free += 1 << uint(k)
				idx = r.descs[idx].next
			}
		}
	}
	return free
}
