package pte

import (
	"testing"

	"biscuit/src/arena"
	"biscuit/src/phys"
)

func testHandler(t *testing.T) (*Handler, *phys.Allocator, *arena.Stick) {
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
	return New(p, st, nil), p, st
}

func TestMapGetUnmap(t *testing.T) {
	h, p, _ := testHandler(t)
	frame := p.Alloc(1)
	if frame == 0 {
		t.Fatal("alloc failed")
	}

	const virt = 0x00400000
	if !h.MapPage(virt, frame, FlagPresent|FlagWrite|FlagUser) {
		t.Fatal("map failed")
	}

	got, flags, ok := h.GetMapping(virt)
	if !ok || got != frame {
		t.Fatalf("got %#x, %v; want %#x, true", got, ok, frame)
	}
	if flags&FlagWrite == 0 {
		t.Fatal("expected write flag to survive the round trip")
	}

	h.UnmapPage(virt)
	if _, _, ok := h.GetMapping(virt); ok {
		t.Fatal("expected mapping to be gone after unmap")
	}
}

func TestKernelHalfIsShared(t *testing.T) {
	h1, p, st := testHandler(t)
	frame := p.Alloc(1)
	kernelVirt := uintptr(KernelPDStart) << pdShift

	if !h1.MapPage(kernelVirt, frame, FlagPresent|FlagWrite) {
		t.Fatal("map failed")
	}

	h2 := New(p, st, h1)
	got, _, ok := h2.GetMapping(kernelVirt)
	if !ok || got != frame {
		t.Fatalf("expected inherited handler to see the kernel mapping, got %#x, %v", got, ok)
	}

	// A new kernel-half mapping made through h2 must be visible from h1
	// too, since the underlying page-table page is shared.
	const otherKernelVirt = uintptr(KernelPDStart+1) << pdShift
	frame2 := p.Alloc(1)
	if !h2.MapPage(otherKernelVirt, frame2, FlagPresent|FlagWrite) {
		t.Fatal("map failed")
	}
	if got, _, ok := h1.GetMapping(otherKernelVirt); !ok || got != frame2 {
		t.Fatalf("expected sibling handler to observe the shared kernel mapping, got %#x, %v", got, ok)
	}
}

func TestUserHalfIsPrivate(t *testing.T) {
	h1, p, st := testHandler(t)
	h2 := New(p, st, h1)

	frame := p.Alloc(1)
	const userVirt = 0x00400000
	if !h1.MapPage(userVirt, frame, FlagPresent|FlagWrite|FlagUser) {
		t.Fatal("map failed")
	}
	if _, _, ok := h2.GetMapping(userVirt); ok {
		t.Fatal("user-half mapping must not be visible from a sibling handler")
	}
}

func TestActivate(t *testing.T) {
	h1, p, st := testHandler(t)
	h2 := New(p, st, nil)

	h1.Activate(0)
	if !h1.IsActive(0) || h2.IsActive(0) {
		t.Fatal("expected h1 to be the active map on core 0")
	}
	h2.Activate(0)
	if h1.IsActive(0) || !h2.IsActive(0) {
		t.Fatal("expected h2 to replace h1 as the active map on core 0")
	}
}

func TestDestroyFreesUserHalfOnly(t *testing.T) {
	h1, p, st := testHandler(t)
	h2 := New(p, st, h1)

	// Kernel-half mapping, shared: its page-table page must survive h2's destruction.
	const kernelVirt = uintptr(KernelPDStart) << pdShift
	kframe := p.Alloc(1)
	if !h1.MapPage(kernelVirt, kframe, FlagPresent) {
		t.Fatal("map failed")
	}

	// User-half mapping private to h2: its page-table page must be freed.
	const userVirt = 0x00800000
	uframe := p.Alloc(1)
	if !h2.MapPage(userVirt, uframe, FlagPresent) {
		t.Fatal("map failed")
	}

	h2.Destroy()

	if _, _, ok := h1.GetMapping(kernelVirt); !ok {
		t.Fatal("destroying h2 must not disturb the shared kernel half")
	}
}
