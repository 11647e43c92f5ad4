package irq

import "testing"

type fakeController struct {
	unmasked map[int]bool
	acked    []int
}

func newFakeController() *fakeController {
	return &fakeController{unmasked: map[int]bool{}}
}

func (c *fakeController) Unmask(irqNum int) { c.unmasked[irqNum] = true }
func (c *fakeController) Mask(irqNum int)   { c.unmasked[irqNum] = false }
func (c *fakeController) Ack(irqNum int)    { c.acked = append(c.acked, irqNum) }

func TestAddUnmasksOnFirstHandler(t *testing.T) {
	ctrl := newFakeController()
	r := NewRegistry(ctrl)

	r.Add(5, func(ctx any, irqNum int) bool { return true }, nil)
	if !ctrl.unmasked[5] {
		t.Fatal("expected the first handler to unmask its IRQ")
	}
}

func TestRemoveMasksWhenChainEmpty(t *testing.T) {
	ctrl := newFakeController()
	r := NewRegistry(ctrl)

	tok := r.Add(5, func(ctx any, irqNum int) bool { return true }, nil)
	r.Remove(tok)
	if ctrl.unmasked[5] {
		t.Fatal("expected the IRQ to be masked once its chain is empty")
	}
}

func TestDispatchStopsOnFalse(t *testing.T) {
	ctrl := newFakeController()
	r := NewRegistry(ctrl)

	var calls []int
	r.Add(1, func(ctx any, irqNum int) bool { calls = append(calls, 1); return true }, nil)
	r.Add(1, func(ctx any, irqNum int) bool { calls = append(calls, 2); return false }, nil)
	r.Add(1, func(ctx any, irqNum int) bool { calls = append(calls, 3); return true }, nil)

	r.Dispatch(1)
	// Handlers are prepended, so dispatch order is [3, 2, 1]; the
	// middle one (2) returns false and the chain stops there.
	if len(calls) != 2 || calls[0] != 3 || calls[1] != 2 {
		t.Fatalf("expected dispatch to stop after the handler returning false, got %v", calls)
	}
	if len(ctrl.acked) != 1 || ctrl.acked[0] != 1 {
		t.Fatalf("expected exactly one Ack regardless of early stop, got %v", ctrl.acked)
	}
}

type fakeNotifier struct {
	bits uint64
}

func (n *fakeNotifier) Notify(bits uint64) { n.bits |= bits }

func TestIrqHandlerBridgeNotifiesThread(t *testing.T) {
	ctrl := newFakeController()
	r := NewRegistry(ctrl)
	target := &fakeNotifier{}
	h := NewHandler(target, 0x4)
	r.Add(2, h.Fired, nil)

	r.Dispatch(2)
	if target.bits != 0x4 {
		t.Fatalf("expected the handler to notify bits 0x4, got %#x", target.bits)
	}
}
