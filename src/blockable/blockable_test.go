package blockable

import "testing"

type fakeWaiter struct {
	woke   bool
	result UnblockResult
}

func (w *fakeWaiter) Wake(result UnblockResult) {
	w.woke = true
	w.result = result
}

func TestSignalFlagOneShot(t *testing.T) {
	f := NewSignalFlag()
	w := &fakeWaiter{}
	if !f.WillBlockOn(w) {
		t.Fatal("expected registration to succeed on an unsignalled flag")
	}
	f.Signal()
	if !w.woke || w.result != Unblocked {
		t.Fatalf("expected waiter to be woken with Unblocked, got woke=%v result=%v", w.woke, w.result)
	}
	if !f.IsSignalled() {
		t.Fatal("expected the flag to remain signalled until Reset")
	}

	w2 := &fakeWaiter{}
	if f.WillBlockOn(w2) {
		t.Fatal("expected registration to be refused once already signalled")
	}

	f.Reset()
	if f.IsSignalled() {
		t.Fatal("expected Reset to clear the signalled state")
	}
}

func TestPortBlockerLevelTriggered(t *testing.T) {
	queueLen := 0
	b := NewPortBlocker(func() bool { return queueLen > 0 })
	w := &fakeWaiter{}
	if !b.WillBlockOn(w) {
		t.Fatal("expected registration to succeed on an empty queue")
	}

	queueLen = 1
	b.Notify()
	if !w.woke {
		t.Fatal("expected Notify to wake the registered waiter")
	}

	// Level-triggered: still signalled even without a fresh Notify.
	if !b.IsSignalled() {
		t.Fatal("expected the blocker to report signalled while the queue is non-empty")
	}
	w2 := &fakeWaiter{}
	if b.WillBlockOn(w2) {
		t.Fatal("expected registration to be refused while the queue is non-empty")
	}
}

func TestDeadlineQueueOrdering(t *testing.T) {
	dq := NewDeadlineQueue()
	var order []int
	dq.Schedule(30, func() { order = append(order, 30) })
	dq.Schedule(10, func() { order = append(order, 10) })
	dq.Schedule(20, func() { order = append(order, 20) })

	n := dq.Tick(25)
	if n != 2 {
		t.Fatalf("expected 2 deadlines to fire by t=25, got %d", n)
	}
	if len(order) != 2 || order[0] != 10 || order[1] != 20 {
		t.Fatalf("expected deadlines to fire in expiry order, got %v", order)
	}
	if dq.Len() != 1 {
		t.Fatalf("expected 1 deadline left pending, got %d", dq.Len())
	}
}

func TestDeadlineCancel(t *testing.T) {
	dq := NewDeadlineQueue()
	fired := false
	d := dq.Schedule(10, func() { fired = true })
	if !dq.Cancel(d) {
		t.Fatal("expected cancel to succeed before expiry")
	}
	dq.Tick(100)
	if fired {
		t.Fatal("expected a canceled deadline to never fire")
	}
	if dq.Cancel(d) {
		t.Fatal("expected a second cancel to fail")
	}
}

func TestTimerBlockerFiresTimeout(t *testing.T) {
	dq := NewDeadlineQueue()
	tb := NewTimerBlocker(dq, 100)
	w := &fakeWaiter{}
	if !tb.WillBlockOn(w) {
		t.Fatal("expected registration to succeed before expiry")
	}
	dq.Tick(100)
	if !w.woke || w.result != Timeout {
		t.Fatalf("expected Timeout wake, got woke=%v result=%v", w.woke, w.result)
	}
	if !tb.IsSignalled() {
		t.Fatal("expected the timer blocker to be signalled after expiry")
	}
}
