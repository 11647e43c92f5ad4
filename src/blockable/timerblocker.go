package blockable

import "sync"

// TimerBlocker is the sleep-for-duration blockable: it schedules its
// own Deadline at construction, and fires permanently (one-shot) once
// that deadline expires, exactly like a notification blocker whose
// signal source is time rather than an external event.
type TimerBlocker struct {
	mu       sync.Mutex
	fired    bool
	deadline *Deadline
	lockedWaiter
}

// NewTimerBlocker schedules a deadline at expiresAt on dq and returns
// the blocker that will be signalled when it fires.
func NewTimerBlocker(dq *DeadlineQueue, expiresAt int64) *TimerBlocker {
	t := &TimerBlocker{}
	t.deadline = dq.Schedule(expiresAt, t.expire)
	return t
}

func (t *TimerBlocker) expire() {
	t.mu.Lock()
	t.fired = true
	t.mu.Unlock()

	if w := t.take(); w != nil {
		w.Wake(Timeout)
	}
}

func (t *TimerBlocker) IsSignalled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

func (t *TimerBlocker) Reset() {
	t.mu.Lock()
	t.fired = false
	t.mu.Unlock()
}

func (t *TimerBlocker) WillBlockOn(w Waiter) bool {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()
	t.set(w)
	return true
}

func (t *TimerBlocker) DidUnblock() {}

func (t *TimerBlocker) HasBlocker() bool { return t.has() }

// Cancel removes the underlying deadline if it has not already fired.
func (t *TimerBlocker) Cancel(dq *DeadlineQueue) bool {
	return dq.Cancel(t.deadline)
}
