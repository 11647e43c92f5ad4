package sched

import (
	"sync"

	"biscuit/src/blockable"
)

// Scheduler is one core's instance: an array of FIFO run queues
// indexed by priority band, plus the deadline queue its tick source
// drains (spec §4.G).
type Scheduler struct {
	core int
	mu   sync.Mutex

	queues  [numBands][]*Thread
	current *Thread
	idle    *Thread

	dq *blockable.DeadlineQueue

	peersMu    sync.Mutex
	peers      []*Scheduler
	peersValid bool
	distance   func(*Scheduler) int

	idleWorker *IdleWorker
}

// New constructs a scheduler for the given core with a dedicated idle
// thread at priority -100 (never itself dispatched by Enqueue/Dispatch
// competition — it is only ever returned when every queue is empty).
func New(core int, dq *blockable.DeadlineQueue) *Scheduler {
	idle := &Thread{
		TID: 0, Name: "idle", priority: -100, kernelMode: true,
		state: Runnable, refs: 1,
		notifyFlag: blockable.NewSignalFlag(),
		wakeCh:     make(chan blockable.UnblockResult, 1),
	}
	s := &Scheduler{core: core, dq: dq, idle: idle}
	idle.sched = s
	s.idleWorker = newIdleWorker()
	return s
}

// Core returns the core index this scheduler is bound to.
func (s *Scheduler) Core() int { return s.core }

// IdleWorker returns the scheduler's destroy-queue drain worker.
func (s *Scheduler) IdleWorker() *IdleWorker { return s.idleWorker }

// Current returns the thread currently dispatched on this core.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Enqueue places t on the run queue for its current priority band and
// marks it Runnable. A thread is on at most one run queue at a time;
// Enqueue assumes the caller has already ensured t isn't already
// queued (e.g. it was just dispatched away from, blocked, or created).
func (s *Scheduler) Enqueue(t *Thread) {
	t.mu.Lock()
	t.state = Runnable
	t.sched = s
	band := bandOf(t.priority)
	t.level = band
	t.mu.Unlock()

	s.mu.Lock()
	s.queues[band] = append(s.queues[band], t)
	s.mu.Unlock()
}

// remove deletes t from whichever band queue holds it, if any.
func (s *Scheduler) remove(t *Thread) bool {
	for band := range s.queues {
		q := s.queues[band]
		for i, cand := range q {
			if cand == t {
				s.queues[band] = append(q[:i], q[i+1:]...)
				return true
			}
		}
	}
	return false
}

// popNonIgnore pops the first entry in band that isn't ignore,
// rotating any ignore entries it passes over to the tail (the "push
// to the back and continue" rule from spec §4.G). It returns false if
// the band is empty or contains only ignore.
func (s *Scheduler) popNonIgnore(band int, ignore *Thread) (*Thread, bool) {
	q := s.queues[band]
	n := len(q)
	for i := 0; i < n; i++ {
		head := q[0]
		q = q[1:]
		if head == ignore {
			q = append(q, head)
			continue
		}
		s.queues[band] = q
		return head, true
	}
	s.queues[band] = q
	return nil, false
}

func (s *Scheduler) arm(t *Thread) {
	if t.quantumTotal == 0 {
		t.quantumTotal = defaultQuantum
	}
	t.quantumRemaining = t.quantumTotal
	t.lastLevel = t.level
	s.current = t
}

// Dispatch picks the next thread to run: it scans priority bands
// highest to lowest, popping the first runnable thread that isn't
// ignore (used by Yield to keep a voluntarily-yielding thread from
// immediately re-selecting itself ahead of equal-priority peers). If
// every band is empty of anything but ignore, ignore itself is
// re-dispatched with a fresh quantum; if there is truly nothing
// runnable, the idle thread runs.
//
// Dispatch decides which thread logically owns the core; actually
// resuming its kernel-mode execution (register/stack swap) is
// hardware bring-up and out of scope (spec §1) — callers drive that
// themselves, e.g. via Thread.wakeCh in this hosted model.
func (s *Scheduler) Dispatch(ignore *Thread) *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	for band := numBands - 1; band >= 0; band-- {
		if t, ok := s.popNonIgnore(band, ignore); ok {
			s.arm(t)
			return t
		}
	}
	if ignore != nil && s.remove(ignore) {
		s.arm(ignore)
		return ignore
	}
	s.arm(s.idle)
	return s.idle
}

// Yield pushes t to the tail of its band and dispatches the next
// thread (spec §4.G: "Yields push the current thread to the tail of
// its band").
func (s *Scheduler) Yield(t *Thread) *Thread {
	t.mu.Lock()
	t.state = Runnable
	band := bandOf(t.priority)
	t.mu.Unlock()

	s.mu.Lock()
	s.queues[band] = append(s.queues[band], t)
	s.mu.Unlock()

	return s.Dispatch(t)
}

// Tick drives preemption and deadline expiry: it pops all due
// deadlines (typically moving sleeping threads back to Runnable) and
// decrements the running thread's quantum, yielding it once the
// quantum is exhausted.
func (s *Scheduler) Tick(now int64) {
	s.dq.Tick(now)

	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil || cur == s.idle {
		return
	}

	cur.mu.Lock()
	cur.quantumRemaining--
	expired := cur.quantumRemaining <= 0
	cur.mu.Unlock()
	if expired {
		s.Yield(cur)
	}
}

// BlockOn transitions t to Blocked (or Sleeping if b is a pure timer),
// registers it with b, and waits for a wake-up, honoring an optional
// absolute deadline (0 disables the timeout). If b refuses
// registration (already signalled), it falls back to Runnable
// immediately per spec §4.E step 2.
func (s *Scheduler) BlockOn(t *Thread, b blockable.Blockable, deadline int64) blockable.UnblockResult {
	t.mu.Lock()
	t.wakeArmed = 0
	if _, timer := b.(*blockable.TimerBlocker); timer {
		t.state = Sleeping
	} else {
		t.state = Blocked
	}
	t.blockingOn = append(t.blockingOn[:0], b)
	t.mu.Unlock()

	if !b.WillBlockOn(t) {
		t.mu.Lock()
		t.state = Runnable
		t.blockingOn = nil
		t.mu.Unlock()
		s.Enqueue(t)
		return blockable.Unblocked
	}

	var dl *blockable.Deadline
	if deadline > 0 {
		dl = s.dq.Schedule(deadline, func() { t.Wake(blockable.Timeout) })
	}

	result := <-t.wakeCh

	if dl != nil {
		s.dq.Cancel(dl)
	}
	t.mu.Lock()
	blocking := t.blockingOn
	t.blockingOn = nil
	t.mu.Unlock()
	for _, bl := range blocking {
		bl.DidUnblock()
		if bl.IsSignalled() {
			bl.Reset()
		}
	}
	return result
}
