package blockable

import (
	"container/heap"
	"sync"
)

// Deadline pairs an absolute expiry time with a callback, the unit the
// scheduler's tick source drains (spec §4.E). No ecosystem priority
// queue is part of the teacher's or the pack's dependency surface, so
// the ordering itself is the stdlib container/heap, same as any other
// textbook min-heap; DeadlineQueue is the justified exception to
// "prefer a pack library" noted in the design ledger.
type Deadline struct {
	At       int64
	OnExpire func()
	index    int
	canceled bool
}

type deadlineHeap []*Deadline

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].At < h[j].At }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *deadlineHeap) Push(x interface{}) {
	d := x.(*Deadline)
	d.index = len(*h)
	*h = append(*h, d)
}
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return d
}

// DeadlineQueue is the scheduler-wide min-ordered set of pending
// deadlines.
type DeadlineQueue struct {
	mu sync.Mutex
	h  deadlineHeap
}

// NewDeadlineQueue returns an empty queue.
func NewDeadlineQueue() *DeadlineQueue { return &DeadlineQueue{} }

// Schedule registers a deadline expiring at "at" and returns a handle
// that can be passed to Cancel.
func (q *DeadlineQueue) Schedule(at int64, onExpire func()) *Deadline {
	d := &Deadline{At: at, OnExpire: onExpire}
	q.mu.Lock()
	heap.Push(&q.h, d)
	q.mu.Unlock()
	return d
}

// Cancel removes d from the queue if it has not already fired. It
// returns false if d already expired (or was already canceled).
func (q *DeadlineQueue) Cancel(d *Deadline) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if d.canceled || d.index < 0 || d.index >= len(q.h) || q.h[d.index] != d {
		return false
	}
	heap.Remove(&q.h, d.index)
	d.canceled = true
	return true
}

// Tick pops every deadline with At <= now and invokes its callback in
// expiry order, returning the number fired.
func (q *DeadlineQueue) Tick(now int64) int {
	var fired []*Deadline
	q.mu.Lock()
	for len(q.h) > 0 && q.h[0].At <= now {
		d := heap.Pop(&q.h).(*Deadline)
		d.canceled = true
		fired = append(fired, d)
	}
	q.mu.Unlock()

	for _, d := range fired {
		d.OnExpire()
	}
	return len(fired)
}

// Len reports the number of pending deadlines.
func (q *DeadlineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}
