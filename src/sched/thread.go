// Package sched implements components F and G: Task/Thread lifecycle
// and the per-core priority scheduler.
//
// A Thread's kernel-mode work is not actually driven by a forked Go
// runtime the way the teacher's custom biscuit runtime drives
// goroutines onto hardware traps (see other_examples' biscuit
// kernel/main.go trapstub/IRQwake pair) — register save/restore and
// stack switching are hardware bring-up, out of scope per spec §1.
// Instead BlockOn parks the calling goroutine on a per-thread
// channel and Wake delivers the result, which is the natural Go
// idiom for "a thread waiting for an event" and composes correctly
// with the CAS-based race resolution spec §4.E and §8's "Race
// resolution" invariant call for.
package sched

import (
	"context"
	"sync"
	"sync/atomic"

	"biscuit/src/accnt"
	"biscuit/src/blockable"
	"biscuit/src/defs"
	"biscuit/src/kheap"
)

// ThreadState is a thread's scheduling state (spec §3.5).
type ThreadState int32

const (
	Paused ThreadState = iota
	Runnable
	Blocked
	Sleeping
	NotifyWait
	Zombie
)

type dpc struct {
	fn  func(ctx any)
	ctx any
}

// numBands is the count of priority bands a [-100,100] priority maps
// into (spec §4.G: Idle, BelowNormal, Normal, AboveNormal, Highest).
const numBands = 5

const (
	bandIdle = iota
	bandBelowNormal
	bandNormal
	bandAboveNormal
	bandHighest
)

// bandOf maps a priority in [-100,100] to its half-open, width-40 band.
func bandOf(priority int32) int {
	switch {
	case priority >= 60:
		return bandHighest
	case priority >= 20:
		return bandAboveNormal
	case priority >= -20:
		return bandNormal
	case priority >= -60:
		return bandBelowNormal
	default:
		return bandIdle
	}
}

const defaultQuantum = 10

// Thread is a unit of scheduling (spec §3.5).
type Thread struct {
	mu         sync.Mutex
	TID        uint64
	Name       string
	handle     defs.Handle
	state      ThreadState
	priority   int32
	kernelMode bool

	task     *Task
	attached bool
	sched    *Scheduler

	stackTop  uintptr
	stackSlot int
	stackPool *kheap.StackPool

	notifyBits uint64
	notifyMask uint64
	notifyFlag *blockable.SignalFlag

	blockingOn  []blockable.Blockable
	irqHandles  []defs.Handle
	termSignals []*blockable.SignalFlag

	dpcMu      sync.Mutex
	dpcs       []dpc
	dpcPending bool

	level            int
	maxLevel         int
	lastLevel        int
	quantumRemaining int
	quantumTotal     int
	userPrioOffset   int32

	wakeArmed int32
	wakeCh    chan blockable.UnblockResult

	refs int32

	Usage accnt.Usage

	entry func(arg uintptr)
	arg   uintptr
}

// NewThread draws a kernel stack from sp and constructs a Paused
// thread ready to be attached to a task and enqueued.
func NewThread(tid uint64, name string, priority int32, kernelMode bool, sp *kheap.StackPool, entry func(uintptr), arg uintptr) (*Thread, error) {
	top, slot, err := sp.Get(context.Background())
	if err != nil {
		return nil, err
	}
	band := bandOf(priority)
	return &Thread{
		TID: tid, Name: name, priority: priority, kernelMode: kernelMode,
		stackTop: top, stackSlot: slot, stackPool: sp,
		state: Paused, refs: 1,
		notifyFlag: blockable.NewSignalFlag(),
		maxLevel:   band, level: band,
		wakeCh: make(chan blockable.UnblockResult, 1),
		entry:  entry, arg: arg,
	}, nil
}

func (t *Thread) AddRef() { atomic.AddInt32(&t.refs, 1) }

func (t *Thread) Release() int32 { return atomic.AddInt32(&t.refs, -1) }

// SetHandle records the handle this thread was registered under.
func (t *Thread) SetHandle(h defs.Handle) { t.handle = h }

// Handle returns the thread's handle.
func (t *Thread) Handle() defs.Handle { return t.handle }

// State returns the thread's current scheduling state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Priority returns the thread's priority in [-100,100].
func (t *Thread) Priority() int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// SetPriority updates the thread's priority; it takes effect the next
// time the thread is enqueued.
func (t *Thread) SetPriority(p int32) {
	t.mu.Lock()
	t.priority = p
	t.mu.Unlock()
}

// SetNotifyMask updates the thread's notification mask (spec §6.1's
// Thread.set_note_mask lets another thread or the IRQ layer configure
// delivery before the target ever calls receive). BlockNotify and
// TryNotify overwrite the same mask with the one they are given.
func (t *Thread) SetNotifyMask(mask uint64) {
	t.mu.Lock()
	t.notifyMask = mask
	t.mu.Unlock()
}

// Terminate transitions the thread to Zombie, fires its termination
// signals and hands it to idle for teardown. Exported for direct
// thread_destroy syscalls, as distinct from whole-task termination.
func (t *Thread) Terminate(idle *IdleWorker) {
	t.terminate(idle)
}

// StackTop returns the top of the thread's kernel stack (stacks grow down).
func (t *Thread) StackTop() uintptr { return t.stackTop }

// releaseStack returns the thread's kernel stack slot to its pool.
// Called by the IdleWorker when it actually deletes the thread object.
func (t *Thread) releaseStack() {
	t.stackPool.Release(t.stackSlot)
}

// Attach binds the thread to task. A thread may be attached to at
// most one task.
func (t *Thread) Attach(task *Task) {
	t.mu.Lock()
	t.task = task
	t.attached = true
	t.mu.Unlock()
}

// Detach unbinds the thread from its task.
func (t *Thread) Detach() {
	t.mu.Lock()
	t.task = nil
	t.attached = false
	t.mu.Unlock()
}

// Task returns the thread's owning task, or nil if detached.
func (t *Thread) Task() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.task
}

// AddDpc enqueues a deferred-procedure-call, setting the "DPCs
// pending" flag.
func (t *Thread) AddDpc(fn func(ctx any), ctx any) {
	t.dpcMu.Lock()
	t.dpcs = append(t.dpcs, dpc{fn: fn, ctx: ctx})
	t.dpcPending = true
	t.dpcMu.Unlock()
}

// DpcsPending reports whether RunDpcs has work to do.
func (t *Thread) DpcsPending() bool {
	t.dpcMu.Lock()
	defer t.dpcMu.Unlock()
	return t.dpcPending
}

// RunDpcs drains the DPC queue FIFO, clearing the pending flag on exit.
func (t *Thread) RunDpcs() {
	t.dpcMu.Lock()
	queued := t.dpcs
	t.dpcs = nil
	t.dpcPending = false
	t.dpcMu.Unlock()

	for _, d := range queued {
		d.fn(d.ctx)
	}
}

// Notify ORs bits into the thread's notification word and, if any bit
// matches the thread's notify mask, signals the waiting notify-wait.
func (t *Thread) Notify(bits uint64) {
	t.mu.Lock()
	t.notifyBits |= bits
	match := t.notifyBits&t.notifyMask != 0
	t.mu.Unlock()
	if match {
		t.notifyFlag.Signal()
	}
}

// TryNotify is BlockNotify's non-blocking poll path: it reports
// whether any bits matching mask are already pending, consuming them
// if so, without ever parking the calling goroutine.
func (t *Thread) TryNotify(mask uint64) (delivered uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notifyMask = mask
	if t.notifyBits&mask == 0 {
		return 0, false
	}
	delivered = t.notifyBits & mask
	t.notifyBits &^= mask
	return delivered, true
}

// BlockNotify sets the thread's notify mask and either returns
// immediately-delivered bits (clearing them) or blocks on the notify
// signal flag via the owning scheduler, honoring an optional timeout
// (absolute tick/deadline; 0 means no timeout).
func (t *Thread) BlockNotify(mask uint64, deadline int64) (delivered uint64, result blockable.UnblockResult) {
	t.mu.Lock()
	t.notifyMask = mask
	if t.notifyBits&mask != 0 {
		delivered = t.notifyBits & mask
		t.notifyBits &^= mask
		t.mu.Unlock()
		return delivered, blockable.Unblocked
	}
	t.mu.Unlock()

	result = t.sched.BlockOn(t, t.notifyFlag, deadline)
	t.mu.Lock()
	delivered = t.notifyBits & mask
	t.notifyBits &^= mask
	t.mu.Unlock()
	t.notifyFlag.Reset()
	return delivered, result
}

// Wake implements blockable.Waiter. The first call wins the race
// described in spec §4.E/§8 ("Race resolution"); later calls are
// no-ops. The winning call re-arms the thread on its scheduler's run
// queue exactly once before delivering the result to whichever
// goroutine is inside BlockOn.
func (t *Thread) Wake(result blockable.UnblockResult) {
	if !atomic.CompareAndSwapInt32(&t.wakeArmed, 0, 1) {
		return
	}
	t.mu.Lock()
	t.state = Runnable
	s := t.sched
	t.mu.Unlock()
	if s != nil {
		s.Enqueue(t)
	}
	t.wakeCh <- result
}
