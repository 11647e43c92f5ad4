package sched

import (
	"sync"
	"sync/atomic"

	"biscuit/src/blockable"
	"biscuit/src/defs"
	"biscuit/src/handle"
	"biscuit/src/vm"
)

// TaskState is a task's lifecycle state (spec §3.4).
type TaskState int32

const (
	Initializing TaskState = iota
	TaskRunnable
	TaskZombie
)

// Task is a unit of resource ownership (spec §3.4).
type Task struct {
	mu     sync.Mutex
	PID    uint64
	Name   string
	state  TaskState
	handle defs.Handle

	vmMap   *vm.Map
	ownsVm  bool
	entries []*vm.MapEntry
	ports   []handle.Object
	threads []*Thread

	vmPages int64 // atomic: pages currently accounted to this task

	termSignal *blockable.SignalFlag
	refs       int32
}

// NewTask allocates a task around m. ownsVm distinguishes whether this
// task is responsible for tearing m down (false when m is aliased from
// an existing task, e.g. a second task sharing an address space).
func NewTask(pid uint64, name string, m *vm.Map, ownsVm bool) *Task {
	return &Task{
		PID: pid, Name: name, state: Initializing,
		vmMap: m, ownsVm: ownsVm, refs: 1,
		termSignal: blockable.NewSignalFlag(),
	}
}

func (task *Task) AddRef() { atomic.AddInt32(&task.refs, 1) }

func (task *Task) Release() int32 { return atomic.AddInt32(&task.refs, -1) }

func (task *Task) SetHandle(h defs.Handle) { task.handle = h }

func (task *Task) Handle() defs.Handle { return task.handle }

func (task *Task) Map() *vm.Map { return task.vmMap }

func (task *Task) State() TaskState {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.state
}

// AddThread attaches a thread to the task, transitioning it to
// Runnable once it holds at least one thread (spec §3.4 invariant).
func (task *Task) AddThread(t *Thread) {
	t.Attach(task)
	task.mu.Lock()
	task.threads = append(task.threads, t)
	if task.state == Initializing {
		task.state = TaskRunnable
	}
	task.mu.Unlock()
}

// AddMapEntry records a MapEntry as owned by this task (for cleanup on
// termination), independent of whether it is currently installed in
// this task's Map.
func (task *Task) AddMapEntry(e *vm.MapEntry) {
	task.mu.Lock()
	task.entries = append(task.entries, e)
	task.mu.Unlock()
}

// RemoveMapEntry drops e from the task's owned-entry list, e.g. when a
// vm_dealloc syscall releases the task's own strong reference early
// rather than waiting for task teardown to do it.
func (task *Task) RemoveMapEntry(e *vm.MapEntry) bool {
	task.mu.Lock()
	defer task.mu.Unlock()
	for i, cand := range task.entries {
		if cand == e {
			task.entries = append(task.entries[:i], task.entries[i+1:]...)
			return true
		}
	}
	return false
}

// AddPort records a port (or any other handle.Object) as owned by this
// task for cleanup on termination.
func (task *Task) AddPort(p handle.Object) {
	task.mu.Lock()
	task.ports = append(task.ports, p)
	task.mu.Unlock()
}

// RemovePort drops p from the task's owned-port list, the port_dealloc
// counterpart to RemoveMapEntry.
func (task *Task) RemovePort(p handle.Object) bool {
	task.mu.Lock()
	defer task.mu.Unlock()
	for i, cand := range task.ports {
		if cand == p {
			task.ports = append(task.ports[:i], task.ports[i+1:]...)
			return true
		}
	}
	return false
}

// ChargePages adjusts the task's VM-page accounting counter by delta
// (positive on allocation, negative on free).
func (task *Task) ChargePages(delta int64) int64 {
	return atomic.AddInt64(&task.vmPages, delta)
}

// Pages returns the task's current VM-page accounting counter.
func (task *Task) Pages() int64 { return atomic.LoadInt64(&task.vmPages) }

// TermSignal returns the flag parties wait on to observe task
// termination.
func (task *Task) TermSignal() *blockable.SignalFlag { return task.termSignal }

// terminate transitions t to Zombie, fires its termination signals and
// hands it to the idle worker for asynchronous teardown.
func (t *Thread) terminate(idle *IdleWorker) {
	t.mu.Lock()
	t.state = Zombie
	sigs := t.termSignals
	t.mu.Unlock()

	for _, sig := range sigs {
		sig.Signal()
	}
	idle.DestroyThread(t)
}

// AddTermSignal registers sig to be signalled when the thread
// terminates (the mechanism backing `join`).
func (t *Thread) AddTermSignal(sig *blockable.SignalFlag) {
	t.mu.Lock()
	t.termSignals = append(t.termSignals, sig)
	t.mu.Unlock()
}

// Terminate runs task termination (spec §4.F):
//  1. Signal any parties waiting on the task's termination signal.
//  2. Transition every thread but calling (if non-nil) to Zombie and
//     hand it to idle for teardown.
//  3. If calling belongs to this task, it detaches and terminates
//     last.
//  4. The task object itself is handed to idle for teardown (its
//     owned entries/ports released, its Map destroyed last).
func (task *Task) Terminate(idle *IdleWorker, calling *Thread) {
	task.mu.Lock()
	task.state = TaskZombie
	threads := append([]*Thread(nil), task.threads...)
	task.mu.Unlock()

	task.termSignal.Signal()

	callingIsMember := false
	for _, th := range threads {
		if th == calling {
			callingIsMember = true
			continue
		}
		th.terminate(idle)
	}
	if callingIsMember {
		calling.terminate(idle)
	}
	idle.DestroyTask(task)
}

// finalize releases every resource the task owns; called by the
// IdleWorker once nothing else references the task. The VM map is
// torn down last.
func (task *Task) finalize() {
	task.mu.Lock()
	entries := task.entries
	ports := task.ports
	m := task.vmMap
	owns := task.ownsVm
	task.entries = nil
	task.ports = nil
	task.mu.Unlock()

	for _, e := range entries {
		e.Release()
	}
	for _, p := range ports {
		p.Release()
	}
	if owns && m != nil {
		m.Destroy()
	}
}
