package sched

// destroyRequest is one work item the IdleWorker drains: either a
// thread or a task whose last strong reference was just released.
type destroyRequest struct {
	thread *Thread
	task   *Task
}

// IdleWorker is the per-core destroy-queue drain loop described in
// spec §4.G: a dedicated idle thread (priority -100, never otherwise
// scheduled) that tears down threads and tasks asynchronously once
// nothing holds a reference to them. The queue itself is a buffered Go
// channel — the idiomatic concurrent MPMC queue, playing the role the
// teacher's circbuf ring buffer (biscuit/src/circbuf/circbuf.go) plays
// for byte streams, here for destroy-request objects instead.
type IdleWorker struct {
	queue chan destroyRequest
	done  chan struct{}
}

func newIdleWorker() *IdleWorker {
	return &IdleWorker{queue: make(chan destroyRequest, 256), done: make(chan struct{})}
}

// DestroyThread enqueues a thread for asynchronous teardown.
func (w *IdleWorker) DestroyThread(t *Thread) {
	w.queue <- destroyRequest{thread: t}
}

// DestroyTask enqueues a task for asynchronous teardown.
func (w *IdleWorker) DestroyTask(t *Task) {
	w.queue <- destroyRequest{task: t}
}

// Run drains the destroy queue until Stop is called. It is meant to be
// run on the per-core idle thread's goroutine.
func (w *IdleWorker) Run() {
	for {
		select {
		case req := <-w.queue:
			w.process(req)
		case <-w.done:
			return
		}
	}
}

// Drain processes every request currently queued without blocking,
// for use by tests and by a synchronous boot sequence that wants
// destruction to have completed before proceeding.
func (w *IdleWorker) Drain() {
	for {
		select {
		case req := <-w.queue:
			w.process(req)
		default:
			return
		}
	}
}

func (w *IdleWorker) process(req destroyRequest) {
	switch {
	case req.thread != nil:
		t := req.thread
		if t.Task() != nil {
			t.Detach()
		}
		t.releaseStack()
	case req.task != nil:
		req.task.finalize()
	}
}

// Stop terminates Run.
func (w *IdleWorker) Stop() { close(w.done) }
