package irq

// Notifier is the thread-shaped object an IrqHandler notifies.
// Defined here rather than importing package sched directly so irq
// has no scheduler dependency; sched.Thread implements it.
type Notifier interface {
	Notify(bits uint64)
}

// Handler is the IRQ->thread notification bridge (spec §4.H): it
// holds a strong reference to its target thread and, when fired, ORs
// notifyBits into the thread's notification word.
type Handler struct {
	thread     Notifier
	notifyBits uint64
}

// NewHandler returns a handler that notifies thread with notifyBits
// whenever it fires.
func NewHandler(thread Notifier, notifyBits uint64) *Handler {
	return &Handler{thread: thread, notifyBits: notifyBits}
}

// Fired notifies the target thread. It has the irq.HandlerFunc
// signature so it can be registered directly with a Registry; it
// always continues the chain.
func (h *Handler) Fired(ctx any, irqNum int) bool {
	h.thread.Notify(h.notifyBits)
	return true
}
