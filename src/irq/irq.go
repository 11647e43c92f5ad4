// Package irq implements component H's first half: the per-core IRQ
// registry, the handler-chain dispatch it drives, and the
// IrqHandler->thread.notify bridge.
//
// Grounded on the teacher's msi.Msivecs_t (biscuit/src/msi/msi.go: a
// mutex-guarded pool of vector tokens, alloc/free with a panic on
// double-free) for the token-allocation idiom, generalized here from a
// flat vector pool into a per-IRQ linked chain of handlers. Real vector
// trampoline installation and IOAPIC/LAPIC programming are out of
// scope (spec §1); Controller is the seam a real platform would
// implement to mask/unmask and acknowledge.
package irq

import "sync"

// Controller is the hardware seam: masking/unmasking a line and
// acknowledging receipt of an interrupt. A hosted run supplies a fake
// that just counts calls.
type Controller interface {
	Unmask(irq int)
	Mask(irq int)
	Ack(irq int)
}

// HandlerFunc is invoked for each registered handler on a firing IRQ.
// It returns whether the chain should continue to the next handler.
type HandlerFunc func(ctx any, irq int) (cont bool)

type node struct {
	token uint64
	fn    HandlerFunc
	ctx   any
	next  *node
}

// Registry is one core's IRQ dispatch table: an array indexed by
// logical IRQ number of handler chains.
type Registry struct {
	mu         sync.Mutex
	ctrl       Controller
	chains     map[int]*node
	nextToken  uint64
	tokenOwner map[uint64]int // token -> irq, for O(1) remove
}

// NewRegistry returns an empty registry driving ctrl.
func NewRegistry(ctrl Controller) *Registry {
	return &Registry{ctrl: ctrl, chains: map[int]*node{}, nextToken: 1, tokenOwner: map[uint64]int{}}
}

// Add prepends a handler to irq's chain, returning a token usable with
// Remove. If this is the first handler for irq, the controller is
// told to unmask it.
func (r *Registry) Add(irqNum int, fn HandlerFunc, ctx any) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := r.chains[irqNum] == nil
	token := r.nextToken
	r.nextToken++
	r.chains[irqNum] = &node{token: token, fn: fn, ctx: ctx, next: r.chains[irqNum]}
	r.tokenOwner[token] = irqNum

	if first {
		r.ctrl.Unmask(irqNum)
	}
	return token
}

// Remove unlinks the handler registered under token. If its chain
// becomes empty, the controller is told to mask the IRQ.
func (r *Registry) Remove(token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	irqNum, ok := r.tokenOwner[token]
	if !ok {
		return false
	}
	delete(r.tokenOwner, token)

	head := r.chains[irqNum]
	if head == nil {
		return false
	}
	if head.token == token {
		r.chains[irqNum] = head.next
	} else {
		for n := head; n.next != nil; n = n.next {
			if n.next.token == token {
				n.next = n.next.next
				break
			}
		}
	}
	if r.chains[irqNum] == nil {
		delete(r.chains, irqNum)
		r.ctrl.Mask(irqNum)
	}
	return true
}

// Dispatch walks irq's handler chain from the most recently added
// handler to the oldest (Add prepends), stopping
// early if a handler returns false, then unconditionally acknowledges
// the controller ("automatic EOI after all handlers", spec §4.H).
func (r *Registry) Dispatch(irqNum int) {
	r.mu.Lock()
	head := r.chains[irqNum]
	r.mu.Unlock()

	for n := head; n != nil; n = n.next {
		if !n.fn(n.ctx, irqNum) {
			break
		}
	}
	r.ctrl.Ack(irqNum)
}
