package kheap

import (
	"context"
	"math/bits"
	"sync"

	"biscuit/src/arena"
	"biscuit/src/phys"

	"golang.org/x/sync/semaphore"
)

// StackPool hands out fixed-size kernel stacks from a fixed-capacity
// pool (spec §4.B). Each slot's backing physical block covers only the
// stack itself; no guard page is reserved or left unmapped below it, so
// an access past a stack's low end is not caught and lands in whatever
// physical memory precedes the block.
//
// Acquisition is bounded by a weighted semaphore sized to the slot
// count, giving StackPool.Get the blocking "find a free slot" contract
// spec §4.B describes, with a context-aware wait instead of a bare
// spin — the pool's slot count genuinely is the scarce, boundable
// resource a semaphore models.
type StackPool struct {
	mu        sync.Mutex
	phys      *phys.Allocator
	stick     *arena.Stick
	slotPages int
	bitmap    []byte // bit set iff that slot is free
	mapped    map[int]uintptr
	sem       *semaphore.Weighted
}

// NewStackPool creates a pool of `slots` stacks, each `slotPages` pages
// tall.
func NewStackPool(phys *phys.Allocator, stick *arena.Stick, slots, slotPages int) *StackPool {
	bm := make([]byte, (slots+7)/8)
	for i := range bm {
		bm[i] = 0xff
	}
	for i := slots; i < len(bm)*8; i++ {
		bm[i/8] &^= 1 << uint(i%8)
	}
	return &StackPool{
		phys:      phys,
		stick:     stick,
		slotPages: slotPages,
		bitmap:    bm,
		mapped:    make(map[int]uintptr),
		sem:       semaphore.NewWeighted(int64(slots)),
	}
}

// Get acquires a free slot, backs it with zeroed physical pages and
// returns the top of the stack (stacks grow down) plus a slot token
// for Release. It blocks until a slot is free or ctx is done.
func (p *StackPool) Get(ctx context.Context) (top uintptr, slot int, err error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return 0, 0, err
	}

	p.mu.Lock()
	idx := -1
	for i, b := range p.bitmap {
		if b == 0 {
			continue
		}
		bit := bits.TrailingZeros8(b)
		candidate := i*8 + bit
		p.bitmap[i] &^= 1 << uint(bit)
		idx = candidate
		break
	}
	p.mu.Unlock()
	if idx < 0 {
		p.sem.Release(1)
		panic("kheap: stack pool bitmap/semaphore out of sync")
	}

	addr := p.phys.Alloc(p.slotPages)
	if addr == 0 {
		p.mu.Lock()
		p.bitmap[idx/8] |= 1 << uint(idx%8)
		p.mu.Unlock()
		p.sem.Release(1)
		return 0, 0, errNoMemory
	}
	p.stick.Zero(addr, p.slotPages*pageSize)

	p.mu.Lock()
	p.mapped[idx] = addr
	p.mu.Unlock()

	return addr + uintptr(p.slotPages*pageSize), idx, nil
}

// Release unmaps and returns the physical pages backing slot.
func (p *StackPool) Release(slot int) {
	p.mu.Lock()
	addr, ok := p.mapped[slot]
	if !ok {
		p.mu.Unlock()
		panic("kheap: release of stack slot that is not in use")
	}
	delete(p.mapped, slot)
	p.bitmap[slot/8] |= 1 << uint(slot%8)
	p.mu.Unlock()

	p.phys.Free(addr, p.slotPages)
	p.sem.Release(1)
}

type stackPoolError string

func (e stackPoolError) Error() string { return string(e) }

const errNoMemory = stackPoolError("kheap: stack pool out of physical memory")
