package boot

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"biscuit/src/arena"
	"biscuit/src/blockable"
	"biscuit/src/diag"
	"biscuit/src/handle"
	"biscuit/src/irq"
	"biscuit/src/kheap"
	"biscuit/src/phys"
	"biscuit/src/platform"
	"biscuit/src/pte"
	"biscuit/src/sched"
	"biscuit/src/vm"
)

type stage int32

const (
	stageNone stage = iota
	stagePhys
	stageVM
	stageHeap
	stageSched
	stageHandles
)

// Kernel is the fully bootstrapped collection of core singletons a
// real kernel would keep as file-scope globals (mem::gPhysAllocator,
// sched::gScheduler[], handle::Manager::gShared in the kush-os
// original); here they are fields on one value so tests can construct
// several independent kernels side by side.
type Kernel struct {
	mu    sync.Mutex
	stage stage

	Stick *arena.Stick
	Phys  *phys.Allocator

	KernelPTE *pte.Handler
	KernelMap *vm.Map

	Stacks        *kheap.StackPool
	DeadlineQueue *blockable.DeadlineQueue

	Schedulers []*sched.Scheduler
	IRQs       []*irq.Registry

	Handles *handle.Table
}

func (k *Kernel) advance(want, next stage, name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stage != want {
		panic(fmt.Sprintf("boot: %s called out of order (stage=%d, want=%d)", name, k.stage, want))
	}
	k.stage = next
}

// Init runs the full bring-up sequence against cfg and returns the
// assembled Kernel. Each stage is a method below so a caller wanting
// finer-grained control (e.g. a test booting only the physical
// allocator) can call them individually in order.
func Init(cfg Config) *Kernel {
	k := &Kernel{}
	k.initPhys(cfg)
	k.initVM()
	k.initHeap(cfg)
	k.initSched(cfg)
	k.initHandles()
	return k
}

// initPhys constructs the physical allocator and the simulated RAM
// stick backing it, bringing up every configured region concurrently
// (region construction and bitmap seeding are independent of each
// other; only the final AddRegion into the shared allocator is
// serialized) via errgroup, the idiom the teacher's bring-up code does
// not need but the pack's server-style repos reach for whenever
// independent setup work can run in parallel.
func (k *Kernel) initPhys(cfg Config) {
	k.advance(stageNone, stagePhys, "initPhys")

	var maxEnd uintptr
	for _, r := range cfg.Regions {
		end := r.Base + uintptr(r.Length)
		if end > maxEnd {
			maxEnd = end
		}
	}

	stick, err := arena.New(0, int(maxEnd))
	if err != nil {
		panic(fmt.Sprintf("boot: arena.New: %v", err))
	}
	k.Stick = stick
	k.Phys = phys.New()

	regions := make([]*phys.Region, len(cfg.Regions))
	g, _ := errgroup.WithContext(context.Background())
	for i, rc := range cfg.Regions {
		i, rc := i, rc
		g.Go(func() error {
			r, ok := phys.NewRegion(rc.Base, rc.Length)
			if !ok {
				return fmt.Errorf("boot: region [%#x,+%#x) too small to be usable", rc.Base, rc.Length)
			}
			r.Fixup()
			regions[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(err)
	}
	for _, r := range regions {
		k.Phys.AddRegion(r)
	}
	diag.Printf("boot: physical allocator up, %d region(s), %d bytes\n", len(regions), maxEnd)
}

// initVM constructs the kernel's reference page table (the template
// every task's address space inherits its kernel half from) and a
// bare Map wrapping it.
func (k *Kernel) initVM() {
	k.advance(stagePhys, stageVM, "initVM")
	k.KernelPTE = pte.New(k.Phys, k.Stick, nil)
	k.KernelMap = vm.New(k.KernelPTE)
	diag.Printf("boot: kernel address space up\n")
}

// initHeap brings up the kernel stack pool used to back every
// Thread's kernel-mode stack.
func (k *Kernel) initHeap(cfg Config) {
	k.advance(stageVM, stageHeap, "initHeap")
	slots, slotPages := cfg.StackSlots, cfg.StackPages
	if slots <= 0 {
		slots = 64
	}
	if slotPages <= 0 {
		slotPages = 2
	}
	k.Stacks = kheap.NewStackPool(k.Phys, k.Stick, slots, slotPages)
	diag.Printf("boot: kernel stack pool up, %d slots\n", slots)
}

// initSched constructs one scheduler and IRQ registry per configured
// core, sharing a single deadline queue (spec §4.E: the scheduler
// maintains one min-ordered deadline set).
func (k *Kernel) initSched(cfg Config) {
	k.advance(stageHeap, stageSched, "initSched")
	n := cfg.NumCores
	if n <= 0 {
		n = 1
	}
	platform.SetNumCores(n)
	k.DeadlineQueue = blockable.NewDeadlineQueue()
	k.Schedulers = make([]*sched.Scheduler, n)
	k.IRQs = make([]*irq.Registry, n)
	for i := 0; i < n; i++ {
		k.Schedulers[i] = sched.New(i, k.DeadlineQueue)
		k.IRQs[i] = irq.NewRegistry(noopController{})
	}
	diag.Printf("boot: %d core scheduler(s) up\n", n)
}

// initHandles constructs the process-wide handle table.
func (k *Kernel) initHandles() {
	k.advance(stageSched, stageHandles, "initHandles")
	k.Handles = handle.New()
	diag.Printf("boot: handle table up\n")
}

// noopController is the default IRQ controller for cores booted
// without platform-specific IOAPIC/LAPIC wiring; a real platform layer
// replaces it per core.
type noopController struct{}

func (noopController) Unmask(int) {}
func (noopController) Mask(int)   {}
func (noopController) Ack(int)    {}
