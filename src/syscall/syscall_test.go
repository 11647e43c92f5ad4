package syscall

import (
	"testing"

	"biscuit/src/arena"
	"biscuit/src/blockable"
	"biscuit/src/defs"
	"biscuit/src/handle"
	"biscuit/src/irq"
	"biscuit/src/kheap"
	"biscuit/src/phys"
	"biscuit/src/pte"
	"biscuit/src/sched"
	"biscuit/src/vm"
)

type fakeController struct{}

func (fakeController) Unmask(int) {}
func (fakeController) Mask(int)   {}
func (fakeController) Ack(int)    {}

func testContext(t *testing.T) *Context {
	t.Helper()
	st, err := arena.New(0, 32<<20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	r, ok := phys.NewRegion(0, 32<<20)
	if !ok {
		t.Fatal("region should qualify")
	}
	r.Fixup()
	p := phys.New()
	p.AddRegion(r)

	kpte := pte.New(p, st, nil)
	m := vm.New(kpte)
	task := sched.NewTask(1, "root", m, true)

	dq := blockable.NewDeadlineQueue()
	s := sched.New(0, dq)
	sp := kheap.NewStackPool(p, st, 16, 2)

	th, err := sched.NewThread(1, "root", 0, true, sp, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	task.AddThread(th)

	ht := handle.New()
	taskH := ht.Alloc(task)
	task.SetHandle(taskH)
	threadH := ht.Alloc(th)
	th.SetHandle(threadH)

	var tid, pid uint64 = 2, 2
	var tick int64

	return &Context{
		Thread: th, Task: task,
		Handles: ht, Phys: p, Stick: st, Stacks: sp,
		Sched: s, Idle: s.IdleWorker(), Irq: irq.NewRegistry(fakeController{}),
		KernelPTE: kpte,
		NextTID:   func() uint64 { tid++; return tid },
		NextPID:   func() uint64 { pid++; return pid },
		Now:       func() int64 { return tick },
	}
}

func TestThreadCreateAndDestroy(t *testing.T) {
	ctx := testContext(t)
	h := Dispatch(ctx, defs.SyscallArgs{Num: SysThreadCreate})
	if h <= 0 {
		t.Fatalf("expected a positive handle, got %d", h)
	}
	r := Dispatch(ctx, defs.SyscallArgs{Num: SysThreadDestroy, A0: uintptr(h)})
	if r != 0 {
		t.Fatalf("expected 0, got %d", r)
	}
}

func TestThreadGetHandleAndYield(t *testing.T) {
	ctx := testContext(t)
	h := Dispatch(ctx, defs.SyscallArgs{Num: SysThreadGetHandle})
	if defs.Handle(h) != ctx.Thread.Handle() {
		t.Fatalf("expected %d, got %d", ctx.Thread.Handle(), h)
	}
	if r := Dispatch(ctx, defs.SyscallArgs{Num: SysThreadYield}); r != 0 {
		t.Fatalf("expected 0, got %d", r)
	}
}

func TestTaskCreateAndTerminate(t *testing.T) {
	ctx := testContext(t)
	h := Dispatch(ctx, defs.SyscallArgs{Num: SysTaskCreate})
	if h <= 0 {
		t.Fatalf("expected a positive handle, got %d", h)
	}
	r := Dispatch(ctx, defs.SyscallArgs{Num: SysTaskTerminate, A0: uintptr(h)})
	if r != 0 {
		t.Fatalf("expected 0, got %d", r)
	}
}

func TestVmAllocMapAndUnmap(t *testing.T) {
	ctx := testContext(t)
	eh := Dispatch(ctx, defs.SyscallArgs{
		Num: SysVmAllocAnon,
		A0:  uintptr(4096),
		A1:  uintptr(defs.VmRead | defs.VmWrite),
	})
	if eh <= 0 {
		t.Fatalf("expected a positive handle, got %d", eh)
	}

	base := uintptr(0x10000000)
	mapped := Dispatch(ctx, defs.SyscallArgs{
		Num: SysVmMap,
		A0:  uintptr(eh), A1: uintptr(ctx.Task.Handle()), A2: base, A3: 4096,
	})
	if mapped != int64(base) {
		t.Fatalf("expected base %#x, got %#x", base, mapped)
	}

	if r := Dispatch(ctx, defs.SyscallArgs{Num: SysVmUnmap, A0: uintptr(eh), A1: uintptr(ctx.Task.Handle())}); r != 0 {
		t.Fatalf("expected 0, got %d", r)
	}
	if r := Dispatch(ctx, defs.SyscallArgs{Num: SysVmDealloc, A0: uintptr(eh)}); r != 0 {
		t.Fatalf("expected 0, got %d", r)
	}
}

func TestPortSendReceiveRoundTrip(t *testing.T) {
	ctx := testContext(t)
	ph := Dispatch(ctx, defs.SyscallArgs{Num: SysPortAlloc, A0: 4})
	if ph <= 0 {
		t.Fatalf("expected a positive handle, got %d", ph)
	}

	// Map a page of anon memory the thread can use as a message buffer.
	eh := Dispatch(ctx, defs.SyscallArgs{Num: SysVmAllocAnon, A0: 4096, A1: uintptr(defs.VmRead | defs.VmWrite)})
	base := uintptr(0x20000000)
	Dispatch(ctx, defs.SyscallArgs{Num: SysVmMap, A0: uintptr(eh), A1: uintptr(ctx.Task.Handle()), A2: base, A3: 4096})
	if !ctx.Task.Map().HandlePageFault(base, false, true) {
		t.Fatal("expected the fault-in to succeed")
	}

	msg := []byte("ping")
	if verr := copyOut(ctx.Task.Map(), ctx.Stick, base, msg); verr != defs.Ok {
		t.Fatalf("copyOut failed: %v", verr)
	}

	sent := Dispatch(ctx, defs.SyscallArgs{Num: SysPortSend, A0: uintptr(ph), A1: base, A2: uintptr(len(msg))})
	if sent != int64(len(msg)) {
		t.Fatalf("expected %d bytes sent, got %d", len(msg), sent)
	}

	recvBase := base + 4096 // reuse the same page's tail would collide; use a second mapping instead
	eh2 := Dispatch(ctx, defs.SyscallArgs{Num: SysVmAllocAnon, A0: 4096, A1: uintptr(defs.VmRead | defs.VmWrite)})
	Dispatch(ctx, defs.SyscallArgs{Num: SysVmMap, A0: uintptr(eh2), A1: uintptr(ctx.Task.Handle()), A2: recvBase, A3: 4096})
	if !ctx.Task.Map().HandlePageFault(recvBase, false, true) {
		t.Fatal("expected the fault-in to succeed")
	}

	n := Dispatch(ctx, defs.SyscallArgs{Num: SysPortReceive, A0: uintptr(ph), A1: recvBase, A2: 4096, A3: 0})
	if n <= 0 {
		t.Fatalf("expected a positive byte count, got %d", n)
	}
}

func TestNotifySendAndPollReceive(t *testing.T) {
	ctx := testContext(t)
	th := Dispatch(ctx, defs.SyscallArgs{Num: SysThreadGetHandle})

	Dispatch(ctx, defs.SyscallArgs{Num: SysNotifySend, A0: uintptr(th), A1: 0x4})
	bits := Dispatch(ctx, defs.SyscallArgs{Num: SysNotifyReceive, A0: 0x4, A1: 0})
	if bits != 0x4 {
		t.Fatalf("expected delivered bits 0x4, got %#x", bits)
	}
}

func TestIrqInstallAndRemove(t *testing.T) {
	ctx := testContext(t)
	th := Dispatch(ctx, defs.SyscallArgs{Num: SysThreadGetHandle})

	h := Dispatch(ctx, defs.SyscallArgs{Num: SysIrqInstall, A0: 5, A1: uintptr(th), A2: 0x1})
	if h <= 0 {
		t.Fatalf("expected a positive handle, got %d", h)
	}
	ctx.Irq.Dispatch(5)
	bits := Dispatch(ctx, defs.SyscallArgs{Num: SysNotifyReceive, A0: 0x1, A1: 0})
	if bits != 0x1 {
		t.Fatalf("expected the IRQ bridge to deliver bit 0x1, got %#x", bits)
	}
	if r := Dispatch(ctx, defs.SyscallArgs{Num: SysIrqRemove, A0: uintptr(h)}); r != 0 {
		t.Fatalf("expected 0, got %d", r)
	}
}

func TestUnknownSyscallIsInvalidArgument(t *testing.T) {
	ctx := testContext(t)
	r := Dispatch(ctx, defs.SyscallArgs{Num: 9999})
	if r != int64(defs.EINVAL) {
		t.Fatalf("expected EINVAL, got %d", r)
	}
}
