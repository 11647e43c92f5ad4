// Command nucleusd boots the kernel's singleton bring-up sequence and
// drives scenario S1 from the console: create the root task and its
// root thread, resume it, and let it make a couple of syscalls before
// the process exits. It exists to give the boot and syscall packages
// a runnable entry point, the way kush-os's kernel main() ties its own
// GlobalState bring-up to a first user task.
package main

import (
	"os"

	"biscuit/src/boot"
	"biscuit/src/defs"
	"biscuit/src/diag"
	"biscuit/src/sched"
	"biscuit/src/syscall"
	"biscuit/src/vm"
)

func main() {
	k := boot.Init(boot.Config{
		Regions: []boot.RegionConfig{
			{Base: 0, Length: 64 << 20},
		},
		NumCores:   1,
		StackSlots: 64,
		StackPages: 2,
	})

	rootMap := vm.New(k.KernelPTE)
	rootTask := sched.NewTask(1, "root", rootMap, true)

	rootThread, err := sched.NewThread(1, "root", 0, true, k.Stacks, nil, 0)
	if err != nil {
		diag.Printf("nucleusd: failed to create root thread: %v\n", err)
		os.Exit(1)
	}
	rootTask.AddThread(rootThread)

	taskHandle := k.Handles.Alloc(rootTask)
	rootTask.SetHandle(taskHandle)
	threadHandle := k.Handles.Alloc(rootThread)
	rootThread.SetHandle(threadHandle)

	sc := k.Schedulers[0]
	sc.Enqueue(rootThread)

	var tid, pid uint64 = 1, 1
	var tick int64
	ctx := &syscall.Context{
		Thread: rootThread, Task: rootTask,
		Handles: k.Handles, Phys: k.Phys, Stick: k.Stick, Stacks: k.Stacks,
		Sched: sc, Idle: sc.IdleWorker(), Irq: k.IRQs[0],
		KernelPTE: k.KernelPTE,
		NextTID:   func() uint64 { tid++; return tid },
		NextPID:   func() uint64 { pid++; return pid },
		Now:       func() int64 { tick++; return tick },
	}

	msg := []byte("nucleusd: root task up\n")
	base := uintptr(0x40000000)
	eh := syscall.Dispatch(ctx, defs.SyscallArgs{Num: syscall.SysVmAllocAnon, A0: uintptr(len(msg)), A1: uintptr(defs.VmRead | defs.VmWrite)})
	syscall.Dispatch(ctx, defs.SyscallArgs{Num: syscall.SysVmMap, A0: uintptr(eh), A1: uintptr(rootTask.Handle()), A2: base, A3: uintptr(len(msg))})
	rootTask.Map().HandlePageFault(base, false, true)

	if pa, _, ok := rootTask.Map().Get(base); ok {
		copy(k.Stick.Bytes(pa, len(msg)), msg)
	}

	n := syscall.Dispatch(ctx, defs.SyscallArgs{Num: syscall.SysTaskDbgOut, A0: base, A1: uintptr(len(msg))})
	if n < 0 {
		diag.Printf("nucleusd: dbg_out failed: %d\n", n)
		os.Exit(1)
	}
}
