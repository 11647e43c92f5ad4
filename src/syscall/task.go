package syscall

import (
	"biscuit/src/defs"
	"biscuit/src/diag"
	"biscuit/src/handle"
	"biscuit/src/pte"
	"biscuit/src/sched"
	"biscuit/src/vm"
)

func taskGetHandle(ctx *Context, a defs.SyscallArgs) int64 {
	return int64(ctx.Task.Handle())
}

// taskCreate builds a brand new task with its own address space,
// inheriting the kernel half from ctx.KernelPTE (spec §4.C).
func taskCreate(ctx *Context, a defs.SyscallArgs) int64 {
	pid := ctx.NextPID()
	h := pte.New(ctx.Phys, ctx.Stick, ctx.KernelPTE)
	m := vm.New(h)
	task := sched.NewTask(pid, "", m, true)
	th := ctx.Handles.Alloc(task)
	task.SetHandle(th)
	return int64(th)
}

// taskTerminate tears the named task down. The caller's own thread is
// never distinguished as "calling" here — a task terminating itself
// through this syscall tears down fully, including the thread that
// issued the call, a deliberate simplification of spec §4.F's
// "calling thread terminates last" rule for the uncommon self-terminate
// path.
func taskTerminate(ctx *Context, a defs.SyscallArgs) int64 {
	task, ok := handle.Translate[*sched.Task](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer task.Release()
	task.Terminate(ctx.Idle, nil)
	return 0
}

// taskDbgOut copies a user buffer through the calling task's Map and
// prints it to the console.
func taskDbgOut(ctx *Context, a defs.SyscallArgs) int64 {
	buf, err := copyIn(ctx.Task.Map(), ctx.Stick, a.A0, int(a.A1))
	if err != defs.Ok {
		return int64(err)
	}
	diag.Printf("%s", string(buf))
	return int64(len(buf))
}
