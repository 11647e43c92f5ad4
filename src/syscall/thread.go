package syscall

import (
	"biscuit/src/blockable"
	"biscuit/src/defs"
	"biscuit/src/handle"
	"biscuit/src/sched"
)

func threadGetHandle(ctx *Context, a defs.SyscallArgs) int64 {
	return int64(ctx.Thread.Handle())
}

func threadYield(ctx *Context, a defs.SyscallArgs) int64 {
	ctx.Sched.Yield(ctx.Thread)
	return 0
}

// threadUsleep blocks the calling thread for approximately a0
// microseconds, using a SignalFlag that is never externally signalled
// so the only way out is the scheduled timeout.
func threadUsleep(ctx *Context, a defs.SyscallArgs) int64 {
	usecs := int64(a.A0)
	if usecs == 0 || ctx.Now == nil {
		return 0
	}
	flag := blockable.NewSignalFlag()
	ctx.Sched.BlockOn(ctx.Thread, flag, ctx.Now()+usecs)
	return 0
}

// threadCreate mints a kernel stack and thread object, attaches it to
// the calling task and registers a handle; the thread starts Paused
// per spec (§6.1 lists a separate resume(h) op). The entry/arg/stack/
// flags arguments (A0..A3) are not read: the thread is created with no
// entry point and they are neither stored nor executed.
func threadCreate(ctx *Context, a defs.SyscallArgs) int64 {
	tid := ctx.NextTID()
	th, err := sched.NewThread(tid, "", 0, false, ctx.Stacks, nil, 0)
	if err != nil {
		return int64(defs.ENOMEM)
	}
	ctx.Task.AddThread(th)
	h := ctx.Handles.Alloc(th)
	th.SetHandle(h)
	return int64(h)
}

func threadDestroy(ctx *Context, a defs.SyscallArgs) int64 {
	th, ok := handle.Translate[*sched.Thread](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer th.Release()
	th.Terminate(ctx.Idle)
	return 0
}

func threadSetPriority(ctx *Context, a defs.SyscallArgs) int64 {
	th, ok := handle.Translate[*sched.Thread](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer th.Release()
	th.SetPriority(int32(a.A1))
	return 0
}

func threadSetNoteMask(ctx *Context, a defs.SyscallArgs) int64 {
	th, ok := handle.Translate[*sched.Thread](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer th.Release()
	th.SetNotifyMask(uint64(a.A1))
	return 0
}

func threadResume(ctx *Context, a defs.SyscallArgs) int64 {
	th, ok := handle.Translate[*sched.Thread](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer th.Release()
	ctx.Sched.Enqueue(th)
	return 0
}

// threadJoin blocks the calling thread until the target terminates or
// timeout (absolute deadline units) elapses.
func threadJoin(ctx *Context, a defs.SyscallArgs) int64 {
	th, ok := handle.Translate[*sched.Thread](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer th.Release()

	sig := blockable.NewSignalFlag()
	th.AddTermSignal(sig)
	result := ctx.Sched.BlockOn(ctx.Thread, sig, int64(a.A1))
	if result == blockable.Timeout {
		return int64(defs.ETIMEDOUT)
	}
	return 0
}
