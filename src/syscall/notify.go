package syscall

import (
	"biscuit/src/blockable"
	"biscuit/src/defs"
	"biscuit/src/handle"
	"biscuit/src/sched"
)

func notifySend(ctx *Context, a defs.SyscallArgs) int64 {
	th, ok := handle.Translate[*sched.Thread](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer th.Release()
	th.Notify(uint64(a.A1))
	return 0
}

func notifyReceive(ctx *Context, a defs.SyscallArgs) int64 {
	mask := uint64(a.A0)
	timeout := a.A1

	if timeout == 0 {
		bits, _ := ctx.Thread.TryNotify(mask)
		return int64(bits)
	}
	var deadline int64
	if timeout != forever && ctx.Now != nil {
		deadline = ctx.Now() + int64(timeout)
	}
	bits, result := ctx.Thread.BlockNotify(mask, deadline)
	if result == blockable.Timeout {
		return int64(defs.ETIMEDOUT)
	}
	return int64(bits)
}
