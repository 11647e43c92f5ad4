package syscall

import (
	"biscuit/src/blockable"
	"biscuit/src/defs"
	"biscuit/src/handle"
	"biscuit/src/port"
)

const forever = ^uintptr(0)

func portAlloc(ctx *Context, a defs.SyscallArgs) int64 {
	p := port.New(int(a.A0))
	ctx.Task.AddPort(p)
	h := ctx.Handles.Alloc(p)
	return int64(h)
}

func portDealloc(ctx *Context, a defs.SyscallArgs) int64 {
	p, ok := handle.Translate[*port.Port](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	p.Release() // undo Translate's bump
	ctx.Task.RemovePort(p)
	ctx.Handles.Free(defs.Handle(a.A0))
	p.Release() // release the task's owning reference
	return 0
}

func portErrToErrno(err error) defs.Err_t {
	switch err {
	case port.ErrFull:
		return defs.EAGAIN
	case port.ErrEmpty:
		return defs.EAGAIN
	case port.ErrTooLarge:
		return defs.EINVAL
	default:
		return defs.Ok
	}
}

// portSend copies the caller's buffer in and enqueues it, blocking
// (with no timeout, matching spec §6.1's send signature) while the
// queue is full, a suspension point per spec §5.
func portSend(ctx *Context, a defs.SyscallArgs) int64 {
	p, ok := handle.Translate[*port.Port](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer p.Release()

	buf, verr := copyIn(ctx.Task.Map(), ctx.Stick, a.A1, int(a.A2))
	if verr != defs.Ok {
		return int64(verr)
	}

	for {
		err := p.TrySend(ctx.Thread.Handle(), ctx.Task.Handle(), 0, buf)
		if err == nil {
			return int64(len(buf))
		}
		if err != port.ErrFull {
			return int64(portErrToErrno(err))
		}
		ctx.Sched.BlockOn(ctx.Thread, p.SendBlocker(), 0)
	}
}

// portReceive copies the oldest queued record straight into the
// caller's buffer (spec §6.2's layout), blocking up to timeout
// microseconds (0 = poll, forever = block indefinitely).
func portReceive(ctx *Context, a defs.SyscallArgs) int64 {
	p, ok := handle.Translate[*port.Port](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer p.Release()

	timeout := a.A3
	for {
		rec, err := p.TryReceiveRecord()
		if err == nil {
			if len(rec) > int(a.A2) {
				rec = rec[:a.A2]
			}
			if verr := copyOut(ctx.Task.Map(), ctx.Stick, a.A1, rec); verr != defs.Ok {
				return int64(verr)
			}
			return int64(len(rec))
		}
		if timeout == 0 {
			return int64(defs.EAGAIN)
		}
		var deadline int64
		if timeout != forever && ctx.Now != nil {
			deadline = ctx.Now() + int64(timeout)
		}
		if result := ctx.Sched.BlockOn(ctx.Thread, p.RecvBlocker(), deadline); result == blockable.Timeout {
			return int64(defs.ETIMEDOUT)
		}
	}
}

func portSetParams(ctx *Context, a defs.SyscallArgs) int64 {
	p, ok := handle.Translate[*port.Port](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer p.Release()
	p.SetParams(int(a.A1))
	return 0
}
