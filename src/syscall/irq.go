package syscall

import (
	"sync/atomic"

	"biscuit/src/defs"
	"biscuit/src/handle"
	"biscuit/src/irq"
	"biscuit/src/sched"
)

// irqHandle is the handle.Object wrapper around an IRQ registration,
// letting install/remove flow through the same process-wide handle
// table as every other kernel object.
type irqHandle struct {
	refs     int32
	registry *irq.Registry
	token    uint64
}

func (h *irqHandle) AddRef() { atomic.AddInt32(&h.refs, 1) }

func (h *irqHandle) Release() int32 { return atomic.AddInt32(&h.refs, -1) }

func irqInstall(ctx *Context, a defs.SyscallArgs) int64 {
	th, ok := handle.Translate[*sched.Thread](ctx.Handles, defs.Handle(a.A1))
	if !ok {
		return int64(defs.EBADH)
	}
	defer th.Release()

	bridge := irq.NewHandler(th, uint64(a.A2))
	token := ctx.Irq.Add(int(a.A0), bridge.Fired, nil)
	wrapper := &irqHandle{refs: 1, registry: ctx.Irq, token: token}
	h := ctx.Handles.Alloc(wrapper)
	return int64(h)
}

func irqRemove(ctx *Context, a defs.SyscallArgs) int64 {
	wrapper, ok := handle.Translate[*irqHandle](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer wrapper.Release()
	wrapper.registry.Remove(wrapper.token)
	ctx.Handles.Free(defs.Handle(a.A0))
	wrapper.Release()
	return 0
}
