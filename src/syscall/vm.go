package syscall

import (
	"biscuit/src/defs"
	"biscuit/src/handle"
	"biscuit/src/pte"
	"biscuit/src/sched"
	"biscuit/src/vm"
)

// toPTEFlags translates the wire-level VmFlag bitset (spec §6.4) to
// the architecture's leaf Flags, always asserting Present and never
// Global (user mappings are never shared across address spaces the
// way the kernel half is).
func toPTEFlags(f defs.VmFlag) pte.Flags {
	out := pte.FlagPresent | pte.FlagUser
	if f&defs.VmWrite != 0 {
		out |= pte.FlagWrite
	}
	if f&defs.VmExec != 0 {
		out |= pte.FlagExec
	}
	if f&defs.VmMMIO != 0 {
		out |= pte.FlagNoCache
	}
	return out
}

// Each VM entry carries exactly one "owning" strong reference, held by
// the task that allocated it (vm.MakePhys/MakeAnon construct with
// refs=1); Map.Add/Remove add and drop one further reference per
// installation. vm_dealloc below releases the task's owning reference
// early; if the task never calls it, Task.finalize releases it at
// teardown instead.
func vmAllocPhys(ctx *Context, a defs.SyscallArgs) int64 {
	physAddr, length, flags := a.A0, int(a.A1), defs.VmFlag(a.A2)
	e := vm.MakePhys(physAddr, length, toPTEFlags(flags), false)
	ctx.Task.AddMapEntry(e)
	h := ctx.Handles.Alloc(e)
	return int64(h)
}

func vmAllocAnon(ctx *Context, a defs.SyscallArgs) int64 {
	length, flags := int(a.A0), defs.VmFlag(a.A1)
	e := vm.MakeAnon(length, toPTEFlags(flags), false, ctx.Phys, ctx.Stick)
	ctx.Task.AddMapEntry(e)
	h := ctx.Handles.Alloc(e)
	return int64(h)
}

func vmDealloc(ctx *Context, a defs.SyscallArgs) int64 {
	e, ok := handle.Translate[*vm.MapEntry](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	e.Release() // undo Translate's bump
	ctx.Task.RemoveMapEntry(e)
	ctx.Handles.Free(defs.Handle(a.A0))
	e.Release() // release the task's owning reference
	return 0
}

func vmUpdatePerms(ctx *Context, a defs.SyscallArgs) int64 {
	e, ok := handle.Translate[*vm.MapEntry](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer e.Release()
	e.UpdateFlags(toPTEFlags(defs.VmFlag(a.A1)))
	return 0
}

func vmResize(ctx *Context, a defs.SyscallArgs) int64 {
	e, ok := handle.Translate[*vm.MapEntry](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer e.Release()
	e.Resize(int(a.A1))
	return 0
}

// vmMap installs a MapEntry into the named task's Map at a fixed base
// (spec §6.3's "end = 0" fixed-mapping case); the search-range form
// (VmMapEx) is left to a fuller build's dedicated wire struct.
func vmMap(ctx *Context, a defs.SyscallArgs) int64 {
	e, ok := handle.Translate[*vm.MapEntry](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer e.Release()

	task, ok := handle.Translate[*sched.Task](ctx.Handles, defs.Handle(a.A1))
	if !ok {
		return int64(defs.EBADH)
	}
	defer task.Release()

	base := a.A2
	length := int(a.A3)
	_, err := task.Map().Add(e, &base, vm.Range{}, length, e.Flags())
	if err != nil {
		return int64(defs.EADDR)
	}
	return int64(base)
}

func vmUnmap(ctx *Context, a defs.SyscallArgs) int64 {
	e, ok := handle.Translate[*vm.MapEntry](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer e.Release()

	task, ok := handle.Translate[*sched.Task](ctx.Handles, defs.Handle(a.A1))
	if !ok {
		return int64(defs.EBADH)
	}
	defer task.Release()

	task.Map().Remove(e)
	return 0
}

func vmRegionInfo(ctx *Context, a defs.SyscallArgs) int64 {
	e, ok := handle.Translate[*vm.MapEntry](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer e.Release()

	task, ok := handle.Translate[*sched.Task](ctx.Handles, defs.Handle(a.A1))
	if !ok {
		return int64(defs.EBADH)
	}
	defer task.Release()

	base, length, _, ok := task.Map().RegionInfo(e)
	if !ok {
		return int64(defs.ENOENT)
	}
	out := make([]byte, 16)
	writeUintptr(out, 0, base)
	writeUintptr(out, 8, uintptr(length))
	if err := copyOut(task.Map(), ctx.Stick, a.A2, out); err != defs.Ok {
		return int64(err)
	}
	return 0
}

func vmAddrToRegion(ctx *Context, a defs.SyscallArgs) int64 {
	task, ok := handle.Translate[*sched.Task](ctx.Handles, defs.Handle(a.A0))
	if !ok {
		return int64(defs.EBADH)
	}
	defer task.Release()

	entry, _, ok := task.Map().FindRegion(a.A1)
	if !ok {
		return int64(defs.EUNMAPPED)
	}
	h := ctx.Handles.Alloc(entry)
	entry.AddRef()
	return int64(h)
}

func writeUintptr(b []byte, off int, v uintptr) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}
