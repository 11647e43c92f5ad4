package syscall

import "biscuit/src/defs"

// HandlerFunc is one syscall's implementation. It returns a non-negative
// result (a handle, a byte count, zero) or a negative defs.Err_t.
type HandlerFunc func(ctx *Context, args defs.SyscallArgs) int64

var table [numSyscalls]HandlerFunc

func init() {
	table[SysThreadGetHandle] = threadGetHandle
	table[SysThreadYield] = threadYield
	table[SysThreadUsleep] = threadUsleep
	table[SysThreadCreate] = threadCreate
	table[SysThreadDestroy] = threadDestroy
	table[SysThreadSetPriority] = threadSetPriority
	table[SysThreadSetNoteMask] = threadSetNoteMask
	table[SysThreadResume] = threadResume
	table[SysThreadJoin] = threadJoin

	table[SysTaskGetHandle] = taskGetHandle
	table[SysTaskCreate] = taskCreate
	table[SysTaskTerminate] = taskTerminate
	table[SysTaskDbgOut] = taskDbgOut

	table[SysVmAllocPhys] = vmAllocPhys
	table[SysVmAllocAnon] = vmAllocAnon
	table[SysVmDealloc] = vmDealloc
	table[SysVmUpdatePerms] = vmUpdatePerms
	table[SysVmResize] = vmResize
	table[SysVmMap] = vmMap
	table[SysVmUnmap] = vmUnmap
	table[SysVmRegionInfo] = vmRegionInfo
	table[SysVmAddrToRegion] = vmAddrToRegion

	table[SysPortAlloc] = portAlloc
	table[SysPortDealloc] = portDealloc
	table[SysPortSend] = portSend
	table[SysPortReceive] = portReceive
	table[SysPortSetParams] = portSetParams

	table[SysNotifySend] = notifySend
	table[SysNotifyReceive] = notifyReceive

	table[SysIrqInstall] = irqInstall
	table[SysIrqRemove] = irqRemove
}

// Dispatch routes a marshalled syscall trap to its handler (spec
// §4.H). An out-of-range syscall number is InvalidArgument, matching
// kush-os's Syscall::_handle bounds check.
func Dispatch(ctx *Context, args defs.SyscallArgs) int64 {
	if args.Num >= uintptr(numSyscalls) || table[args.Num] == nil {
		return int64(defs.EINVAL)
	}
	return table[args.Num](ctx, args)
}
