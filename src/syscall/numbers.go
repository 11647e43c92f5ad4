package syscall

// Syscall numbers. spec §6.1 explicitly calls these "non-exhaustive;
// numeric codes are a platform detail" — this ordering is this
// kernel's own, not a wire-compatible ABI with anything else.
const (
	SysThreadGetHandle = iota
	SysThreadYield
	SysThreadUsleep
	SysThreadCreate
	SysThreadDestroy
	SysThreadSetPriority
	SysThreadSetNoteMask
	SysThreadResume
	SysThreadJoin

	SysTaskGetHandle
	SysTaskCreate
	SysTaskTerminate
	SysTaskDbgOut

	SysVmAllocPhys
	SysVmAllocAnon
	SysVmDealloc
	SysVmUpdatePerms
	SysVmResize
	SysVmMap
	SysVmUnmap
	SysVmRegionInfo
	SysVmAddrToRegion

	SysPortAlloc
	SysPortDealloc
	SysPortSend
	SysPortReceive
	SysPortSetParams

	SysNotifySend
	SysNotifyReceive

	SysIrqInstall
	SysIrqRemove

	numSyscalls
)
