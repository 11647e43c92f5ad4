// Package defs holds the cross-cutting types and constants every other
// kernel package needs: the syscall error enumeration, the VM flag bits,
// and the page/alloc-order constants used throughout the core.
package defs

// Err_t is a negative syscall return code. Zero or a positive value
// from a syscall handler is success; Err_t values are always < 0.
type Err_t int

/// Syscall error codes. The values are already negative, so handlers
/// return them as they are (converted to int64); Ok is zero.
const (
	Ok Err_t = 0

	EINVAL    Err_t = -1 /// InvalidArgument
	EFAULT    Err_t = -2 /// InvalidPointer
	EBADH     Err_t = -3 /// InvalidHandle
	EADDR     Err_t = -4 /// InvalidAddress
	EUNMAPPED Err_t = -5 /// Unmapped
	EPERM     Err_t = -6 /// PermissionDenied
	ETIMEDOUT Err_t = -7 /// Timeout
	EAGAIN    Err_t = -8 /// TryAgain
	ENOMEM    Err_t = -9 /// NoMemory
	EEXIST    Err_t = -10 /// Overlap / conflict
	ENOENT    Err_t = -11 /// no such object
)

// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

// PGOFFSET masks offsets within a page.
const PGOFFSET uintptr = uintptr(PGSIZE - 1)

// PGMASK masks the page number out of an address.
const PGMASK uintptr = ^PGOFFSET

// MaxOrder is the highest buddy order the physical allocator supports:
// an order-10 block is 2^10 pages * 4KiB = 4MiB. A single allocation is
// limited to 2^(MaxOrder-1) pages (2MiB).
const MaxOrder = 10

/// VM mapping flag bits (§6.4 of the kernel's memory-management
/// syscalls). Bits are deliberately sparse to match the wire layout
/// user space already expects.
type VmFlag uint

const (
	VmNoLazy    VmFlag = 1 << 0 /// no-lazy-alloc: fault in eagerly
	VmLargePage VmFlag = 1 << 1 /// prefer-large-pages (hint only)

	VmRead  VmFlag = 1 << 10
	VmWrite VmFlag = 1 << 11
	VmExec  VmFlag = 1 << 12
	VmMMIO  VmFlag = 1 << 13 /// uncached, device memory
	VmWT    VmFlag = 1 << 14 /// write-through

	VmPermMask = VmRead | VmWrite | VmExec
)

// SyscallArgs is the marshalled argument set for a syscall trap: up to
// four register arguments plus the syscall number itself.
type SyscallArgs struct {
	Num        uintptr
	A0, A1, A2, A3 uintptr
}

// Handle is an opaque, process-wide identifier for a kernel object
// (Task, Thread, Port or MapEntry). The zero Handle is never valid.
type Handle uint64
