// Package syscall implements component H's second half: argument
// marshalling, the dispatch table and user-pointer validation for the
// syscall trap (spec §4.H, §6.1).
//
// Grounded on kush-os's sys::Syscall / sys::Handlers split
// (original_source/kernel/src/sys/Syscall.cpp, Handlers.h: a flat
// array of function pointers indexed by syscall number, one function
// per operation, plus a validateUserPtr helper that walks the calling
// task's Map) and on the teacher's per-syscall argument-struct idiom
// (biscuit/src/syscall.go's Sys_* family) for how a handler's
// signature takes the marshalled arguments directly rather than a
// generic varargs call.
package syscall

import (
	"biscuit/src/arena"
	"biscuit/src/handle"
	"biscuit/src/irq"
	"biscuit/src/kheap"
	"biscuit/src/phys"
	"biscuit/src/pte"
	"biscuit/src/sched"
)

// Context is everything a handler needs: the calling thread/task, the
// process-wide handle table, and the hosted platform collaborators
// (physical allocator, RAM stick, kernel stack pool, scheduler, IRQ
// registry) a real trap handler would reach through global kernel
// state.
type Context struct {
	Thread *sched.Thread
	Task   *sched.Task

	Handles *handle.Table
	Phys    *phys.Allocator
	Stick   *arena.Stick
	Stacks  *kheap.StackPool
	Sched   *sched.Scheduler
	Idle    *sched.IdleWorker
	Irq     *irq.Registry

	// KernelPTE is the reference page-table handler new tasks inherit
	// their kernel-half mappings from (pte.New's inherit argument).
	KernelPTE *pte.Handler

	// NextTID/NextPID mint identifiers for thread/task create calls.
	// A real kernel draws these from a global atomic counter; tests
	// supply small deterministic ones.
	NextTID func() uint64
	NextPID func() uint64

	// Now returns the scheduler's current tick value, used to turn a
	// relative microsecond timeout into the absolute deadline
	// Scheduler.BlockOn expects. Tests supply a fake clock.
	Now func() int64
}

