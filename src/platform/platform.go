// Package platform stands in for the APIC/ACPI-derived notion of "which
// core am I" that a real kernel would read out of hardware at boot.
// APIC/ACPI enumeration is explicitly out of scope (spec §1); this
// package only exposes the narrow seam the scheduler and per-core IRQ
// registry need: a stable core index for the calling goroutine and the
// configured core count.
package platform

import "sync/atomic"

var numCores int32 = 1

// SetNumCores configures the number of simulated cores. Must be called
// once during boot, before any per-core state is created.
func SetNumCores(n int) {
	if n < 1 {
		panic("platform: bad core count")
	}
	atomic.StoreInt32(&numCores, int32(n))
}

// NumCores returns the configured core count.
func NumCores() int {
	return int(atomic.LoadInt32(&numCores))
}

// coreID, in the real kernel, is read from the local APIC ID register
// (runtime.CPUHint() in the teacher tree). Hosted callers that need
// deterministic per-core behavior in tests bind it explicitly with
// BindCore; everything else round-robins off a counter, which is
// sufficient since the core core/scheduler logic never depends on
// which physical core it observes, only that the id is stable for the
// duration of a dispatch.
var boundCore struct {
	id    int32
	bound int32
}

// BindCore pins the calling goroutine's notion of "current core" to id
// for the duration of fn. Used by tests to exercise specific per-core
// run queues deterministically.
func BindCore(id int, fn func()) {
	if id < 0 || id >= NumCores() {
		panic("platform: core id out of range")
	}
	prevID, prevBound := atomic.LoadInt32(&boundCore.id), atomic.LoadInt32(&boundCore.bound)
	atomic.StoreInt32(&boundCore.id, int32(id))
	atomic.StoreInt32(&boundCore.bound, 1)
	defer func() {
		atomic.StoreInt32(&boundCore.id, prevID)
		atomic.StoreInt32(&boundCore.bound, prevBound)
	}()
	fn()
}

var rrCounter uint64

// CoreID returns the logical id of the "current" core: the bound core
// set up by BindCore if any, otherwise a round-robin assignment.
func CoreID() int {
	if atomic.LoadInt32(&boundCore.bound) != 0 {
		return int(atomic.LoadInt32(&boundCore.id))
	}
	n := uint64(NumCores())
	v := atomic.AddUint64(&rrCounter, 1)
	return int(v % n)
}
