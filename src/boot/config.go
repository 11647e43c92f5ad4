// Package boot drives the kernel's singleton bring-up sequence: phys
// allocator -> VM -> kernel heap -> per-core scheduler -> handle
// table, exactly the order kush-os's GlobalState.cpp enforces and
// spec §9's "Global mutable singletons... boot order is part of the
// contract" design note calls for. Each stage panics if invoked out of
// order, since a kernel that discovers its bring-up sequence is wrong
// has no sensible recovery path.
package boot

// RegionConfig describes one physical memory region discovered at
// boot (a simulated firmware memory map entry).
type RegionConfig struct {
	Base   uintptr
	Length int
}

// Config is every boot-time parameter the kernel's singletons need,
// passed explicitly rather than read from a parsed config file (spec
// §1 scopes config-file parsing to the driver manager, not the core).
type Config struct {
	Regions []RegionConfig

	NumCores int

	StackSlots int
	StackPages int

	HeapGrowPages int

	PortalQueueDepth int
}
