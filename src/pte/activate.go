package pte

import "sync"

// activation tracks, per core, which Handler's page directory is
// currently "loaded" (the hosted stand-in for CR3) so IsActive can
// answer without real hardware.
var activation struct {
	mu   sync.Mutex
	byID map[int]*Handler
}

func init() {
	activation.byID = map[int]*Handler{}
}

// Activate records h as the active map on core. A real platform would
// load CR3 here; the hosted kernel only needs the bookkeeping so
// IsActive and the scheduler's dispatch path can agree on which map is
// live.
func (h *Handler) Activate(core int) {
	activation.mu.Lock()
	activation.byID[core] = h
	activation.mu.Unlock()
}

// IsActive reports whether h is the active map on core.
func (h *Handler) IsActive(core int) bool {
	activation.mu.Lock()
	defer activation.mu.Unlock()
	return activation.byID[core] == h
}

// invalidate is the seam a real platform would use to flush the TLB
// for virt (and shoot down other cores where h is active). Hosted runs
// have no TLB to flush.
func (h *Handler) invalidate(virt uintptr) {
	_ = virt
}
