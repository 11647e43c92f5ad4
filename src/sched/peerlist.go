package sched

// SetDistance installs the platform-provided cost function used to
// order this scheduler's peer list, and invalidates any existing
// ordering so the next idle rebuild recomputes it.
func (s *Scheduler) SetDistance(f func(*Scheduler) int) {
	s.peersMu.Lock()
	s.distance = f
	s.peersValid = false
	s.peersMu.Unlock()
}

// InvalidatePeers marks the peer list stale, as happens whenever any
// scheduler in the system is created or destroyed (spec §4.G).
func (s *Scheduler) InvalidatePeers() {
	s.peersMu.Lock()
	s.peersValid = false
	s.peersMu.Unlock()
}

// rebuildPeers recomputes the ordered peer list from candidates using
// the configured distance function. Called lazily, only once the
// owning core goes idle.
func (s *Scheduler) rebuildPeers(candidates []*Scheduler) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	if s.peersValid {
		return
	}

	peers := make([]*Scheduler, 0, len(candidates))
	for _, c := range candidates {
		if c != s {
			peers = append(peers, c)
		}
	}
	if s.distance != nil {
		cost := make(map[*Scheduler]int, len(peers))
		for _, p := range peers {
			cost[p] = s.distance(p)
		}
		// insertion sort: peer lists are small (one entry per core)
		for i := 1; i < len(peers); i++ {
			for j := i; j > 0 && cost[peers[j]] < cost[peers[j-1]]; j-- {
				peers[j], peers[j-1] = peers[j-1], peers[j]
			}
		}
	}
	s.peers = peers
	s.peersValid = true
}

// Peers returns the ordered peer list, rebuilding it first if it was
// invalidated and this core is currently idle. candidates is the
// full set of live schedulers to consider (supplied by the caller,
// typically the boot-time scheduler registry).
func (s *Scheduler) Peers(candidates []*Scheduler) []*Scheduler {
	s.mu.Lock()
	isIdle := s.current == nil || s.current == s.idle
	s.mu.Unlock()

	s.peersMu.Lock()
	stale := !s.peersValid
	s.peersMu.Unlock()

	if stale && isIdle {
		s.rebuildPeers(candidates)
	}

	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	out := make([]*Scheduler, len(s.peers))
	copy(out, s.peers)
	return out
}
