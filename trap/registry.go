package trap

import "sync"

// Registry holds two disjoint address-keyed maps, one for start traps
// and one for end traps. Insertion is exclusive — re-inserting either
// address returns an already-exists error. After insertion, a trap
// changes only in its SavedWord, set once when the tracer installs it,
// and a start trap's claim state (see StartTrap.Claim). A Registry is
// safe for
// concurrent use by every tracer thread.
type Registry struct {
	mu    sync.Mutex
	start map[StartAddr]*StartTrap
	end   map[EndAddr]*EndTrap
}

// NewRegistry returns an empty trap registry.
func NewRegistry() *Registry {
	return &Registry{
		start: make(map[StartAddr]*StartTrap),
		end:   make(map[EndAddr]*EndTrap),
	}
}

// InsertStart registers t at its own address. It fails if a start
// trap is already registered at that address.
func (r *Registry) InsertStart(t *StartTrap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.start[t.Address]; ok {
		return lookupErr("start trap already registered")
	}
	r.start[t.Address] = t
	return nil
}

// InsertEnd registers t at its own address. It fails if an end trap
// is already registered at that address.
func (r *Registry) InsertEnd(t *EndTrap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.end[t.Address]; ok {
		return lookupErr("end trap already registered")
	}
	r.end[t.Address] = t
	return nil
}

// LookupStart finds the start trap registered at addr. ok is false if
// no trap was installed there — the tracer's breakpoint handler treats
// this as a trace error, since a stopped IP with no registered trap
// should never happen for a genuinely-installed breakpoint.
func (r *Registry) LookupStart(addr StartAddr) (t *StartTrap, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok = r.start[addr]
	return t, ok
}

// LookupEnd finds the end trap registered at addr, requiring it to be
// paired with wantStart. It returns a Trace-tagged error both when no
// end trap is registered at addr and when one is registered but
// references a different start address than expected.
func (r *Registry) LookupEnd(addr EndAddr, wantStart StartAddr) (*EndTrap, error) {
	r.mu.Lock()
	t, ok := r.end[addr]
	r.mu.Unlock()
	if !ok {
		return nil, lookupErr("end trap not registered")
	}
	if t.StartAddr != wantStart {
		return nil, lookupErr("end trap pairing disagrees with expected start address")
	}
	return t, nil
}

// EndTrapAt returns the end trap registered at addr with no pairing
// check, for callers (trap installation, iteration) that already have
// the address and don't need LookupEnd's "does this still reference
// the start I expect" validation.
func (r *Registry) EndTrapAt(addr EndAddr) (*EndTrap, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.end[addr]
	return t, ok
}

// StartAddrs returns every registered start address, in map order —
// used by the tracer to install breakpoints once at attach time.
func (r *Registry) StartAddrs() []StartAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StartAddr, 0, len(r.start))
	for a := range r.start {
		out = append(out, a)
	}
	return out
}

// EndAddrs returns every registered end address, in map order.
func (r *Registry) EndAddrs() []EndAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EndAddr, 0, len(r.end))
	for a := range r.end {
		out = append(out, a)
	}
	return out
}
