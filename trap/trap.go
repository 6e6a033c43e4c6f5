// Package trap holds the two start/end trap tables: an address-keyed
// registry the tracing engine consults on every breakpoint stop to
// decide what a trap means and, for a start trap, what to do about
// it. It is new code — the closest grounding in the retrieved pack is
// the single `map[uint64]breakpoint` in
// other_examples/18514cdb_golang-debug__program-server-server.go.go,
// generalized here into the disjoint start/end pairing a profiling
// region needs plus the richer per-trap payload (sampler factory,
// concurrency policy, context) a debugger's plain breakpoint map
// doesn't need.
package trap

import (
	"sync"

	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
	"github.com/aclements/nrgprof/sampler"
)

// StartAddr and EndAddr are distinct address newtypes so a start trap
// and an end trap at the same virtual address are legal and never
// confused with each other.
type StartAddr uint64

// EndAddr is the address newtype for end traps; see StartAddr.
type EndAddr uint64

// Factory builds the sampler a start trap uses for its region,
// against the reader the orchestrator resolved for that region's
// energy kind.
type Factory func(reader energy.Reader) sampler.Sampler

// StartTrap is the registry entry installed at a region's start
// address: the saved original instruction word, the sampler factory
// to invoke when the trap fires, and whether the global trap barrier
// may be skipped for this region (the allow-concurrency option).
type StartTrap struct {
	Address          StartAddr
	SavedWord        []byte
	Factory          Factory
	Reader           energy.Reader
	AllowConcurrency bool
	Context          Context

	mu      sync.Mutex
	sampler sampler.Sampler
	claimed bool
}

// Claim associates the running sampler with this start trap so the
// paired end trap can find it, even if the end trap is hit by a
// different tracer thread than the one that hit the start. Claim
// returns false if the trap was already claimed (a start trap should
// only ever fire once per region execution; the tracer treats a
// second hit before the matching end as a trace error).
func (t *StartTrap) Claim(s sampler.Sampler) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.claimed {
		return false
	}
	t.claimed = true
	t.sampler = s
	return true
}

// Sampler returns the sampler claimed for this trap's current region
// execution, or nil if no start has fired yet.
func (t *StartTrap) Sampler() sampler.Sampler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampler
}

// Release clears the claim after the paired end trap has taken the
// sampler's final reading, so the start trap can fire again on a
// later pass through the same code (e.g. a region inside a loop).
func (t *StartTrap) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.claimed = false
	t.sampler = nil
}

// EndTrap is the registry entry installed at a region's end address:
// the saved original instruction word and the start address it is
// paired with. Every end trap's StartAddr must name a start trap that
// is registered first in some legal control-flow path.
type EndTrap struct {
	Address   EndAddr
	SavedWord []byte
	StartAddr StartAddr
	Context   Context
}

// lookupErr tags a registry failure as a Trace-category error, per
// errtag.Trace's doc comment ("no trap registered at a stopped IP").
func lookupErr(msg string) error { return errtag.New(errtag.Trace, msg) }
