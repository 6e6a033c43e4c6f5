// Package sampler drives an energy.Reader at a policy-defined cadence
// over the lifetime of one region execution. Periodic samplers use a
// dedicated worker goroutine and a single-slot signaler (mutex +
// condition variable + boolean) rather than a channel/ticker, matching
// the reference implementation's explicit hand-rolled synchronization
// shape.
package sampler

import (
	"sync"
	"time"

	"github.com/aclements/nrgprof/energy"
)

const (
	// DefaultBoundedPeriod is the default heartbeat interval for a
	// bounded-periodic sampler.
	DefaultBoundedPeriod = 30 * time.Second
	// DefaultUnboundedPeriod is the default sampling interval for an
	// unbounded-periodic sampler.
	DefaultUnboundedPeriod = 10 * time.Millisecond
	// DefaultInitialCapacity is the default pre-reserved capacity for
	// an unbounded sampler's reading slice.
	DefaultInitialCapacity = 1024
)

// Sampler is the contract every sampling discipline implements.
type Sampler interface {
	// Start takes the entry reading synchronously on the calling
	// goroutine and returns immediately.
	Start() error
	// Stop takes the exit reading, joins any background worker, and
	// returns the ordered reading sequence, or a propagated reader
	// error if a read failed mid-run.
	Stop() ([]energy.Reading, error)
}

// signaler is a single-slot mutex+cond+bool handoff: the worker waits
// on it with a timeout, and Stop posts it exactly once to end the
// loop.
type signaler struct {
	mu     sync.Mutex
	cond   *sync.Cond
	posted bool
}

func newSignaler() *signaler {
	s := &signaler{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// post wakes the worker exactly once; idempotent.
func (s *signaler) post() {
	s.mu.Lock()
	s.posted = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// wait blocks until either post is called or timeout elapses, and
// reports which happened (posted==true means Stop was called).
//
// sync.Cond has no native timeout, so a time.Timer fires a spurious
// Broadcast to unblock the single waiter; the waiter re-checks
// s.posted after waking to tell a real post from a timeout.
func (s *signaler) wait(timeout time.Duration) (posted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.posted {
		return true
	}

	timer := time.AfterFunc(timeout, s.cond.Broadcast)
	defer timer.Stop()

	s.cond.Wait()
	return s.posted
}
