package sampler

import (
	"sync"

	"time"

	"github.com/aclements/nrgprof/energy"
)

// periodic implements the shared worker-thread/signaler protocol: take
// one reading, then wait on the signaler with timeout P; on timeout,
// loop; on post, take the final reading and exit. Bounded and
// Unbounded differ only in how they record readings as they arrive.
type periodic struct {
	reader energy.Reader
	period time.Duration
	sig    *signaler

	mu      sync.Mutex
	err     error
	done    chan struct{}
	record  func(energy.Reading) // called with every heartbeat + entry + exit
	entries []energy.Reading     // accumulated under mu, returned by Stop
}

func newPeriodic(reader energy.Reader, period time.Duration) *periodic {
	return &periodic{
		reader: reader,
		period: period,
		sig:    newSignaler(),
		done:   make(chan struct{}),
	}
}

func (p *periodic) start(record func(energy.Reading)) error {
	p.record = record
	r, err := p.reader.Read()
	if err != nil {
		return err
	}
	p.record(r)
	go p.run()
	return nil
}

// run is the worker loop body shared by both periodic disciplines.
func (p *periodic) run() {
	defer close(p.done)
	for {
		posted := p.sig.wait(p.period)
		if posted {
			r, err := p.reader.Read()
			if err != nil {
				p.mu.Lock()
				p.err = err
				p.mu.Unlock()
			} else {
				p.record(r)
			}
			return
		}
		// Timeout: take a heartbeat reading and loop.
		r, err := p.reader.Read()
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			// Reader errors: the worker parks on the signaler rather
			// than spinning or retrying.
			p.sig.wait(24 * 365 * time.Hour)
			return
		}
		p.record(r)
	}
}

// stop posts the signaler, joins the worker, and returns any
// accumulated error.
func (p *periodic) stop() ([]energy.Reading, error) {
	p.sig.post()
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := p.entries
	p.entries = nil
	return out, nil
}

// Bounded is the "bounded periodic" discipline: keeps only the first
// and last readings, discarding the heartbeats in between.
type Bounded struct {
	p     *periodic
	first energy.Reading
	last  energy.Reading
	seen  bool
}

// NewBounded constructs a Bounded sampler with the given heartbeat
// period (use sampler.DefaultBoundedPeriod for the default).
func NewBounded(reader energy.Reader, period time.Duration) *Bounded {
	b := &Bounded{p: newPeriodic(reader, period)}
	return b
}

func (b *Bounded) Start() error {
	return b.p.start(func(r energy.Reading) {
		b.p.mu.Lock()
		defer b.p.mu.Unlock()
		if !b.seen {
			b.first = r
			b.seen = true
		}
		b.last = r
	})
}

func (b *Bounded) Stop() ([]energy.Reading, error) {
	_, err := b.p.stop()
	if err != nil {
		return nil, err
	}
	return []energy.Reading{b.first, b.last}, nil
}

// Unbounded is the "unbounded periodic" discipline: keeps every
// reading in an append-only slice pre-reserved to the configured
// initial capacity.
type Unbounded struct {
	p *periodic
}

// NewUnbounded constructs an Unbounded sampler with the given sampling
// period and pre-reserved capacity (use sampler.DefaultUnboundedPeriod
// / sampler.DefaultInitialCapacity for the defaults).
func NewUnbounded(reader energy.Reader, period time.Duration, initialCapacity int) *Unbounded {
	p := newPeriodic(reader, period)
	p.entries = make([]energy.Reading, 0, initialCapacity)
	return &Unbounded{p: p}
}

func (u *Unbounded) Start() error {
	return u.p.start(func(r energy.Reading) {
		u.p.mu.Lock()
		defer u.p.mu.Unlock()
		u.p.entries = append(u.p.entries, r)
	})
}

func (u *Unbounded) Stop() ([]energy.Reading, error) {
	return u.p.stop()
}
