package energy

import "github.com/aclements/nrgprof/errtag"

// Hybrid fans a single Read out across a heterogeneous set of child
// readers and concatenates their value vectors, returning the first
// error encountered. Grounded on nrg's hybrid_reader.hpp.
type Hybrid struct {
	children []Reader
	offsets  []int
	width    int
}

// NewHybrid builds a Hybrid over children, used when a region spans
// both CPU and GPU sensors.
func NewHybrid(children ...Reader) *Hybrid {
	h := &Hybrid{children: children, offsets: make([]int, len(children))}
	off := 0
	for i, c := range children {
		h.offsets[i] = off
		off += c.Width()
	}
	h.width = off
	return h
}

func (h *Hybrid) Width() int { return h.width }

func (h *Hybrid) Read() (Reading, error) {
	out := NewReading(h.width)
	for i, c := range h.children {
		r, err := c.Read()
		if err != nil {
			return Reading{}, errtag.Wrapf(errtag.Read, err, "hybrid: child %d", i)
		}
		copy(out.Values[h.offsets[i]:], r.Values)
		if r.At.After(out.At) {
			out.At = r.At
		}
	}
	return out, nil
}

// ValueAt finds the first child whose own ValueAt reports loc present,
// translating the slice window back into that child's view.
func (h *Hybrid) ValueAt(r Reading, loc Location) (Quantity, bool) {
	for i, c := range h.children {
		sub := Reading{At: r.At, Values: r.Values[h.offsets[i] : h.offsets[i]+c.Width()]}
		if q, ok := c.ValueAt(sub, loc); ok {
			return q, true
		}
	}
	return Quantity{}, false
}

func (h *Hybrid) Close() error {
	var first error
	for _, c := range h.children {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
