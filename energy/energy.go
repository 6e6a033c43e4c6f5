// Package energy defines the data model shared by every platform energy
// reader (internal/rapl, internal/occ, internal/gpu): the flat Reading
// vector, per-sensor Location bitset, and the Quantity/Ratio pair that
// stands in for the reference implementation's compile-time
// scalar_unit template hierarchy.
package energy

import (
	"time"

	"github.com/aclements/nrgprof/errtag"
)

// Location names one CPU sensor, matching the §3 data model's
// {package, cores, uncore, dram, system, gpu-rail} set.
type Location uint8

const (
	LocPackage Location = iota
	LocCores
	LocUncore
	LocDRAM
	LocSystem
	LocGPURail
	numLocations
)

func (l Location) String() string {
	switch l {
	case LocPackage:
		return "package"
	case LocCores:
		return "cores"
	case LocUncore:
		return "uncore"
	case LocDRAM:
		return "dram"
	case LocSystem:
		return "system"
	case LocGPURail:
		return "gpu-rail"
	default:
		return "unknown"
	}
}

// LocationMask is a bitset of Location values.
type LocationMask uint32

func (m LocationMask) Has(l Location) bool { return m&(1<<l) != 0 }

// SocketMask selects which CPU sockets participate in a reading.
type SocketMask uint64

func (m SocketMask) Has(socket int) bool {
	if socket < 0 || socket >= 64 {
		return false
	}
	return m&(1<<uint(socket)) != 0
}

// ErrEmptyMask is returned by reader constructors when the caller's
// location or socket mask has no bits set — §8's boundary case.
var ErrEmptyMask = errtag.New(errtag.Setup, "mask has no bits set")

// Kind distinguishes an energy quantity (a monotone counter) from a
// power quantity (an instantaneous rate).
type Kind uint8

const (
	KindEnergy Kind = iota
	KindPower
)

// Ratio is a rational scale factor resolved once at reader
// construction (§9: "Ratio arithmetic is performed at construction"),
// standing in for the reference's compile-time std::ratio.
type Ratio struct {
	Num, Den int64
}

// Apply scales a raw counter value by r.
func (r Ratio) Apply(v float64) float64 {
	if r.Den == 0 {
		return v
	}
	return v * float64(r.Num) / float64(r.Den)
}

// Microjoules is the scale RAPL's energy_uj counters report energy in.
var Microjoules = Ratio{Num: 1, Den: 1_000_000}

// Microwatts is the scale ROCm reports power in.
var Microwatts = Ratio{Num: 1, Den: 1_000_000}

// Milliwatts is the scale NVML reports power in.
var Milliwatts = Ratio{Num: 1, Den: 1_000}

// Quantity is a single resolved measurement: a raw value together with
// the scale and kind needed to render it in the output units manifest
// (nanoseconds/joules/watts).
type Quantity struct {
	Value float64
	Scale Ratio
	Kind  Kind
}

// Scaled returns the value in joules or watts, depending on Kind.
func (q Quantity) Scaled() float64 { return q.Scale.Apply(q.Value) }

// Reading is one timestamped sample: a monotonic-clock timestamp and a
// flat vector of raw counter values, indexed exactly as §3 describes:
// CPU sensors at socket*maxDomains+domain, GPU sensors at a separate
// device-indexed offset recorded by the reader that produced them.
type Reading struct {
	At     time.Time
	Values []float64
}

// NewReading allocates a Reading with n value slots, all zero.
func NewReading(n int) Reading {
	return Reading{Values: make([]float64, n)}
}

// Sub returns element-wise a-b. Panics if the vectors differ in length,
// which would indicate two readings from different reader
// configurations were compared.
func (a Reading) Sub(b Reading) Reading {
	if len(a.Values) != len(b.Values) {
		panic("energy: Sub of readings with differing lengths")
	}
	out := NewReading(len(a.Values))
	out.At = a.At
	for i := range a.Values {
		out.Values[i] = a.Values[i] - b.Values[i]
	}
	return out
}

// ScaleBy returns element-wise a*k.
func (a Reading) ScaleBy(k float64) Reading {
	out := NewReading(len(a.Values))
	out.At = a.At
	for i := range a.Values {
		out.Values[i] = a.Values[i] * k
	}
	return out
}

// Equal reports whether a and b have the same values (timestamps are
// ignored, matching §3's "two readings are comparable element-wise").
func (a Reading) Equal(b Reading) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			return false
		}
	}
	return true
}

// Reader is the contract every platform energy source implements:
// construction happens in each platform package (internal/rapl.New,
// internal/occ.New, internal/gpu.New), which return a Reader.
type Reader interface {
	// Read timestamps immediately and returns a full reading.
	Read() (Reading, error)
	// ValueAt reports the resolved quantity for loc within r, or
	// ok=false if loc was excluded by this reader's mask.
	ValueAt(r Reading, loc Location) (Quantity, bool)
	// Width is the number of value slots this reader occupies in a
	// Reading produced either by itself or by a Hybrid wrapping it.
	Width() int
	// Close releases any OS resources (file descriptors, vendor
	// library handles) held by the reader.
	Close() error
}
