// Package gpu reads GPU power/energy counters, preferring NVML
// (NVIDIA, build tag "nvml") and falling back to a ROCm sysfs hwmon
// reader or a no-op reader. Grounded on
// original_source/nrg/include/nrg/reader_gpu.hpp's constructor/
// destructor reference counting.
package gpu

import (
	"time"

	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
)

// Kind is a bitmask selecting which GPU reading kinds (power, energy)
// a caller wants from a device.
type Kind uint8

const (
	KindPower Kind = 1 << iota
	KindEnergy
)

// DeviceMask selects which GPU indices participate in a reading.
type DeviceMask uint64

func (m DeviceMask) Has(dev int) bool {
	if dev < 0 || dev >= 64 {
		return false
	}
	return m&(1<<uint(dev)) != 0
}

// NopReader is used on hosts with neither NVML nor ROCm compiled in;
// every ValueAt reports "no such event" rather than failing setup.
type NopReader struct{}

func (NopReader) Width() int { return 0 }

func (NopReader) Read() (energy.Reading, error) {
	return energy.Reading{At: time.Now()}, nil
}

func (NopReader) ValueAt(energy.Reading, energy.Location) (energy.Quantity, bool) {
	return energy.Quantity{}, false
}

func (NopReader) Close() error { return nil }

// ErrNoDevices is returned by New when no device intersected
// deviceMask, or the compiled-in backend found no supported device.
var ErrNoDevices = errtag.New(errtag.Setup, "gpu: no devices matched the requested mask")
