//go:build nvml

package gpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
)

var (
	nvmlMu       sync.Mutex
	nvmlRefCount int
)

func nvmlAcquire() error {
	nvmlMu.Lock()
	defer nvmlMu.Unlock()
	if nvmlRefCount == 0 {
		if ret := nvml.Init(); ret != nvml.SUCCESS {
			return errtag.New(errtag.Setup, fmt.Sprintf("nvml: init failed: %v", ret))
		}
	}
	nvmlRefCount++
	return nil
}

func nvmlRelease() {
	nvmlMu.Lock()
	defer nvmlMu.Unlock()
	nvmlRefCount--
	if nvmlRefCount == 0 {
		nvml.Shutdown()
	}
}

// nvmlDevice is one probed GPU: which kinds it supports, and its
// nvml.Device handle.
type nvmlDevice struct {
	handle     nvml.Device
	powerSlot  int // -1 if unsupported
	energySlot int // -1 if unsupported
}

// NVMLReader implements energy.Reader over NVIDIA's NVML library.
// Library init/shutdown is reference-counted across reader instances,
// grounded on nrg's GPU reader constructor/destructor pairing.
type NVMLReader struct {
	devices []nvmlDevice
	width   int
}

// NewNVML probes every NVML device, keeping those selected by
// deviceMask. Each kept device gets one slot for every kind in
// kindMask that it supports on its own; kinds are not intersected
// across devices, so two devices can fill different kinds of slot.
func NewNVML(kindMask Kind, deviceMask DeviceMask) (*NVMLReader, error) {
	if kindMask == 0 || deviceMask == 0 {
		return nil, energy.ErrEmptyMask
	}
	if err := nvmlAcquire(); err != nil {
		return nil, err
	}

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		nvmlRelease()
		return nil, errtag.New(errtag.Setup, fmt.Sprintf("nvml: DeviceGetCount: %v", ret))
	}

	r := &NVMLReader{}
	for i := 0; i < count; i++ {
		if !deviceMask.Has(i) {
			continue
		}
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		d := nvmlDevice{handle: dev, powerSlot: -1, energySlot: -1}
		if kindMask&KindPower != 0 {
			if _, ret := dev.GetPowerUsage(); ret == nvml.SUCCESS {
				d.powerSlot = r.width
				r.width++
			}
		}
		if kindMask&KindEnergy != 0 {
			if _, ret := dev.GetTotalEnergyConsumption(); ret == nvml.SUCCESS {
				d.energySlot = r.width
				r.width++
			}
		}
		if d.powerSlot == -1 && d.energySlot == -1 {
			continue
		}
		r.devices = append(r.devices, d)
	}

	if len(r.devices) == 0 {
		nvmlRelease()
		return nil, ErrNoDevices
	}
	return r, nil
}

func (r *NVMLReader) Width() int { return r.width }

func (r *NVMLReader) Read() (energy.Reading, error) {
	out := energy.NewReading(r.width)
	out.At = time.Now()
	for _, d := range r.devices {
		if d.powerSlot != -1 {
			mw, ret := d.handle.GetPowerUsage()
			if ret != nvml.SUCCESS {
				return energy.Reading{}, errtag.New(errtag.Read, fmt.Sprintf("nvml: GetPowerUsage: %v", ret))
			}
			out.Values[d.powerSlot] = float64(mw)
		}
		if d.energySlot != -1 {
			mj, ret := d.handle.GetTotalEnergyConsumption()
			if ret != nvml.SUCCESS {
				return energy.Reading{}, errtag.New(errtag.Read, fmt.Sprintf("nvml: GetTotalEnergyConsumption: %v", ret))
			}
			out.Values[d.energySlot] = float64(mj)
		}
	}
	return out, nil
}

func (r *NVMLReader) ValueAt(rd energy.Reading, loc energy.Location) (energy.Quantity, bool) {
	if loc != energy.LocGPURail {
		return energy.Quantity{}, false
	}
	// Report the first device's power reading, or its energy reading
	// if it has no power slot; later devices are not reachable through
	// ValueAt.
	for _, d := range r.devices {
		if d.powerSlot != -1 {
			return energy.Quantity{Value: rd.Values[d.powerSlot], Scale: energy.Milliwatts, Kind: energy.KindPower}, true
		}
		if d.energySlot != -1 {
			return energy.Quantity{Value: rd.Values[d.energySlot], Scale: energy.Ratio{Num: 1, Den: 1000}, Kind: energy.KindEnergy}, true
		}
	}
	return energy.Quantity{}, false
}

func (r *NVMLReader) Close() error {
	nvmlRelease()
	return nil
}
