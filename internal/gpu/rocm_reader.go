package gpu

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
)

// No mature, actively-maintained Go binding for ROCm SMI exists at a
// maturity comparable to go-nvml; rather than fabricate one, ROCmReader
// reads the vendor's own documented sysfs surface directly, reporting
// power in microwatts.
const hwmonPowerFile = "power1_average"

var (
	rocmMu       sync.Mutex
	rocmRefCount int
)

func rocmAcquire() { rocmMu.Lock(); rocmRefCount++; rocmMu.Unlock() }
func rocmRelease() { rocmMu.Lock(); rocmRefCount--; rocmMu.Unlock() }

type rocmDevice struct {
	powerFile string
}

// ROCmReader implements energy.Reader over
// /sys/class/drm/card*/device/hwmon/hwmon*/power1_average.
type ROCmReader struct {
	devices []rocmDevice
}

// NewROCm globs the DRM card hwmon tree for devices exposing
// power1_average, keeping those in deviceMask.
func NewROCm(deviceMask DeviceMask) (*ROCmReader, error) {
	if deviceMask == 0 {
		return nil, energy.ErrEmptyMask
	}
	cards, err := filepath.Glob("/sys/class/drm/card[0-9]*/device/hwmon/hwmon[0-9]*")
	if err != nil {
		return nil, errtag.Wrapf(errtag.Setup, err, "rocm: globbing hwmon tree")
	}
	sort.Strings(cards)

	r := &ROCmReader{}
	dev := 0
	for _, dir := range cards {
		path := filepath.Join(dir, hwmonPowerFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if deviceMask.Has(dev) {
			r.devices = append(r.devices, rocmDevice{powerFile: path})
		}
		dev++
	}
	if len(r.devices) == 0 {
		return nil, ErrNoDevices
	}
	rocmAcquire()
	return r, nil
}

func (r *ROCmReader) Width() int { return len(r.devices) }

func (r *ROCmReader) Read() (energy.Reading, error) {
	out := energy.NewReading(len(r.devices))
	out.At = time.Now()
	for i, d := range r.devices {
		raw, err := os.ReadFile(d.powerFile)
		if err != nil {
			return energy.Reading{}, errtag.Wrapf(errtag.Read, err, "rocm: reading %s", d.powerFile)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			return energy.Reading{}, errtag.Wrapf(errtag.Read, err, "rocm: parsing %s", d.powerFile)
		}
		out.Values[i] = v
	}
	return out, nil
}

func (r *ROCmReader) ValueAt(rd energy.Reading, loc energy.Location) (energy.Quantity, bool) {
	if loc != energy.LocGPURail || len(r.devices) == 0 {
		return energy.Quantity{}, false
	}
	return energy.Quantity{Value: rd.Values[0], Scale: energy.Microwatts, Kind: energy.KindPower}, true
}

func (r *ROCmReader) Close() error {
	rocmRelease()
	return nil
}
