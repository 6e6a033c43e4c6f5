package orchestrate

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
	"github.com/aclements/nrgprof/internal/gpu"
	"github.com/aclements/nrgprof/internal/occ"
	"github.com/aclements/nrgprof/internal/rapl"
)

var locationNames = map[string]energy.Location{
	"package":  energy.LocPackage,
	"cores":    energy.LocCores,
	"uncore":   energy.LocUncore,
	"dram":     energy.LocDRAM,
	"system":   energy.LocSystem,
	"gpu-rail": energy.LocGPURail,
}

// parseLocationMask parses a comma-separated list of location names
// into a LocationMask, or returns allLocations (every bit set) for an
// empty string.
func parseLocationMask(s string) (energy.LocationMask, error) {
	if s == "" {
		return allLocations, nil
	}
	var mask energy.LocationMask
	for _, name := range strings.Split(s, ",") {
		loc, ok := locationNames[strings.TrimSpace(name)]
		if !ok {
			return 0, errtag.New(errtag.Setup, "orchestrate: unknown location name "+name)
		}
		mask |= 1 << loc
	}
	return mask, nil
}

// allLocations is every Location bit set, standing in for "no mask
// restriction specified" without the caller needing to enumerate.
const allLocations energy.LocationMask = (1 << 6) - 1

func parseSocketMask(s string) (energy.SocketMask, error) {
	if s == "" {
		return ^energy.SocketMask(0), nil
	}
	return parseIndexMask(s, func(i int) energy.SocketMask { return 1 << uint(i) })
}

func parseDeviceMask(s string) (gpu.DeviceMask, error) {
	if s == "" {
		return ^gpu.DeviceMask(0), nil
	}
	return parseIndexMask(s, func(i int) gpu.DeviceMask { return 1 << uint(i) })
}

func parseIndexMask[M ~uint64](s string, bit func(int) M) (M, error) {
	var mask M
	for _, tok := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			return 0, errtag.Wrap(errtag.Setup, "orchestrate: parsing index mask", err)
		}
		mask |= bit(n)
	}
	return mask, nil
}

// newCPUReader constructs the platform-appropriate CPU energy reader:
// internal/rapl on x86_64, internal/occ on ppc64le. GOARCH, not the
// target binary's ELF machine type, decides this, since the reader
// samples the host's own sensors regardless of what architecture the
// traced binary was built for.
func newCPUReader(locMask energy.LocationMask, sockMask energy.SocketMask) (energy.Reader, error) {
	switch runtime.GOARCH {
	case "amd64":
		return rapl.New(locMask, sockMask)
	case "ppc64le":
		return occ.New(locMask)
	default:
		return nil, errtag.New(errtag.Setup, "orchestrate: unsupported host architecture "+runtime.GOARCH)
	}
}

// newGPUReader constructs the GPU reader via internal/gpu.New's own
// NVML-then-ROCm-then-noop probing.
func newGPUReader(deviceMask gpu.DeviceMask) (energy.Reader, error) {
	return gpu.New(gpu.KindPower|gpu.KindEnergy, deviceMask)
}

// selectReaders builds the energy.Reader set a section's Targets list
// names: a single reader is returned as is, and several are combined
// into one energy.Hybrid so a single sampler factory can drive all of
// them together.
func selectReaders(targets []string, cpu, gpuReader energy.Reader) (energy.Reader, error) {
	var children []energy.Reader
	for _, t := range targets {
		switch strings.TrimSpace(t) {
		case "cpu":
			if cpu == nil {
				return nil, errtag.New(errtag.Setup, "orchestrate: section targets cpu but no CPU reader is available")
			}
			children = append(children, cpu)
		case "gpu":
			if gpuReader == nil {
				return nil, errtag.New(errtag.Setup, "orchestrate: section targets gpu but no GPU reader is available")
			}
			children = append(children, gpuReader)
		default:
			return nil, errtag.New(errtag.Setup, "orchestrate: unknown target "+t)
		}
	}
	if len(children) == 0 {
		return nil, errtag.New(errtag.Setup, "orchestrate: section names no targets")
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return energy.NewHybrid(children...), nil
}
