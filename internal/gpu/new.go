package gpu

import "github.com/aclements/nrgprof/energy"

// New selects the best available GPU backend: NVML when built with the
// "nvml" tag, else ROCm via sysfs, else NopReader. A build with NVML
// compiled in that fails to initialize or probe devices at runtime
// reports that failure rather than silently falling back to ROCm or
// the no-op reader, since the fallback chain is for backends that
// aren't compiled in, not for a compiled-in backend that errored.
func New(kindMask Kind, deviceMask DeviceMask) (energy.Reader, error) {
	if r, err, ok := probeNVML(kindMask, deviceMask); ok {
		return r, err
	}
	if r, err := NewROCm(deviceMask); err == nil {
		return r, nil
	}
	return NopReader{}, nil
}
