//go:build nvml

package gpu

import "github.com/aclements/nrgprof/energy"

func probeNVML(kindMask Kind, deviceMask DeviceMask) (energy.Reader, error, bool) {
	r, err := NewNVML(kindMask, deviceMask)
	if err != nil {
		return nil, err, true
	}
	return r, nil, true
}
