package plot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aclements/nrgprof/output"
)

func TestRenderPowerOverTimeNoSamples(t *testing.T) {
	var buf bytes.Buffer
	err := RenderPowerOverTime(nil, []string{"energy"}, 0, DefaultOptions, &buf)
	assert.Error(t, err)
	assert.Equal(t, 0, buf.Len())
}

func TestRenderPowerOverTimeMissingFont(t *testing.T) {
	samples := []output.Sample{
		{TimeNS: 0, Values: []float64{1.0}},
		{TimeNS: 1000, Values: []float64{2.0}},
	}
	opts := Options{Width: 100, Height: 100, FontPath: "/nonexistent/font.ttf"}

	var buf bytes.Buffer
	err := RenderPowerOverTime(samples, []string{"energy"}, 0, opts, &buf)
	assert.Error(t, err)
}
