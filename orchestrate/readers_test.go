package orchestrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/nrgprof/energy"
)

func TestParseLocationMask(t *testing.T) {
	mask, err := parseLocationMask("")
	require.NoError(t, err)
	assert.True(t, mask.Has(energy.LocPackage))
	assert.True(t, mask.Has(energy.LocGPURail))

	mask, err = parseLocationMask("package, dram")
	require.NoError(t, err)
	assert.True(t, mask.Has(energy.LocPackage))
	assert.True(t, mask.Has(energy.LocDRAM))
	assert.False(t, mask.Has(energy.LocCores))

	_, err = parseLocationMask("bogus")
	assert.Error(t, err)
}

func TestParseSocketMask(t *testing.T) {
	mask, err := parseSocketMask("0,2")
	require.NoError(t, err)
	assert.True(t, mask.Has(0))
	assert.True(t, mask.Has(2))
	assert.False(t, mask.Has(1))

	mask, err = parseSocketMask("")
	require.NoError(t, err)
	assert.True(t, mask.Has(0))
	assert.True(t, mask.Has(63))

	_, err = parseSocketMask("notanumber")
	assert.Error(t, err)
}

func TestSelectReaders(t *testing.T) {
	cpu := &fakeReader{}
	gpu := &fakeReader{}

	r, err := selectReaders([]string{"cpu"}, cpu, gpu)
	require.NoError(t, err)
	assert.Same(t, cpu, r)

	r, err = selectReaders([]string{"cpu", "gpu"}, cpu, gpu)
	require.NoError(t, err)
	_, ok := r.(*energy.Hybrid)
	assert.True(t, ok)

	_, err = selectReaders([]string{"gpu"}, cpu, nil)
	assert.Error(t, err)

	_, err = selectReaders(nil, cpu, gpu)
	assert.Error(t, err)

	_, err = selectReaders([]string{"tpu"}, cpu, gpu)
	assert.Error(t, err)
}

type fakeReader struct{}

func (f *fakeReader) Read() (energy.Reading, error) { return energy.Reading{}, nil }
func (f *fakeReader) ValueAt(r energy.Reading, loc energy.Location) (energy.Quantity, bool) {
	return energy.Quantity{}, false
}
func (f *fakeReader) Width() int   { return 1 }
func (f *fakeReader) Close() error { return nil }
