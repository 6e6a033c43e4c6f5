package energy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocationMaskHas(t *testing.T) {
	m := LocationMask(0)
	m |= 1 << LocPackage
	m |= 1 << LocDRAM

	assert.True(t, m.Has(LocPackage))
	assert.True(t, m.Has(LocDRAM))
	assert.False(t, m.Has(LocCores))
	assert.False(t, m.Has(LocGPURail))
}

func TestSocketMaskHas(t *testing.T) {
	m := SocketMask(1<<0 | 1<<3)

	assert.True(t, m.Has(0))
	assert.True(t, m.Has(3))
	assert.False(t, m.Has(1))
	assert.False(t, m.Has(-1))
	assert.False(t, m.Has(64))
}

func TestRatioApply(t *testing.T) {
	assert.Equal(t, 2.0, Microjoules.Apply(2_000_000))
	assert.Equal(t, 5.0, Milliwatts.Apply(5_000))

	zero := Ratio{}
	assert.Equal(t, 7.0, zero.Apply(7))
}

func TestReadingSub(t *testing.T) {
	a := Reading{Values: []float64{10, 20}}
	b := Reading{Values: []float64{4, 5}}

	got := a.Sub(b)
	assert.Equal(t, []float64{6, 15}, got.Values)
}

func TestReadingSubPanicsOnLengthMismatch(t *testing.T) {
	a := Reading{Values: []float64{1, 2}}
	b := Reading{Values: []float64{1}}

	assert.Panics(t, func() { a.Sub(b) })
}

func TestReadingScaleBy(t *testing.T) {
	a := Reading{Values: []float64{2, 4}}
	got := a.ScaleBy(1.5)
	assert.Equal(t, []float64{3, 6}, got.Values)
}

func TestReadingEqual(t *testing.T) {
	a := Reading{Values: []float64{1, 2, 3}}
	b := Reading{Values: []float64{1, 2, 3}}
	c := Reading{Values: []float64{1, 2, 4}}
	d := Reading{Values: []float64{1, 2}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}
