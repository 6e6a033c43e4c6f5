package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
)

// countingReader returns a monotonically increasing single-valued
// reading on every Read, to make it easy to tell readings apart.
type countingReader struct {
	n int
}

func (r *countingReader) Read() (energy.Reading, error) {
	r.n++
	return energy.Reading{At: time.Now(), Values: []float64{float64(r.n)}}, nil
}

func (r *countingReader) ValueAt(reading energy.Reading, loc energy.Location) (energy.Quantity, bool) {
	return energy.Quantity{Value: reading.Values[0]}, true
}

func (r *countingReader) Width() int   { return 1 }
func (r *countingReader) Close() error { return nil }

type erroringReader struct{}

func (erroringReader) Read() (energy.Reading, error) {
	return energy.Reading{}, errtag.New(errtag.Read, "sampler: fake read failure")
}
func (erroringReader) ValueAt(energy.Reading, energy.Location) (energy.Quantity, bool) {
	return energy.Quantity{}, false
}
func (erroringReader) Width() int   { return 1 }
func (erroringReader) Close() error { return nil }

func TestShortTakesExactlyTwoReadings(t *testing.T) {
	r := &countingReader{}
	s := NewShort(r)

	require.NoError(t, s.Start())
	readings, err := s.Stop()
	require.NoError(t, err)

	require.Len(t, readings, 2)
	assert.Equal(t, 1.0, readings[0].Values[0])
	assert.Equal(t, 2.0, readings[1].Values[0])
}

func TestShortPropagatesStartError(t *testing.T) {
	s := NewShort(erroringReader{})
	assert.Error(t, s.Start())
}

func TestBoundedKeepsOnlyFirstAndLast(t *testing.T) {
	r := &countingReader{}
	s := NewBounded(r, 5*time.Millisecond)

	require.NoError(t, s.Start())
	time.Sleep(30 * time.Millisecond)
	readings, err := s.Stop()
	require.NoError(t, err)

	require.Len(t, readings, 2)
	assert.Equal(t, readings[0].Values[0], float64(1))
	assert.Greater(t, readings[1].Values[0], readings[0].Values[0])
}

func TestUnboundedKeepsEveryReading(t *testing.T) {
	r := &countingReader{}
	s := NewUnbounded(r, 5*time.Millisecond, 8)

	require.NoError(t, s.Start())
	time.Sleep(30 * time.Millisecond)
	readings, err := s.Stop()
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(readings), 2)
	for i := 1; i < len(readings); i++ {
		assert.Greater(t, readings[i].Values[0], readings[i-1].Values[0])
	}
}

func TestPeriodicStartPropagatesReaderError(t *testing.T) {
	s := NewUnbounded(erroringReader{}, time.Millisecond, 4)
	require.Error(t, s.Start())
}
