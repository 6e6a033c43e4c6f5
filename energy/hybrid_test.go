package energy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	width    int
	values   []float64
	at       time.Time
	readErr  error
	closed   bool
	closeErr error
	loc      Location
	hasLoc   bool
}

func (s *stubReader) Read() (Reading, error) {
	if s.readErr != nil {
		return Reading{}, s.readErr
	}
	return Reading{At: s.at, Values: s.values}, nil
}

func (s *stubReader) ValueAt(r Reading, loc Location) (Quantity, bool) {
	if s.hasLoc && loc == s.loc {
		return Quantity{Value: r.Values[0]}, true
	}
	return Quantity{}, false
}

func (s *stubReader) Width() int { return s.width }

func (s *stubReader) Close() error {
	s.closed = true
	return s.closeErr
}

func TestHybridReadConcatenatesAndTakesLatestTimestamp(t *testing.T) {
	t1 := time.Now()
	t2 := t1.Add(time.Second)

	cpu := &stubReader{width: 2, values: []float64{1, 2}, at: t1}
	gpu := &stubReader{width: 1, values: []float64{3}, at: t2}

	h := NewHybrid(cpu, gpu)
	assert.Equal(t, 3, h.Width())

	r, err := h.Read()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, r.Values)
	assert.Equal(t, t2, r.At)
}

func TestHybridReadPropagatesChildError(t *testing.T) {
	cpu := &stubReader{width: 1, values: []float64{1}}
	gpu := &stubReader{width: 1, readErr: errors.New("nvml down")}

	h := NewHybrid(cpu, gpu)
	_, err := h.Read()
	assert.Error(t, err)
}

func TestHybridValueAtFindsOwningChild(t *testing.T) {
	cpu := &stubReader{width: 1, values: []float64{42}, loc: LocPackage, hasLoc: true}
	gpu := &stubReader{width: 1, values: []float64{7}, loc: LocGPURail, hasLoc: true}

	h := NewHybrid(cpu, gpu)
	r := Reading{Values: []float64{42, 7}}

	q, ok := h.ValueAt(r, LocGPURail)
	require.True(t, ok)
	assert.Equal(t, 7.0, q.Value)

	_, ok = h.ValueAt(r, LocDRAM)
	assert.False(t, ok)
}

func TestHybridCloseReturnsFirstError(t *testing.T) {
	first := errors.New("first close failed")
	cpu := &stubReader{width: 1, closeErr: first}
	gpu := &stubReader{width: 1}

	h := NewHybrid(cpu, gpu)
	err := h.Close()
	assert.Same(t, first, err)
	assert.True(t, cpu.closed)
	assert.True(t, gpu.closed)
}
