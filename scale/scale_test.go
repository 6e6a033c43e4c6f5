package scale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearOf(t *testing.T) {
	s := NewLinear([]float64{0, 10, 5})

	assert.Equal(t, 0.0, s.Of(0))
	assert.Equal(t, 1.0, s.Of(10))
	assert.Equal(t, 0.5, s.Of(5))
}

func TestOutputScaleCrop(t *testing.T) {
	s := NewOutputScale(100, 200)

	v, ok := s.Of(0.5)
	assert.True(t, ok)
	assert.Equal(t, 150.0, v)

	_, ok = s.Of(1.5)
	assert.False(t, ok)
}

func TestOutputScaleClamp(t *testing.T) {
	s := NewOutputScale(100, 200)
	s.Clamp()

	v, ok := s.Of(1.5)
	assert.True(t, ok)
	assert.Equal(t, 200.0, v)

	v, ok = s.Of(-0.5)
	assert.True(t, ok)
	assert.Equal(t, 100.0, v)
}

func TestOutputScaleUnclamp(t *testing.T) {
	s := NewOutputScale(0, 1)
	s.Unclamp()

	v, ok := s.Of(2)
	assert.True(t, ok)
	assert.Equal(t, 2.0, v)
}
