package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceMaskHas(t *testing.T) {
	m := DeviceMask(1<<0 | 1<<2)

	assert.True(t, m.Has(0))
	assert.True(t, m.Has(2))
	assert.False(t, m.Has(1))
	assert.False(t, m.Has(-1))
	assert.False(t, m.Has(64))
}

func TestNopReaderReportsNoEvents(t *testing.T) {
	var r NopReader

	assert.Equal(t, 0, r.Width())

	reading, err := r.Read()
	require.NoError(t, err)
	assert.Empty(t, reading.Values)

	_, ok := r.ValueAt(reading, 0)
	assert.False(t, ok)

	assert.NoError(t, r.Close())
}
