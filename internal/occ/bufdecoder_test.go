package occ

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufDecoderIntegers(t *testing.T) {
	buf := []byte{
		0x01,       // u8
		0x02, 0x03, // u16
		0x04, 0x05, 0x06, 0x07, // u32
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x08, // u64
	}
	d := &bufDecoder{buf: buf}

	assert.Equal(t, uint8(0x01), d.u8())
	assert.Equal(t, uint16(0x0203), d.u16())
	assert.Equal(t, uint32(0x04050607), d.u32())
	assert.Equal(t, uint64(0x08), d.u64())
	assert.Empty(t, d.buf)
}

func TestBufDecoderSkipAndBytes(t *testing.T) {
	d := &bufDecoder{buf: []byte{0xAA, 0xBB, 0xCC, 0xDD}}

	d.skip(1)
	got := d.bytes(2)
	assert.Equal(t, []byte{0xBB, 0xCC}, got)
	assert.Equal(t, []byte{0xDD}, d.buf)
}

func TestBufDecoderCstrTrimsTrailingNULs(t *testing.T) {
	d := &bufDecoder{buf: []byte{'v', 'r', 'm', 0, 0, 0}}
	assert.Equal(t, "vrm", d.cstr(6))
	assert.Empty(t, d.buf)
}

func TestBufDecoderCstrNoTrailingNUL(t *testing.T) {
	d := &bufDecoder{buf: []byte{'c', 'p', 'u'}}
	assert.Equal(t, "cpu", d.cstr(3))
}
