package errtag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFormatsCodeAndMessage(t *testing.T) {
	err := New(Setup, "no sockets found")
	assert.EqualError(t, err, "setup: no sockets found")
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(Read, "msg", nil))
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("file not found")
	err := Wrap(Read, "reading counter", cause)
	assert.EqualError(t, err, "read: reading counter: file not found")
	assert.ErrorIs(t, err, cause)
}

func TestWrapfFormatsMessage(t *testing.T) {
	cause := errors.New("bad header")
	err := Wrapf(Format, cause, "occ: decoding %s", "pong buffer")
	assert.EqualError(t, err, "format: occ: decoding pong buffer: bad header")
}

func TestWrapfNilIsNil(t *testing.T) {
	assert.NoError(t, Wrapf(Trace, nil, "anything"))
}

func TestCodeString(t *testing.T) {
	cases := map[Code]string{
		Setup:    "setup",
		Format:   "format",
		Read:     "read",
		Lookup:   "lookup",
		Trace:    "trace",
		Code(99): "unknown",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.String())
	}
}

func TestAsRecoversConcreteError(t *testing.T) {
	err := New(Lookup, "ambiguous symbol")
	var tagged *Error
	if assert.True(t, errors.As(err, &tagged)) {
		assert.Equal(t, Lookup, tagged.Code)
	}
}
