package schema

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := errorf(ErrMissingDefault, "device", "field b absent at 1").WithPath("b")
	assert.Equal(t, "device at b: missing default value: field b absent at 1", err.Error())

	err = NewError(ErrIO, "", "").WithCause(io.ErrUnexpectedEOF)
	assert.Equal(t, "byte codec failure: unexpected EOF", err.Error())
}

func TestErrorIs(t *testing.T) {
	err := NewError(ErrVersionTooNew, "t", "").WithCause(io.EOF)
	assert.ErrorIs(t, err, ErrVersionTooNew)
	assert.ErrorIs(t, err, io.EOF)
	assert.NotErrorIs(t, err, ErrMissingDefault)
	assert.Equal(t, ErrorCodeVersionTooNew, GetErrorCode(err))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrorCodeUnsupportedVariant, GetErrorCode(ErrUnsupportedVariant))
	assert.Equal(t, ErrorCodeIO, GetErrorCode(ErrIO))
	assert.Equal(t, ErrorCodeRegistryFrozen, GetErrorCode(errors.Join(errors.New("x"), ErrRegistryFrozen)))
	assert.Equal(t, ErrorCodeUnknownError, GetErrorCode(errors.New("x")))
}

func TestWrapError(t *testing.T) {
	wrapped := WrapError(io.ErrUnexpectedEOF, "t", "reading header")
	assert.Equal(t, ErrorCodeIO, wrapped.Code)
	assert.ErrorIs(t, wrapped, ErrIO)
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)

	orig := NewError(ErrMissingDefault, "t", "")
	assert.Same(t, orig, WrapError(orig, "other", "ignored"))
}

func TestAtPath(t *testing.T) {
	err := AtPath(io.ErrUnexpectedEOF, "inner", "B")
	err = AtPath(err, "inner", "[2]")
	err = AtPath(err, "outer", "Items")

	var schemaErr *Error
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "Items[2].B", schemaErr.Path)
	assert.Equal(t, "inner", schemaErr.Type)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	assert.NoError(t, AtPath(nil, "t", "x"))
}

func TestWithContext(t *testing.T) {
	err := NewError(ErrUnsupportedVersion, "t", "").WithContext("version", 7)
	assert.Equal(t, 7, err.Context["version"])
	assert.True(t, err.IsVersionMismatch())
	assert.False(t, NewError(ErrIO, "t", "").IsVersionMismatch())
}
