package skerr

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customErr struct{ name string }

func (c *customErr) Error() string { return "custom " + c.name }

func TestWrap_NilError_ReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}

func TestWrap_PlainError_AddsCallStack(t *testing.T) {
	err := Wrap(io.EOF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EOF. At skerr/skerr_test.go")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, io.EOF, Unwrap(err))
}

func TestWrapf_NestedContext_OutermostFirst(t *testing.T) {
	err := Wrapf(Wrapf(io.EOF, "reading %s", "DEPS"), "resolving %s", "chromium")
	assert.Contains(t, err.Error(), "resolving chromium: reading DEPS: EOF")
	assert.Equal(t, io.EOF, Unwrap(err))
}

func TestFmt_WithVerbW_SupportsErrorsAs(t *testing.T) {
	err := Fmt("while frobbing: %w", &customErr{name: "x"})
	var ce *customErr
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "x", ce.name)
}

func TestWrap_AlreadyWrapped_ReturnsSameError(t *testing.T) {
	err := Fmt("boom")
	assert.Same(t, err, Wrap(err))
}
