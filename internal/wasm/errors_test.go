package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeError_constructorsSetKindAndOffset(t *testing.T) {
	err := NewMalformedError(7, "bad byte %d", 42)
	require.Equal(t, Malformed, err.Kind)
	require.Equal(t, uint64(7), err.Offset)
	require.Equal(t, "bad byte 42", err.Error())

	require.Equal(t, OutOfRange, NewOutOfRangeError(0, "x").Kind)
	require.Equal(t, Mismatch, NewMismatchError(0, "x").Kind)
}

func TestDecodeErrorKind_String(t *testing.T) {
	require.Equal(t, "malformed", Malformed.String())
	require.Equal(t, "out of range", OutOfRange.String())
	require.Equal(t, "mismatch", Mismatch.String())
	require.Equal(t, "unknown", DecodeErrorKind(99).String())
}

func TestValidationError_moduleErrHasNoFuncContext(t *testing.T) {
	err := moduleErr(BadIndex, "index %d bad", 3)
	require.Equal(t, BadIndex, err.Kind)
	require.False(t, err.HasFunc)
	require.Equal(t, "index 3 bad", err.Error())
}

func TestValidationError_funcErrCarriesFuncAndOffset(t *testing.T) {
	err := funcErr(StackUnderflow, 2, 15, "stack underflow")
	require.True(t, err.HasFunc)
	require.Equal(t, Index(2), err.FuncIndex)
	require.Equal(t, uint64(15), err.Offset)
}
