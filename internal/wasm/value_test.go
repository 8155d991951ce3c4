package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueType_StringAndValid(t *testing.T) {
	require.Equal(t, "i32", ValueTypeI32.String())
	require.Equal(t, "f64", ValueTypeF64.String())
	require.True(t, ValueTypeI64.IsValid())
	require.False(t, ValueType(0x00).IsValid())
	require.Contains(t, ValueType(0x00).String(), "0x")
}

func TestResultType_ArityAndAsValueType(t *testing.T) {
	require.Equal(t, 0, ResultTypeNone.Arity())
	require.Equal(t, 1, ResultTypeI32.Arity())
	require.Equal(t, "", ResultTypeNone.String())
	require.Equal(t, "f32", ResultTypeF32.String())

	v, ok := ResultTypeI64.AsValueType()
	require.True(t, ok)
	require.Equal(t, ValueTypeI64, v)

	_, ok = ResultTypeNone.AsValueType()
	require.False(t, ok)
}

func TestValueTypeToResultType(t *testing.T) {
	require.Equal(t, ResultTypeF64, ValueTypeToResultType(ValueTypeF64))
}

func TestResultType_IsValid(t *testing.T) {
	require.True(t, ResultTypeNone.IsValid())
	require.True(t, ResultTypeI32.IsValid())
	require.False(t, ResultType(0x01).IsValid())
}
