package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeConstExprI32_roundTripsThroughEval(t *testing.T) {
	expr := EncodeConstExprI32(-7)
	require.Equal(t, OpcodeI32Const, expr.Opcode)

	v, ok := EvalConstExprI32(expr, nil)
	require.True(t, ok)
	require.Equal(t, int32(-7), v)
}

func TestEvalConstExprI32_globalGetResolvesThroughCallback(t *testing.T) {
	expr := ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0x02}}
	resolve := func(idx Index) (int32, bool) {
		if idx == 2 {
			return 100, true
		}
		return 0, false
	}
	v, ok := EvalConstExprI32(expr, resolve)
	require.True(t, ok)
	require.Equal(t, int32(100), v)
}

func TestEvalConstExprI32_globalGetWithoutResolverFails(t *testing.T) {
	expr := ConstantExpression{Opcode: OpcodeGlobalGet, Data: []byte{0x00}}
	_, ok := EvalConstExprI32(expr, nil)
	require.False(t, ok)
}

func TestEvalConstExprI32_unsupportedOpcode(t *testing.T) {
	expr := ConstantExpression{Opcode: OpcodeF32Const, Data: []byte{0, 0, 0, 0}}
	_, ok := EvalConstExprI32(expr, nil)
	require.False(t, ok)
}
