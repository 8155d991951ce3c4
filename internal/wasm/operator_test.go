package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodes_tableCoversCoreInstructions(t *testing.T) {
	for _, op := range []Opcode{
		OpcodeUnreachable, OpcodeBlock, OpcodeLoop, OpcodeIf, OpcodeEnd,
		OpcodeCall, OpcodeCallIndirect, OpcodeLocalGet, OpcodeGlobalSet,
		OpcodeI32Load, OpcodeI32Store, OpcodeI32Const, OpcodeI32Add,
	} {
		info, ok := Opcodes[op]
		require.True(t, ok, "opcode 0x%x missing from table", byte(op))
		require.NotEmpty(t, info.Name)
	}
}

func TestNaturalAlignment(t *testing.T) {
	require.Equal(t, uint32(2), NaturalAlignment(OpcodeI32Load))
	require.Equal(t, uint32(3), NaturalAlignment(OpcodeI64Load))
	require.Equal(t, uint32(0), NaturalAlignment(OpcodeI32Load8S))
	require.Equal(t, uint32(1), NaturalAlignment(OpcodeI32Load16U))
}

func TestIsMemoryAccess(t *testing.T) {
	require.True(t, IsMemoryAccess(OpcodeI32Load))
	require.True(t, IsMemoryAccess(OpcodeI64Store32))
	require.False(t, IsMemoryAccess(OpcodeI32Add))
	require.False(t, IsMemoryAccess(OpcodeNop))
}

func TestOpInfo_binOpSignature(t *testing.T) {
	info := Opcodes[OpcodeI32Add]
	require.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32}, info.Signature.Pop)
	require.True(t, info.Signature.HasPush)
	require.Equal(t, ValueTypeI32, info.Signature.Push)
}

func TestOpInfo_polymorphicOpsHaveNoStaticSignature(t *testing.T) {
	info := Opcodes[OpcodeBlock]
	require.True(t, info.Polymorphic)
}
