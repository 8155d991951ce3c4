package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func bytesOf(ops ...byte) []byte { return ops }

func moduleWithFunc(ft *FunctionType, locals []ValueType, body []byte) *Module {
	return &Module{
		TypeSection:     []*FunctionType{ft},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{LocalTypes: locals, Body: body}},
	}
}

func TestValidateFunc_emptyVoidBody(t *testing.T) {
	m := moduleWithFunc(&FunctionType{}, nil, bytesOf(byte(OpcodeEnd)))
	require.NoError(t, ValidateFunc(m, 0, Features{}))
}

func TestValidateFunc_constAndReturn(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	body := []byte{byte(OpcodeI32Const), 0x2a, byte(OpcodeEnd)}
	m := moduleWithFunc(ft, nil, body)
	require.NoError(t, ValidateFunc(m, 0, Features{}))
}

func TestValidateFunc_missingResult(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	m := moduleWithFunc(ft, nil, bytesOf(byte(OpcodeEnd)))
	err := ValidateFunc(m, 0, Features{})
	require.Error(t, err)
	require.Equal(t, StackUnderflow, err.(*ValidationError).Kind)
}

func TestValidateFunc_typeMismatch(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	body := []byte{byte(OpcodeI64Const), 0x00, byte(OpcodeEnd)}
	m := moduleWithFunc(ft, nil, body)
	err := ValidateFunc(m, 0, Features{})
	require.Error(t, err)
	require.Equal(t, TypeMismatch, err.(*ValidationError).Kind)
}

func TestValidateFunc_localGetSet(t *testing.T) {
	ft := &FunctionType{Params: []ValueType{ValueTypeI32}, Results: ResultTypeI32}
	body := []byte{
		byte(OpcodeLocalGet), 0x00,
		byte(OpcodeLocalTee), 0x00,
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	require.NoError(t, ValidateFunc(m, 0, Features{}))
}

func TestValidateFunc_blockWithResult(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	body := []byte{
		byte(OpcodeBlock), byte(ValueTypeI32),
		byte(OpcodeI32Const), 0x01,
		byte(OpcodeEnd),
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	require.NoError(t, ValidateFunc(m, 0, Features{}))
}

func TestValidateFunc_branchOutOfBlock(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	body := []byte{
		byte(OpcodeBlock), byte(ValueTypeI32),
		byte(OpcodeI32Const), 0x01,
		byte(OpcodeBr), 0x00,
		byte(OpcodeEnd),
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	require.NoError(t, ValidateFunc(m, 0, Features{}))
}

func TestValidateFunc_unreachableCodeIsPolymorphic(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	body := []byte{
		byte(OpcodeUnreachable),
		byte(OpcodeI64Add), // would be ill-typed if reachable, legal after unreachable
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	require.NoError(t, ValidateFunc(m, 0, Features{}))
}

func TestValidateFunc_ifWithoutElseMustBeVoid(t *testing.T) {
	ft := &FunctionType{}
	body := []byte{
		byte(OpcodeI32Const), 0x01,
		byte(OpcodeIf), byte(ValueTypeI32),
		byte(OpcodeI32Const), 0x01,
		byte(OpcodeEnd),
		byte(OpcodeDrop),
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	err := ValidateFunc(m, 0, Features{})
	require.Error(t, err)
	require.Equal(t, BranchTargetMismatch, err.(*ValidationError).Kind)
}

func TestValidateFunc_ifElseBalanced(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	body := []byte{
		byte(OpcodeI32Const), 0x01,
		byte(OpcodeIf), byte(ValueTypeI32),
		byte(OpcodeI32Const), 0x01,
		byte(OpcodeElse),
		byte(OpcodeI32Const), 0x02,
		byte(OpcodeEnd),
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	require.NoError(t, ValidateFunc(m, 0, Features{}))
}

func TestValidateFunc_callIndirectRequiresTable(t *testing.T) {
	ft := &FunctionType{}
	body := []byte{
		byte(OpcodeI32Const), 0x00,
		byte(OpcodeCallIndirect), 0x00, 0x00,
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	m.TypeSection = append(m.TypeSection, &FunctionType{})
	err := ValidateFunc(m, 0, Features{})
	require.Error(t, err)
	require.Equal(t, BadIndex, err.(*ValidationError).Kind)
}

func TestValidateFunc_loadRequiresMemory(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	body := []byte{
		byte(OpcodeI32Const), 0x00,
		byte(OpcodeI32Load), 0x02, 0x00,
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	err := ValidateFunc(m, 0, Features{})
	require.Error(t, err)
	require.Equal(t, BadIndex, err.(*ValidationError).Kind)
}

func TestValidateFunc_alignmentTooLarge(t *testing.T) {
	ft := &FunctionType{Results: ResultTypeI32}
	body := []byte{
		byte(OpcodeI32Const), 0x00,
		byte(OpcodeI32Load), 0x03, 0x00, // align 2**3 exceeds i32.load's natural alignment of 2**2
		byte(OpcodeEnd),
	}
	m := moduleWithFunc(ft, nil, body)
	m.MemorySection = []*MemoryType{{Limits{Min: 1}}}
	err := ValidateFunc(m, 0, Features{})
	require.Error(t, err)
	require.Equal(t, AlignmentTooLarge, err.(*ValidationError).Kind)
}

func TestValidateFunc_unterminatedFunction(t *testing.T) {
	ft := &FunctionType{}
	body := []byte{byte(OpcodeNop)}
	m := moduleWithFunc(ft, nil, body)
	err := ValidateFunc(m, 0, Features{})
	require.Error(t, err)
	require.Equal(t, UnterminatedFunction, err.(*ValidationError).Kind)
}

func TestValidateFunctions_continuesAfterError(t *testing.T) {
	badFt := &FunctionType{Results: ResultTypeI32}
	goodFt := &FunctionType{}
	m := &Module{
		TypeSection:     []*FunctionType{badFt, goodFt},
		FunctionSection: []Index{0, 1},
		CodeSection: []*Code{
			{Body: bytesOf(byte(OpcodeEnd))}, // missing i32 result
			{Body: bytesOf(byte(OpcodeEnd))}, // valid
		},
	}
	errs := ValidateFunctions(m, Features{})
	require.Len(t, errs, 1)
}

func TestValidateFunc_importedFunctionSkipsBody(t *testing.T) {
	m := &Module{
		TypeSection: []*FunctionType{{}},
		ImportSection: []*Import{
			{Type: ExternTypeFunc, Module: "env", Name: "f", DescFunc: 0},
		},
	}
	require.NoError(t, ValidateFunc(m, 0, Features{}))
}
