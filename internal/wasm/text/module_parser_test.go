package text

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmhost/wasmgate/internal/wasm"
)

func TestParseModule_emptyModule(t *testing.T) {
	m, errs := ParseModule([]byte(`(module)`))
	require.Empty(t, errs)
	require.NotNil(t, m)
	require.Equal(t, 0, len(m.TypeSection))
}

func TestParseModule_simpleAddFunction(t *testing.T) {
	src := `(module
      (func $add (param $a i32) (param $b i32) (result i32)
        local.get $a
        local.get $b
        i32.add))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	require.Equal(t, 1, len(m.TypeSection))
	require.Equal(t, []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, m.TypeSection[0].Params)
	require.Equal(t, wasm.ResultTypeI32, m.TypeSection[0].Results)
	require.Equal(t, 1, len(m.CodeSection))

	wantBody := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32Add),
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, wantBody, m.CodeSection[0].Body)
}

func TestParseModule_exportAndImport(t *testing.T) {
	src := `(module
      (import "env" "double" (func $double (param i32) (result i32)))
      (func $run (export "run") (param i32) (result i32)
        local.get 0
        call $double))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	require.Equal(t, wasm.Index(1), m.ImportedFunctionCount())
	exp, ok := m.ExportSection["run"]
	require.True(t, ok)
	require.Equal(t, wasm.Index(1), exp.Index) // index 0 is the import

	wantBody := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeCall), 0,
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, wantBody, m.CodeSection[0].Body)
}

func TestParseModule_blockWithLabelAndBranch(t *testing.T) {
	src := `(module
      (func $f (result i32)
        block $done (result i32)
          i32.const 1
          br $done
          i32.const 2
        end))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	wantBody := []byte{
		byte(wasm.OpcodeBlock), byte(wasm.ValueTypeI32),
		byte(wasm.OpcodeI32Const), 1,
		byte(wasm.OpcodeBr), 0,
		byte(wasm.OpcodeI32Const), 2,
		byte(wasm.OpcodeEnd),
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, wantBody, m.CodeSection[0].Body)
}

func TestParseModule_globalAndMemoryWithOffset(t *testing.T) {
	src := `(module
      (memory 1)
      (global $g (mut i32) (i32.const 5))
      (data (i32.const 0) "hi"))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	require.Equal(t, 1, len(m.GlobalSection))
	require.True(t, m.GlobalSection[0].Type.Mutable)
	require.Equal(t, 1, len(m.DataSection))
	require.Equal(t, []byte("hi"), m.DataSection[0].Init)
}

func TestParseModule_undefinedLocalIsError(t *testing.T) {
	src := `(module (func (result i32) local.get $missing))`
	_, errs := ParseModule([]byte(src))
	require.NotEmpty(t, errs)
}

func TestParseModule_foldedConstBody(t *testing.T) {
	src := `(module (func (result i32) (i32.const 42)))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	wantBody := []byte{
		byte(wasm.OpcodeI32Const), 42,
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, wantBody, m.CodeSection[0].Body)
}

func TestParseModule_foldedNestedOperands(t *testing.T) {
	src := `(module
      (func (param i32) (param i32) (result i32)
        (i32.add (local.get 0) (local.get 1))))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	wantBody := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32Add),
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, wantBody, m.CodeSection[0].Body)
}

func TestParseModule_foldedBlockForm(t *testing.T) {
	src := `(module
      (func (result i32)
        (block (result i32)
          (i32.const 1)
          (br 0))))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	wantBody := []byte{
		byte(wasm.OpcodeBlock), byte(wasm.ValueTypeI32),
		byte(wasm.OpcodeI32Const), 1,
		byte(wasm.OpcodeBr), 0,
		byte(wasm.OpcodeEnd),
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, wantBody, m.CodeSection[0].Body)
}

func TestParseModule_flatAndFoldedInstructionsMixFreely(t *testing.T) {
	src := `(module
      (func (param i32) (param i32) (result i32)
        local.get 0
        (i32.add (local.get 1) (i32.const 1))))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	wantBody := []byte{
		byte(wasm.OpcodeLocalGet), 0,
		byte(wasm.OpcodeLocalGet), 1,
		byte(wasm.OpcodeI32Const), 1,
		byte(wasm.OpcodeI32Add),
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, wantBody, m.CodeSection[0].Body)
}

func TestParseModule_foldedIfIsRejected(t *testing.T) {
	src := `(module
      (func (result i32)
        (if (result i32) (i32.const 1) (then (i32.const 2)) (else (i32.const 3)))))`
	_, errs := ParseModule([]byte(src))
	require.NotEmpty(t, errs)
}

func TestParseModule_memorySizeAndGrowEncodeReservedByte(t *testing.T) {
	src := `(module
      (memory 1)
      (func (result i32)
        memory.size
        memory.grow))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	wantBody := []byte{
		byte(wasm.OpcodeMemorySize), 0,
		byte(wasm.OpcodeMemoryGrow), 0,
		byte(wasm.OpcodeEnd),
	}
	require.Equal(t, wantBody, m.CodeSection[0].Body)
}

func TestParseModule_memArgOffsetAndAlign(t *testing.T) {
	src := `(module
      (memory 1)
      (func (param i32) (result i32)
        local.get 0
        i32.load offset=4 align=4))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	body := m.CodeSection[0].Body
	require.Equal(t, byte(wasm.OpcodeLocalGet), body[0])
	require.Equal(t, byte(wasm.OpcodeI32Load), body[2])
	// align=4 bytes -> log2 == 2, offset=4 -> single LEB128 byte 4.
	require.Equal(t, byte(2), body[3])
	require.Equal(t, byte(4), body[4])
}
