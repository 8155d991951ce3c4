package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleModuleWithImportAndLocalFunc() *Module {
	m := &Module{
		TypeSection: []*FunctionType{
			{Params: []ValueType{ValueTypeI32}, Results: ResultTypeI32},
			{},
		},
		ImportSection: []*Import{
			{Type: ExternTypeFunc, Module: "env", Name: "log", DescFunc: 1},
			{Type: ExternTypeGlobal, Module: "env", Name: "base", DescGlobal: &GlobalType{ValType: ValueTypeI32}},
		},
		FunctionSection: []Index{0},
		CodeSection:     []*Code{{LocalTypes: []ValueType{ValueTypeI64}}},
		GlobalSection:   []*Global{{Type: &GlobalType{ValType: ValueTypeI32, Mutable: true}}},
	}
	return m
}

func TestModule_indexSpaceCounts(t *testing.T) {
	m := sampleModuleWithImportAndLocalFunc()
	require.Equal(t, Index(1), m.ImportedFunctionCount())
	require.Equal(t, Index(1), m.ImportedGlobalCount())
	require.Equal(t, Index(0), m.ImportedTableCount())
	require.Equal(t, Index(2), m.FunctionCount())
	require.Equal(t, Index(2), m.GlobalCount())
}

func TestModule_FunctionTypeIndexAcrossImportsAndDefinitions(t *testing.T) {
	m := sampleModuleWithImportAndLocalFunc()
	ti, ok := m.FunctionTypeIndex(0) // the import
	require.True(t, ok)
	require.Equal(t, Index(1), ti)

	ti, ok = m.FunctionTypeIndex(1) // the local definition
	require.True(t, ok)
	require.Equal(t, Index(0), ti)

	_, ok = m.FunctionTypeIndex(2)
	require.False(t, ok)
}

func TestModule_FunctionTypeOf(t *testing.T) {
	m := sampleModuleWithImportAndLocalFunc()
	ft, ok := m.FunctionTypeOf(1)
	require.True(t, ok)
	require.Equal(t, []ValueType{ValueTypeI32}, ft.Params)
}

func TestModule_GlobalTypeOf(t *testing.T) {
	m := sampleModuleWithImportAndLocalFunc()
	gt, ok := m.GlobalTypeOf(0) // imported
	require.True(t, ok)
	require.False(t, gt.Mutable)

	gt, ok = m.GlobalTypeOf(1) // local
	require.True(t, ok)
	require.True(t, gt.Mutable)

	_, ok = m.GlobalTypeOf(2)
	require.False(t, ok)
}

func TestModule_LocalTypes(t *testing.T) {
	m := sampleModuleWithImportAndLocalFunc()
	require.Nil(t, m.LocalTypes(0)) // imported function has no body

	types := m.LocalTypes(1)
	require.Equal(t, []ValueType{ValueTypeI32, ValueTypeI64}, types)
}

func TestModule_HasTableHasMemory(t *testing.T) {
	m := &Module{}
	require.False(t, m.HasTable())
	require.False(t, m.HasMemory())
	m.TableSection = []*TableType{{Limits: Limits{Min: 1}}}
	require.True(t, m.HasTable())
}

func TestModule_InternerLazyInit(t *testing.T) {
	m := &Module{}
	in1 := m.Interner()
	in2 := m.Interner()
	require.Same(t, in1, in2)
}
