package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeInterner_canonicalizesStructurallyEqualTypes(t *testing.T) {
	in := NewTypeInterner()
	a := in.Intern(&FunctionType{Params: []ValueType{ValueTypeI32}, Results: ResultTypeI32})
	b := in.Intern(&FunctionType{Params: []ValueType{ValueTypeI32}, Results: ResultTypeI32})
	require.Same(t, a, b)
	require.True(t, a.Equals(b))

	c := in.Intern(&FunctionType{Params: []ValueType{ValueTypeI64}, Results: ResultTypeI32})
	require.NotSame(t, a, c)
	require.False(t, a.Equals(c))
}

func TestFunctionType_String(t *testing.T) {
	ft := &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI64}, Results: ResultTypeF32}
	require.Equal(t, "(param i32 i64) (result f32)", ft.String())

	empty := &FunctionType{}
	require.Equal(t, "", empty.String())
}

func TestLimits_IsValid(t *testing.T) {
	max := uint32(10)
	require.True(t, Limits{Min: 1, Max: &max}.IsValid(100))
	require.False(t, Limits{Min: 20, Max: &max}.IsValid(100)) // min > max
	require.False(t, Limits{Min: 200}.IsValid(100))           // min > cap
	require.True(t, Limits{Min: 0}.IsValid(100))
}

func TestSubset(t *testing.T) {
	unbounded := Limits{Min: 1}
	bounded := func(min, max uint32) Limits { return Limits{Min: min, Max: &max} }

	require.True(t, Subset(unbounded, bounded(1, 5)))
	require.False(t, Subset(bounded(1, 5), unbounded)) // sub has no max, super does
	require.True(t, Subset(bounded(0, 10), bounded(2, 8)))
	require.False(t, Subset(bounded(0, 10), bounded(2, 20)))
	require.False(t, Subset(bounded(5, 10), bounded(1, 8))) // sub.min < super.min
}

func TestExternType_String(t *testing.T) {
	require.Equal(t, "func", ExternTypeFunc.String())
	require.Equal(t, "global", ExternTypeGlobal.String())
	require.Contains(t, ExternType(0xff).String(), "unknown")
}
