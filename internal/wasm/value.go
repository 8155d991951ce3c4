package wasm

import "fmt"

// ValueType is one of the four WebAssembly MVP value types. The numeric
// values match the binary encoding's type tags.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// String returns the canonical textual name used by the WAST printer and
// by error messages.
func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	default:
		return fmt.Sprintf("0x%x", byte(v))
	}
}

// IsValid reports whether v is one of the four MVP value types.
func (v ValueType) IsValid() bool {
	switch v {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return true
	default:
		return false
	}
}

// ResultType is either "none" or a single ValueType: the MVP grammar never
// allows a function or block to produce more than one value.
type ResultType byte

const (
	ResultTypeNone ResultType = 0
	ResultTypeI32  ResultType = ResultType(ValueTypeI32)
	ResultTypeI64  ResultType = ResultType(ValueTypeI64)
	ResultTypeF32  ResultType = ResultType(ValueTypeF32)
	ResultTypeF64  ResultType = ResultType(ValueTypeF64)
)

// String returns the canonical textual name, or "" for ResultTypeNone.
func (r ResultType) String() string {
	if r == ResultTypeNone {
		return ""
	}
	return ValueType(r).String()
}

// Arity returns the number of values a result type produces: 0 or 1.
func (r ResultType) Arity() int {
	if r == ResultTypeNone {
		return 0
	}
	return 1
}

// AsValueType narrows a ResultType to a ValueType. ok is false for
// ResultTypeNone, which has no corresponding value type.
func (r ResultType) AsValueType() (v ValueType, ok bool) {
	if r == ResultTypeNone {
		return 0, false
	}
	return ValueType(r), true
}

// ValueTypeToResultType widens a ValueType to the ResultType that produces
// exactly that value.
func ValueTypeToResultType(v ValueType) ResultType {
	return ResultType(v)
}

// IsValid reports whether r is none or one of the four MVP value types.
func (r ResultType) IsValid() bool {
	return r == ResultTypeNone || ValueType(r).IsValid()
}
