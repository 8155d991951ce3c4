package wasm

import (
	"github.com/wasmhost/wasmgate/internal/leb128"
)

func decodeLEB128Int32(data []byte) (int32, uint64, error) {
	return leb128.LoadInt32(data)
}

func decodeLEB128Uint32(data []byte) (uint32, uint64, error) {
	return leb128.LoadUint32(data)
}

// EncodeConstExprI32 builds the ConstantExpression for an i32.const
// initializer, the common case for segment bases.
func EncodeConstExprI32(v int32) ConstantExpression {
	return ConstantExpression{Opcode: OpcodeI32Const, Data: leb128.EncodeInt32(v)}
}

// EvalConstExprI32 evaluates a constant expression known to produce an i32,
// resolving an imported-global reference through resolveGlobal (typically
// backed by a module's already-validated immutable imported globals).
func EvalConstExprI32(expr ConstantExpression, resolveGlobal func(Index) (int32, bool)) (int32, bool) {
	switch expr.Opcode {
	case OpcodeI32Const:
		v, _, err := leb128.LoadInt32(expr.Data)
		return v, err == nil
	case OpcodeGlobalGet:
		idx, _, err := leb128.LoadUint32(expr.Data)
		if err != nil || resolveGlobal == nil {
			return 0, false
		}
		return resolveGlobal(idx)
	default:
		return 0, false
	}
}
