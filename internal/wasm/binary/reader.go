// Package binary implements the WebAssembly MVP binary module format: a
// decoder from bytes to wasm.Module and an encoder in the other
// direction. Both share the same section framing and per-type codecs. A
// decode-then-encode round trip keeps the module's content but not always
// its exact bytes: the encoder writes LEB128 values in minimal form, omits
// empty sections, sorts exports by name, and writes custom sections after
// the data section with the name section last.
package binary

import (
	"io"

	"github.com/wasmhost/wasmgate/internal/leb128"
	"github.com/wasmhost/wasmgate/internal/wasm"
)

// reader wraps the module byte slice with a cursor, tracking the byte
// offset every decode error is reported against.
type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) offset() uint64 { return uint64(r.pos) }
func (r *reader) remaining() int { return len(r.data) - r.pos }
func (r *reader) eof() bool      { return r.pos >= len(r.data) }

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, wasm.NewMalformedError(r.offset(), "unexpected end of module")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n uint32) ([]byte, error) {
	if r.pos+int(n) > len(r.data) {
		return nil, wasm.NewMalformedError(r.offset(), "unexpected end of module reading %d bytes", n)
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *reader) readU32() (uint32, error) {
	v, n, err := leb128.LoadUint32(r.data[r.pos:])
	if err != nil {
		return 0, wasm.NewMalformedError(r.offset(), "malformed u32 leb128: %v", err)
	}
	r.pos += int(n)
	return v, nil
}

func (r *reader) readU64() (uint64, error) {
	v, n, err := leb128.LoadUint64(r.data[r.pos:])
	if err != nil {
		return 0, wasm.NewMalformedError(r.offset(), "malformed u64 leb128: %v", err)
	}
	r.pos += int(n)
	return v, nil
}

func (r *reader) readI32() (int32, error) {
	v, n, err := leb128.LoadInt32(r.data[r.pos:])
	if err != nil {
		return 0, wasm.NewMalformedError(r.offset(), "malformed s32 leb128: %v", err)
	}
	r.pos += int(n)
	return v, nil
}

func (r *reader) readI64() (int64, error) {
	v, n, err := leb128.LoadInt64(r.data[r.pos:])
	if err != nil {
		return 0, wasm.NewMalformedError(r.offset(), "malformed s64 leb128: %v", err)
	}
	r.pos += int(n)
	return v, nil
}

func (r *reader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) readValueType() (wasm.ValueType, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	vt := wasm.ValueType(b)
	if !vt.IsValid() {
		return 0, wasm.NewMalformedError(r.offset()-1, "invalid value type 0x%x", b)
	}
	return vt, nil
}

// readResultType decodes a vec(valtype) that the MVP grammar restricts to
// length 0 or 1, used wherever a result type appears (function types,
// block types in the future multi-value encoding).
func (r *reader) readResultType() (wasm.ResultType, error) {
	count, err := r.readU32()
	if err != nil {
		return 0, err
	}
	switch count {
	case 0:
		return wasm.ResultTypeNone, nil
	case 1:
		vt, err := r.readValueType()
		if err != nil {
			return 0, err
		}
		return wasm.ValueTypeToResultType(vt), nil
	default:
		return 0, wasm.NewMalformedError(r.offset(), "result arity %d exceeds the MVP limit of 1 (no multi-value)", count)
	}
}

func (r *reader) readLimits(cap uint32) (wasm.Limits, error) {
	flags, err := r.readByte()
	if err != nil {
		return wasm.Limits{}, err
	}
	if flags > 1 {
		return wasm.Limits{}, wasm.NewMalformedError(r.offset()-1, "invalid limits flag 0x%x", flags)
	}
	min, err := r.readU32()
	if err != nil {
		return wasm.Limits{}, err
	}
	l := wasm.Limits{Min: min}
	if flags == 1 {
		max, err := r.readU32()
		if err != nil {
			return wasm.Limits{}, err
		}
		l.Max = &max
	}
	if !l.IsValid(cap) {
		return wasm.Limits{}, wasm.NewOutOfRangeError(r.offset(), "limits min=%d max=%v exceed cap %d", l.Min, l.Max, cap)
	}
	return l, nil
}

// readVecCount reads a section's leading element-count LEB128, bounding it
// against the number of bytes actually remaining so a corrupt huge count
// fails fast instead of driving an enormous allocation.
func (r *reader) readVecCount() (uint32, error) {
	n, err := r.readU32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.remaining() && n > 0 {
		return 0, wasm.NewMalformedError(r.offset(), "vector count %d exceeds remaining input", n)
	}
	return n, nil
}

// byteReader adapts reader to io.ByteReader for callers (none currently
// in this package) that want the stdlib interface.
type byteReader struct{ r *reader }

func (b byteReader) ReadByte() (byte, error) { return b.r.readByte() }

var _ io.ByteReader = byteReader{}
