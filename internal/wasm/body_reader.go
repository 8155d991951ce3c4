package wasm

import (
	"io"

	"github.com/wasmhost/wasmgate/internal/leb128"
)

// bodyReader walks a function's operator stream directly, the
// representation the decoder stores it in, rather than building a
// parallel AST. Every read tracks the byte offset at which it started,
// used to attribute validator errors to a precise location.
type bodyReader struct {
	data []byte
	pos  int
}

func (r *bodyReader) offset() uint64 { return uint64(r.pos) }
func (r *bodyReader) done() bool     { return r.pos >= len(r.data) }

func (r *bodyReader) readByte() (byte, error) {
	if r.done() {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *bodyReader) readU32() (uint32, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v, n, err := leb128.LoadUint32(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += int(n)
	return v, nil
}

func (r *bodyReader) readI32() (int32, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v, n, err := leb128.LoadInt32(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += int(n)
	return v, nil
}

func (r *bodyReader) readI64() (int64, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v, n, err := leb128.LoadInt64(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += int(n)
	return v, nil
}

func (r *bodyReader) readRaw(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// readBlockType reads the MVP block-type immediate: a single byte, either
// 0x40 (no result) or a value type.
func (r *bodyReader) readBlockType() (ResultType, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	if b == 0x40 {
		return ResultTypeNone, nil
	}
	vt := ValueType(b)
	if !vt.IsValid() {
		return 0, NewMalformedError(r.offset(), "invalid block type 0x%x", b)
	}
	return ValueTypeToResultType(vt), nil
}

// readMemArg reads a load/store's alignment (log2) and offset immediates.
func (r *bodyReader) readMemArg() (alignLog2, offset uint32, err error) {
	alignLog2, err = r.readU32()
	if err != nil {
		return 0, 0, err
	}
	offset, err = r.readU32()
	return alignLog2, offset, err
}

// readBrTable reads br_table's vector of target depths plus its default.
func (r *bodyReader) readBrTable() (targets []uint32, defaultTarget uint32, err error) {
	count, err := r.readU32()
	if err != nil {
		return nil, 0, err
	}
	targets = make([]uint32, count)
	for i := range targets {
		targets[i], err = r.readU32()
		if err != nil {
			return nil, 0, err
		}
	}
	defaultTarget, err = r.readU32()
	return targets, defaultTarget, err
}
