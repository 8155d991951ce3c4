package binary

import (
	"bytes"

	"github.com/wasmhost/wasmgate/internal/leb128"
	"github.com/wasmhost/wasmgate/internal/wasm"
)

// writer accumulates an encoded module (or a section's payload, encoded
// separately so its length prefix can be computed) into a growable
// buffer.
type writer struct {
	buf bytes.Buffer
}

func newWriter() *writer { return &writer{} }

func (w *writer) Bytes() []byte { return w.buf.Bytes() }
func (w *writer) Len() int      { return w.buf.Len() }

func (w *writer) writeByte(b byte)         { w.buf.WriteByte(b) }
func (w *writer) writeBytes(b []byte)      { w.buf.Write(b) }
func (w *writer) writeU32(v uint32)        { w.buf.Write(leb128.EncodeUint32(v)) }
func (w *writer) writeU64(v uint64)        { w.buf.Write(leb128.EncodeUint64(v)) }
func (w *writer) writeI32(v int32)         { w.buf.Write(leb128.EncodeInt32(v)) }
func (w *writer) writeI64(v int64)         { w.buf.Write(leb128.EncodeInt64(v)) }

func (w *writer) writeName(s string) {
	w.writeU32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) writeValueType(v wasm.ValueType) { w.writeByte(byte(v)) }

func (w *writer) writeResultType(r wasm.ResultType) {
	if vt, ok := r.AsValueType(); ok {
		w.writeU32(1)
		w.writeValueType(vt)
		return
	}
	w.writeU32(0)
}

func (w *writer) writeLimits(l wasm.Limits) {
	if l.Max != nil {
		w.writeByte(1)
		w.writeU32(l.Min)
		w.writeU32(*l.Max)
		return
	}
	w.writeByte(0)
	w.writeU32(l.Min)
}

// writeSection frames payload under id, skipping it entirely when empty:
// the binary format omits sections with nothing to say.
func (w *writer) writeSection(id byte, payload []byte) {
	if len(payload) == 0 {
		return
	}
	w.writeByte(id)
	w.writeU32(uint32(len(payload)))
	w.writeBytes(payload)
}
