package binary

import (
	"sort"

	"github.com/wasmhost/wasmgate/internal/wasm"
)

// EncodeModule serializes m back to the WebAssembly binary format.
// Known sections follow the spec's fixed id order, empty ones omitted.
// Custom sections other than "name" follow the data section in their
// stored order, and the name section, when present, comes last.
func EncodeModule(m *wasm.Module) []byte {
	w := newWriter()
	w.writeBytes(magic[:])
	w.writeBytes(version[:])

	w.writeSection(sectionType, encodeTypeSection(m))
	w.writeSection(sectionImport, encodeImportSection(m))
	w.writeSection(sectionFunction, encodeFunctionSection(m))
	w.writeSection(sectionTable, encodeTableSection(m))
	w.writeSection(sectionMemory, encodeMemorySection(m))
	w.writeSection(sectionGlobal, encodeGlobalSection(m))
	w.writeSection(sectionExport, encodeExportSection(m))
	if m.StartSection != nil {
		sw := newWriter()
		sw.writeU32(*m.StartSection)
		w.writeSection(sectionStart, sw.Bytes())
	}
	w.writeSection(sectionElement, encodeElementSection(m))
	w.writeSection(sectionCode, encodeCodeSection(m))
	w.writeSection(sectionData, encodeDataSection(m))

	for _, cs := range m.CustomSections {
		cw := newWriter()
		cw.writeName(cs.Name)
		cw.writeBytes(cs.Data)
		w.writeSection(sectionCustom, cw.Bytes())
	}
	if m.NameSection != nil {
		nw := newWriter()
		nw.writeName("name")
		nw.writeBytes(encodeNameSection(m.NameSection))
		w.writeSection(sectionCustom, nw.Bytes())
	}

	return w.Bytes()
}

func encodeFunctionType(w *writer, ft *wasm.FunctionType) {
	w.writeByte(0x60)
	w.writeU32(uint32(len(ft.Params)))
	for _, p := range ft.Params {
		w.writeValueType(p)
	}
	w.writeResultType(ft.Results)
}

func encodeTypeSection(m *wasm.Module) []byte {
	if len(m.TypeSection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.TypeSection)))
	for _, ft := range m.TypeSection {
		encodeFunctionType(w, ft)
	}
	return w.Bytes()
}

func encodeImportSection(m *wasm.Module) []byte {
	if len(m.ImportSection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.ImportSection)))
	for _, imp := range m.ImportSection {
		w.writeName(imp.Module)
		w.writeName(imp.Name)
		w.writeByte(byte(imp.Type))
		switch imp.Type {
		case wasm.ExternTypeFunc:
			w.writeU32(imp.DescFunc)
		case wasm.ExternTypeTable:
			w.writeByte(0x70)
			w.writeLimits(imp.DescTable.Limits)
		case wasm.ExternTypeMemory:
			w.writeLimits(imp.DescMemory.Limits)
		case wasm.ExternTypeGlobal:
			w.writeValueType(imp.DescGlobal.ValType)
			w.writeByte(boolByte(imp.DescGlobal.Mutable))
		}
	}
	return w.Bytes()
}

func encodeFunctionSection(m *wasm.Module) []byte {
	if len(m.FunctionSection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.FunctionSection)))
	for _, idx := range m.FunctionSection {
		w.writeU32(idx)
	}
	return w.Bytes()
}

func encodeTableSection(m *wasm.Module) []byte {
	if len(m.TableSection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.TableSection)))
	for _, t := range m.TableSection {
		w.writeByte(0x70)
		w.writeLimits(t.Limits)
	}
	return w.Bytes()
}

func encodeMemorySection(m *wasm.Module) []byte {
	if len(m.MemorySection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.MemorySection)))
	for _, mt := range m.MemorySection {
		w.writeLimits(mt.Limits)
	}
	return w.Bytes()
}

func encodeConstExpr(w *writer, expr wasm.ConstantExpression) {
	w.writeByte(byte(expr.Opcode))
	w.writeBytes(expr.Data)
	w.writeByte(byte(wasm.OpcodeEnd))
}

func encodeGlobalSection(m *wasm.Module) []byte {
	if len(m.GlobalSection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.GlobalSection)))
	for _, g := range m.GlobalSection {
		w.writeValueType(g.Type.ValType)
		w.writeByte(boolByte(g.Type.Mutable))
		encodeConstExpr(w, g.Init)
	}
	return w.Bytes()
}

func encodeExportSection(m *wasm.Module) []byte {
	if len(m.ExportSection) == 0 {
		return nil
	}
	names := make([]string, 0, len(m.ExportSection))
	for name := range m.ExportSection {
		names = append(names, name)
	}
	sort.Strings(names)

	w := newWriter()
	w.writeU32(uint32(len(names)))
	for _, name := range names {
		exp := m.ExportSection[name]
		w.writeName(exp.Name)
		w.writeByte(byte(exp.Type))
		w.writeU32(exp.Index)
	}
	return w.Bytes()
}

func encodeElementSection(m *wasm.Module) []byte {
	if len(m.ElementSection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.ElementSection)))
	for _, seg := range m.ElementSection {
		w.writeU32(seg.TableIndex)
		encodeConstExpr(w, seg.Offset)
		w.writeU32(uint32(len(seg.Init)))
		for _, idx := range seg.Init {
			w.writeU32(idx)
		}
	}
	return w.Bytes()
}

func encodeDataSection(m *wasm.Module) []byte {
	if len(m.DataSection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.DataSection)))
	for _, seg := range m.DataSection {
		w.writeU32(seg.MemoryIndex)
		encodeConstExpr(w, seg.Offset)
		w.writeU32(uint32(len(seg.Init)))
		w.writeBytes(seg.Init)
	}
	return w.Bytes()
}

func encodeCodeSection(m *wasm.Module) []byte {
	if len(m.CodeSection) == 0 {
		return nil
	}
	w := newWriter()
	w.writeU32(uint32(len(m.CodeSection)))
	for _, code := range m.CodeSection {
		body := encodeCode(code)
		w.writeU32(uint32(len(body)))
		w.writeBytes(body)
	}
	return w.Bytes()
}

// encodeCode re-groups Code.LocalTypes into run-length-encoded
// (count, type) declarations, merging adjacent locals of the same type
// the way a compiler's emitter naturally would even though the decoder
// never depends on grouping.
func encodeCode(code *wasm.Code) []byte {
	w := newWriter()
	type run struct {
		t     wasm.ValueType
		count uint32
	}
	var runs []run
	for _, t := range code.LocalTypes {
		if len(runs) > 0 && runs[len(runs)-1].t == t {
			runs[len(runs)-1].count++
			continue
		}
		runs = append(runs, run{t: t, count: 1})
	}
	w.writeU32(uint32(len(runs)))
	for _, r := range runs {
		w.writeU32(r.count)
		w.writeValueType(r.t)
	}
	w.writeBytes(code.Body)
	return w.Bytes()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
