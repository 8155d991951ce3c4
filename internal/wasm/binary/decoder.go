package binary

import (
	"github.com/wasmhost/wasmgate/internal/wasm"
)

const (
	sectionCustom   = 0
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionTable    = 4
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionStart    = 8
	sectionElement  = 9
	sectionCode     = 10
	sectionData     = 11
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d}
var version = [4]byte{0x01, 0x00, 0x00, 0x00}

// DecodeModule decodes a complete WebAssembly binary module. It performs
// no validation beyond what is needed to build a well-formed wasm.Module
// (index-range and type checks are ValidateModule's job); syntactic
// errors here are always *wasm.DecodeError.
func DecodeModule(data []byte) (*wasm.Module, error) {
	r := newReader(data)

	for i, b := range magic {
		got, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if got != b {
			return nil, wasm.NewMalformedError(uint64(i), "invalid magic number")
		}
	}
	for i, b := range version {
		got, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if got != b {
			return nil, wasm.NewMalformedError(uint64(4+i), "invalid version header")
		}
	}

	m := &wasm.Module{ExportSection: map[string]*wasm.Export{}}
	lastID := -1
	sawName := false

	for !r.eof() {
		secOffset := r.offset()
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		payload, err := r.readBytes(size)
		if err != nil {
			return nil, err
		}
		sr := newReader(payload)

		if id != sectionCustom {
			if int(id) <= lastID {
				return nil, wasm.NewMalformedError(secOffset, "section %d out of order (after section %d)", id, lastID)
			}
			lastID = int(id)
		}

		switch id {
		case sectionCustom:
			name, err := sr.readName()
			if err != nil {
				return nil, wasm.NewMismatchError(secOffset, "custom section payload too short for its name: %v", err)
			}
			rest := payload[sr.pos:]
			if name == "name" {
				if sawName {
					return nil, wasm.NewMalformedError(secOffset, "redundant custom section name")
				}
				sawName = true
				m.NameSection = decodeNameSection(rest)
				continue
			}
			m.CustomSections = append(m.CustomSections, wasm.CustomSection{Name: name, Data: append([]byte{}, rest...)})

		case sectionType:
			if err := decodeTypeSection(sr, m); err != nil {
				return nil, err
			}
		case sectionImport:
			if err := decodeImportSection(sr, m); err != nil {
				return nil, err
			}
		case sectionFunction:
			if err := decodeFunctionSection(sr, m); err != nil {
				return nil, err
			}
		case sectionTable:
			if err := decodeTableSection(sr, m); err != nil {
				return nil, err
			}
		case sectionMemory:
			if err := decodeMemorySection(sr, m); err != nil {
				return nil, err
			}
		case sectionGlobal:
			if err := decodeGlobalSection(sr, m); err != nil {
				return nil, err
			}
		case sectionExport:
			if err := decodeExportSection(sr, m); err != nil {
				return nil, err
			}
		case sectionStart:
			idx, err := sr.readU32()
			if err != nil {
				return nil, err
			}
			m.StartSection = &idx
		case sectionElement:
			if err := decodeElementSection(sr, m); err != nil {
				return nil, err
			}
		case sectionCode:
			if err := decodeCodeSection(sr, m); err != nil {
				return nil, err
			}
		case sectionData:
			if err := decodeDataSection(sr, m); err != nil {
				return nil, err
			}
		default:
			return nil, wasm.NewMalformedError(secOffset, "unknown section id %d", id)
		}

		if !sr.eof() {
			return nil, wasm.NewMalformedError(secOffset, "section %d has %d trailing bytes", id, sr.remaining())
		}
	}
	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, wasm.NewMismatchError(r.offset(), "function section declares %d functions but code section has %d bodies", len(m.FunctionSection), len(m.CodeSection))
	}
	return m, nil
}

func decodeFunctionType(r *reader) (*wasm.FunctionType, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if tag != 0x60 {
		return nil, wasm.NewMalformedError(r.offset()-1, "invalid function type tag 0x%x", tag)
	}
	paramCount, err := r.readVecCount()
	if err != nil {
		return nil, err
	}
	params := make([]wasm.ValueType, paramCount)
	for i := range params {
		if params[i], err = r.readValueType(); err != nil {
			return nil, err
		}
	}
	results, err := r.readResultType()
	if err != nil {
		return nil, err
	}
	return &wasm.FunctionType{Params: params, Results: results}, nil
}

func decodeTypeSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	in := m.Interner()
	for i := uint32(0); i < count; i++ {
		ft, err := decodeFunctionType(r)
		if err != nil {
			return err
		}
		m.TypeSection = append(m.TypeSection, in.Intern(ft))
	}
	return nil
}

func decodeImportSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mod, err := r.readName()
		if err != nil {
			return err
		}
		name, err := r.readName()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		imp := &wasm.Import{Type: wasm.ExternType(kind), Module: mod, Name: name}
		switch imp.Type {
		case wasm.ExternTypeFunc:
			if imp.DescFunc, err = r.readU32(); err != nil {
				return err
			}
		case wasm.ExternTypeTable:
			elemKind, err := r.readByte()
			if err != nil {
				return err
			}
			if elemKind != 0x70 {
				return wasm.NewMalformedError(r.offset()-1, "invalid table element kind 0x%x", elemKind)
			}
			limits, err := r.readLimits(wasm.TableMaxElements)
			if err != nil {
				return err
			}
			imp.DescTable = &wasm.TableType{Limits: limits}
		case wasm.ExternTypeMemory:
			limits, err := r.readLimits(wasm.MemoryMaxPages)
			if err != nil {
				return err
			}
			imp.DescMemory = &wasm.MemoryType{Limits: limits}
		case wasm.ExternTypeGlobal:
			vt, err := r.readValueType()
			if err != nil {
				return err
			}
			mutFlag, err := r.readByte()
			if err != nil {
				return err
			}
			if mutFlag > 1 {
				return wasm.NewMalformedError(r.offset()-1, "invalid global mutability flag 0x%x", mutFlag)
			}
			imp.DescGlobal = &wasm.GlobalType{ValType: vt, Mutable: mutFlag == 1}
		default:
			return wasm.NewMalformedError(r.offset()-1, "invalid import kind 0x%x", kind)
		}
		m.ImportSection = append(m.ImportSection, imp)
	}
	return nil
}

func decodeFunctionSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.readU32()
		if err != nil {
			return err
		}
		m.FunctionSection = append(m.FunctionSection, idx)
	}
	return nil
}

func decodeTableSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	if count > 1 {
		// A single section may not itself declare more than one table;
		// cross-section (import + definition) accumulation is checked by
		// ValidateModule once the whole module is assembled.
		return wasm.NewOutOfRangeError(r.offset(), "at most one table allowed in module, but read %d", count)
	}
	for i := uint32(0); i < count; i++ {
		elemKind, err := r.readByte()
		if err != nil {
			return err
		}
		if elemKind != 0x70 {
			return wasm.NewMalformedError(r.offset()-1, "invalid table element kind 0x%x", elemKind)
		}
		limits, err := r.readLimits(wasm.TableMaxElements)
		if err != nil {
			return err
		}
		m.TableSection = append(m.TableSection, &wasm.TableType{Limits: limits})
	}
	return nil
}

func decodeMemorySection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	if count > 1 {
		return wasm.NewOutOfRangeError(r.offset(), "at most one memory allowed in module, but read %d", count)
	}
	for i := uint32(0); i < count; i++ {
		limits, err := r.readLimits(wasm.MemoryMaxPages)
		if err != nil {
			return err
		}
		m.MemorySection = append(m.MemorySection, &wasm.MemoryType{Limits: limits})
	}
	return nil
}

func decodeConstExpr(r *reader) (wasm.ConstantExpression, error) {
	start := r.pos
	opByte, err := r.readByte()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	op := wasm.Opcode(opByte)
	switch op {
	case wasm.OpcodeI32Const:
		if _, err := r.readI32(); err != nil {
			return wasm.ConstantExpression{}, err
		}
	case wasm.OpcodeI64Const:
		if _, err := r.readI64(); err != nil {
			return wasm.ConstantExpression{}, err
		}
	case wasm.OpcodeF32Const:
		if _, err := r.readBytes(4); err != nil {
			return wasm.ConstantExpression{}, err
		}
	case wasm.OpcodeF64Const:
		if _, err := r.readBytes(8); err != nil {
			return wasm.ConstantExpression{}, err
		}
	case wasm.OpcodeGlobalGet:
		if _, err := r.readU32(); err != nil {
			return wasm.ConstantExpression{}, err
		}
	default:
		return wasm.ConstantExpression{}, wasm.NewMalformedError(r.offset()-1, "opcode 0x%x is not valid in a constant expression", opByte)
	}
	immEnd := r.pos
	end, err := r.readByte()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	if wasm.Opcode(end) != wasm.OpcodeEnd {
		return wasm.ConstantExpression{}, wasm.NewMalformedError(r.offset()-1, "constant expression not terminated by end")
	}
	data := append([]byte{}, r.data[start+1:immEnd]...)
	return wasm.ConstantExpression{Opcode: op, Data: data}, nil
}

func decodeGlobalSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := r.readValueType()
		if err != nil {
			return err
		}
		mutFlag, err := r.readByte()
		if err != nil {
			return err
		}
		if mutFlag > 1 {
			return wasm.NewMalformedError(r.offset()-1, "invalid global mutability flag 0x%x", mutFlag)
		}
		init, err := decodeConstExpr(r)
		if err != nil {
			return err
		}
		m.GlobalSection = append(m.GlobalSection, &wasm.Global{
			Type: &wasm.GlobalType{ValType: vt, Mutable: mutFlag == 1},
			Init: init,
		})
	}
	return nil
}

func decodeExportSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.readName()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		idx, err := r.readU32()
		if err != nil {
			return err
		}
		if _, dup := m.ExportSection[name]; dup {
			return wasm.NewMalformedError(r.offset(), "export[%d] duplicates name %q", i, name)
		}
		m.ExportSection[name] = &wasm.Export{Name: name, Type: wasm.ExternType(kind), Index: idx}
	}
	return nil
}

func decodeElementSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tableIdx, err := r.readU32()
		if err != nil {
			return err
		}
		offset, err := decodeConstExpr(r)
		if err != nil {
			return err
		}
		fnCount, err := r.readVecCount()
		if err != nil {
			return err
		}
		init := make([]wasm.Index, fnCount)
		for j := range init {
			if init[j], err = r.readU32(); err != nil {
				return err
			}
		}
		m.ElementSection = append(m.ElementSection, &wasm.ElementSegment{TableIndex: tableIdx, Offset: offset, Init: init})
	}
	return nil
}

func decodeDataSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		memIdx, err := r.readU32()
		if err != nil {
			return err
		}
		offset, err := decodeConstExpr(r)
		if err != nil {
			return err
		}
		n, err := r.readVecCount()
		if err != nil {
			return err
		}
		data, err := r.readBytes(n)
		if err != nil {
			return err
		}
		m.DataSection = append(m.DataSection, &wasm.DataSegment{MemoryIndex: memIdx, Offset: offset, Init: append([]byte{}, data...)})
	}
	return nil
}

func decodeCodeSection(r *reader, m *wasm.Module) error {
	count, err := r.readVecCount()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.readU32()
		if err != nil {
			return err
		}
		body, err := r.readBytes(size)
		if err != nil {
			return err
		}
		code, err := decodeCode(body)
		if err != nil {
			return err
		}
		m.CodeSection = append(m.CodeSection, code)
	}
	return nil
}

func decodeCode(body []byte) (*wasm.Code, error) {
	cr := newReader(body)
	declCount, err := cr.readVecCount()
	if err != nil {
		return nil, err
	}
	var locals []wasm.ValueType
	for i := uint32(0); i < declCount; i++ {
		n, err := cr.readU32()
		if err != nil {
			return nil, err
		}
		vt, err := cr.readValueType()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < n; j++ {
			locals = append(locals, vt)
		}
	}
	return &wasm.Code{LocalTypes: locals, Body: append([]byte{}, body[cr.pos:]...)}, nil
}
