package wasm

// ConstantExpression is a restricted, self-evaluating operator sequence
// used to initialize globals and segment bases. Its operator stream is at
// most one operator followed by OpcodeEnd.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte // the operator's immediate bytes, excluding the trailing end opcode.
}

// Global is a global variable definition: its type plus an initializer.
type Global struct {
	Type *GlobalType
	Init ConstantExpression
}

// Code is a function definition's non-parameter local types and operator
// stream. Body always ends with OpcodeEnd at control-stack depth zero.
type Code struct {
	LocalTypes []ValueType
	Body       []byte
}

// DataSegment initializes a byte range of a memory.
type DataSegment struct {
	MemoryIndex Index
	Offset      ConstantExpression
	Init        []byte
}

// ElementSegment initializes a range of a table with function indices.
type ElementSegment struct {
	TableIndex Index
	Offset     ConstantExpression
	Init       []Index
}

// NameMap maps an index to a user-facing identifier, used by the
// disassembly names section.
type NameMap map[Index]string

// FunctionNames pairs a function's own name with names for its locals.
type FunctionNames struct {
	Name   string
	Locals NameMap
}

// NameSection is the decoded contents of a single "name" custom section:
// the module name plus per-function (and per-local) names. Missing
// entries default to empty.
type NameSection struct {
	ModuleName string
	Functions  map[Index]*FunctionNames
}

// Module is the single in-memory representation shared by the decoder,
// encoder, validator, WAST parser, and WAST printer. It is produced by a
// decoder or parser, mutated only by those producers and by the
// name-section codec, and becomes read-only once handed to a validator.
type Module struct {
	TypeSection   []*FunctionType
	ImportSection []*Import

	// Definitions, indexed after imports of the same kind within each
	// index space.
	FunctionSection []Index // type indices, one per locally defined function.
	CodeSection     []*Code // parallel to FunctionSection.
	TableSection    []*TableType
	MemorySection   []*MemoryType
	GlobalSection   []*Global

	ExportSection map[string]*Export

	StartSection *Index

	ElementSection []*ElementSegment
	DataSection    []*DataSegment

	// CustomSections holds every user section verbatim, in the order it
	// appeared, except for "name" which is split out below.
	CustomSections []CustomSection

	NameSection *NameSection

	interner *TypeInterner
}

// CustomSection is an unknown-to-semantics named blob preserved verbatim.
type CustomSection struct {
	Name string
	Data []byte
}

// Interner returns the module's FunctionType interner, creating it on
// first use. Every producer that appends to TypeSection should route new
// types through this so structurally-equal types share an instance.
func (m *Module) Interner() *TypeInterner {
	if m.interner == nil {
		m.interner = NewTypeInterner()
	}
	return m.interner
}

// ImportedFunctionCount, FunctionCount and the other counts below compute
// index-space sizes used
// throughout decoding, validation, and text lowering.

// ImportedFunctionCount returns the number of function imports, which sit
// at the start of the function index space.
func (m *Module) ImportedFunctionCount() Index {
	var n Index
	for _, i := range m.ImportSection {
		if i.Type == ExternTypeFunc {
			n++
		}
	}
	return n
}

// ImportedTableCount returns the number of table imports.
func (m *Module) ImportedTableCount() Index {
	var n Index
	for _, i := range m.ImportSection {
		if i.Type == ExternTypeTable {
			n++
		}
	}
	return n
}

// ImportedMemoryCount returns the number of memory imports.
func (m *Module) ImportedMemoryCount() Index {
	var n Index
	for _, i := range m.ImportSection {
		if i.Type == ExternTypeMemory {
			n++
		}
	}
	return n
}

// ImportedGlobalCount returns the number of global imports.
func (m *Module) ImportedGlobalCount() Index {
	var n Index
	for _, i := range m.ImportSection {
		if i.Type == ExternTypeGlobal {
			n++
		}
	}
	return n
}

// FunctionCount is the size of the function index space: imports plus
// local definitions.
func (m *Module) FunctionCount() Index {
	return m.ImportedFunctionCount() + Index(len(m.FunctionSection))
}

// TableCount is the size of the table index space.
func (m *Module) TableCount() Index {
	return m.ImportedTableCount() + Index(len(m.TableSection))
}

// MemoryCount is the size of the memory index space.
func (m *Module) MemoryCount() Index {
	return m.ImportedMemoryCount() + Index(len(m.MemorySection))
}

// GlobalCount is the size of the global index space.
func (m *Module) GlobalCount() Index {
	return m.ImportedGlobalCount() + Index(len(m.GlobalSection))
}

// FunctionTypeIndex returns the TypeSection index of function idx's type,
// across both imported and locally-defined functions. ok is false if idx
// is out of range.
func (m *Module) FunctionTypeIndex(idx Index) (typeIdx Index, ok bool) {
	imported := m.ImportedFunctionCount()
	if idx < imported {
		var n Index
		for _, i := range m.ImportSection {
			if i.Type != ExternTypeFunc {
				continue
			}
			if n == idx {
				return i.DescFunc, true
			}
			n++
		}
		return 0, false
	}
	local := idx - imported
	if int(local) >= len(m.FunctionSection) {
		return 0, false
	}
	return m.FunctionSection[local], true
}

// TypeOf resolves a type index into the module's TypeSection.
func (m *Module) TypeOf(idx Index) (*FunctionType, bool) {
	if int(idx) >= len(m.TypeSection) {
		return nil, false
	}
	return m.TypeSection[idx], true
}

// FunctionTypeOf resolves a function index to its FunctionType, across
// imports and definitions.
func (m *Module) FunctionTypeOf(idx Index) (*FunctionType, bool) {
	typeIdx, ok := m.FunctionTypeIndex(idx)
	if !ok {
		return nil, false
	}
	return m.TypeOf(typeIdx)
}

// GlobalTypeOf resolves a global index to its GlobalType, across imports
// and definitions.
func (m *Module) GlobalTypeOf(idx Index) (*GlobalType, bool) {
	imported := m.ImportedGlobalCount()
	if idx < imported {
		var n Index
		for _, i := range m.ImportSection {
			if i.Type != ExternTypeGlobal {
				continue
			}
			if n == idx {
				return i.DescGlobal, true
			}
			n++
		}
		return nil, false
	}
	local := idx - imported
	if int(local) >= len(m.GlobalSection) {
		return nil, false
	}
	return m.GlobalSection[local].Type, true
}

// HasTable reports whether the module declares a table, imported or
// defined.
func (m *Module) HasTable() bool { return m.TableCount() > 0 }

// HasMemory reports whether the module declares a memory, imported or
// defined.
func (m *Module) HasMemory() bool { return m.MemoryCount() > 0 }

// LocalTypes returns the full flat local-type vector for function idx
// (local index space is params then non-parameter locals), or nil if idx
// is an imported function (imports have no body).
func (m *Module) LocalTypes(idx Index) []ValueType {
	imported := m.ImportedFunctionCount()
	if idx < imported {
		return nil
	}
	local := idx - imported
	if int(local) >= len(m.FunctionSection) {
		return nil
	}
	ft, ok := m.FunctionTypeOf(idx)
	if !ok {
		return nil
	}
	code := m.CodeSection[local]
	types := make([]ValueType, 0, len(ft.Params)+len(code.LocalTypes))
	types = append(types, ft.Params...)
	types = append(types, code.LocalTypes...)
	return types
}
