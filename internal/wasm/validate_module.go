package wasm

// ValidateModule runs the module-level (declarative) pass: it checks every
// type, every import and definition's declared type, index-range
// constraints on every consumer of an index space, the ≤1 table / ≤1
// memory / ≤1 start-function invariants, export-name uniqueness, global
// and segment initializers, and segment-range overlap with their target's
// declared minimum. It does not walk any function body; call ValidateFunc
// for that.
//
// Errors are collected rather than returned on first failure, since a
// partial module is still useful for diagnosing every problem in one
// pass.
func ValidateModule(m *Module, features Features) []error {
	var errs []error
	report := func(e error) { errs = append(errs, e) }

	for i, t := range m.TypeSection {
		if !t.Results.IsValid() {
			report(moduleErr(TypeMismatch, "type[%d]: invalid result type", i))
		}
		for _, p := range t.Params {
			if !p.IsValid() {
				report(moduleErr(TypeMismatch, "type[%d]: invalid param type", i))
			}
		}
	}

	tableCount, memoryCount := 0, 0
	for i, imp := range m.ImportSection {
		switch imp.Type {
		case ExternTypeFunc:
			if int(imp.DescFunc) >= len(m.TypeSection) {
				report(moduleErr(BadIndex, "import[%d] %s.%s: type index %d out of range", i, imp.Module, imp.Name, imp.DescFunc))
			}
		case ExternTypeTable:
			tableCount++
			if imp.DescTable == nil || !imp.DescTable.Limits.IsValid(TableMaxElements) {
				report(moduleErr(BadIndex, "import[%d] %s.%s: invalid table limits", i, imp.Module, imp.Name))
			}
		case ExternTypeMemory:
			memoryCount++
			if imp.DescMemory == nil || !imp.DescMemory.Limits.IsValid(MemoryMaxPages) {
				report(moduleErr(BadIndex, "import[%d] %s.%s: invalid memory limits", i, imp.Module, imp.Name))
			}
		case ExternTypeGlobal:
			if imp.DescGlobal == nil {
				report(moduleErr(BadIndex, "import[%d] %s.%s: missing global type", i, imp.Module, imp.Name))
				continue
			}
			if imp.DescGlobal.Mutable && !features.MutableGlobalImport {
				report(moduleErr(MutableGlobalImportDisabled, "import[%d] %s.%s: importing a mutable global requires the mutable-global-import feature", i, imp.Module, imp.Name))
			}
		}
	}

	for i, idx := range m.FunctionSection {
		if int(idx) >= len(m.TypeSection) {
			report(moduleErr(BadIndex, "function[%d]: type index %d out of range", i, idx))
		}
	}
	if len(m.FunctionSection) != len(m.CodeSection) {
		report(moduleErr(BadIndex, "function and code sections disagree on count: %d functions, %d code entries", len(m.FunctionSection), len(m.CodeSection)))
	}

	tableCount += len(m.TableSection)
	if tableCount > 1 {
		report(moduleErr(TooManyTables, "at most one table allowed in module, but read %d", tableCount))
	}
	for i, t := range m.TableSection {
		if !t.Limits.IsValid(TableMaxElements) {
			report(moduleErr(BadIndex, "table[%d]: invalid limits", i))
		}
	}

	memoryCount += len(m.MemorySection)
	if memoryCount > 1 {
		report(moduleErr(TooManyMemories, "at most one memory allowed in module, but read %d", memoryCount))
	}
	for i, mt := range m.MemorySection {
		if !mt.Limits.IsValid(MemoryMaxPages) {
			report(moduleErr(BadIndex, "memory[%d]: invalid limits", i))
		}
	}

	for i, g := range m.GlobalSection {
		if err := validateConstExprType(m, g.Init, g.Type.ValType, features); err != nil {
			report(moduleErr(BadGlobalInitializer, "global[%d]: %v", i, err))
		}
	}

	if m.StartSection != nil {
		ft, ok := m.FunctionTypeOf(*m.StartSection)
		if !ok {
			report(moduleErr(BadIndex, "start function index %d out of range", *m.StartSection))
		} else if len(ft.Params) != 0 || ft.Results != ResultTypeNone {
			report(moduleErr(BadStartFunctionType, "start function must have type () -> (), got %s", ft.String()))
		}
	}

	seen := map[string]bool{}
	for name, exp := range m.ExportSection {
		if exp.Name != name {
			report(moduleErr(DuplicateExportName, "export keyed %q has mismatched Name %q", name, exp.Name))
		}
		if seen[name] {
			report(moduleErr(DuplicateExportName, "duplicate export name %q", name))
		}
		seen[name] = true
		var count Index
		switch exp.Type {
		case ExternTypeFunc:
			count = m.FunctionCount()
		case ExternTypeTable:
			count = m.TableCount()
		case ExternTypeMemory:
			count = m.MemoryCount()
		case ExternTypeGlobal:
			count = m.GlobalCount()
		}
		if exp.Index >= count {
			report(moduleErr(BadIndex, "export %q: %s index %d out of range", name, exp.Type, exp.Index))
		}
	}

	for i, seg := range m.ElementSection {
		if seg.TableIndex >= m.TableCount() {
			report(moduleErr(BadIndex, "elem[%d]: table index %d out of range", i, seg.TableIndex))
			continue
		}
		if err := validateConstExprType(m, seg.Offset, ValueTypeI32, features); err != nil {
			report(moduleErr(BadGlobalInitializer, "elem[%d]: %v", i, err))
			continue
		}
		for _, fnIdx := range seg.Init {
			if fnIdx >= m.FunctionCount() {
				report(moduleErr(BadIndex, "elem[%d]: function index %d out of range", i, fnIdx))
			}
		}
		if base, ok := constI32(seg.Offset); ok {
			tbl := tableLimitsAt(m, seg.TableIndex)
			if tbl != nil && (base < 0 || uint64(base)+uint64(len(seg.Init)) > uint64(tbl.Min)) {
				report(moduleErr(SegmentOutOfBounds, "elem[%d]: range [%d, %d) does not fit table minimum %d", i, base, uint64(base)+uint64(len(seg.Init)), tbl.Min))
			}
		}
	}

	for i, seg := range m.DataSection {
		if seg.MemoryIndex >= m.MemoryCount() {
			report(moduleErr(BadIndex, "data[%d]: memory index %d out of range", i, seg.MemoryIndex))
			continue
		}
		if err := validateConstExprType(m, seg.Offset, ValueTypeI32, features); err != nil {
			report(moduleErr(BadGlobalInitializer, "data[%d]: %v", i, err))
			continue
		}
		if base, ok := constI32(seg.Offset); ok {
			mem := memoryLimitsAt(m, seg.MemoryIndex)
			if mem != nil {
				minBytes := uint64(mem.Min) * MemoryPageSize
				if base < 0 || uint64(base)+uint64(len(seg.Init)) > minBytes {
					report(moduleErr(SegmentOutOfBounds, "data[%d]: range [%d, %d) does not fit memory minimum %d bytes", i, base, uint64(base)+uint64(len(seg.Init)), minBytes))
				}
			}
		}
	}

	errs = append(errs, checkOverlappingSegments(m)...)

	return errs
}

func tableLimitsAt(m *Module, idx Index) *Limits {
	imported := m.ImportedTableCount()
	if idx < imported {
		var n Index
		for _, i := range m.ImportSection {
			if i.Type != ExternTypeTable {
				continue
			}
			if n == idx {
				if i.DescTable == nil {
					return nil
				}
				return &i.DescTable.Limits
			}
			n++
		}
		return nil
	}
	local := idx - imported
	if int(local) >= len(m.TableSection) {
		return nil
	}
	return &m.TableSection[local].Limits
}

func memoryLimitsAt(m *Module, idx Index) *Limits {
	imported := m.ImportedMemoryCount()
	if idx < imported {
		var n Index
		for _, i := range m.ImportSection {
			if i.Type != ExternTypeMemory {
				continue
			}
			if n == idx {
				if i.DescMemory == nil {
					return nil
				}
				return &i.DescMemory.Limits
			}
			n++
		}
		return nil
	}
	local := idx - imported
	if int(local) >= len(m.MemorySection) {
		return nil
	}
	return &m.MemorySection[local].Limits
}

// constI32 extracts the constant value of an i32.const initializer
// expression, returning ok=false for any other (e.g. imported-global)
// initializer, since overlap/range checks against constant bases only
// apply when the base is itself constant.
func constI32(expr ConstantExpression) (int32, bool) {
	if expr.Opcode != OpcodeI32Const {
		return 0, false
	}
	v, _, err := decodeLEB128Int32(expr.Data)
	if err != nil {
		return 0, false
	}
	return v, true
}

// checkOverlappingSegments rejects pairs of segments, targeting the same
// memory or table, whose constant-base ranges overlap.
func checkOverlappingSegments(m *Module) []error {
	var errs []error
	type span struct {
		target     Index
		start, end uint64
		index      int
	}
	var dataSpans []span
	for i, seg := range m.DataSection {
		if base, ok := constI32(seg.Offset); ok {
			dataSpans = append(dataSpans, span{seg.MemoryIndex, uint64(base), uint64(base) + uint64(len(seg.Init)), i})
		}
	}
	for a := 0; a < len(dataSpans); a++ {
		for b := a + 1; b < len(dataSpans); b++ {
			x, y := dataSpans[a], dataSpans[b]
			if x.target == y.target && x.start < y.end && y.start < x.end {
				errs = append(errs, moduleErr(OverlappingSegment, "data[%d] and data[%d] overlap", x.index, y.index))
			}
		}
	}

	var elemSpans []span
	for i, seg := range m.ElementSection {
		if base, ok := constI32(seg.Offset); ok {
			elemSpans = append(elemSpans, span{seg.TableIndex, uint64(base), uint64(base) + uint64(len(seg.Init)), i})
		}
	}
	for a := 0; a < len(elemSpans); a++ {
		for b := a + 1; b < len(elemSpans); b++ {
			x, y := elemSpans[a], elemSpans[b]
			if x.target == y.target && x.start < y.end && y.start < x.end {
				errs = append(errs, moduleErr(OverlappingSegment, "elem[%d] and elem[%d] overlap", x.index, y.index))
			}
		}
	}
	return errs
}

// validateConstExprType checks that a ConstantExpression evaluates to
// want, and that it is either a typed constant or a reference to a
// previously declared immutable imported global of matching type.
func validateConstExprType(m *Module, expr ConstantExpression, want ValueType, features Features) error {
	switch expr.Opcode {
	case OpcodeI32Const:
		if want != ValueTypeI32 {
			return typeMismatchErr(want, ValueTypeI32)
		}
	case OpcodeI64Const:
		if want != ValueTypeI64 {
			return typeMismatchErr(want, ValueTypeI64)
		}
	case OpcodeF32Const:
		if want != ValueTypeF32 {
			return typeMismatchErr(want, ValueTypeF32)
		}
	case OpcodeF64Const:
		if want != ValueTypeF64 {
			return typeMismatchErr(want, ValueTypeF64)
		}
	case OpcodeGlobalGet:
		idx, _, err := decodeLEB128Uint32(expr.Data)
		if err != nil {
			return err
		}
		if idx >= m.ImportedGlobalCount() {
			return moduleErr(BadGlobalInitializer, "initializer expression references non-imported or out-of-range global %d", idx)
		}
		gt, ok := m.GlobalTypeOf(idx)
		if !ok {
			return moduleErr(BadIndex, "global index %d out of range", idx)
		}
		if gt.Mutable {
			return moduleErr(BadGlobalInitializer, "initializer expression references mutable global %d", idx)
		}
		if gt.ValType != want {
			return typeMismatchErr(want, gt.ValType)
		}
	default:
		return moduleErr(BadGlobalInitializer, "opcode 0x%x is not valid in a constant expression", byte(expr.Opcode))
	}
	return nil
}

func typeMismatchErr(want, got ValueType) error {
	return moduleErr(TypeMismatch, "type mismatch: expected %s, got %s", want, got)
}
