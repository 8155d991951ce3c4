package text

import (
	"github.com/wasmhost/wasmgate/internal/diag"
	"github.com/wasmhost/wasmgate/internal/wasm"
)

// opcodeByName reverses wasm.Opcodes so the lowering pass can turn a
// mnemonic keyword back into its byte encoding; built once from the
// same table the binary decoder and the validator share.
var opcodeByName = map[string]wasm.Opcode{}

func init() {
	for op, info := range wasm.Opcodes {
		opcodeByName[info.Name] = op
	}
}

// funcDecl carries what the declare pass learned about one locally
// defined function, enough for the define pass to lower its body without
// re-scanning headers.
type funcDecl struct {
	idx        wasm.Index
	funcNode   *node
	bodyStart  int // index into funcNode.list where instructions begin
	localNames map[string]wasm.Index
	locals     []wasm.ValueType // params then non-param locals
}

type globalDecl struct {
	idx        wasm.Index
	globalNode *node
	initStart  int
}

type segmentDecl struct {
	node *node
}

// moduleBuilder accumulates the Module under construction plus the name
// bindings established during the declare pass, consumed by the define
// pass.
type moduleBuilder struct {
	m *wasm.Module

	typeNames      map[string]wasm.Index
	funcNames      map[string]wasm.Index
	tableNames     map[string]wasm.Index
	memNames       map[string]wasm.Index
	globalNames    map[string]wasm.Index
	typeIndexOf    map[*wasm.FunctionType]wasm.Index

	funcDecls   []*funcDecl
	globalDecls []*globalDecl
	elemDecls   []segmentDecl
	dataDecls   []segmentDecl
	startNode   *node

	errs []error
}

func newModuleBuilder() *moduleBuilder {
	return &moduleBuilder{
		m:           &wasm.Module{ExportSection: map[string]*wasm.Export{}},
		typeNames:   map[string]wasm.Index{},
		funcNames:   map[string]wasm.Index{},
		tableNames:  map[string]wasm.Index{},
		memNames:    map[string]wasm.Index{},
		globalNames: map[string]wasm.Index{},
		typeIndexOf: map[*wasm.FunctionType]wasm.Index{},
	}
}

func (b *moduleBuilder) fail(loc Loc, format string, args ...interface{}) {
	err := resolveErrf(loc, format, args...)
	b.errs = append(b.errs, err)
	diag.RecoveredParseError(loc.Line, loc.Col, err.Error())
}

// ParseModule parses a complete "(module ...)" WAST form into a
// wasm.Module. Unlike the binary decoder, the parser keeps going after an
// error in one definition so that a single typo doesn't hide every other
// problem in the file; non-nil errs means m is only a partial result.
func ParseModule(src []byte) (m *wasm.Module, errs []error) {
	root, err := parseSExpr(src)
	if err != nil {
		return nil, []error{err}
	}
	if root.head() != "module" {
		return nil, []error{resolveErrf(root.loc, "expected a top-level (module ...) form")}
	}

	b := newModuleBuilder()
	children := root.list[1:]
	if len(children) > 0 && !children[0].isList() && children[0].leafKind == tokID {
		children = children[1:] // skip the module's own optional $name
	}

	b.declareTypes(children)
	b.declareImports(children)
	b.declareDefinitions(children)
	b.defineBodies()

	return b.m, b.errs
}

func (b *moduleBuilder) declareImports(children []*node) {
	for _, c := range children {
		if c.head() == "import" {
			b.declareImport(c)
		}
	}
}

func (b *moduleBuilder) declareImport(c *node) {
	if len(c.list) < 4 {
		b.fail(c.loc, "import: expected (import \"module\" \"name\" (kind ...))")
		return
	}
	modName, ok1 := atomText(c.list[1], tokString)
	name, ok2 := atomText(c.list[2], tokString)
	if !ok1 || !ok2 {
		b.fail(c.loc, "import: module and field names must be strings")
		return
	}
	desc := c.list[3]
	imp := &wasm.Import{Module: modName, Name: name}
	switch desc.head() {
	case "func":
		imp.Type = wasm.ExternTypeFunc
		id, rest := optionalID(desc.list[1:])
		typeIdx, _, ok := b.resolveInlineFuncType(desc, rest)
		if !ok {
			return
		}
		imp.DescFunc = typeIdx
		idx := b.m.ImportedFunctionCount()
		b.m.ImportSection = append(b.m.ImportSection, imp)
		b.bindName(b.funcNames, id, idx)
		return
	case "table":
		imp.Type = wasm.ExternTypeTable
		id, rest := optionalID(desc.list[1:])
		lim, ok := parseLimits(rest, wasm.TableMaxElements, desc.loc)
		if !ok {
			return
		}
		imp.DescTable = &wasm.TableType{Limits: lim}
		idx := b.m.ImportedTableCount()
		b.m.ImportSection = append(b.m.ImportSection, imp)
		b.bindName(b.tableNames, id, idx)
		return
	case "memory":
		imp.Type = wasm.ExternTypeMemory
		id, rest := optionalID(desc.list[1:])
		lim, ok := parseLimits(rest, wasm.MemoryMaxPages, desc.loc)
		if !ok {
			return
		}
		imp.DescMemory = &wasm.MemoryType{Limits: lim}
		idx := b.m.ImportedMemoryCount()
		b.m.ImportSection = append(b.m.ImportSection, imp)
		b.bindName(b.memNames, id, idx)
		return
	case "global":
		imp.Type = wasm.ExternTypeGlobal
		id, rest := optionalID(desc.list[1:])
		gt, ok := parseGlobalType(rest, desc.loc)
		if !ok {
			return
		}
		imp.DescGlobal = gt
		idx := b.m.ImportedGlobalCount()
		b.m.ImportSection = append(b.m.ImportSection, imp)
		b.bindName(b.globalNames, id, idx)
		return
	default:
		b.fail(desc.loc, "import: unknown import kind %q", desc.head())
	}
}

func (b *moduleBuilder) bindName(space map[string]wasm.Index, id string, idx wasm.Index) {
	if id != "" {
		space[id] = idx
	}
}

// optionalID peels a leading $name off a header's remaining children, if
// present, returning it plus the rest unchanged otherwise.
func optionalID(nodes []*node) (string, []*node) {
	if len(nodes) > 0 && !nodes[0].isList() && nodes[0].leafKind == tokID {
		return nodes[0].text, nodes[1:]
	}
	return "", nodes
}

func atomText(n *node, kind tokenKind) (string, bool) {
	if n.isList() || n.leafKind != kind {
		return "", false
	}
	return n.text, true
}

func parseLimits(nodes []*node, cap uint32, loc Loc) (wasm.Limits, bool) {
	if len(nodes) == 0 {
		return wasm.Limits{}, false
	}
	min, err := parseU32(nodes[0].text, nodes[0].loc)
	if err != nil {
		return wasm.Limits{}, false
	}
	l := wasm.Limits{Min: min}
	if len(nodes) > 1 && !nodes[1].isList() && nodes[1].leafKind == tokNumber {
		max, err := parseU32(nodes[1].text, nodes[1].loc)
		if err != nil {
			return wasm.Limits{}, false
		}
		l.Max = &max
	}
	if !l.IsValid(cap) {
		return wasm.Limits{}, false
	}
	return l, true
}

func parseGlobalType(nodes []*node, loc Loc) (*wasm.GlobalType, bool) {
	if len(nodes) == 0 {
		return nil, false
	}
	if nodes[0].isList() && nodes[0].head() == "mut" && len(nodes[0].list) > 1 {
		vt, ok := valueTypeFromKeyword(nodes[0].list[1].text)
		if !ok {
			return nil, false
		}
		return &wasm.GlobalType{ValType: vt, Mutable: true}, true
	}
	vt, ok := valueTypeFromKeyword(nodes[0].text)
	if !ok {
		return nil, false
	}
	return &wasm.GlobalType{ValType: vt, Mutable: false}, true
}

func (b *moduleBuilder) declareTypes(children []*node) {
	for _, c := range children {
		if c.head() != "type" {
			continue
		}
		rest := c.list[1:]
		id, rest := optionalID(rest)
		if len(rest) == 0 || rest[0].head() != "func" {
			b.fail(c.loc, "type: expected (func ...) signature")
			continue
		}
		ft := parseFuncSig(rest[0].list[1:])
		ft = b.m.Interner().Intern(ft)
		idx := wasm.Index(len(b.m.TypeSection))
		if existing, ok := b.typeIndexOf[ft]; ok {
			idx = existing
		} else {
			b.m.TypeSection = append(b.m.TypeSection, ft)
			b.typeIndexOf[ft] = idx
		}
		b.bindName(b.typeNames, id, idx)
	}
}

// parseFuncSig reads a (func ...) signature's (param ...)*/(result ...)*
// children into a FunctionType. Named params (param $x i32) contribute
// one type each like unnamed ones; their names only matter inside a
// function body's local space, tracked separately by parseLocals.
func parseFuncSig(nodes []*node) *wasm.FunctionType {
	ft := &wasm.FunctionType{}
	for _, n := range nodes {
		if !n.isList() {
			continue
		}
		switch n.head() {
		case "param":
			items := n.list[1:]
			if len(items) >= 2 && items[0].leafKind == tokID {
				if vt, ok := valueTypeFromKeyword(items[1].text); ok {
					ft.Params = append(ft.Params, vt)
				}
				continue
			}
			for _, it := range items {
				if vt, ok := valueTypeFromKeyword(it.text); ok {
					ft.Params = append(ft.Params, vt)
				}
			}
		case "result":
			for _, it := range n.list[1:] {
				if vt, ok := valueTypeFromKeyword(it.text); ok {
					ft.Results = wasm.ValueTypeToResultType(vt)
				}
			}
		}
	}
	return ft
}

// resolveInlineFuncType resolves a function header's type, which is
// either an explicit (type $t) reference or an inline (param...)
// (result...) signature synthesized and interned on the spot.
func (b *moduleBuilder) resolveInlineFuncType(owner *node, headers []*node) (wasm.Index, *wasm.FunctionType, bool) {
	for _, h := range headers {
		if h.isList() && h.head() == "type" {
			idx, err := b.resolveRef(h.list[1], b.typeNames)
			if err != nil {
				b.errs = append(b.errs, err)
				return 0, nil, false
			}
			if int(idx) >= len(b.m.TypeSection) {
				b.fail(h.loc, "type index %d out of range", idx)
				return 0, nil, false
			}
			return idx, b.m.TypeSection[idx], true
		}
	}
	ft := b.m.Interner().Intern(parseFuncSig(headers))
	if idx, ok := b.typeIndexOf[ft]; ok {
		return idx, ft, true
	}
	idx := wasm.Index(len(b.m.TypeSection))
	b.m.TypeSection = append(b.m.TypeSection, ft)
	b.typeIndexOf[ft] = idx
	return idx, ft, true
}

func (b *moduleBuilder) resolveRef(n *node, names map[string]wasm.Index) (wasm.Index, error) {
	if n.isList() {
		return 0, resolveErrf(n.loc, "expected an index or name, got a list")
	}
	if n.leafKind == tokID {
		idx, ok := names[n.text]
		if !ok {
			return 0, resolveErrf(n.loc, "undefined identifier %q", n.text)
		}
		return idx, nil
	}
	return parseU32(n.text, n.loc)
}

func (b *moduleBuilder) declareDefinitions(children []*node) {
	var exports []*node
	for _, c := range children {
		switch c.head() {
		case "func":
			b.declareFunc(c)
		case "table":
			b.declareTable(c)
		case "memory":
			b.declareMemory(c)
		case "global":
			b.declareGlobal(c)
		case "export":
			exports = append(exports, c)
		case "start":
			b.startNode = c
		case "elem":
			b.elemDecls = append(b.elemDecls, segmentDecl{c})
		case "data":
			b.dataDecls = append(b.dataDecls, segmentDecl{c})
		}
	}
	// Exports resolve once every definition is declared, so they may name
	// a function, table, memory, or global defined later in the source.
	for _, c := range exports {
		b.declareExport(c)
	}
}

func (b *moduleBuilder) declareExport(c *node) {
	if len(c.list) < 3 {
		b.fail(c.loc, "export: expected (export \"name\" (kind ref))")
		return
	}
	name, ok := atomText(c.list[1], tokString)
	if !ok {
		b.fail(c.loc, "export: name must be a string")
		return
	}
	desc := c.list[2]
	var kind wasm.ExternType
	var names map[string]wasm.Index
	switch desc.head() {
	case "func":
		kind, names = wasm.ExternTypeFunc, b.funcNames
	case "table":
		kind, names = wasm.ExternTypeTable, b.tableNames
	case "memory":
		kind, names = wasm.ExternTypeMemory, b.memNames
	case "global":
		kind, names = wasm.ExternTypeGlobal, b.globalNames
	default:
		b.fail(desc.loc, "export: unknown export kind %q", desc.head())
		return
	}
	idx, err := b.resolveRef(desc.list[1], names)
	if err != nil {
		b.errs = append(b.errs, err)
		return
	}
	if _, dup := b.m.ExportSection[name]; dup {
		b.fail(c.loc, "duplicate export name %q", name)
		return
	}
	b.m.ExportSection[name] = &wasm.Export{Name: name, Type: kind, Index: idx}
}

func (b *moduleBuilder) declareTable(c *node) {
	rest := c.list[1:]
	id, rest := optionalID(rest)
	lim, ok := parseLimits(rest, wasm.TableMaxElements, c.loc)
	if !ok {
		b.fail(c.loc, "table: invalid limits")
		return
	}
	idx := b.m.TableCount()
	b.m.TableSection = append(b.m.TableSection, &wasm.TableType{Limits: lim})
	b.bindName(b.tableNames, id, idx)
}

func (b *moduleBuilder) declareMemory(c *node) {
	rest := c.list[1:]
	id, rest := optionalID(rest)
	lim, ok := parseLimits(rest, wasm.MemoryMaxPages, c.loc)
	if !ok {
		b.fail(c.loc, "memory: invalid limits")
		return
	}
	idx := b.m.MemoryCount()
	b.m.MemorySection = append(b.m.MemorySection, &wasm.MemoryType{Limits: lim})
	b.bindName(b.memNames, id, idx)
}

func (b *moduleBuilder) declareGlobal(c *node) {
	rest := c.list[1:]
	id, rest := optionalID(rest)
	if len(rest) == 0 {
		b.fail(c.loc, "global: missing type")
		return
	}
	var gt *wasm.GlobalType
	var ok bool
	var initStart int
	if rest[0].isList() && rest[0].head() == "mut" && len(rest[0].list) > 1 {
		vt, vok := valueTypeFromKeyword(rest[0].list[1].text)
		gt, ok = &wasm.GlobalType{ValType: vt, Mutable: true}, vok
		initStart = 1
	} else {
		vt, vok := valueTypeFromKeyword(rest[0].text)
		gt, ok = &wasm.GlobalType{ValType: vt, Mutable: false}, vok
		initStart = 1
	}
	if !ok {
		b.fail(c.loc, "global: invalid type")
		return
	}
	idx := b.m.GlobalCount()
	g := &wasm.Global{Type: gt}
	b.m.GlobalSection = append(b.m.GlobalSection, g)
	b.bindName(b.globalNames, id, idx)
	// initStart is relative to rest; translate back to an index into c.list.
	headerLen := len(c.list) - len(rest)
	b.globalDecls = append(b.globalDecls, &globalDecl{idx: idx, globalNode: c, initStart: headerLen + initStart})
}

func (b *moduleBuilder) declareFunc(c *node) {
	rest := c.list[1:]
	id, rest := optionalID(rest)

	var headers []*node
	i := 0
	for i < len(rest) && rest[i].isList() {
		switch rest[i].head() {
		case "export":
			name, ok := atomText(rest[i].list[1], tokString)
			if ok {
				idx := b.m.ImportedFunctionCount() + wasm.Index(len(b.m.FunctionSection))
				if _, dup := b.m.ExportSection[name]; !dup {
					b.m.ExportSection[name] = &wasm.Export{Name: name, Type: wasm.ExternTypeFunc, Index: idx}
				}
			}
			i++
			continue
		case "type", "param", "result":
			headers = append(headers, rest[i])
			i++
			continue
		}
		break
	}
	typeIdx, ft, ok := b.resolveInlineFuncType(c, headers)
	if !ok {
		return
	}

	locals := append([]wasm.ValueType{}, ft.Params...)
	localNames := map[string]wasm.Index{}
	for li, h := range headers {
		if h.head() != "param" {
			continue
		}
		items := h.list[1:]
		if len(items) == 2 && items[0].leafKind == tokID {
			localNames[items[0].text] = wasm.Index(countParamsBefore(headers, li))
		}
	}
	for i < len(rest) && rest[i].isList() && rest[i].head() == "local" {
		items := rest[i].list[1:]
		if len(items) == 2 && items[0].leafKind == tokID {
			if vt, ok := valueTypeFromKeyword(items[1].text); ok {
				localNames[items[0].text] = wasm.Index(len(locals))
				locals = append(locals, vt)
			}
		} else {
			for _, it := range items {
				if vt, ok := valueTypeFromKeyword(it.text); ok {
					locals = append(locals, vt)
				}
			}
		}
		i++
	}

	idx := b.m.ImportedFunctionCount() + wasm.Index(len(b.m.FunctionSection))
	b.m.FunctionSection = append(b.m.FunctionSection, typeIdx)
	b.m.CodeSection = append(b.m.CodeSection, &wasm.Code{LocalTypes: locals[len(ft.Params):]})
	b.bindName(b.funcNames, id, idx)

	b.funcDecls = append(b.funcDecls, &funcDecl{
		idx:        idx,
		funcNode:   c,
		bodyStart:  len(c.list) - (len(rest) - i),
		localNames: localNames,
		locals:     locals,
	})
}

// countParamsBefore counts value-type slots contributed by (param ...)
// headers strictly before index li, used to assign a named param's local
// index.
func countParamsBefore(headers []*node, li int) int {
	n := 0
	for i := 0; i < li; i++ {
		if headers[i].head() != "param" {
			continue
		}
		items := headers[i].list[1:]
		if len(items) == 2 && items[0].leafKind == tokID {
			n++
		} else {
			n += len(items)
		}
	}
	return n
}
