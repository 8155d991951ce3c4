package text

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/wasmhost/wasmgate/internal/leb128"
	"github.com/wasmhost/wasmgate/internal/wasm"
)

// defineBodies runs the define pass: it lowers every locally defined
// function's instructions (flat or folded) to bytecode, evaluates global
// initializers, and resolves the start function and the element/data
// segments. All name bindings are already complete by this point, so
// nothing here needs to tolerate forward references.
func (b *moduleBuilder) defineBodies() {
	for _, fd := range b.funcDecls {
		body, err := b.lowerFuncBody(fd)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		ci := fd.idx - b.m.ImportedFunctionCount()
		b.m.CodeSection[ci].Body = body
	}
	for _, gd := range b.globalDecls {
		expr, err := b.lowerConstExpr(gd.globalNode.list[gd.initStart])
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		b.m.GlobalSection[gd.idx-b.m.ImportedGlobalCount()].Init = expr
	}
	if b.startNode != nil {
		idx, err := b.resolveRef(b.startNode.list[1], b.funcNames)
		if err != nil {
			b.errs = append(b.errs, err)
		} else {
			b.m.StartSection = &idx
		}
	}
	for _, sd := range b.elemDecls {
		b.lowerElemSegment(sd.node)
	}
	for _, sd := range b.dataDecls {
		b.lowerDataSegment(sd.node)
	}
}

// lowerConstExpr lowers a single folded instruction --- the only form
// constant expressions take in WAST (global initializers and segment
// offsets) --- into the opcode+immediate encoding wasm.ConstantExpression
// stores, matching what the binary decoder produces for the same
// expression.
func (b *moduleBuilder) lowerConstExpr(n *node) (wasm.ConstantExpression, error) {
	if !n.isList() || len(n.list) == 0 {
		return wasm.ConstantExpression{}, resolveErrf(n.loc, "expected a constant expression")
	}
	mnemonic := n.list[0].text
	args := n.list[1:]
	switch mnemonic {
	case "i32.const":
		v, err := parseI32(args[0].text, args[0].loc)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		return wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(v)}, nil
	case "i64.const":
		v, err := parseI64(args[0].text, args[0].loc)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		return wasm.ConstantExpression{Opcode: wasm.OpcodeI64Const, Data: leb128.EncodeInt64(v)}, nil
	case "f32.const":
		bits32, err := parseF32Bits(args[0].text, args[0].loc)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		return wasm.ConstantExpression{Opcode: wasm.OpcodeF32Const, Data: le32(bits32)}, nil
	case "f64.const":
		bits64, err := parseF64Bits(args[0].text, args[0].loc)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		return wasm.ConstantExpression{Opcode: wasm.OpcodeF64Const, Data: le64(bits64)}, nil
	case "global.get":
		idx, err := b.resolveRef(args[0], b.globalNames)
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		return wasm.ConstantExpression{Opcode: wasm.OpcodeGlobalGet, Data: leb128.EncodeUint32(idx)}, nil
	}
	return wasm.ConstantExpression{}, resolveErrf(n.loc, "%q is not valid in a constant expression", mnemonic)
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * uint(i)))
	}
	return out
}

func (b *moduleBuilder) lowerElemSegment(c *node) {
	rest := c.list[1:]
	tableIdx := wasm.Index(0)
	if len(rest) > 0 && !rest[0].isList() {
		idx, err := b.resolveRef(rest[0], b.tableNames)
		if err == nil {
			tableIdx = idx
			rest = rest[1:]
		}
	}
	if len(rest) == 0 {
		b.fail(c.loc, "elem: missing offset expression")
		return
	}
	offsetNode := rest[0]
	if offsetNode.isList() && offsetNode.head() == "offset" {
		offsetNode = offsetNode.list[1]
	}
	offset, err := b.lowerConstExpr(offsetNode)
	if err != nil {
		b.errs = append(b.errs, err)
		return
	}
	var init []wasm.Index
	for _, fn := range rest[1:] {
		idx, err := b.resolveRef(fn, b.funcNames)
		if err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		init = append(init, idx)
	}
	b.m.ElementSection = append(b.m.ElementSection, &wasm.ElementSegment{TableIndex: tableIdx, Offset: offset, Init: init})
}

func (b *moduleBuilder) lowerDataSegment(c *node) {
	rest := c.list[1:]
	memIdx := wasm.Index(0)
	if len(rest) > 0 && !rest[0].isList() {
		idx, err := b.resolveRef(rest[0], b.memNames)
		if err == nil {
			memIdx = idx
			rest = rest[1:]
		}
	}
	if len(rest) == 0 {
		b.fail(c.loc, "data: missing offset expression")
		return
	}
	offsetNode := rest[0]
	if offsetNode.isList() && offsetNode.head() == "offset" {
		offsetNode = offsetNode.list[1]
	}
	offset, err := b.lowerConstExpr(offsetNode)
	if err != nil {
		b.errs = append(b.errs, err)
		return
	}
	var init []byte
	for _, s := range rest[1:] {
		if str, ok := atomText(s, tokString); ok {
			init = append(init, []byte(str)...)
		}
	}
	b.m.DataSection = append(b.m.DataSection, &wasm.DataSegment{MemoryIndex: memIdx, Offset: offset, Init: init})
}

// funcBody holds the per-function state threaded through instruction
// lowering: the flat sibling list making up the body, a cursor over it,
// an output byte buffer, and the stack of enclosing block/loop/if labels
// (by name, empty string for unnamed) used to resolve br/br_if/br_table.
type funcBody struct {
	b          *moduleBuilder
	fd         *funcDecl
	siblings   []*node
	pos        int
	out        []byte
	labelStack []string
}

func (b *moduleBuilder) lowerFuncBody(fd *funcDecl) ([]byte, error) {
	fb := &funcBody{b: b, fd: fd, siblings: fd.funcNode.list[fd.bodyStart:]}
	if err := fb.run(); err != nil {
		return nil, err
	}
	fb.out = append(fb.out, byte(wasm.OpcodeEnd))
	return fb.out, nil
}

func (fb *funcBody) run() error {
	for fb.pos < len(fb.siblings) {
		n := fb.siblings[fb.pos]
		fb.pos++
		if n.isList() {
			if err := fb.lowerFolded(n); err != nil {
				return err
			}
			continue
		}
		if n.leafKind != tokKeyword {
			return resolveErrf(n.loc, "expected an instruction, got %q", n.text)
		}
		if err := fb.lowerOne(n); err != nil {
			return err
		}
	}
	return nil
}

// withArgs temporarily redirects the shared sibling cursor to args, runs
// fn, and restores it. It is how folded-instruction lowering reuses the
// same immediate-consuming code (fb.next, the branch-table and mem-arg
// peek loops) that flat form uses: from their point of view the operand
// list of a folded instruction is just another sibling stream.
func (fb *funcBody) withArgs(args []*node, fn func() error) error {
	savedSiblings, savedPos := fb.siblings, fb.pos
	fb.siblings, fb.pos = args, 0
	err := fn()
	fb.siblings, fb.pos = savedSiblings, savedPos
	return err
}

// isInstructionHead reports whether n is a list whose head names an
// actual instruction (flat opcode, or block/loop/if) as opposed to a
// meta-annotation list like (result i32) or (type 0): the former is a
// nested operand expression to lower recursively before the enclosing
// instruction; the latter is passed through as an immediate argument.
func isInstructionHead(n *node) bool {
	if !n.isList() || len(n.list) == 0 || n.list[0].leafKind != tokKeyword {
		return false
	}
	head := n.list[0].text
	if head == "block" || head == "loop" || head == "if" {
		return true
	}
	_, ok := opcodeByName[head]
	return ok
}

// lowerFolded lowers a parenthesized instruction: its nested operand
// expressions are lowered first, depth-first and left-to-right (so their
// values land on the stack in evaluation order), then the instruction
// itself is lowered through the same path flat form uses, with its
// remaining (non-expression) arguments fed through a redirected cursor.
//
// block and loop get their own folded form, since their body is a
// nested sibling list rather than an immediate. Folded if is out of
// scope: its (then ...)/(else ...) arms don't map onto flat lowering's
// label-stack model without real restructuring, so it stays a parse
// error with a pointer to the flat spelling.
func (fb *funcBody) lowerFolded(n *node) error {
	mnemonic := n.head()
	switch mnemonic {
	case "block", "loop":
		return fb.lowerFoldedBlockLike(mnemonic, n)
	case "if":
		return resolveErrf(n.loc, "folded if expressions are not supported, use flat form")
	}
	args := n.list[1:]
	var atoms []*node
	for _, a := range args {
		if isInstructionHead(a) {
			if err := fb.lowerFolded(a); err != nil {
				return err
			}
			continue
		}
		atoms = append(atoms, a)
	}
	return fb.withArgs(atoms, func() error { return fb.lowerOne(n.list[0]) })
}

// lowerFoldedBlockLike handles (block ...)/(loop ...) written as a single
// parenthesized form: optional label, optional (result T), then a body
// of nested instructions (folded or flat) closed implicitly by the form's
// own closing paren rather than a written "end".
func (fb *funcBody) lowerFoldedBlockLike(mnemonic string, n *node) error {
	op := opcodeByName[mnemonic]
	fb.emitByte(byte(op))

	rest := n.list[1:]
	label := ""
	if len(rest) > 0 && !rest[0].isList() && rest[0].leafKind == tokID {
		label = rest[0].text
		rest = rest[1:]
	}
	fb.labelStack = append(fb.labelStack, label)

	rt := wasm.ResultTypeNone
	if len(rest) > 0 && rest[0].isList() && rest[0].head() == "result" {
		if len(rest[0].list) > 1 {
			if vt, ok := valueTypeFromKeyword(rest[0].list[1].text); ok {
				rt = wasm.ValueTypeToResultType(vt)
			}
		}
		rest = rest[1:]
	} else if len(rest) > 0 && rest[0].isList() && rest[0].head() == "type" {
		rest = rest[1:] // multi-value block types are out of scope; ignored
	}
	if vt, ok := rt.AsValueType(); ok {
		fb.emitByte(byte(vt))
	} else {
		fb.emitByte(0x40)
	}

	if err := fb.withArgs(rest, fb.run); err != nil {
		return err
	}

	fb.labelStack = fb.labelStack[:len(fb.labelStack)-1]
	fb.emitByte(byte(wasm.OpcodeEnd))
	return nil
}

func (fb *funcBody) next() (*node, error) {
	if fb.pos >= len(fb.siblings) {
		return nil, resolveErrf(Loc{}, "unexpected end of function body")
	}
	n := fb.siblings[fb.pos]
	fb.pos++
	return n, nil
}

func (fb *funcBody) emitByte(b byte)      { fb.out = append(fb.out, b) }
func (fb *funcBody) emitBytes(bs []byte)  { fb.out = append(fb.out, bs...) }
func (fb *funcBody) emitU32(v uint32)     { fb.emitBytes(leb128.EncodeUint32(v)) }

func (fb *funcBody) lowerOne(n *node) error {
	mnemonic := n.text
	switch mnemonic {
	case "block", "loop", "if":
		return fb.lowerBlockLike(mnemonic, n)
	case "else":
		fb.emitByte(byte(wasm.OpcodeElse))
		return nil
	case "end":
		if len(fb.labelStack) == 0 {
			return resolveErrf(n.loc, "unexpected end")
		}
		fb.labelStack = fb.labelStack[:len(fb.labelStack)-1]
		fb.emitByte(byte(wasm.OpcodeEnd))
		return nil
	}

	op, ok := opcodeByName[mnemonic]
	if !ok {
		return resolveErrf(n.loc, "unknown instruction %q", mnemonic)
	}
	info := wasm.Opcodes[op]
	fb.emitByte(byte(op))
	switch info.Immediate {
	case wasm.ImmNone:
		return nil
	case wasm.ImmBranch:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		depth, err := fb.resolveLabel(arg)
		if err != nil {
			return err
		}
		fb.emitU32(depth)
		return nil
	case wasm.ImmBranchTable:
		var depths []uint32
		for fb.pos < len(fb.siblings) {
			peek := fb.siblings[fb.pos]
			if peek.isList() || peek.leafKind == tokKeyword {
				break
			}
			depth, err := fb.resolveLabel(peek)
			if err != nil {
				return err
			}
			depths = append(depths, depth)
			fb.pos++
		}
		if len(depths) == 0 {
			return resolveErrf(n.loc, "br_table requires at least one target")
		}
		targets := depths[:len(depths)-1]
		fb.emitU32(uint32(len(targets)))
		for _, d := range targets {
			fb.emitU32(d)
		}
		fb.emitU32(depths[len(depths)-1])
		return nil
	case wasm.ImmFunc:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		idx, err := fb.b.resolveRef(arg, fb.b.funcNames)
		if err != nil {
			return err
		}
		fb.emitU32(idx)
		return nil
	case wasm.ImmType:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		var idx wasm.Index
		if arg.isList() && arg.head() == "type" {
			idx, err = fb.b.resolveRef(arg.list[1], fb.b.typeNames)
		} else {
			idx, err = fb.b.resolveRef(arg, fb.b.typeNames)
		}
		if err != nil {
			return err
		}
		fb.emitU32(idx)
		fb.emitByte(0) // reserved
		return nil
	case wasm.ImmLocal:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		idx, err := fb.resolveLocal(arg)
		if err != nil {
			return err
		}
		fb.emitU32(idx)
		return nil
	case wasm.ImmGlobal:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		idx, err := fb.b.resolveRef(arg, fb.b.globalNames)
		if err != nil {
			return err
		}
		fb.emitU32(idx)
		return nil
	case wasm.ImmMem:
		align, offset, err := fb.lowerMemArg(op)
		if err != nil {
			return err
		}
		fb.emitU32(align)
		fb.emitU32(offset)
		return nil
	case wasm.ImmMemIndex:
		fb.emitByte(0) // reserved
		return nil
	case wasm.ImmI32:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		v, err := parseI32(arg.text, arg.loc)
		if err != nil {
			return err
		}
		fb.emitBytes(leb128.EncodeInt32(v))
		return nil
	case wasm.ImmI64:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		v, err := parseI64(arg.text, arg.loc)
		if err != nil {
			return err
		}
		fb.emitBytes(leb128.EncodeInt64(v))
		return nil
	case wasm.ImmF32:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		v, err := parseF32Bits(arg.text, arg.loc)
		if err != nil {
			return err
		}
		fb.emitBytes(le32(v))
		return nil
	case wasm.ImmF64:
		arg, err := fb.next()
		if err != nil {
			return err
		}
		v, err := parseF64Bits(arg.text, arg.loc)
		if err != nil {
			return err
		}
		fb.emitBytes(le64(v))
		return nil
	default:
		return resolveErrf(n.loc, "instruction %q has an unsupported immediate shape", mnemonic)
	}
}

func (fb *funcBody) lowerBlockLike(mnemonic string, n *node) error {
	op, _ := opcodeByName[mnemonic]
	fb.emitByte(byte(op))

	label := ""
	if fb.pos < len(fb.siblings) {
		peek := fb.siblings[fb.pos]
		if !peek.isList() && peek.leafKind == tokID {
			label = peek.text
			fb.pos++
		}
	}
	fb.labelStack = append(fb.labelStack, label)

	rt := wasm.ResultTypeNone
	if fb.pos < len(fb.siblings) {
		peek := fb.siblings[fb.pos]
		if peek.isList() && peek.head() == "result" {
			if len(peek.list) > 1 {
				if vt, ok := valueTypeFromKeyword(peek.list[1].text); ok {
					rt = wasm.ValueTypeToResultType(vt)
				}
			}
			fb.pos++
		} else if peek.isList() && peek.head() == "type" {
			fb.pos++ // multi-value block types are out of scope; ignored
		}
	}
	if vt, ok := rt.AsValueType(); ok {
		fb.emitByte(byte(vt))
	} else {
		fb.emitByte(0x40)
	}
	return nil
}

// resolveLabel resolves a branch target to its relative depth: a numeric
// literal is the depth directly, a $name is looked up from the innermost
// enclosing label outward.
func (fb *funcBody) resolveLabel(n *node) (uint32, error) {
	if n.isList() {
		return 0, resolveErrf(n.loc, "expected a label")
	}
	if n.leafKind == tokID {
		for i := len(fb.labelStack) - 1; i >= 0; i-- {
			if fb.labelStack[i] == n.text {
				return uint32(len(fb.labelStack) - 1 - i), nil
			}
		}
		return 0, resolveErrf(n.loc, "undefined label %q", n.text)
	}
	return parseU32(n.text, n.loc)
}

func (fb *funcBody) resolveLocal(n *node) (wasm.Index, error) {
	if n.isList() {
		return 0, resolveErrf(n.loc, "expected a local index or name")
	}
	if n.leafKind == tokID {
		idx, ok := fb.fd.localNames[n.text]
		if !ok {
			return 0, resolveErrf(n.loc, "undefined local %q", n.text)
		}
		return idx, nil
	}
	return parseU32(n.text, n.loc)
}

// lowerMemArg consumes zero or more "offset=N"/"align=N" keyword atoms
// trailing a memory instruction, defaulting offset to 0 and alignment to
// the operation's natural alignment.
func (fb *funcBody) lowerMemArg(op wasm.Opcode) (alignLog2, offset uint32, err error) {
	alignLog2 = wasm.NaturalAlignment(op)
	for fb.pos < len(fb.siblings) {
		peek := fb.siblings[fb.pos]
		if peek.isList() || peek.leafKind != tokKeyword {
			break
		}
		switch {
		case strings.HasPrefix(peek.text, "offset="):
			v, perr := strconv.ParseUint(peek.text[len("offset="):], 0, 32)
			if perr != nil {
				return 0, 0, resolveErrf(peek.loc, "invalid offset %q", peek.text)
			}
			offset = uint32(v)
			fb.pos++
		case strings.HasPrefix(peek.text, "align="):
			v, perr := strconv.ParseUint(peek.text[len("align="):], 0, 32)
			if perr != nil || v == 0 || v&(v-1) != 0 {
				return 0, 0, resolveErrf(peek.loc, "invalid align %q", peek.text)
			}
			alignLog2 = uint32(bits.TrailingZeros64(v))
			fb.pos++
		default:
			return alignLog2, offset, nil
		}
	}
	return alignLog2, offset, nil
}
