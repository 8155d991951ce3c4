package text

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wasmhost/wasmgate/internal/leb128"
	"github.com/wasmhost/wasmgate/internal/wasm"
)

// PrintModule renders m as indented WAST, suitable for disassembly. It is
// the parser's approximate inverse: re-parsing printed output reproduces
// the same Module semantics. The name section is not consulted, so every
// definition and reference is written by numeric index, and custom
// sections are not printed. Bodies are printed as flat mnemonics; the
// folded-instruction form, which the parser also accepts, is never
// emitted.
func PrintModule(m *wasm.Module) string {
	p := &printer{m: m}
	p.writeLine("(module")
	p.indent++
	for i, ft := range m.TypeSection {
		p.writeLine(fmt.Sprintf("(type (;%d;) (func%s))", i, sigSuffix(ft)))
	}
	for _, imp := range m.ImportSection {
		p.printImport(imp)
	}
	funcIdx := m.ImportedFunctionCount()
	for i, typeIdx := range m.FunctionSection {
		p.printFunc(funcIdx, typeIdx, m.CodeSection[i])
		funcIdx++
	}
	for i, t := range m.TableSection {
		p.writeLine(fmt.Sprintf("(table (;%d;) %s funcref)", int(m.ImportedTableCount())+i, limitsStr(t.Limits)))
	}
	for i, mem := range m.MemorySection {
		p.writeLine(fmt.Sprintf("(memory (;%d;) %s)", int(m.ImportedMemoryCount())+i, limitsStr(mem.Limits)))
	}
	globalIdx := m.ImportedGlobalCount()
	for _, g := range m.GlobalSection {
		p.printGlobal(globalIdx, g)
		globalIdx++
	}
	p.printExports()
	if m.StartSection != nil {
		p.writeLine(fmt.Sprintf("(start %d)", *m.StartSection))
	}
	for _, e := range m.ElementSection {
		p.printElem(e)
	}
	for _, d := range m.DataSection {
		p.printData(d)
	}
	p.indent--
	p.writeLine(")")
	return p.sb.String()
}

type printer struct {
	m      *wasm.Module
	sb     strings.Builder
	indent int
}

func (p *printer) writeLine(s string) {
	p.sb.WriteString(strings.Repeat("  ", p.indent))
	p.sb.WriteString(s)
	p.sb.WriteByte('\n')
}

func sigSuffix(ft *wasm.FunctionType) string {
	s := ft.String()
	if s == "" {
		return ""
	}
	return " " + s
}

func limitsStr(l wasm.Limits) string {
	if l.Max != nil {
		return fmt.Sprintf("%d %d", l.Min, *l.Max)
	}
	return fmt.Sprintf("%d", l.Min)
}

func (p *printer) printImport(imp *wasm.Import) {
	switch imp.Type {
	case wasm.ExternTypeFunc:
		ft, _ := p.m.TypeOf(imp.DescFunc)
		p.writeLine(fmt.Sprintf("(import %q %q (func (type %d)))", imp.Module, imp.Name, imp.DescFunc))
		_ = ft
	case wasm.ExternTypeTable:
		p.writeLine(fmt.Sprintf("(import %q %q (table %s funcref))", imp.Module, imp.Name, limitsStr(imp.DescTable.Limits)))
	case wasm.ExternTypeMemory:
		p.writeLine(fmt.Sprintf("(import %q %q (memory %s))", imp.Module, imp.Name, limitsStr(imp.DescMemory.Limits)))
	case wasm.ExternTypeGlobal:
		p.writeLine(fmt.Sprintf("(import %q %q (global %s))", imp.Module, imp.Name, globalTypeStr(imp.DescGlobal)))
	}
}

func globalTypeStr(gt *wasm.GlobalType) string {
	if gt.Mutable {
		return fmt.Sprintf("(mut %s)", gt.ValType)
	}
	return gt.ValType.String()
}

func (p *printer) printExports() {
	names := make([]string, 0, len(p.m.ExportSection))
	for name := range p.m.ExportSection {
		names = append(names, name)
	}
	// Deterministic order: exports don't carry a source position once
	// stored in the map, so sort by name.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	for _, name := range names {
		e := p.m.ExportSection[name]
		p.writeLine(fmt.Sprintf("(export %q (%s %d))", name, e.Type.String(), e.Index))
	}
}

func (p *printer) printGlobal(idx wasm.Index, g *wasm.Global) {
	p.writeLine(fmt.Sprintf("(global (;%d;) %s %s)", idx, globalTypeStr(g.Type), constExprStr(g.Init)))
}

func constExprStr(ce wasm.ConstantExpression) string {
	switch ce.Opcode {
	case wasm.OpcodeI32Const:
		v, _, _ := leb128.DecodeInt32(newByteReader(ce.Data))
		return fmt.Sprintf("(i32.const %d)", v)
	case wasm.OpcodeI64Const:
		v, _, _ := leb128.DecodeInt64(newByteReader(ce.Data))
		return fmt.Sprintf("(i64.const %d)", v)
	case wasm.OpcodeF32Const:
		bits := uint32(ce.Data[0]) | uint32(ce.Data[1])<<8 | uint32(ce.Data[2])<<16 | uint32(ce.Data[3])<<24
		return fmt.Sprintf("(f32.const %s)", formatFloat(float64(math.Float32frombits(bits)), 32))
	case wasm.OpcodeF64Const:
		var bits uint64
		for i := 7; i >= 0; i-- {
			bits = bits<<8 | uint64(ce.Data[i])
		}
		return fmt.Sprintf("(f64.const %s)", formatFloat(math.Float64frombits(bits), 64))
	case wasm.OpcodeGlobalGet:
		idx, _, _ := leb128.DecodeUint32(newByteReader(ce.Data))
		return fmt.Sprintf("(global.get %d)", idx)
	default:
		return "(unknown-const-expr)"
	}
}

func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, bitSize)
}

// byteReaderCursor adapts a []byte to io.ByteReader for leb128 decoding,
// used only by the printer's constant-expression formatting.
type byteReaderCursor struct {
	data []byte
	pos  int
}

func newByteReader(b []byte) *byteReaderCursor { return &byteReaderCursor{data: b} }

func (r *byteReaderCursor) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("unexpected end of constant expression")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (p *printer) printElem(e *wasm.ElementSegment) {
	var sb strings.Builder
	for i, fi := range e.Init {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatUint(uint64(fi), 10))
	}
	p.writeLine(fmt.Sprintf("(elem (;%d;) %s %s)", e.TableIndex, constExprStr(e.Offset), sb.String()))
}

func (p *printer) printData(d *wasm.DataSegment) {
	// Bytes outside printable ASCII are written as \hh escapes, which the
	// lexer reads back as single bytes.
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range d.Init {
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			fmt.Fprintf(&sb, "\\%02x", c)
		}
	}
	sb.WriteByte('"')
	p.writeLine(fmt.Sprintf("(data (;%d;) %s %s)", d.MemoryIndex, constExprStr(d.Offset), sb.String()))
}

func (p *printer) printFunc(idx, typeIdx wasm.Index, code *wasm.Code) {
	ft, _ := p.m.TypeOf(typeIdx)
	p.writeLine(fmt.Sprintf("(func (;%d;) (type %d)%s", idx, typeIdx, sigSuffix(ft)))
	p.indent++
	if len(code.LocalTypes) > 0 {
		var sb strings.Builder
		sb.WriteString("(local")
		for _, vt := range code.LocalTypes {
			sb.WriteByte(' ')
			sb.WriteString(vt.String())
		}
		sb.WriteByte(')')
		p.writeLine(sb.String())
	}
	printBody(p, code.Body)
	p.indent--
	p.writeLine(")")
}

// printBody disassembles a function's raw operator stream back into one
// mnemonic per line, indenting nested blocks. It is deliberately flat:
// the printer never reconstructs folded-expression sugar.
func printBody(p *printer, body []byte) {
	r := &byteReaderCursor{data: body}
	depth := 0
	for r.pos < len(r.data) {
		opByte, err := r.ReadByte()
		if err != nil {
			return
		}
		op := wasm.Opcode(opByte)
		info, ok := wasm.Opcodes[op]
		if !ok {
			p.writeLine(fmt.Sprintf(";; unknown opcode 0x%x", opByte))
			return
		}
		if op == wasm.OpcodeEnd {
			if depth == 0 {
				// The function's own terminating end: body_lower always
				// appends one during lowering, so the parser never wants
				// to see it written back out. Nested block/loop/if ends
				// are printed; this one is implicit.
				continue
			}
			depth--
			p.indent--
			p.writeLine("end")
			continue
		}
		if op == wasm.OpcodeElse {
			p.indent--
			p.writeLine("else")
			p.indent++
			continue
		}
		line := info.Name
		switch info.Immediate {
		case wasm.ImmBlock:
			bt, _ := r.ReadByte()
			if bt != 0x40 {
				line += " (result " + wasm.ValueType(bt).String() + ")"
			}
			p.writeLine(line)
			depth++
			p.indent++
			continue
		case wasm.ImmBranch, wasm.ImmFunc, wasm.ImmType, wasm.ImmLocal, wasm.ImmGlobal:
			v, _, _ := leb128.DecodeUint32(r)
			line += fmt.Sprintf(" %d", v)
			if info.Immediate == wasm.ImmType {
				_, _ = r.ReadByte() // reserved
			}
		case wasm.ImmMemIndex:
			_, _ = r.ReadByte() // reserved
		case wasm.ImmBranchTable:
			count, _, _ := leb128.DecodeUint32(r)
			for i := uint32(0); i < count; i++ {
				t, _, _ := leb128.DecodeUint32(r)
				line += fmt.Sprintf(" %d", t)
			}
			def, _, _ := leb128.DecodeUint32(r)
			line += fmt.Sprintf(" %d", def)
		case wasm.ImmMem:
			align, _, _ := leb128.DecodeUint32(r)
			offset, _, _ := leb128.DecodeUint32(r)
			if offset != 0 {
				line += fmt.Sprintf(" offset=%d", offset)
			}
			line += fmt.Sprintf(" align=%d", uint32(1)<<align)
		case wasm.ImmI32:
			v, _, _ := leb128.DecodeInt32(r)
			line += fmt.Sprintf(" %d", v)
		case wasm.ImmI64:
			v, _, _ := leb128.DecodeInt64(r)
			line += fmt.Sprintf(" %d", v)
		case wasm.ImmF32:
			b0, _ := r.ReadByte()
			b1, _ := r.ReadByte()
			b2, _ := r.ReadByte()
			b3, _ := r.ReadByte()
			bits := uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16 | uint32(b3)<<24
			line += fmt.Sprintf(" %s", formatFloat(float64(math.Float32frombits(bits)), 32))
		case wasm.ImmF64:
			var bits uint64
			for i := 0; i < 8; i++ {
				b, _ := r.ReadByte()
				bits |= uint64(b) << (8 * uint(i))
			}
			line += fmt.Sprintf(" %s", formatFloat(math.Float64frombits(bits), 64))
		}
		p.writeLine(line)
	}
}
