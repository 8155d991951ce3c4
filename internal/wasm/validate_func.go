package wasm

// valueTypeUnknown is the "polymorphic" stack-slot marker used while a
// control frame is unreachable: operand types pulled from below the floor
// of an unreachable frame are allowed to be anything, matching whatever
// the eventual (unreachable, never executed) consumer expects. It is not
// a value ValueType ever produced by the decoder.
const valueTypeUnknown ValueType = 0x00

type frameKind int

const (
	frameFunc frameKind = iota
	frameBlock
	frameLoop
	frameIfThen
	frameIfElse
)

// ctrlFrame is one entry of the body-pass control stack: a structured
// control construct (the function itself, or one block/loop/if) together
// with enough state to type-check branches into it and its own end.
type ctrlFrame struct {
	kind          frameKind
	branchArgType ResultType // type a branch targeting this frame must supply
	resultType    ResultType // type this construct leaves on the stack when it falls through
	height        int        // value-stack height when this frame was entered
	unreachable   bool
}

// ValidateFunc runs the body pass over a single function: a stack-
// polymorphic type checker over its operator stream. It assumes the
// module pass has already validated index-space sizes and types; it
// returns the first error encountered in this function's body, so that
// ValidateFunctions can move on to the next function rather than abort
// the whole module on one bad body.
func ValidateFunc(m *Module, funcIdx Index, features Features) error {
	ft, ok := m.FunctionTypeOf(funcIdx)
	if !ok {
		return funcErr(BadIndex, funcIdx, 0, "function index %d out of range", funcIdx)
	}
	imported := m.ImportedFunctionCount()
	if funcIdx < imported {
		return nil
	}
	code := m.CodeSection[funcIdx-imported]
	locals := m.LocalTypes(funcIdx)

	v := &funcValidator{
		m:       m,
		funcIdx: funcIdx,
		locals:  locals,
		r:       &bodyReader{data: code.Body},
	}
	v.cs = append(v.cs, ctrlFrame{kind: frameFunc, branchArgType: ft.Results, resultType: ft.Results})
	return v.run()
}

// ValidateFunctions runs ValidateFunc over every locally defined function,
// collecting at most one error per function and continuing to the rest
// regardless.
func ValidateFunctions(m *Module, features Features) []error {
	var errs []error
	imported := m.ImportedFunctionCount()
	for i := range m.FunctionSection {
		idx := imported + Index(i)
		if err := ValidateFunc(m, idx, features); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

type funcValidator struct {
	m       *Module
	funcIdx Index
	locals  []ValueType
	r       *bodyReader
	vs      []ValueType
	cs      []ctrlFrame
}

func (v *funcValidator) cur() *ctrlFrame { return &v.cs[len(v.cs)-1] }

func (v *funcValidator) readErr(err error) error {
	return funcErr(UnterminatedFunction, v.funcIdx, v.r.offset(), "malformed operator encoding: %v", err)
}

func (v *funcValidator) pushVal(t ValueType) { v.vs = append(v.vs, t) }

func (v *funcValidator) pushResult(rt ResultType) {
	if vt, ok := rt.AsValueType(); ok {
		v.pushVal(vt)
	}
}

func (v *funcValidator) popValAny() (ValueType, error) {
	f := v.cur()
	if len(v.vs) == f.height {
		if f.unreachable {
			return valueTypeUnknown, nil
		}
		return 0, funcErr(StackUnderflow, v.funcIdx, v.r.offset(), "value stack underflow")
	}
	t := v.vs[len(v.vs)-1]
	v.vs = v.vs[:len(v.vs)-1]
	return t, nil
}

func (v *funcValidator) popVal(want ValueType) error {
	got, err := v.popValAny()
	if err != nil {
		return err
	}
	if got != valueTypeUnknown && want != valueTypeUnknown && got != want {
		return funcErr(TypeMismatch, v.funcIdx, v.r.offset(), "type mismatch: expected %s, got %s", want, got)
	}
	return nil
}

func (v *funcValidator) peekVal(want ValueType) error {
	f := v.cur()
	if len(v.vs) == f.height {
		if f.unreachable {
			return nil
		}
		return funcErr(StackUnderflow, v.funcIdx, v.r.offset(), "value stack underflow")
	}
	got := v.vs[len(v.vs)-1]
	if got != want {
		return funcErr(TypeMismatch, v.funcIdx, v.r.offset(), "type mismatch: expected %s, got %s", want, got)
	}
	return nil
}

func (v *funcValidator) popVals(ts []ValueType) error {
	for i := len(ts) - 1; i >= 0; i-- {
		if err := v.popVal(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *funcValidator) popResult(rt ResultType) error {
	if vt, ok := rt.AsValueType(); ok {
		return v.popVal(vt)
	}
	return nil
}

// markUnreachable truncates the value stack back to the current frame's
// floor and marks it unreachable: subsequent operators up to the matching
// else/end are polymorphic and skip real type checks.
func (v *funcValidator) markUnreachable() {
	f := v.cur()
	v.vs = v.vs[:f.height]
	f.unreachable = true
}

func (v *funcValidator) pushFrame(kind frameKind, branchArgType, resultType ResultType) {
	v.cs = append(v.cs, ctrlFrame{kind: kind, branchArgType: branchArgType, resultType: resultType, height: len(v.vs)})
}

// popFrame closes the current control frame: its declared result must be
// present on the stack (unless the frame is unreachable, in which case
// it's synthesized), and nothing else may remain above the frame's floor.
func (v *funcValidator) popFrame() (ctrlFrame, error) {
	f := *v.cur()
	if err := v.popResult(f.resultType); err != nil {
		return f, err
	}
	if len(v.vs) != f.height {
		return f, funcErr(TypeMismatch, v.funcIdx, v.r.offset(), "operand stack has extra values at end of block")
	}
	v.cs = v.cs[:len(v.cs)-1]
	return f, nil
}

func (v *funcValidator) frameAt(depth uint32) (*ctrlFrame, error) {
	idx := len(v.cs) - 1 - int(depth)
	if idx < 0 {
		return nil, funcErr(BranchTargetMismatch, v.funcIdx, v.r.offset(), "branch depth %d exceeds control stack depth %d", depth, len(v.cs))
	}
	return &v.cs[idx], nil
}

func (v *funcValidator) run() error {
	for {
		if v.r.done() {
			return funcErr(UnterminatedFunction, v.funcIdx, v.r.offset(), "function body ends without closing all blocks")
		}
		opOffset := v.r.offset()
		opByte, err := v.r.readByte()
		if err != nil {
			return v.readErr(err)
		}
		op := Opcode(opByte)
		info, ok := Opcodes[op]
		if !ok {
			return funcErr(BadIndex, v.funcIdx, opOffset, "invalid opcode 0x%x", opByte)
		}

		switch op {
		case OpcodeBlock, OpcodeLoop, OpcodeIf:
			rt, err := v.r.readBlockType()
			if err != nil {
				return v.readErr(err)
			}
			if op == OpcodeIf && !v.cur().unreachable {
				if err := v.popVal(ValueTypeI32); err != nil {
					return err
				}
			}
			var kind frameKind
			var branchArg ResultType
			switch op {
			case OpcodeBlock:
				kind, branchArg = frameBlock, rt
			case OpcodeLoop:
				kind, branchArg = frameLoop, ResultTypeNone
			case OpcodeIf:
				kind, branchArg = frameIfThen, rt
			}
			v.pushFrame(kind, branchArg, rt)

		case OpcodeElse:
			f := v.cur()
			if f.kind != frameIfThen {
				return funcErr(BranchTargetMismatch, v.funcIdx, opOffset, "else without a matching if")
			}
			if err := v.popResult(f.resultType); err != nil {
				return err
			}
			if len(v.vs) != f.height {
				return funcErr(TypeMismatch, v.funcIdx, opOffset, "operand stack has extra values before else")
			}
			f.kind = frameIfElse
			f.unreachable = false

		case OpcodeEnd:
			f := v.cur()
			if f.kind == frameIfThen && f.resultType != ResultTypeNone {
				return funcErr(BranchTargetMismatch, v.funcIdx, opOffset, "if without else cannot produce a result")
			}
			popped, err := v.popFrame()
			if err != nil {
				return err
			}
			if len(v.cs) == 0 {
				if !v.r.done() {
					return funcErr(TrailingBytes, v.funcIdx, v.r.offset(), "trailing bytes after function body")
				}
				return nil
			}
			v.pushResult(popped.resultType)

		case OpcodeBr:
			depth, err := v.r.readU32()
			if err != nil {
				return v.readErr(err)
			}
			target, err := v.frameAt(depth)
			if err != nil {
				return err
			}
			if !v.cur().unreachable {
				if err := v.popResult(target.branchArgType); err != nil {
					return err
				}
			}
			v.markUnreachable()

		case OpcodeBrIf:
			depth, err := v.r.readU32()
			if err != nil {
				return v.readErr(err)
			}
			target, err := v.frameAt(depth)
			if err != nil {
				return err
			}
			if !v.cur().unreachable {
				if err := v.popVal(ValueTypeI32); err != nil {
					return err
				}
				if vt, ok := target.branchArgType.AsValueType(); ok {
					if err := v.peekVal(vt); err != nil {
						return err
					}
				}
			}

		case OpcodeBrTable:
			targets, def, err := v.r.readBrTable()
			if err != nil {
				return v.readErr(err)
			}
			var common ResultType
			haveCommon := false
			for _, d := range append(targets, def) {
				f, err := v.frameAt(d)
				if err != nil {
					return err
				}
				if !haveCommon {
					common, haveCommon = f.branchArgType, true
				} else if f.branchArgType != common {
					return funcErr(BranchTargetMismatch, v.funcIdx, opOffset, "br_table targets disagree on branch type")
				}
			}
			if !v.cur().unreachable {
				if err := v.popVal(ValueTypeI32); err != nil {
					return err
				}
				if err := v.popResult(common); err != nil {
					return err
				}
			}
			v.markUnreachable()

		case OpcodeReturn:
			fn := &v.cs[0]
			if !v.cur().unreachable {
				if err := v.popResult(fn.branchArgType); err != nil {
					return err
				}
			}
			v.markUnreachable()

		case OpcodeUnreachable:
			v.markUnreachable()

		case OpcodeDrop:
			if !v.cur().unreachable {
				if _, err := v.popValAny(); err != nil {
					return err
				}
			}

		case OpcodeSelect:
			if !v.cur().unreachable {
				if err := v.popVal(ValueTypeI32); err != nil {
					return err
				}
				t2, err := v.popValAny()
				if err != nil {
					return err
				}
				t1, err := v.popValAny()
				if err != nil {
					return err
				}
				if t1 != valueTypeUnknown && t2 != valueTypeUnknown && t1 != t2 {
					return funcErr(TypeMismatch, v.funcIdx, opOffset, "select operands have mismatched types %s and %s", t1, t2)
				}
				result := t1
				if result == valueTypeUnknown {
					result = t2
				}
				v.pushVal(result)
			}

		case OpcodeLocalGet, OpcodeLocalSet, OpcodeLocalTee:
			idx, err := v.r.readU32()
			if err != nil {
				return v.readErr(err)
			}
			if int(idx) >= len(v.locals) {
				return funcErr(BadIndex, v.funcIdx, opOffset, "local index %d out of range", idx)
			}
			t := v.locals[idx]
			if v.cur().unreachable {
				continue
			}
			switch op {
			case OpcodeLocalGet:
				v.pushVal(t)
			case OpcodeLocalSet:
				if err := v.popVal(t); err != nil {
					return err
				}
			case OpcodeLocalTee:
				if err := v.popVal(t); err != nil {
					return err
				}
				v.pushVal(t)
			}

		case OpcodeGlobalGet, OpcodeGlobalSet:
			idx, err := v.r.readU32()
			if err != nil {
				return v.readErr(err)
			}
			gt, ok := v.m.GlobalTypeOf(idx)
			if !ok {
				return funcErr(BadIndex, v.funcIdx, opOffset, "global index %d out of range", idx)
			}
			if op == OpcodeGlobalSet && !gt.Mutable {
				return funcErr(TypeMismatch, v.funcIdx, opOffset, "global %d is immutable", idx)
			}
			if v.cur().unreachable {
				continue
			}
			if op == OpcodeGlobalGet {
				v.pushVal(gt.ValType)
			} else if err := v.popVal(gt.ValType); err != nil {
				return err
			}

		case OpcodeCall:
			idx, err := v.r.readU32()
			if err != nil {
				return v.readErr(err)
			}
			callee, ok := v.m.FunctionTypeOf(idx)
			if !ok {
				return funcErr(BadIndex, v.funcIdx, opOffset, "function index %d out of range", idx)
			}
			if !v.cur().unreachable {
				if err := v.popVals(callee.Params); err != nil {
					return err
				}
				v.pushResult(callee.Results)
			}

		case OpcodeCallIndirect:
			typeIdx, err := v.r.readU32()
			if err != nil {
				return v.readErr(err)
			}
			callee, ok := v.m.TypeOf(typeIdx)
			if !ok {
				return funcErr(BadIndex, v.funcIdx, opOffset, "type index %d out of range", typeIdx)
			}
			reserved, err := v.r.readByte()
			if err != nil {
				return v.readErr(err)
			}
			if reserved != 0 {
				return funcErr(BadIndex, v.funcIdx, opOffset, "call_indirect reserved byte must be zero")
			}
			if !v.m.HasTable() {
				return funcErr(BadIndex, v.funcIdx, opOffset, "call_indirect requires a table")
			}
			if !v.cur().unreachable {
				if err := v.popVal(ValueTypeI32); err != nil {
					return err
				}
				if err := v.popVals(callee.Params); err != nil {
					return err
				}
				v.pushResult(callee.Results)
			}

		default:
			if err := v.consumeImmediate(op, info, opOffset); err != nil {
				return err
			}
			if !v.cur().unreachable {
				if err := v.popVals(info.Signature.Pop); err != nil {
					return err
				}
				if info.Signature.HasPush {
					v.pushVal(info.Signature.Push)
				}
			}
		}
	}
}

// consumeImmediate advances past op's immediate bytes (if any) and checks
// the memory-access invariants (natural-alignment bound, memory presence)
// that apply regardless of reachability.
func (v *funcValidator) consumeImmediate(op Opcode, info OpInfo, opOffset uint64) error {
	switch info.Immediate {
	case ImmI32:
		if _, err := v.r.readI32(); err != nil {
			return v.readErr(err)
		}
	case ImmI64:
		if _, err := v.r.readI64(); err != nil {
			return v.readErr(err)
		}
	case ImmF32:
		if _, err := v.r.readRaw(4); err != nil {
			return v.readErr(err)
		}
	case ImmF64:
		if _, err := v.r.readRaw(8); err != nil {
			return v.readErr(err)
		}
	case ImmMem:
		alignLog2, _, err := v.r.readMemArg()
		if err != nil {
			return v.readErr(err)
		}
		if alignLog2 > NaturalAlignment(op) {
			return funcErr(AlignmentTooLarge, v.funcIdx, opOffset, "alignment 2**%d exceeds natural alignment of %s", alignLog2, info.Name)
		}
		if !v.m.HasMemory() {
			return funcErr(BadIndex, v.funcIdx, opOffset, "%s requires a memory", info.Name)
		}
	case ImmMemIndex:
		reserved, err := v.r.readByte()
		if err != nil {
			return v.readErr(err)
		}
		if reserved != 0 {
			return funcErr(BadIndex, v.funcIdx, opOffset, "%s reserved byte must be zero", info.Name)
		}
		if !v.m.HasMemory() {
			return funcErr(BadIndex, v.funcIdx, opOffset, "%s requires a memory", info.Name)
		}
	}
	return nil
}
