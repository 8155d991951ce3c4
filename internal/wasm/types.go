package wasm

import (
	"fmt"
	"strings"
	"sync"
)

// Index identifies an element within one of the four per-kind index
// spaces (function, table, memory, global). Imports occupy the low indices
// in declaration order, followed by definitions.
type Index = uint32

// ExternType tags the kind of an Import or Export. The numeric values
// match the binary encoding's kind byte.
type ExternType byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

func (k ExternType) String() string {
	switch k {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	default:
		return fmt.Sprintf("unknown(0x%x)", byte(k))
	}
}

// FunctionType is an ordered sequence of parameter value types plus a
// single optional result. Instances are canonicalized through a
// TypeInterner so that structurally identical types compare equal by
// pointer identity.
type FunctionType struct {
	Params  []ValueType
	Results ResultType

	cachedKey string
}

// key returns a canonical string uniquely identifying the shape of t. Two
// function types with the same key are indistinguishable per the data
// model's canonicalization rule.
func (t *FunctionType) key() string {
	if t.cachedKey != "" {
		return t.cachedKey
	}
	var sb strings.Builder
	for _, p := range t.Params {
		sb.WriteByte(byte(p))
	}
	sb.WriteByte(0) // separator: not a valid value type byte.
	sb.WriteByte(byte(t.Results))
	t.cachedKey = sb.String()
	return t.cachedKey
}

// Equals reports structural equality, which after interning coincides with
// pointer identity for any two types that passed through the same
// TypeInterner.
func (t *FunctionType) Equals(o *FunctionType) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil {
		return false
	}
	return t.key() == o.key()
}

// String renders the type in the canonical textual form used by the WAST
// printer, e.g. "(param i32 i32) (result i32)".
func (t *FunctionType) String() string {
	var sb strings.Builder
	if len(t.Params) > 0 {
		sb.WriteString("(param")
		for _, p := range t.Params {
			sb.WriteByte(' ')
			sb.WriteString(p.String())
		}
		sb.WriteByte(')')
	}
	if t.Results != ResultTypeNone {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("(result ")
		sb.WriteString(t.Results.String())
		sb.WriteByte(')')
	}
	return sb.String()
}

// TypeInterner canonicalizes FunctionType values so that equal shapes share
// a single instance. The decoder and the text parser each use the
// interner of the module being built (Module.Interner); sharing one across
// modules is optional and, if done, must be guarded by the interner's own
// mutex, since the module pipeline otherwise assumes single-threaded
// ownership of everything it touches.
type TypeInterner struct {
	mu    sync.Mutex
	table map[string]*FunctionType
}

// NewTypeInterner returns an empty interner.
func NewTypeInterner() *TypeInterner {
	return &TypeInterner{table: make(map[string]*FunctionType)}
}

// Intern returns the canonical instance for t's shape, which may be t
// itself if this is the first time that shape has been seen.
func (in *TypeInterner) Intern(t *FunctionType) *FunctionType {
	k := t.key()
	in.mu.Lock()
	defer in.mu.Unlock()
	if existing, ok := in.table[k]; ok {
		return existing
	}
	in.table[k] = t
	return t
}

// Limits is a { min, max } size constraint. A nil Max means unbounded (up
// to the kind-specific cap).
type Limits struct {
	Min uint32
	Max *uint32
}

// IsValid checks min <= max (when max is present) and both operands at
// most the kind-specific cap.
func (l Limits) IsValid(cap uint32) bool {
	if l.Min > cap {
		return false
	}
	if l.Max != nil {
		if *l.Max > cap || l.Min > *l.Max {
			return false
		}
	}
	return true
}

// Subset reports whether sub is a subset of super: sub.min >= super.min
// and sub.max <= super.max, treating a nil Max as unbounded.
func Subset(super, sub Limits) bool {
	if sub.Min < super.Min {
		return false
	}
	switch {
	case super.Max == nil:
		return true
	case sub.Max == nil:
		return false
	default:
		return *sub.Max <= *super.Max
	}
}

const (
	// MemoryPageSize is the fixed granularity of memory size constraints:
	// 64 KiB.
	MemoryPageSize = 65536
	// MemoryMaxPages is the kind-specific cap for memory size constraints.
	MemoryMaxPages = 65536
	// TableMaxElements is the kind-specific cap for table size constraints.
	TableMaxElements = 1<<32 - 1
)

// TableType describes a table of function references. The MVP fixes the
// element kind to anyfunc.
type TableType struct {
	Limits Limits
}

// MemoryType is a size constraint measured in 64 KiB pages.
type MemoryType struct {
	Limits Limits
}

// GlobalType is a value type plus a mutability flag.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Import is a single imported function, table, memory, or global. Exactly
// one of the Desc* fields is populated, selected by Type.
type Import struct {
	Type   ExternType
	Module string
	Name   string

	DescFunc   Index // index into the module's TypeSection.
	DescTable  *TableType
	DescMemory *MemoryType
	DescGlobal *GlobalType
}

// Export is a single named export. Index is relative to Type's index
// space (imports then definitions, in declaration order).
type Export struct {
	Name  string
	Type  ExternType
	Index Index
}
