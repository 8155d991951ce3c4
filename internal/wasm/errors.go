package wasm

import "fmt"

// DecodeErrorKind distinguishes the three binary-decoder failure modes.
type DecodeErrorKind int

const (
	// Malformed is a syntactic failure: bad magic/version, bad LEB128,
	// truncated section, unknown section id.
	Malformed DecodeErrorKind = iota
	// OutOfRange is a count or index exceeding its limit.
	OutOfRange
	// Mismatch is a cross-section inconsistency, e.g. the function and
	// code sections disagreeing on count.
	Mismatch
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case OutOfRange:
		return "out of range"
	case Mismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// DecodeError is returned by the binary decoder. Offset is the byte
// position, relative to the start of the module, at which the problem was
// detected.
type DecodeError struct {
	Kind    DecodeErrorKind
	Offset  uint64
	Message string
}

func (e *DecodeError) Error() string {
	return e.Message
}

func malformed(offset uint64, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: Malformed, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func outOfRange(offset uint64, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: OutOfRange, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

func mismatch(offset uint64, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: Mismatch, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// NewMalformedError constructs a Malformed DecodeError; exported for the
// binary and text packages, which detect syntactic errors on the module's
// behalf.
func NewMalformedError(offset uint64, format string, args ...interface{}) *DecodeError {
	return malformed(offset, format, args...)
}

// NewOutOfRangeError constructs an OutOfRange DecodeError.
func NewOutOfRangeError(offset uint64, format string, args ...interface{}) *DecodeError {
	return outOfRange(offset, format, args...)
}

// NewMismatchError constructs a Mismatch DecodeError.
func NewMismatchError(offset uint64, format string, args ...interface{}) *DecodeError {
	return mismatch(offset, format, args...)
}

// ValidationErrorKind distinguishes the validator's structural and typing
// failure modes.
type ValidationErrorKind int

const (
	// Structural (module pass).
	DuplicateExportName ValidationErrorKind = iota
	TooManyTables
	TooManyMemories
	TooManyStartFunctions
	BadStartFunctionType
	BadIndex
	MutableGlobalImportDisabled
	BadGlobalInitializer
	OverlappingSegment
	SegmentOutOfBounds

	// Typing (body pass).
	StackUnderflow
	TypeMismatch
	AlignmentTooLarge
	BranchTargetMismatch
	UnterminatedFunction
	TrailingBytes
)

// ValidationError is returned by the validator. FuncIndex and Offset are
// only meaningful for body-pass errors: FuncIndex identifies the function,
// and Offset is the byte position within its operator stream.
type ValidationError struct {
	Kind      ValidationErrorKind
	FuncIndex Index
	HasFunc   bool
	Offset    uint64
	Message   string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func moduleErr(kind ValidationErrorKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func funcErr(kind ValidationErrorKind, funcIdx Index, offset uint64, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, FuncIndex: funcIdx, HasFunc: true, Offset: offset, Message: fmt.Sprintf(format, args...)}
}
