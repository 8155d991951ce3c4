package text

import "fmt"

// SyntaxError is returned by the lexer and s-expression reader for
// malformed input: unterminated strings/comments, stray parens, unknown
// atoms. Loc identifies the offending line and column, since byte offset
// is meaningless to a human editing WAST source.
type SyntaxError struct {
	Loc     Loc
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Loc.Line, e.Loc.Col, e.Message)
}

// ResolveError is returned by the module parser's two passes: a reference
// to an undeclared name or out-of-range index, or an operand the grammar
// doesn't allow in context.
type ResolveError struct {
	Loc     Loc
	Message string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Loc.Line, e.Loc.Col, e.Message)
}

func syntaxErrf(loc Loc, format string, args ...interface{}) error {
	return &SyntaxError{Loc: loc, Message: fmt.Sprintf(format, args...)}
}

func resolveErrf(loc Loc, format string, args ...interface{}) error {
	return &ResolveError{Loc: loc, Message: fmt.Sprintf(format, args...)}
}
