package text

// node is one s-expression: either a list of child nodes (a parenthesized
// form) or a leaf token (keyword, id, string, or number). The parser
// walks a tree of these twice, once to declare index spaces and once to
// resolve and lower definitions, rather than threading a token cursor
// through both passes.
type node struct {
	list     []*node // non-nil for a list node
	leafKind tokenKind
	text     string
	loc      Loc
}

func (n *node) isList() bool { return n.list != nil }

// head returns a list node's first child's text if it is a keyword, the
// conventional tag identifying what kind of form the list is ("module",
// "func", "i32.add", ...).
func (n *node) head() string {
	if !n.isList() || len(n.list) == 0 || n.list[0].isList() {
		return ""
	}
	return n.list[0].text
}

// readSExpr parses the entire token stream as a single top-level list
// node (conventionally the "(module ...)" form, though callers may also
// feed a single instruction or literal for testing).
func readSExpr(toks []token) (*node, error) {
	pos := 0
	n, next, err := parseOne(toks, pos)
	if err != nil {
		return nil, err
	}
	if toks[next].kind != tokEOF {
		return nil, syntaxErrf(toks[next].loc, "unexpected trailing input after top-level form")
	}
	return n, nil
}

func parseOne(toks []token, pos int) (*node, int, error) {
	tok := toks[pos]
	switch tok.kind {
	case tokLParen:
		n := &node{loc: tok.loc}
		pos++
		for toks[pos].kind != tokRParen {
			if toks[pos].kind == tokEOF {
				return nil, 0, syntaxErrf(tok.loc, "unterminated list")
			}
			child, next, err := parseOne(toks, pos)
			if err != nil {
				return nil, 0, err
			}
			n.list = append(n.list, child)
			pos = next
		}
		if n.list == nil {
			n.list = []*node{} // distinguish "()" from a leaf
		}
		return n, pos + 1, nil
	case tokRParen:
		return nil, 0, syntaxErrf(tok.loc, "unexpected )")
	case tokEOF:
		return nil, 0, syntaxErrf(tok.loc, "unexpected end of input")
	default:
		return &node{leafKind: tok.kind, text: tok.text, loc: tok.loc}, pos + 1, nil
	}
}

// parseSExpr is the package-level entry point used by the module parser:
// lex then read src into a single top-level node.
func parseSExpr(src []byte) (*node, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	return readSExpr(toks)
}
