package text

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tokenKinds(t *testing.T, src string) []tokenKind {
	toks, err := newLexer([]byte(src)).tokenize()
	require.NoError(t, err)
	kinds := make([]tokenKind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.kind
	}
	return kinds
}

func TestLexer_basicForm(t *testing.T) {
	toks, err := newLexer([]byte(`(module (func $f (param $x i32)))`)).tokenize()
	require.NoError(t, err)
	require.Equal(t, tokLParen, toks[0].kind)
	require.Equal(t, tokKeyword, toks[1].kind)
	require.Equal(t, "module", toks[1].text)
	require.Equal(t, tokEOF, toks[len(toks)-1].kind)
}

func TestLexer_stringEscapes(t *testing.T) {
	toks, err := newLexer([]byte(`"a\nb\t\"\5a"`)).tokenize()
	require.NoError(t, err)
	require.Equal(t, tokString, toks[0].kind)
	require.Equal(t, "a\nb\t\"Za", toks[0].text) // \5a = 0x5a = 'Z'
}

func TestLexer_successiveStringLiteralsDontCorruptEachOther(t *testing.T) {
	// Regression check for the arena-backed string assembly in lexString:
	// each literal must read back intact even though they share the same
	// scratch arena across calls.
	toks, err := newLexer([]byte(`"first" "second, longer" "3"`)).tokenize()
	require.NoError(t, err)
	require.Equal(t, "first", toks[0].text)
	require.Equal(t, "second, longer", toks[1].text)
	require.Equal(t, "3", toks[2].text)
}

func TestLexer_lineComment(t *testing.T) {
	kinds := tokenKinds(t, "(module ;; a comment\n)")
	require.Equal(t, []tokenKind{tokLParen, tokKeyword, tokRParen, tokEOF}, kinds)
}

func TestLexer_nestedBlockComment(t *testing.T) {
	kinds := tokenKinds(t, "(module (; outer (; inner ;) still outer ;) )")
	require.Equal(t, []tokenKind{tokLParen, tokKeyword, tokRParen, tokEOF}, kinds)
}

func TestLexer_unterminatedBlockComment(t *testing.T) {
	_, err := newLexer([]byte("(; never closes")).tokenize()
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
}

func TestLexer_idAndNumberClassification(t *testing.T) {
	toks, err := newLexer([]byte(`$foo -12 3.14 i32.add`)).tokenize()
	require.NoError(t, err)
	require.Equal(t, tokID, toks[0].kind)
	require.Equal(t, tokNumber, toks[1].kind)
	require.Equal(t, tokNumber, toks[2].kind)
	require.Equal(t, tokKeyword, toks[3].kind)
}

func TestParseSExpr_roundTripsList(t *testing.T) {
	n, err := parseSExpr([]byte(`(module (memory 1))`))
	require.NoError(t, err)
	require.True(t, n.isList())
	require.Equal(t, "module", n.head())
	require.Equal(t, "memory", n.list[1].head())
}

func TestParseSExpr_unexpectedCloseParen(t *testing.T) {
	_, err := parseSExpr([]byte(`)`))
	require.Error(t, err)
}

func TestParseSExpr_trailingInputRejected(t *testing.T) {
	_, err := parseSExpr([]byte(`(module) (module)`))
	require.Error(t, err)
}
