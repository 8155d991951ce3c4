package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrintModule_roundTripsThroughParser(t *testing.T) {
	src := `(module
      (memory 1)
      (global $g (mut i32) (i32.const 5))
      (func $add (param i32) (param i32) (result i32)
        local.get 0
        local.get 1
        i32.add)
      (export "add" (func $add)))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)

	out := PrintModule(m)

	// The printer never emits unbalanced parens: a naive depth count over
	// the output must return to zero.
	depth := 0
	for _, r := range out {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
		require.GreaterOrEqual(t, depth, 0)
	}
	require.Equal(t, 0, depth)

	// The actual round trip: printed output must reparse without error
	// and reproduce the same module semantics, identifiers aside.
	m2, errs2 := ParseModule([]byte(out))
	require.Empty(t, errs2, "printed output failed to reparse:\n%s", out)

	require.Equal(t, len(m.TypeSection), len(m2.TypeSection))
	for i, ft := range m.TypeSection {
		require.Equal(t, ft.String(), m2.TypeSection[i].String())
	}
	require.Equal(t, m.FunctionSection, m2.FunctionSection)
	require.Len(t, m2.CodeSection, len(m.CodeSection))
	for i, c := range m.CodeSection {
		require.Equal(t, c.LocalTypes, m2.CodeSection[i].LocalTypes)
		require.Equal(t, c.Body, m2.CodeSection[i].Body)
	}
	require.Equal(t, len(m.MemorySection), len(m2.MemorySection))
	require.Len(t, m2.GlobalSection, len(m.GlobalSection))
	for i, g := range m.GlobalSection {
		require.Equal(t, g.Type, m2.GlobalSection[i].Type)
		require.Equal(t, g.Init, m2.GlobalSection[i].Init)
	}
	require.Equal(t, m.ExportSection, m2.ExportSection)
}

func TestPrintModule_nestedBlockIndentation(t *testing.T) {
	src := `(module
      (func $f (result i32)
        block (result i32)
          i32.const 1
        end))`
	m, errs := ParseModule([]byte(src))
	require.Empty(t, errs)
	out := PrintModule(m)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	var blockLine, constLine, endLine string
	for _, l := range lines {
		switch {
		case strings.Contains(l, "block"):
			blockLine = l
		case strings.Contains(l, "i32.const"):
			constLine = l
		case strings.TrimSpace(l) == "end" && endLine == "":
			endLine = l
		}
	}
	require.NotEmpty(t, blockLine)
	require.True(t, leadingSpaces(constLine) > leadingSpaces(blockLine))
}

func leadingSpaces(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' {
			break
		}
		n++
	}
	return n
}
