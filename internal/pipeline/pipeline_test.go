package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmhost/wasmgate/internal/wasm"
)

const minimalWat = `(module (func (result i32) (i32.const 42)))`

func TestParseAndValidate_validModulePasses(t *testing.T) {
	m, errs := ParseAndValidate([]byte(minimalWat), Config{})
	require.Empty(t, errs)
	require.Len(t, m.TypeSection, 1)
}

func TestParseAndValidate_parseErrorsShortCircuitValidation(t *testing.T) {
	_, errs := ParseAndValidate([]byte(`(module (func (result i32)`), Config{})
	require.NotEmpty(t, errs)
}

func TestDecodeAndValidate_roundTripsThroughEncode(t *testing.T) {
	m, errs := ParseAndValidate([]byte(minimalWat), Config{})
	require.Empty(t, errs)

	data := Encode(m)
	m2, errs := DecodeAndValidate(data, Config{})
	require.Empty(t, errs)
	require.Len(t, m2.TypeSection, 1)
}

func TestPrint_roundTripsThroughParse(t *testing.T) {
	m, errs := ParseAndValidate([]byte(minimalWat), Config{})
	require.Empty(t, errs)

	printed := Print(m)
	m2, errs := ParseAndValidate([]byte(printed), Config{})
	require.Empty(t, errs)
	require.Equal(t, m.TypeSection[0].Results, m2.TypeSection[0].Results)
}

func TestFormatError_decodeErrorIncludesOffsetAndKind(t *testing.T) {
	err := wasm.NewMalformedError(3, "bad magic")
	require.Equal(t, "3: malformed: bad magic", FormatError(err))
}

func TestDecodeAndValidate_headerOnlyModuleValidates(t *testing.T) {
	_, errs := DecodeAndValidate([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, Config{})
	require.Empty(t, errs) // empty module with only the header validates cleanly
}
