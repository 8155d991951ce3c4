// Package pipeline wires the decoder, validator, WAST front end, and
// encoder into the handful of whole-file operations cmd/wasmtool exposes.
// It holds no state of its own beyond the Config it's given.
package pipeline

import (
	"fmt"

	"github.com/wasmhost/wasmgate/internal/wasm"
	"github.com/wasmhost/wasmgate/internal/wasm/binary"
	"github.com/wasmhost/wasmgate/internal/wasm/text"
)

// Config carries the pipeline's whole configurable surface: the feature
// flags the validator takes, and an output-format selector. Nothing in
// this package or in cmd/wasmtool sets or reads OutputFormat.
type Config struct {
	Features     wasm.Features
	OutputFormat string // "auto" | "wasm" | "wat"
}

// DecodeAndValidate runs the binary decoder over data, then both validator
// passes. The returned module is only safe to use when errs is empty.
func DecodeAndValidate(data []byte, cfg Config) (*wasm.Module, []error) {
	m, err := binary.DecodeModule(data)
	if err != nil {
		return nil, []error{err}
	}
	return m, validate(m, cfg)
}

// ParseAndValidate runs the WAST parser over src, then both validator
// passes, mirroring DecodeAndValidate for the textual front end.
func ParseAndValidate(src []byte, cfg Config) (*wasm.Module, []error) {
	m, errs := text.ParseModule(src)
	if len(errs) > 0 {
		return m, errs
	}
	return m, validate(m, cfg)
}

func validate(m *wasm.Module, cfg Config) []error {
	var errs []error
	errs = append(errs, wasm.ValidateModule(m, cfg.Features)...)
	errs = append(errs, wasm.ValidateFunctions(m, cfg.Features)...)
	return errs
}

// Print renders a module as WAST text.
func Print(m *wasm.Module) string {
	return text.PrintModule(m)
}

// Encode renders a module as its binary encoding.
func Encode(m *wasm.Module) []byte {
	return binary.EncodeModule(m)
}

// FormatError renders a pipeline error as a single line suitable for
// stderr. Decode errors read "<offset>: <kind>: <message>"; validation
// errors carry no kind and read "func[<index>]+<offset>: <message>" for
// the body pass or "module: <message>" for the module pass; WAST parse
// errors read "<line>:<col>: <message>".
func FormatError(err error) string {
	switch e := err.(type) {
	case *wasm.DecodeError:
		return fmt.Sprintf("%d: %s: %s", e.Offset, e.Kind, e.Message)
	case *wasm.ValidationError:
		if e.HasFunc {
			return fmt.Sprintf("func[%d]+%d: %s", e.FuncIndex, e.Offset, e.Message)
		}
		return fmt.Sprintf("module: %s", e.Message)
	default:
		return err.Error()
	}
}
