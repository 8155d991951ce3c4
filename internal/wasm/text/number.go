package text

import (
	"math"
	"strconv"
	"strings"

	"github.com/wasmhost/wasmgate/internal/wasm"
)

func parseU32(tok string, loc Loc) (uint32, error) {
	v, err := strconv.ParseUint(stripUnderscores(tok), 0, 32)
	if err != nil {
		return 0, resolveErrf(loc, "invalid u32 literal %q: %v", tok, err)
	}
	return uint32(v), nil
}

func parseI32(tok string, loc Loc) (int32, error) {
	v, err := strconv.ParseInt(stripUnderscores(tok), 0, 64)
	if err == nil && v >= math.MinInt32 && v <= math.MaxUint32 {
		return int32(uint32(v)), nil
	}
	uv, err2 := strconv.ParseUint(stripUnderscores(tok), 0, 32)
	if err2 == nil {
		return int32(uv), nil
	}
	return 0, resolveErrf(loc, "invalid i32 literal %q", tok)
}

func parseI64(tok string, loc Loc) (int64, error) {
	v, err := strconv.ParseInt(stripUnderscores(tok), 0, 64)
	if err == nil {
		return v, nil
	}
	uv, err2 := strconv.ParseUint(stripUnderscores(tok), 0, 64)
	if err2 == nil {
		return int64(uv), nil
	}
	return 0, resolveErrf(loc, "invalid i64 literal %q", tok)
}

func parseF32Bits(tok string, loc Loc) (uint32, error) {
	f, err := parseFloatKeyword(tok, 32)
	if err != nil {
		v, perr := strconv.ParseFloat(stripUnderscores(tok), 32)
		if perr != nil {
			return 0, resolveErrf(loc, "invalid f32 literal %q", tok)
		}
		f = v
	}
	return math.Float32bits(float32(f)), nil
}

func parseF64Bits(tok string, loc Loc) (uint64, error) {
	f, err := parseFloatKeyword(tok, 64)
	if err != nil {
		v, perr := strconv.ParseFloat(stripUnderscores(tok), 64)
		if perr != nil {
			return 0, resolveErrf(loc, "invalid f64 literal %q", tok)
		}
		f = v
	}
	return math.Float64bits(f), nil
}

// parseFloatKeyword handles the WAST float keywords that strconv doesn't:
// "inf", "+inf", "-inf", "nan", "-nan". Canonical NaN payloads are not
// distinguished; any "nan" form yields the platform quiet NaN.
func parseFloatKeyword(tok string, bits int) (float64, error) {
	switch strings.TrimPrefix(tok, "+") {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan", "-nan":
		return math.NaN(), nil
	}
	return 0, resolveErrf(Loc{}, "not a float keyword")
}

func stripUnderscores(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	return strings.ReplaceAll(s, "_", "")
}

func valueTypeFromKeyword(kw string) (wasm.ValueType, bool) {
	switch kw {
	case "i32":
		return wasm.ValueTypeI32, true
	case "i64":
		return wasm.ValueTypeI64, true
	case "f32":
		return wasm.ValueTypeF32, true
	case "f64":
		return wasm.ValueTypeF64, true
	default:
		return 0, false
	}
}
