package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// SLOT VALUE EXTRACTION
// =============================================================================
//
// Slot values arrive from three places: the rule extractor (string, int,
// []string), the postprocessor (Portion) and remote JSON decoding (float64,
// []interface{}, string numbers). These helpers read any of them without
// panicking on a type mismatch.

// ExtractString extracts a string representation from a slot value.
func ExtractString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []string:
		return strings.Join(val, ", ")
	case []any:
		return strings.Join(ExtractStrings(val), ", ")
	case Portion:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ExtractInt extracts an integer. Floats are accepted only when integral.
func ExtractInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case float32:
		if float64(val) != math.Trunc(float64(val)) {
			return 0, false
		}
		return int(val), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// ExtractFloat64 extracts a float value.
func ExtractFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ExtractStrings extracts a list of strings. A single string becomes a
// one-element list.
func ExtractStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := ExtractString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case nil:
		return nil
	default:
		return []string{ExtractString(val)}
	}
}
