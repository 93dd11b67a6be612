package perception

import (
	"strconv"
	"strings"

	"gutcheck/internal/ontology"
	"gutcheck/internal/types"
)

// =============================================================================
// POSTPROCESSOR
// =============================================================================
// Canonicalizes slot values after extraction and escalation so downstream code
// sees one shape per slot. Applying it twice gives the same result as once.

// tagSlots are lowercased and mapped to canonical tags.
var tagSlots = map[string]func(string) string{
	types.SlotMealTime:    canonicalMeal,
	types.SlotSymptomType: canonicalSymptom,
	types.SlotBrand:       canonicalBrand,
	types.SlotDescription: strings.ToLower,
	types.SlotMood:        strings.ToLower,
}

// Postprocess normalizes p in place, including its multi-actions.
func Postprocess(p *types.ParseResult) {
	if p == nil {
		return
	}
	if p.Slots == nil {
		p.Slots = types.Slots{}
	}

	for key, v := range p.Slots {
		switch key {
		case types.SlotPortion:
			p.Slots[key] = normalizePortion(v)
		case types.SlotSeverity:
			p.Slots[key] = coerceScale(v, ontology.MinSeverity, ontology.MaxSeverity)
		case types.SlotBristol:
			p.Slots[key] = coerceScale(v, ontology.BristolMin, ontology.BristolMax)
		case types.SlotSides:
			p.Slots[key] = cleanList(types.ExtractStrings(v))
		default:
			if s, ok := v.(string); ok {
				s = strings.TrimSpace(s)
				if canon, tagged := tagSlots[key]; tagged && s != "" {
					s = canon(strings.ToLower(s))
				}
				p.Slots[key] = s
			}
		}
		if empty(p.Slots[key]) {
			delete(p.Slots, key)
		}
	}

	p.Recompute()
	for i := range p.MultiActions {
		Postprocess(&p.MultiActions[i])
	}
}

func empty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	}
	return false
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func canonicalMeal(s string) string {
	if ontology.IsMealName(s) {
		return s
	}
	toks := ontology.Tokenize(s)
	for _, g := range ontology.MealGroups {
		for _, term := range g.Terms {
			if term.String() == strings.Join(toks, " ") {
				return g.Name
			}
		}
	}
	return s
}

func canonicalSymptom(s string) string {
	for _, g := range ontology.SymptomGroups {
		if s == g.Name {
			return s
		}
	}
	joined := strings.Join(ontology.Tokenize(s), " ")
	for _, g := range ontology.SymptomGroups {
		for _, term := range g.Terms {
			if term.String() == joined {
				return g.Name
			}
		}
	}
	return s
}

func canonicalBrand(s string) string {
	if b, ok := ontology.CanonicalBrand(s); ok {
		return b
	}
	return s
}

// coerceScale converts an integral in-range value to int. Anything else is
// left as it came so validation downstream can see it.
func coerceScale(v any, lo, hi int) any {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	n, ok := types.ExtractInt(v)
	if !ok {
		if f, isFloat := types.ExtractFloat64(v); isFloat && f == float64(int(f)) {
			n, ok = int(f), true
		}
	}
	if !ok || n < lo || n > hi {
		return v
	}
	return n
}

// =============================================================================
// PORTIONS
// =============================================================================

// normalizePortion turns "2 slices", "a cup of" or {"magnitude":2,"unit":"cups"}
// into a Portion. Unparseable values are returned unchanged.
func normalizePortion(v any) any {
	switch val := v.(type) {
	case types.Portion:
		if u, ok := ontology.CanonicalUnit(strings.ToLower(val.Unit)); ok {
			val.Unit = u
		}
		return val
	case string:
		s := strings.TrimSpace(val)
		if p, ok := ParsePortion(s); ok {
			return p
		}
		return s
	case map[string]any:
		mag, ok := types.ExtractFloat64(val["magnitude"])
		if !ok || mag <= 0 {
			return v
		}
		unit := strings.ToLower(strings.TrimSpace(types.ExtractString(val["unit"])))
		if u, known := ontology.CanonicalUnit(unit); known {
			unit = u
		}
		return types.Portion{Magnitude: mag, Unit: unit}
	case int, int64, float64:
		if mag, ok := types.ExtractFloat64(val); ok && mag > 0 {
			return types.Portion{Magnitude: mag, Unit: "count"}
		}
	}
	return v
}

// ParsePortion parses "<quantity> [unit] [of]".
func ParsePortion(s string) (types.Portion, bool) {
	toks := ontology.Tokenize(s)
	if len(toks) == 0 {
		return types.Portion{}, false
	}

	var mag float64
	rest := toks
	switch {
	case ontology.IsNumeric(toks[0]):
		f, err := strconv.ParseFloat(toks[0], 64)
		if err != nil {
			return types.Portion{}, false
		}
		mag, rest = f, toks[1:]
	case len(toks) > 1 && hasNumberWord(toks[0]+" "+toks[1]):
		mag, rest = ontology.NumberWords[toks[0]+" "+toks[1]], toks[2:]
	case hasNumberWord(toks[0]):
		mag, rest = ontology.NumberWords[toks[0]], toks[1:]
	default:
		return types.Portion{}, false
	}
	if mag <= 0 {
		return types.Portion{}, false
	}

	if len(rest) > 0 && rest[len(rest)-1] == "of" {
		rest = rest[:len(rest)-1]
	}
	switch len(rest) {
	case 0:
		return types.Portion{Magnitude: mag, Unit: "count"}, true
	case 1:
		if u, ok := ontology.CanonicalUnit(rest[0]); ok {
			return types.Portion{Magnitude: mag, Unit: u}, true
		}
	}
	return types.Portion{}, false
}

func hasNumberWord(s string) bool {
	_, ok := ontology.NumberWords[s]
	return ok
}
