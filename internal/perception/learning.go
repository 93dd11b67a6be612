package perception

import (
	"context"
	"strings"

	"gutcheck/internal/types"
)

// Correction is a user's "that was actually X" message.
type Correction struct {
	Intent  types.Intent
	Details string // optional replacement text, e.g. "pizza for lunch"
}

var correctionPrefixes = []string{"correction:", "correct:", "actually:", "fix:"}

// ParseCorrection recognizes "correction: <intent> [details]".
func ParseCorrection(text string) (Correction, bool) {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, prefix := range correctionPrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		fields := strings.Fields(trimmed[len(prefix):])
		if len(fields) == 0 {
			return Correction{}, false
		}
		intent, ok := types.ParseIntent(fields[0])
		if !ok || intent == types.IntentOther {
			return Correction{}, false
		}
		return Correction{Intent: intent, Details: strings.Join(fields[1:], " ")}, true
	}
	return Correction{}, false
}

// Relearn re-reads the corrected text under the corrected intent. When the
// correction carries details they are parsed instead of the original text.
// The result is what gets stored as a learned phrase for original.
func Relearn(ctx context.Context, e *Extractor, original string, c Correction, opts Options) types.ParseResult {
	source := original
	if c.Details != "" {
		source = c.Details
	}
	opts.ForcedIntent = c.Intent
	parse := e.Extract(ctx, source, opts)
	Postprocess(&parse)
	parse.Text = original
	parse.Source = types.SourceLearned
	parse.Confidence = 1.0
	parse.MultiActions = nil
	return parse
}
