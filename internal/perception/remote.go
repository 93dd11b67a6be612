package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gutcheck/internal/ontology"
	"gutcheck/internal/types"
)

// =============================================================================
// REMOTE EXTRACTION
// =============================================================================

// RemoteResult is the structured answer of a remote extraction service.
type RemoteResult struct {
	Intent     types.Intent `json:"intent"`
	Slots      types.Slots  `json:"slots"`
	Confidence float64      `json:"confidence"`
}

// Validate checks the result against the closed intent set and slot ranges.
// Slots outside the intent's slot set are dropped rather than rejected.
func (r *RemoteResult) Validate() error {
	intent, ok := types.ParseIntent(string(r.Intent))
	if !ok {
		return &types.ValidationError{Field: "intent", Message: fmt.Sprintf("unknown intent %q", r.Intent)}
	}
	r.Intent = intent
	if r.Confidence < 0 || r.Confidence > 1 {
		return &types.ValidationError{Field: "confidence", Message: fmt.Sprintf("out of range: %v", r.Confidence)}
	}
	for key, v := range r.Slots {
		if !types.AllowsSlot(intent, key) {
			delete(r.Slots, key)
			continue
		}
		switch key {
		case types.SlotSeverity:
			if n, ok := types.ExtractInt(v); !ok || n < ontology.MinSeverity || n > ontology.MaxSeverity {
				return &types.ValidationError{Field: key, Message: fmt.Sprintf("must be %d-%d, got %v", ontology.MinSeverity, ontology.MaxSeverity, v)}
			}
		case types.SlotBristol:
			if n, ok := types.ExtractInt(v); !ok || n < ontology.BristolMin || n > ontology.BristolMax {
				return &types.ValidationError{Field: key, Message: fmt.Sprintf("must be %d-%d, got %v", ontology.BristolMin, ontology.BristolMax, v)}
			}
		}
	}
	return nil
}

// RemoteExtractor is a slower, more capable extractor consulted by the gate.
type RemoteExtractor interface {
	Extract(ctx context.Context, text string, rule types.ParseResult) (*RemoteResult, error)
}

// RemoteExtractorFunc adapts a function to RemoteExtractor.
type RemoteExtractorFunc func(ctx context.Context, text string, rule types.ParseResult) (*RemoteResult, error)

// Extract calls f.
func (f RemoteExtractorFunc) Extract(ctx context.Context, text string, rule types.ParseResult) (*RemoteResult, error) {
	return f(ctx, text, rule)
}

const extractionSystemPrompt = `You extract structured health-log data from one chat message.
Reply with a single JSON object and nothing else:
{"intent": "<intent>", "slots": {...}, "confidence": <0..1>}

Intents: food, drink, symptom, reflux, bm, checkin, greeting, thanks, farewell, chit_chat, question, help, undo, settings, other.
Slots by intent:
- food, drink: item (string), sides (list of strings), meal_time (breakfast|lunch|dinner|snack), portion (string such as "2 slices"), brand (string)
- symptom, reflux: symptom_type (reflux|pain|bloat|nausea|general), severity (integer 1-10)
- bm: bristol (integer 1-7), description (loose|hard|normal)
- checkin: mood (string)
Omit slots the message does not state. Never invent values.`

// LLMExtractor performs remote extraction through an LLMClient.
type LLMExtractor struct {
	client LLMClient
}

// NewLLMExtractor wraps client.
func NewLLMExtractor(client LLMClient) *LLMExtractor {
	return &LLMExtractor{client: client}
}

// Extract asks the model for a JSON reading of text. The rule parse is passed
// along as a hint.
func (e *LLMExtractor) Extract(ctx context.Context, text string, rule types.ParseResult) (*RemoteResult, error) {
	var sb strings.Builder
	sb.WriteString("Message: ")
	sb.WriteString(text)
	if rule.Intent != types.IntentOther {
		hint, _ := json.Marshal(map[string]any{"intent": rule.Intent, "slots": rule.Slots})
		sb.WriteString("\nRule-based guess: ")
		sb.Write(hint)
	}

	raw, err := e.client.CompleteWithSystem(ctx, extractionSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}
	return ParseRemoteJSON(raw)
}

// ParseRemoteJSON decodes the first JSON object in raw and validates it.
// Models sometimes wrap JSON in prose or code fences.
func ParseRemoteJSON(raw string) (*RemoteResult, error) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in remote response")
	}
	var res RemoteResult
	dec := json.NewDecoder(strings.NewReader(raw[start:]))
	if err := dec.Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode remote response: %w", err)
	}
	if res.Slots == nil {
		res.Slots = types.Slots{}
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return &res, nil
}
