// Package dialog runs the multi-turn clarification flows: asking for one
// missing slot at a time, confirming low-confidence parses, narrowing vague
// messages to an intent, and the post-meal "how do you feel?" check.
//
// State lives in context memory between turns; nothing blocks waiting for a
// reply. Each incoming message either continues an open dialog or is left for
// ordinary processing.
package dialog

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"gutcheck/internal/ontology"
	"gutcheck/internal/perception"
	"gutcheck/internal/types"
)

// ClarificationType says why a parse cannot be logged as-is.
type ClarificationType string

const (
	// TypeVague is a hedge like "not feeling great" with nothing specific.
	TypeVague ClarificationType = "vague"
	// TypeMissingSlot asks for one required slot.
	TypeMissingSlot ClarificationType = "missing_slot"
	// TypeLowConfidence confirms a complete but uncertain parse.
	TypeLowConfidence ClarificationType = "low_confidence"
	// TypeIntent asks what kind of entry the message was.
	TypeIntent ClarificationType = "intent"
)

// Clarification is one question to put to the user.
type Clarification struct {
	Type     ClarificationType `json:"type"`
	Slot     string            `json:"slot,omitempty"`
	Question string            `json:"question"`
	Options  []string          `json:"options,omitempty"`
}

// Message is one incoming user message.
type Message struct {
	ID       string
	UserID   string
	Channel  string
	Text     string
	Location *time.Location
}

// Prompter renders a clarification to the user on a channel.
type Prompter interface {
	Prompt(ctx context.Context, msg Message, c Clarification) error
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, msg Message, c Clarification) error

// Prompt calls f.
func (f PrompterFunc) Prompt(ctx context.Context, msg Message, c Clarification) error {
	return f(ctx, msg, c)
}

// Parser is the slice of the rule extractor a dialog needs. Replies are parsed
// without escalation or follow-up linking.
type Parser interface {
	Extract(ctx context.Context, text string, opts perception.Options) types.ParseResult
}

// LogThresholds gives the confidence a complete parse needs to be logged
// without confirmation.
type LogThresholds interface {
	LogThreshold(intent string) float64
}

// StaticLogThreshold applies one threshold to every intent.
type StaticLogThreshold float64

// LogThreshold returns t.
func (t StaticLogThreshold) LogThreshold(string) float64 { return float64(t) }

var slotQuestions = map[string]string{
	types.SlotSeverity:    "On a scale of 1 to 10, how bad is it?",
	types.SlotSymptomType: "What kind of symptom is it: pain, bloating, nausea, reflux or something else?",
	types.SlotMealTime:    "Which meal was that: breakfast, lunch, dinner or a snack?",
	types.SlotBristol:     "Which Bristol type was it, 1 (hard) to 7 (liquid)?",
	types.SlotItem:        "What did you have?",
}

var slotOptions = map[string][]string{
	types.SlotSymptomType: {"pain", "bloating", "nausea", "reflux", "other"},
	types.SlotMealTime:    {ontology.MealBreakfast, ontology.MealLunch, ontology.MealDinner, ontology.MealSnack},
}

var intentOptions = []string{"food", "drink", "symptom", "bm"}

// NeedsClarification decides whether p can be logged as-is. It returns nil for
// complete confident parses and for messages that are never logged
// (conversation, questions, commands).
func NeedsClarification(text string, p *types.ParseResult, th LogThresholds) *Clarification {
	if p == nil {
		return intentClarification()
	}
	if p.Intent == types.IntentOther {
		if ontology.Normalize(text) == "" {
			return nil
		}
		return intentClarification()
	}
	if !p.Intent.IsLoggable() {
		return nil
	}

	tokens := ontology.Tokenize(text)
	if ontology.ContainsAny(tokens, ontology.VagueTerms) && !decisive(p) {
		return &Clarification{
			Type:     TypeVague,
			Question: "Can you tell me a bit more? Was it something you ate or drank, a symptom, or a bathroom visit?",
			Options:  intentOptions,
		}
	}

	if slot, ok := NextSlot(p); ok {
		return SlotClarification(slot)
	}

	if th != nil && p.Confidence < th.LogThreshold(string(p.Intent)) {
		return &Clarification{
			Type:     TypeLowConfidence,
			Question: "Just to check, should I log " + Describe(*p) + "?",
			Options:  []string{"yes", "no"},
		}
	}
	return nil
}

// NextSlot returns the most diagnostic missing slot.
func NextSlot(p *types.ParseResult) (string, bool) {
	if len(p.Missing) == 0 {
		return "", false
	}
	missing := append([]string(nil), p.Missing...)
	sort.SliceStable(missing, func(i, j int) bool {
		return types.SlotRank(missing[i]) < types.SlotRank(missing[j])
	})
	return missing[0], true
}

// SlotClarification builds the question for one missing slot.
func SlotClarification(slot string) *Clarification {
	q, ok := slotQuestions[slot]
	if !ok {
		q = "Could you tell me the " + strings.ReplaceAll(slot, "_", " ") + "?"
	}
	return &Clarification{
		Type:     TypeMissingSlot,
		Slot:     slot,
		Question: q,
		Options:  slotOptions[slot],
	}
}

func intentClarification() *Clarification {
	return &Clarification{
		Type:     TypeIntent,
		Question: "I'm not sure what to log. Was that food, a drink, a symptom or a bathroom visit?",
		Options:  intentOptions,
	}
}

// decisive reports whether the parse already pinned down something specific.
func decisive(p *types.ParseResult) bool {
	for _, slot := range []string{types.SlotItem, types.SlotSeverity, types.SlotBristol, types.SlotDescription} {
		if p.Slots.Has(slot) {
			return true
		}
	}
	st := p.Slots.String(types.SlotSymptomType)
	return st != "" && st != ontology.SymptomGeneral
}

// Describe renders a parse the way replies mention it.
func Describe(p types.ParseResult) string {
	switch {
	case p.Intent.IsIntake():
		s := p.Slots.String(types.SlotItem)
		if s == "" {
			s = string(p.Intent)
		}
		if meal := p.Slots.String(types.SlotMealTime); meal != "" {
			s += " (" + meal + ")"
		}
		return s
	case p.Intent.IsSymptomLike():
		s := p.Slots.String(types.SlotSymptomType)
		if s == "" {
			s = "symptom"
		}
		if sev, ok := p.Slots.Int(types.SlotSeverity); ok {
			s += " " + strconv.Itoa(sev) + "/10"
		}
		return s
	case p.Intent == types.IntentBM:
		if b, ok := p.Slots.Int(types.SlotBristol); ok {
			return "a bowel movement (Bristol " + strconv.Itoa(b) + ")"
		}
		return "a bowel movement"
	case p.Intent == types.IntentCheckin:
		if mood := p.Slots.String(types.SlotMood); mood != "" {
			return "a check-in (" + mood + ")"
		}
		return "a check-in"
	}
	return string(p.Intent)
}
