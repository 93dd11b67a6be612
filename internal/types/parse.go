// Package types holds the value objects shared by the NLU pipeline, the
// context memory and the assistant: intents, slots and the ParseResult.
package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Intent is the coarse category of what a message is trying to express.
type Intent string

const (
	IntentFood     Intent = "food"
	IntentDrink    Intent = "drink"
	IntentSymptom  Intent = "symptom"
	IntentReflux   Intent = "reflux"
	IntentBM       Intent = "bm"
	IntentCheckin  Intent = "checkin"
	IntentGreeting Intent = "greeting"
	IntentThanks   Intent = "thanks"
	IntentFarewell Intent = "farewell"
	IntentChitChat Intent = "chit_chat"
	IntentQuestion Intent = "question"
	IntentHelp     Intent = "help"
	IntentUndo     Intent = "undo"
	IntentSettings Intent = "settings"
	IntentOther    Intent = "other"
)

// AllIntents lists the closed intent set.
var AllIntents = []Intent{
	IntentFood, IntentDrink, IntentSymptom, IntentReflux, IntentBM, IntentCheckin,
	IntentGreeting, IntentThanks, IntentFarewell, IntentChitChat,
	IntentQuestion, IntentHelp, IntentUndo, IntentSettings, IntentOther,
}

// ParseIntent maps a free-form name onto the closed intent set.
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "/")
	switch s {
	case "chitchat", "chit-chat", "smalltalk":
		return IntentChitChat, true
	case "bowel", "poop", "bowel_movement":
		return IntentBM, true
	case "heartburn":
		return IntentReflux, true
	}
	for _, i := range AllIntents {
		if string(i) == s {
			return i, true
		}
	}
	return IntentOther, false
}

// IsConversational reports whether the intent is social filler that never
// carries slots.
func (i Intent) IsConversational() bool {
	switch i {
	case IntentGreeting, IntentThanks, IntentFarewell, IntentChitChat:
		return true
	}
	return false
}

// IsLoggable reports whether a complete parse of this intent becomes a log row.
func (i Intent) IsLoggable() bool {
	switch i {
	case IntentFood, IntentDrink, IntentSymptom, IntentReflux, IntentBM, IntentCheckin:
		return true
	}
	return false
}

// IsSymptomLike reports whether the intent describes how the user feels.
func (i Intent) IsSymptomLike() bool {
	return i == IntentSymptom || i == IntentReflux
}

// IsIntake reports whether the intent records something consumed.
func (i Intent) IsIntake() bool {
	return i == IntentFood || i == IntentDrink
}

// Slot names.
const (
	SlotItem        = "item"
	SlotSides       = "sides"
	SlotMealTime    = "meal_time"
	SlotPortion     = "portion"
	SlotBrand       = "brand"
	SlotSymptomType = "symptom_type"
	SlotSeverity    = "severity"
	SlotBristol     = "bristol"
	SlotDescription = "description"
	SlotMood        = "mood"
	SlotLinkedItem  = "linked_item"
)

// slotOrder is the presentation order for missing slots; the dialog asks the
// most diagnostic question first.
var slotOrder = []string{SlotSeverity, SlotSymptomType, SlotMealTime, SlotBristol, SlotItem}

var requiredSlots = map[Intent][]string{
	IntentFood:    {SlotMealTime, SlotItem},
	IntentDrink:   {SlotMealTime, SlotItem},
	IntentSymptom: {SlotSeverity, SlotSymptomType},
	IntentReflux:  {SlotSeverity},
	IntentBM:      {SlotBristol},
}

var slotSets = map[Intent][]string{
	IntentFood:    {SlotItem, SlotSides, SlotMealTime, SlotPortion, SlotBrand},
	IntentDrink:   {SlotItem, SlotSides, SlotMealTime, SlotPortion, SlotBrand},
	IntentSymptom: {SlotSymptomType, SlotSeverity, SlotBristol, SlotLinkedItem},
	IntentReflux:  {SlotSymptomType, SlotSeverity, SlotBristol, SlotLinkedItem},
	IntentBM:      {SlotBristol, SlotDescription},
	IntentCheckin: {SlotMood},
}

// AllowsSlot reports whether the slot belongs to the intent's slot set.
func AllowsSlot(i Intent, slot string) bool {
	for _, s := range slotSets[i] {
		if s == slot {
			return true
		}
	}
	return false
}

// RequiredSlots returns the slots an intent needs before it can be logged, in
// presentation order.
func RequiredSlots(i Intent) []string {
	req := requiredSlots[i]
	out := make([]string, len(req))
	copy(out, req)
	return out
}

// SlotRank returns the position of a slot in the presentation order, or
// len(order) for slots outside it.
func SlotRank(name string) int {
	for idx, s := range slotOrder {
		if s == name {
			return idx
		}
	}
	return len(slotOrder)
}

// Portion is a normalized amount.
type Portion struct {
	Magnitude float64 `json:"magnitude"`
	Unit      string  `json:"unit"`
}

func (p Portion) String() string {
	return strconv.FormatFloat(p.Magnitude, 'f', -1, 64) + " " + p.Unit
}

// Slots maps slot names to extracted values. Values are string, int,
// []string or Portion.
type Slots map[string]any

// Has reports whether the slot is present.
func (s Slots) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s[key]
	return ok
}

// Set stores v unless it is empty.
func (s Slots) Set(key string, v any) {
	switch val := v.(type) {
	case nil:
		return
	case string:
		if strings.TrimSpace(val) == "" {
			return
		}
	case []string:
		if len(val) == 0 {
			return
		}
	}
	s[key] = v
}

// String returns the slot as text, or "" when absent.
func (s Slots) String(key string) string {
	if !s.Has(key) {
		return ""
	}
	return ExtractString(s[key])
}

// Int returns an integer slot.
func (s Slots) Int(key string) (int, bool) {
	if !s.Has(key) {
		return 0, false
	}
	return ExtractInt(s[key])
}

// Strings returns a list slot.
func (s Slots) Strings(key string) []string {
	if !s.Has(key) {
		return nil
	}
	return ExtractStrings(s[key])
}

// Clone returns a copy that shares no mutable state with s.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		if list, ok := v.([]string); ok {
			cp := make([]string, len(list))
			copy(cp, list)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Parse sources.
const (
	SourceRules     = "rules"
	SourceLearned   = "learned"
	SourceEscalated = "escalated"
	SourceDialog    = "dialog"
)

// ParseResult is the typed reading of one utterance.
type ParseResult struct {
	Intent       Intent        `json:"intent"`
	Slots        Slots         `json:"slots"`
	Confidence   float64       `json:"confidence"`
	Missing      []string      `json:"missing"`
	MultiActions []ParseResult `json:"multi_actions,omitempty"`
	Source       string        `json:"source,omitempty"`
	Text         string        `json:"text,omitempty"`
}

// NewParseResult returns an empty parse for the given intent.
func NewParseResult(text string, intent Intent) ParseResult {
	p := ParseResult{
		Intent: intent,
		Slots:  Slots{},
		Source: SourceRules,
		Text:   text,
	}
	p.Recompute()
	return p
}

// Unknown is the worst-case parse: intent other, confidence 0.
func Unknown(text string) ParseResult {
	return NewParseResult(text, IntentOther)
}

// Recompute restores the invariants: conversational parses carry no slots,
// Missing equals the required slots minus the present ones, and the
// confidence stays inside [0,1].
func (p *ParseResult) Recompute() {
	if p.Slots == nil {
		p.Slots = Slots{}
	}
	if p.Intent == "" {
		p.Intent = IntentOther
	}
	if p.Intent.IsConversational() {
		p.Slots = Slots{}
	}
	missing := make([]string, 0, 2)
	for _, slot := range requiredSlots[p.Intent] {
		if !p.Slots.Has(slot) {
			missing = append(missing, slot)
		}
	}
	p.Missing = missing
	p.Confidence = Clamp01(p.Confidence)
}

// Complete reports whether nothing required is missing.
func (p ParseResult) Complete() bool {
	return len(p.Missing) == 0
}

// Clone deep-copies the parse.
func (p ParseResult) Clone() ParseResult {
	out := p
	out.Slots = p.Slots.Clone()
	out.Missing = append([]string(nil), p.Missing...)
	if len(p.MultiActions) > 0 {
		out.MultiActions = make([]ParseResult, len(p.MultiActions))
		for i, m := range p.MultiActions {
			out.MultiActions[i] = m.Clone()
		}
	}
	return out
}

// Summary renders the parse for logs and replies.
func (p ParseResult) Summary() string {
	var sb strings.Builder
	sb.WriteString(string(p.Intent))
	for _, key := range []string{SlotItem, SlotSymptomType, SlotSeverity, SlotBristol, SlotMealTime, SlotMood} {
		if p.Slots.Has(key) {
			fmt.Fprintf(&sb, " %s=%s", key, p.Slots.String(key))
		}
	}
	return sb.String()
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
