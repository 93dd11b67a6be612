package dialog

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"gutcheck/internal/logging"
	"gutcheck/internal/memory"
	"gutcheck/internal/ontology"
	"gutcheck/internal/perception"
	"gutcheck/internal/types"
)

// Defaults for Config.
const (
	DefaultTTL       = 5 * time.Minute
	DefaultMaxRounds = 3
	DefaultPostMeal  = 30 * time.Minute
)

// Status is the result of feeding a reply to an open dialog.
type Status int

const (
	// StatusAsked means another question went out and the dialog stays open.
	StatusAsked Status = iota + 1
	// StatusCompleted means Parse is ready to log.
	StatusCompleted
	// StatusDeclined means the user said not to log it.
	StatusDeclined
	// StatusAbandoned means the dialog was dropped without a result.
	StatusAbandoned
	// StatusReprocess means the dialog was dropped and the reply should be
	// handled as a fresh message.
	StatusReprocess
)

func (s Status) String() string {
	switch s {
	case StatusAsked:
		return "asked"
	case StatusCompleted:
		return "completed"
	case StatusDeclined:
		return "declined"
	case StatusAbandoned:
		return "abandoned"
	case StatusReprocess:
		return "reprocess"
	}
	return "unknown"
}

// Outcome is what a reply did to an open dialog.
type Outcome struct {
	Status Status
	Parse  types.ParseResult
	Reply  string
}

// Config tunes the Manager.
type Config struct {
	TTL         time.Duration // how long an unanswered question stays open
	MaxRounds   int           // failed replies before giving up
	PostMealTTL time.Duration // how long a post-meal check stays open
}

// Manager owns clarification state. It is safe for concurrent use across
// users; turns of one user must be serialized by the caller.
type Manager struct {
	mem        *memory.Manager
	parser     Parser
	prompter   Prompter
	thresholds atomic.Pointer[thresholdBox]
	cfg        Config
}

type thresholdBox struct{ t LogThresholds }

// NewManager creates a dialog manager. prompter may be nil, in which case
// questions are only logged.
func NewManager(mem *memory.Manager, parser Parser, prompter Prompter, th LogThresholds, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.PostMealTTL <= 0 {
		cfg.PostMealTTL = DefaultPostMeal
	}
	if th == nil {
		th = StaticLogThreshold(0)
	}
	m := &Manager{mem: mem, parser: parser, prompter: prompter, cfg: cfg}
	m.thresholds.Store(&thresholdBox{t: th})
	return m
}

// SetThresholds swaps the log thresholds, e.g. after a config reload.
func (m *Manager) SetThresholds(th LogThresholds) {
	if th != nil {
		m.thresholds.Store(&thresholdBox{t: th})
	}
}

// Thresholds returns the current log thresholds.
func (m *Manager) Thresholds() LogThresholds {
	return m.thresholds.Load().t
}

// NeedsClarification applies the manager's thresholds.
func (m *Manager) NeedsClarification(text string, p *types.ParseResult) *Clarification {
	return NeedsClarification(text, p, m.Thresholds())
}

// Ask renders c to the user.
func (m *Manager) Ask(ctx context.Context, c Clarification, msg Message) error {
	logging.Dialog("ask user=%s type=%s slot=%s", msg.UserID, c.Type, c.Slot)
	if m.prompter == nil {
		return nil
	}
	if err := m.prompter.Prompt(ctx, msg, c); err != nil {
		logging.DialogWarn("prompt failed for user=%s: %v", msg.UserID, err)
		return err
	}
	return nil
}

// =============================================================================
// DIALOG STATE
// =============================================================================

const (
	keyOriginal      = "original"
	keyClarification = "clarification"
	keyRound         = "round"
	keyText          = "text"
)

type state struct {
	original types.ParseResult
	clar     Clarification
	round    int
	text     string
}

func (st state) payload() map[string]any {
	return map[string]any{
		keyOriginal:      st.original,
		keyClarification: st.clar,
		keyRound:         st.round,
		keyText:          st.text,
	}
}

func decodeState(pc *memory.PendingContext) (state, error) {
	var st state
	if err := pc.Decode(keyOriginal, &st.original); err != nil {
		return st, err
	}
	if err := pc.Decode(keyClarification, &st.clar); err != nil {
		return st, err
	}
	st.original.Recompute()
	st.round, _ = types.ExtractInt(pc.Payload[keyRound])
	st.text = pc.String(keyText)
	return st, nil
}

// dialogFor maps a clarification onto the context type that stores it.
func dialogFor(c Clarification) string {
	if c.Type == TypeVague || c.Type == TypeIntent {
		return memory.TypeIntentClarification
	}
	return memory.TypeNLUClarification
}

// StartDialog opens a clarification dialog named name (one of the
// clarification context types) around initial and asks the first question.
func (m *Manager) StartDialog(ctx context.Context, name string, msg Message, initial types.ParseResult, c Clarification) error {
	if name != memory.TypeNLUClarification && name != memory.TypeIntentClarification {
		return fmt.Errorf("unknown dialog: %s", name)
	}
	st := state{original: initial.Clone(), clar: c, text: msg.Text}
	if err := m.save(ctx, msg.UserID, name, st); err != nil {
		return err
	}
	logging.DialogDebug("dialog %s started for user=%s", name, msg.UserID)
	return m.Ask(ctx, c, msg)
}

// Clarify starts the dialog that fits c.
func (m *Manager) Clarify(ctx context.Context, msg Message, initial types.ParseResult, c Clarification) error {
	return m.StartDialog(ctx, dialogFor(c), msg, initial, c)
}

// Active reports whether the user has an open clarification dialog.
func (m *Manager) Active(ctx context.Context, userID string) bool {
	name, _ := m.active(ctx, userID)
	return name != ""
}

func (m *Manager) active(ctx context.Context, userID string) (string, *memory.PendingContext) {
	var (
		name   string
		newest *memory.PendingContext
	)
	for _, t := range []string{memory.TypeNLUClarification, memory.TypeIntentClarification} {
		pc := m.mem.PendingOfType(ctx, userID, t)
		if pc != nil && (newest == nil || pc.CreatedAt.After(newest.CreatedAt)) {
			name, newest = t, pc
		}
	}
	return name, newest
}

func (m *Manager) save(ctx context.Context, userID, name string, st state) error {
	for _, t := range []string{memory.TypeNLUClarification, memory.TypeIntentClarification} {
		if t != name {
			_ = m.mem.ClearPendingOfType(ctx, userID, t)
		}
	}
	return m.mem.SetPending(ctx, userID, name, st.payload(), m.cfg.TTL)
}

func (m *Manager) end(ctx context.Context, userID string) {
	_ = m.mem.ClearPendingOfType(ctx, userID, memory.TypeNLUClarification)
	_ = m.mem.ClearPendingOfType(ctx, userID, memory.TypeIntentClarification)
}

// =============================================================================
// REPLIES
// =============================================================================

var cancelWords = map[string]bool{
	"cancel": true, "never mind": true, "nevermind": true, "nvm": true,
	"skip": true, "stop": true, "forget it": true,
}

var yesWords = map[string]bool{
	"yes": true, "y": true, "yep": true, "yeah": true, "yup": true, "sure": true,
	"correct": true, "right": true, "ok": true, "okay": true, "please do": true,
	"log it": true,
}

var noWords = map[string]bool{
	"no": true, "n": true, "nope": true, "nah": true, "don't": true,
	"dont": true, "wrong": true, "no thanks": true,
}

// intentAnswers maps one-word answers to an intent choice.
var intentAnswers = map[string]types.Intent{
	"food": types.IntentFood, "ate": types.IntentFood, "meal": types.IntentFood,
	"eat": types.IntentFood, "drink": types.IntentDrink, "drank": types.IntentDrink,
	"symptom": types.IntentSymptom, "symptoms": types.IntentSymptom,
	"bm": types.IntentBM, "bathroom": types.IntentBM, "poop": types.IntentBM,
	"reflux": types.IntentReflux, "heartburn": types.IntentReflux,
}

// HandleResponse feeds msg to the user's open clarification dialog. It
// reports false when no dialog is open, including when it timed out, in which
// case msg is an ordinary new message.
func (m *Manager) HandleResponse(ctx context.Context, msg Message) (Outcome, bool) {
	name, pc := m.active(ctx, msg.UserID)
	if pc == nil {
		return Outcome{}, false
	}
	st, err := decodeState(pc)
	if err != nil {
		logging.DialogWarn("dropping unreadable %s for user=%s: %v", name, msg.UserID, err)
		m.end(ctx, msg.UserID)
		return Outcome{}, false
	}

	reply := ontology.Normalize(msg.Text)
	if cancelWords[reply] {
		m.end(ctx, msg.UserID)
		logging.Dialog("dialog cancelled by user=%s", msg.UserID)
		return Outcome{Status: StatusAbandoned, Reply: "Okay, I dropped that."}, true
	}

	var out Outcome
	switch st.clar.Type {
	case TypeMissingSlot:
		out = m.fillSlot(ctx, name, msg, st)
	case TypeLowConfidence:
		out = m.confirm(ctx, msg, st, reply)
	default:
		out = m.resolveIntent(ctx, name, msg, st, reply)
	}
	logging.DialogDebug("dialog %s user=%s -> %s", name, msg.UserID, out.Status)
	return out, true
}

// fillSlot reads the reply as the value of the one slot that was asked for.
func (m *Manager) fillSlot(ctx context.Context, name string, msg Message, st state) Outcome {
	slot := st.clar.Slot
	rp := m.parser.Extract(ctx, msg.Text, perception.Options{
		UserID:       msg.UserID,
		Timezone:     msg.Location,
		ForcedIntent: st.original.Intent,
	})
	perception.Postprocess(&rp)

	v, ok := rp.Slots[slot]
	if !ok {
		return m.failRound(ctx, name, msg, st)
	}
	merged := st.original.Clone()
	merged.Slots.Set(slot, v)
	merged.Source = types.SourceDialog
	perception.Postprocess(&merged)
	return m.advance(ctx, msg, st, merged)
}

// advance asks for the next missing slot or completes the dialog.
func (m *Manager) advance(ctx context.Context, msg Message, st state, p types.ParseResult) Outcome {
	if next, ok := NextSlot(&p); ok {
		st.original = p
		st.clar = *SlotClarification(next)
		st.round = 0
		if err := m.save(ctx, msg.UserID, memory.TypeNLUClarification, st); err != nil {
			m.end(ctx, msg.UserID)
			return Outcome{Status: StatusAbandoned, Parse: p}
		}
		_ = m.Ask(ctx, st.clar, msg)
		return Outcome{Status: StatusAsked, Parse: p}
	}
	m.end(ctx, msg.UserID)
	return Outcome{Status: StatusCompleted, Parse: p}
}

// failRound handles a reply that did not answer the question.
func (m *Manager) failRound(ctx context.Context, name string, msg Message, st state) Outcome {
	if m.freshUtterance(ctx, msg) {
		m.end(ctx, msg.UserID)
		logging.Dialog("dialog abandoned for a new entry from user=%s", msg.UserID)
		return Outcome{Status: StatusReprocess}
	}
	st.round++
	if st.round >= m.cfg.MaxRounds {
		m.end(ctx, msg.UserID)
		logging.Dialog("dialog gave up after %d rounds for user=%s", st.round, msg.UserID)
		return Outcome{Status: StatusAbandoned, Parse: st.original, Reply: "No worries, I'll skip that one."}
	}
	if err := m.save(ctx, msg.UserID, name, st); err != nil {
		m.end(ctx, msg.UserID)
		return Outcome{Status: StatusAbandoned, Parse: st.original}
	}
	_ = m.Ask(ctx, st.clar, msg)
	return Outcome{Status: StatusAsked, Parse: st.original}
}

// freshUtterance reports whether the reply is itself a complete, confident
// entry rather than an answer.
func (m *Manager) freshUtterance(ctx context.Context, msg Message) bool {
	p := m.parser.Extract(ctx, msg.Text, perception.Options{UserID: msg.UserID, Timezone: msg.Location})
	return p.Intent.IsLoggable() && p.Complete() && p.Confidence >= m.Thresholds().LogThreshold(string(p.Intent))
}

func (m *Manager) confirm(ctx context.Context, msg Message, st state, reply string) Outcome {
	switch {
	case yesWords[reply]:
		m.end(ctx, msg.UserID)
		p := st.original.Clone()
		p.Source = types.SourceDialog
		return Outcome{Status: StatusCompleted, Parse: p}
	case noWords[reply]:
		m.end(ctx, msg.UserID)
		return Outcome{Status: StatusDeclined, Parse: st.original, Reply: "Okay, I won't log it."}
	}
	m.end(ctx, msg.UserID)
	return Outcome{Status: StatusReprocess}
}

// resolveIntent reads the reply to "what kind of entry was that?".
func (m *Manager) resolveIntent(ctx context.Context, name string, msg Message, st state, reply string) Outcome {
	if intent, ok := answeredIntent(reply); ok && st.text != "" {
		p := m.parser.Extract(ctx, st.text, perception.Options{
			UserID:       msg.UserID,
			Timezone:     msg.Location,
			ForcedIntent: intent,
		})
		perception.Postprocess(&p)
		p.Text = st.text
		p.Source = types.SourceDialog
		return m.advance(ctx, msg, st, p)
	}

	rp := m.parser.Extract(ctx, msg.Text, perception.Options{UserID: msg.UserID, Timezone: msg.Location})
	perception.Postprocess(&rp)
	if rp.Intent.IsLoggable() && decisive(&rp) {
		rp.Source = types.SourceDialog
		rp.MultiActions = nil
		return m.advance(ctx, msg, st, rp)
	}
	return m.failRound(ctx, name, msg, st)
}

func answeredIntent(reply string) (types.Intent, bool) {
	reply = strings.TrimPrefix(reply, "a ")
	reply = strings.TrimPrefix(reply, "it was ")
	reply = strings.TrimPrefix(reply, "a ")
	if in, ok := intentAnswers[reply]; ok {
		return in, true
	}
	if in, ok := types.ParseIntent(reply); ok && in.IsLoggable() {
		return in, true
	}
	return "", false
}
