// Package assistant handles one chat turn end to end: de-duplication, slash
// commands, corrections, open dialogs, understanding, logging and the
// post-save work that follows a logged entry.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gutcheck/internal/clock"
	"gutcheck/internal/dialog"
	"gutcheck/internal/insights"
	"gutcheck/internal/logging"
	"gutcheck/internal/memory"
	"gutcheck/internal/perception"
	"gutcheck/internal/store"
	"gutcheck/internal/tasks"
	"gutcheck/internal/types"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Defaults for Options.
const (
	DefaultDedupSize          = 1024
	DefaultLastParseTTL       = 30 * time.Minute
	DefaultPostMealDelay      = 90 * time.Minute
	DefaultRoughPatchCooldown = 24 * time.Hour
)

const (
	keyText   = "text"
	keyRef    = "ref"
	keyIntent = "intent"
)

// PostMealScheduler queues a delayed "how do you feel?" after a meal.
// *reminder.Scheduler implements it.
type PostMealScheduler interface {
	SchedulePostMeal(userID, item string, loc *time.Location, delay time.Duration)
}

// Deps are the collaborators of an Assistant.
type Deps struct {
	Pipeline  *perception.Pipeline
	Dialog    *dialog.Manager
	Memory    *memory.Manager
	Store     store.LogStore
	Outbox    *Outbox
	Insights  *insights.Service // nil disables /summary and /streak
	Tasks     *tasks.Pool       // nil runs post-save work inline
	Reminders PostMealScheduler // nil disables delayed post-meal checks
}

// Options tunes an Assistant.
type Options struct {
	DefaultLocation    *time.Location
	DedupSize          int
	LastParseTTL       time.Duration
	PostMealDelay      time.Duration
	RoughPatchCooldown time.Duration
}

// LogResult reports one attempt to persist an entry.
type LogResult struct {
	Success bool              `json:"success"`
	Ref     store.RowRef      `json:"ref,omitempty"`
	Parse   types.ParseResult `json:"parse"`
	Err     error             `json:"-"`
}

// Response is everything a turn produced.
type Response struct {
	Replies   []Reply            `json:"replies"`
	Logged    []LogResult        `json:"logged,omitempty"`
	Parse     *types.ParseResult `json:"parse,omitempty"`
	Duplicate bool               `json:"duplicate,omitempty"`
}

// Assistant is the turn handler. Turns of different users may run
// concurrently; turns of one user must be serialized by the caller.
type Assistant struct {
	deps  Deps
	opts  Options
	clock clock.Clock
	seen  *lru.Cache[string, struct{}]

	mu       sync.Mutex
	notified map[string]time.Time // user -> last rough-patch notice
}

// New creates an assistant.
func New(deps Deps, opts Options) (*Assistant, error) {
	if deps.Pipeline == nil || deps.Dialog == nil || deps.Memory == nil || deps.Store == nil {
		return nil, fmt.Errorf("assistant needs a pipeline, dialog manager, memory and store")
	}
	if deps.Outbox == nil {
		deps.Outbox = NewOutbox(nil)
	}
	if opts.DefaultLocation == nil {
		opts.DefaultLocation = time.UTC
	}
	if opts.DedupSize <= 0 {
		opts.DedupSize = DefaultDedupSize
	}
	if opts.LastParseTTL <= 0 {
		opts.LastParseTTL = DefaultLastParseTTL
	}
	if opts.PostMealDelay <= 0 {
		opts.PostMealDelay = DefaultPostMealDelay
	}
	if opts.RoughPatchCooldown <= 0 {
		opts.RoughPatchCooldown = DefaultRoughPatchCooldown
	}
	seen, err := lru.New[string, struct{}](opts.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &Assistant{
		deps:     deps,
		opts:     opts,
		clock:    deps.Memory.Clock(),
		seen:     seen,
		notified: make(map[string]time.Time),
	}, nil
}

// Outbox returns the assistant's outbox.
func (a *Assistant) Outbox() *Outbox {
	return a.deps.Outbox
}

// turn is the state of one Handle call.
type turn struct {
	msg  dialog.Message
	col  *collector
	resp Response

	answered bool // a symptom in this message follows its last intake
}

func (t *turn) say(kind ReplyKind, text string) {
	t.col.add(Reply{Kind: kind, Text: text})
}

// Handle processes one incoming message. A message whose ID was already seen
// is dropped.
func (a *Assistant) Handle(ctx context.Context, msg dialog.Message) Response {
	if msg.ID != "" {
		if seen, _ := a.seen.ContainsOrAdd(msg.UserID+"\x00"+msg.ID, struct{}{}); seen {
			logging.AssistantDebug("dropping duplicate message %s from user=%s", msg.ID, msg.UserID)
			return Response{Duplicate: true}
		}
	}
	if msg.Location == nil {
		msg.Location = a.opts.DefaultLocation
	}

	timer := logging.StartTimer(logging.CategoryAssistant, "Handle")
	defer timer.StopWithThreshold(500 * time.Millisecond)

	ctx, col := withCollector(ctx, msg.UserID)
	t := &turn{msg: msg, col: col}
	a.route(ctx, t)
	t.resp.Replies = col.collected()
	return t.resp
}

// route picks the handler: correction, command, open dialog, post-meal check,
// then ordinary understanding.
func (a *Assistant) route(ctx context.Context, t *turn) {
	text := strings.TrimSpace(t.msg.Text)
	if text == "" {
		t.say(KindInfo, "Tell me what you ate, drank or how you feel. /help lists commands.")
		return
	}
	if corr, ok := perception.ParseCorrection(text); ok {
		a.correct(ctx, t, corr)
		return
	}
	if strings.HasPrefix(text, "/") {
		a.command(ctx, t, text)
		return
	}

	if out, ok := a.deps.Dialog.HandleResponse(ctx, t.msg); ok && a.finishDialog(ctx, t, out) {
		return
	}
	if out, ok := a.deps.Dialog.HandlePostMeal(ctx, t.msg); ok && a.finishDialog(ctx, t, out) {
		return
	}
	a.understand(ctx, t, text, "")
}

// finishDialog applies a dialog outcome. It reports false when the message
// should be understood afresh.
func (a *Assistant) finishDialog(ctx context.Context, t *turn, out dialog.Outcome) bool {
	switch out.Status {
	case dialog.StatusAsked:
		p := out.Parse
		t.resp.Parse = &p
	case dialog.StatusCompleted:
		p := out.Parse
		t.resp.Parse = &p
		a.record(ctx, t, p)
	case dialog.StatusDeclined, dialog.StatusAbandoned:
		if out.Reply != "" {
			t.say(KindInfo, out.Reply)
		}
	case dialog.StatusReprocess:
		return false
	}
	return true
}

// understand runs the pipeline and logs or clarifies the result.
func (a *Assistant) understand(ctx context.Context, t *turn, text string, forced types.Intent) {
	p := a.deps.Pipeline.Understand(ctx, text, perception.Options{
		UserID:       t.msg.UserID,
		Timezone:     t.msg.Location,
		ForcedIntent: forced,
	})
	t.resp.Parse = &p

	switch {
	case p.Intent.IsConversational():
		t.say(KindInfo, smallTalk(p.Intent))
		return
	case p.Intent == types.IntentHelp:
		t.say(KindInfo, HelpText())
		return
	case p.Intent == types.IntentUndo:
		a.undo(ctx, t)
		return
	case p.Intent == types.IntentQuestion:
		t.say(KindInfo, "I'm best at keeping your log. Try /summary for the last week or /streak.")
		return
	case p.Intent == types.IntentSettings:
		t.say(KindInfo, "Settings live in the config file for now.")
		return
	}

	c := a.deps.Dialog.NeedsClarification(text, &p)
	if c == nil && !p.Intent.IsLoggable() {
		t.say(KindInfo, "I didn't catch that. /help shows what I understand.")
		return
	}
	a.rememberParse(ctx, t, p, "")
	var extras, partial []types.ParseResult
	for _, extra := range p.MultiActions {
		if a.deps.Dialog.NeedsClarification(extra.Text, &extra) != nil {
			partial = append(partial, extra)
			continue
		}
		extras = append(extras, extra)
	}
	p.MultiActions = nil
	t.answered = symptomAfterIntake(append([]types.ParseResult{p}, extras...))

	if c == nil {
		a.record(ctx, t, p)
	}
	for _, extra := range extras {
		a.record(ctx, t, extra)
	}
	for _, extra := range partial {
		t.say(KindInfo, "I couldn't log "+dialog.Describe(extra)+" fully; send it on its own and I'll ask.")
	}
	if c != nil {
		if err := a.deps.Dialog.Clarify(ctx, t.msg, p, *c); err != nil {
			logging.AssistantError("clarify failed for user=%s: %v", t.msg.UserID, err)
			t.say(KindError, "Sorry, something went wrong. Could you say that again?")
		}
	}
}

// record persists a complete parse and triggers the post-save work.
func (a *Assistant) record(ctx context.Context, t *turn, p types.ParseResult) {
	if !p.Intent.IsLoggable() {
		return
	}
	userID := t.msg.UserID
	p.MultiActions = nil
	now := a.clock.Now()

	ref, err := a.deps.Store.Append(ctx, store.RowFromParse(userID, p, now))
	if err != nil {
		logging.AssistantError("append failed for user=%s: %v", userID, err)
		t.resp.Logged = append(t.resp.Logged, LogResult{Success: false, Parse: p, Err: err})
		t.say(KindError, "Sorry, I couldn't save "+dialog.Describe(p)+". Please try again.")
		return
	}
	t.resp.Logged = append(t.resp.Logged, LogResult{Success: true, Ref: ref, Parse: p})
	logging.Assistant("logged %s for user=%s ref=%s", p.Summary(), userID, ref)

	if err := a.deps.Memory.Push(ctx, userID, types.SummaryFromParse(p, string(ref), now)); err != nil {
		logging.AssistantWarn("recent entries not updated for user=%s ref=%s: %v", userID, ref, err)
	}
	a.rememberParse(ctx, t, p, ref)
	t.say(KindAck, ackText(p))
	a.afterSave(ctx, t, p)
}

// afterSave arms follow-up linking and schedules detached work.
func (a *Assistant) afterSave(ctx context.Context, t *turn, p types.ParseResult) {
	userID, channel, loc := t.msg.UserID, t.msg.Channel, t.msg.Location

	if p.Intent.IsIntake() {
		item := p.Slots.String(types.SlotItem)
		if item == "" {
			return
		}
		if !t.answered {
			if err := a.deps.Memory.ArmFollowUp(ctx, userID, item); err != nil {
				logging.AssistantWarn("arm follow-up failed for user=%s: %v", userID, err)
			}
		}
		if a.deps.Reminders != nil && p.Intent == types.IntentFood {
			a.background("post-meal-schedule", func(context.Context) error {
				a.deps.Reminders.SchedulePostMeal(userID, item, loc, a.opts.PostMealDelay)
				return nil
			})
		}
		return
	}

	if p.Intent.IsSymptomLike() {
		a.background("rough-patch-check", func(bg context.Context) error {
			return a.roughPatchNotice(bg, userID, channel)
		})
	}
}

// symptomAfterIntake reports whether a symptom follows the last intake among
// the actions of one message. That symptom already answers the follow-up.
func symptomAfterIntake(actions []types.ParseResult) bool {
	seen, answered := false, false
	for _, a := range actions {
		switch {
		case a.Intent.IsIntake():
			seen, answered = true, false
		case a.Intent.IsSymptomLike():
			answered = seen
		}
	}
	return answered
}

func (a *Assistant) roughPatchNotice(ctx context.Context, userID, channel string) error {
	if !a.deps.Memory.HasRoughPatch(ctx, userID) {
		return nil
	}
	now := a.clock.Now()
	a.mu.Lock()
	last, ok := a.notified[userID]
	if ok && now.Sub(last) < a.opts.RoughPatchCooldown {
		a.mu.Unlock()
		return nil
	}
	a.notified[userID] = now
	a.mu.Unlock()

	logging.Assistant("rough patch for user=%s", userID)
	return a.deps.Outbox.Deliver(ctx, userID, channel, Reply{
		Kind: KindNotice,
		Text: "That's a few rough entries lately. Try /summary to see what they have in common, and check in with your doctor if it keeps up.",
	})
}

// background runs fn on the task pool, or inline without one. fn never sees
// the turn's context.
func (a *Assistant) background(name string, fn tasks.Func) {
	if a.deps.Tasks != nil {
		err := a.deps.Tasks.Submit(name, fn)
		if err == nil {
			return
		}
		logging.AssistantWarn("task %s not queued (%v), running inline", name, err)
	}
	if err := fn(context.Background()); err != nil {
		logging.AssistantError("task %s failed: %v", name, err)
	}
}

// rememberParse keeps the last reading so a correction can replace it.
func (a *Assistant) rememberParse(ctx context.Context, t *turn, p types.ParseResult, ref store.RowRef) {
	payload := map[string]any{
		keyText:   p.Text,
		keyRef:    string(ref),
		keyIntent: string(p.Intent),
	}
	if err := a.deps.Memory.SetPending(ctx, t.msg.UserID, memory.TypeLastParse, payload, a.opts.LastParseTTL); err != nil {
		logging.AssistantWarn("remember parse failed for user=%s: %v", t.msg.UserID, err)
	}
}

func ackText(p types.ParseResult) string {
	s := "Logged " + dialog.Describe(p)
	if item := p.Slots.String(types.SlotLinkedItem); item != "" {
		s += ", linked to " + item
	}
	return s + "."
}

func smallTalk(in types.Intent) string {
	switch in {
	case types.IntentGreeting:
		return "Hi! Tell me what you ate or how you're feeling."
	case types.IntentThanks:
		return "Anytime."
	case types.IntentFarewell:
		return "Take care!"
	}
	return "Got it."
}
