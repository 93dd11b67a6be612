package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"gutcheck/internal/clock"
	"gutcheck/internal/memory"
	"gutcheck/internal/perception"
	"gutcheck/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPrompter struct {
	mu    sync.Mutex
	asked []Clarification
}

func (r *recordingPrompter) Prompt(_ context.Context, _ Message, c Clarification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asked = append(r.asked, c)
	return nil
}

func (r *recordingPrompter) last() Clarification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.asked) == 0 {
		return Clarification{}
	}
	return r.asked[len(r.asked)-1]
}

type testEnv struct {
	dm       *Manager
	mem      *memory.Manager
	ext      *perception.Extractor
	clock    *clock.Fake
	prompter *recordingPrompter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC))
	store := memory.NewLocalStore(fake)
	mem := memory.NewManager(store, store, fake, memory.Options{})
	ext := perception.NewExtractor(fake, mem)
	rp := &recordingPrompter{}
	dm := NewManager(mem, ext, rp, StaticLogThreshold(0.55), Config{})
	return &testEnv{dm: dm, mem: mem, ext: ext, clock: fake, prompter: rp}
}

func (e *testEnv) parse(t *testing.T, text string) types.ParseResult {
	t.Helper()
	p := e.ext.Extract(context.Background(), text, perception.Options{UserID: "u1"})
	perception.Postprocess(&p)
	return p
}

func (e *testEnv) reply(t *testing.T, text string) (Outcome, bool) {
	t.Helper()
	return e.dm.HandleResponse(context.Background(), Message{UserID: "u1", Text: text})
}

func msg(text string) Message {
	return Message{UserID: "u1", Channel: "test", Text: text}
}

func TestNeedsClarification(t *testing.T) {
	th := StaticLogThreshold(0.55)

	symptom := types.NewParseResult("stomach hurts", types.IntentSymptom)
	symptom.Slots.Set(types.SlotSymptomType, "pain")
	symptom.Confidence = 0.7
	symptom.Recompute()

	vague := types.NewParseResult("not feeling great", types.IntentSymptom)
	vague.Slots.Set(types.SlotSymptomType, "general")
	vague.Confidence = 0.6
	vague.Recompute()

	specific := types.NewParseResult("feeling off, pain 6", types.IntentSymptom)
	specific.Slots.Set(types.SlotSymptomType, "pain")
	specific.Slots.Set(types.SlotSeverity, 6)
	specific.Confidence = 0.9
	specific.Recompute()

	unsure := types.NewParseResult("toast", types.IntentFood)
	unsure.Slots.Set(types.SlotItem, "toast")
	unsure.Slots.Set(types.SlotMealTime, "breakfast")
	unsure.Confidence = 0.5
	unsure.Recompute()

	thanks := types.NewParseResult("thanks!", types.IntentThanks)
	thanks.Confidence = 1

	tests := []struct {
		name string
		text string
		p    *types.ParseResult
		want ClarificationType
		slot string
	}{
		{"missing severity", "stomach hurts", &symptom, TypeMissingSlot, types.SlotSeverity},
		{"vague hedge", "not feeling great", &vague, TypeVague, ""},
		{"vague word with decisive slots", "feeling off, pain 6", &specific, "", ""},
		{"low confidence", "toast", &unsure, TypeLowConfidence, ""},
		{"thanks", "thanks!", &thanks, "", ""},
		{"nil parse", "???", nil, TypeIntent, ""},
		{"unknown text", "zzz qqq", ptr(types.Unknown("zzz qqq")), TypeIntent, ""},
		{"empty text", "   ", ptr(types.Unknown("   ")), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NeedsClarification(tt.text, tt.p, th)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.slot, got.Slot)
			assert.NotEmpty(t, got.Question)
		})
	}
}

func ptr(p types.ParseResult) *types.ParseResult { return &p }

func TestNextSlot_PresentationOrder(t *testing.T) {
	p := types.ParseResult{Missing: []string{types.SlotItem, types.SlotSymptomType, types.SlotSeverity}}
	slot, ok := NextSlot(&p)
	require.True(t, ok)
	assert.Equal(t, types.SlotSeverity, slot)

	_, ok = NextSlot(&types.ParseResult{})
	assert.False(t, ok)
}

func TestMissingSlotDialog_Completes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.parse(t, "stomach hurts")
	c := env.dm.NeedsClarification("stomach hurts", &p)
	require.NotNil(t, c)
	require.Equal(t, types.SlotSeverity, c.Slot)

	require.NoError(t, env.dm.Clarify(ctx, msg("stomach hurts"), p, *c))
	assert.Equal(t, types.SlotSeverity, env.prompter.last().Slot)
	assert.True(t, env.dm.Active(ctx, "u1"))

	out, handled := env.reply(t, "6")
	require.True(t, handled)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, types.IntentSymptom, out.Parse.Intent)
	sev, ok := out.Parse.Slots.Int(types.SlotSeverity)
	require.True(t, ok)
	assert.Equal(t, 6, sev)
	assert.Equal(t, "pain", out.Parse.Slots.String(types.SlotSymptomType))
	assert.Empty(t, out.Parse.Missing)
	assert.Equal(t, types.SourceDialog, out.Parse.Source)
	assert.False(t, env.dm.Active(ctx, "u1"))
}

func TestMissingSlotDialog_OriginalSurvivesRounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := types.NewParseResult("my tummy", types.IntentSymptom)
	p.Confidence = 0.45
	p.Recompute()
	require.NoError(t, env.dm.Clarify(ctx, msg("my tummy"), p, *SlotClarification(types.SlotSeverity)))

	out, _ := env.reply(t, "hmm")
	assert.Equal(t, StatusAsked, out.Status)
	assert.Equal(t, types.SlotSeverity, env.prompter.last().Slot)

	out, _ = env.reply(t, "7")
	require.Equal(t, StatusAsked, out.Status)
	assert.Equal(t, types.SlotSymptomType, env.prompter.last().Slot)

	out, _ = env.reply(t, "bloating")
	require.Equal(t, StatusCompleted, out.Status)
	sev, _ := out.Parse.Slots.Int(types.SlotSeverity)
	assert.Equal(t, 7, sev)
	assert.Equal(t, "bloat", out.Parse.Slots.String(types.SlotSymptomType))
	assert.Equal(t, "my tummy", out.Parse.Text)
}

func TestMissingSlotDialog_GivesUpAfterMaxRounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.parse(t, "stomach hurts")
	require.NoError(t, env.dm.Clarify(ctx, msg("stomach hurts"), p, *SlotClarification(types.SlotSeverity)))

	for i := 0; i < DefaultMaxRounds-1; i++ {
		out, handled := env.reply(t, "hmm")
		require.True(t, handled)
		assert.Equal(t, StatusAsked, out.Status)
	}
	out, handled := env.reply(t, "hmm")
	require.True(t, handled)
	assert.Equal(t, StatusAbandoned, out.Status)
	assert.NotEmpty(t, out.Reply)

	_, handled = env.reply(t, "6")
	assert.False(t, handled)
}

func TestDialog_ExpiresAfterTTL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.parse(t, "stomach hurts")
	require.NoError(t, env.dm.Clarify(ctx, msg("stomach hurts"), p, *SlotClarification(types.SlotSeverity)))

	env.clock.Advance(DefaultTTL + time.Second)
	_, handled := env.reply(t, "6")
	assert.False(t, handled)
}

func TestDialog_FreshEntryAbandons(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.parse(t, "stomach hurts")
	require.NoError(t, env.dm.Clarify(ctx, msg("stomach hurts"), p, *SlotClarification(types.SlotSeverity)))

	out, handled := env.reply(t, "ate pizza for dinner")
	require.True(t, handled)
	assert.Equal(t, StatusReprocess, out.Status)
	assert.False(t, env.dm.Active(ctx, "u1"))
}

func TestDialog_Cancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.parse(t, "stomach hurts")
	require.NoError(t, env.dm.Clarify(ctx, msg("stomach hurts"), p, *SlotClarification(types.SlotSeverity)))

	out, handled := env.reply(t, "never mind")
	require.True(t, handled)
	assert.Equal(t, StatusAbandoned, out.Status)
	assert.False(t, env.dm.Active(ctx, "u1"))
}

func TestLowConfidenceConfirm(t *testing.T) {
	unsure := types.NewParseResult("toast", types.IntentFood)
	unsure.Slots.Set(types.SlotItem, "toast")
	unsure.Slots.Set(types.SlotMealTime, "breakfast")
	unsure.Confidence = 0.5
	unsure.Recompute()

	tests := []struct {
		reply string
		want  Status
	}{
		{"yes", StatusCompleted},
		{"Nope", StatusDeclined},
		{"what's for lunch?", StatusReprocess},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			c := env.dm.NeedsClarification("toast", &unsure)
			require.NotNil(t, c)
			require.Equal(t, TypeLowConfidence, c.Type)
			require.NoError(t, env.dm.Clarify(ctx, msg("toast"), unsure, *c))

			out, handled := env.reply(t, tt.reply)
			require.True(t, handled)
			assert.Equal(t, tt.want, out.Status)
			if tt.want == StatusCompleted {
				assert.Equal(t, "toast", out.Parse.Slots.String(types.SlotItem))
			}
			assert.False(t, env.dm.Active(ctx, "u1"))
		})
	}
}

func TestIntentClarification_KeywordAnswer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := env.parse(t, "something happened")
	require.Equal(t, types.IntentOther, p.Intent)
	c := env.dm.NeedsClarification("something happened", &p)
	require.NotNil(t, c)
	require.Equal(t, TypeIntent, c.Type)
	require.NoError(t, env.dm.Clarify(ctx, msg("something happened"), p, *c))

	out, handled := env.reply(t, "a symptom")
	require.True(t, handled)
	assert.Equal(t, StatusAsked, out.Status)
	assert.Equal(t, types.IntentSymptom, out.Parse.Intent)
	assert.Equal(t, "something happened", out.Parse.Text)
	assert.Equal(t, types.SlotSeverity, env.prompter.last().Slot)
}

func TestIntentClarification_FullAnswer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p := types.Unknown("meh")
	require.NoError(t, env.dm.Clarify(ctx, msg("meh"), p, *intentClarification()))

	out, handled := env.reply(t, "my stomach hurts 6")
	require.True(t, handled)
	require.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "pain", out.Parse.Slots.String(types.SlotSymptomType))
	sev, _ := out.Parse.Slots.Int(types.SlotSeverity)
	assert.Equal(t, 6, sev)
}

func TestStartDialog_UnknownName(t *testing.T) {
	env := newTestEnv(t)
	err := env.dm.StartDialog(context.Background(), "nope", msg("x"), types.Unknown("x"), *intentClarification())
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	p := types.NewParseResult("", types.IntentSymptom)
	p.Slots.Set(types.SlotSymptomType, "bloat")
	p.Slots.Set(types.SlotSeverity, 7)
	assert.Equal(t, "bloat 7/10", Describe(p))

	bm := types.NewParseResult("", types.IntentBM)
	bm.Slots.Set(types.SlotBristol, 4)
	assert.Equal(t, "a bowel movement (Bristol 4)", Describe(bm))

	food := types.NewParseResult("", types.IntentFood)
	food.Slots.Set(types.SlotItem, "toast")
	food.Slots.Set(types.SlotMealTime, "breakfast")
	assert.Equal(t, "toast (breakfast)", Describe(food))
}
