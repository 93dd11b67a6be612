package perception

import (
	"context"
	"testing"
	"time"

	"gutcheck/internal/clock"
	"gutcheck/internal/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dinnertime is 19:00 UTC.
var dinnertime = time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)

func newTestExtractor(at time.Time) *Extractor {
	return NewExtractor(clock.NewFake(at), nil)
}

type phraseBook map[string]types.ParseResult

func (b phraseBook) LookupPhrase(_ context.Context, userID, normalized string) (types.Intent, types.Slots, bool) {
	p, ok := b[userID+"|"+normalized]
	if !ok {
		return "", nil, false
	}
	return p.Intent, p.Slots, true
}

func TestExtract_Scenarios(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	tests := []struct {
		name       string
		text       string
		intent     types.Intent
		slots      types.Slots
		missing    []string
		confidence float64
	}{
		{
			name:       "symptom without severity",
			text:       "stomach hurts",
			intent:     types.IntentSymptom,
			slots:      types.Slots{"symptom_type": "pain"},
			missing:    []string{"severity"},
			confidence: 0.7,
		},
		{
			name:       "reflux with adjective severity",
			text:       "mild heartburn",
			intent:     types.IntentReflux,
			slots:      types.Slots{"symptom_type": "reflux", "severity": 2},
			missing:    []string{},
			confidence: 0.8,
		},
		{
			name:       "bm wins over meal word",
			text:       "had a BM after breakfast",
			intent:     types.IntentBM,
			slots:      types.Slots{},
			missing:    []string{"bristol"},
			confidence: 0.65,
		},
		{
			name:   "food with portion, side and meal",
			text:   "had 2 slices pizza with pepperoni for dinner",
			intent: types.IntentFood,
			slots: types.Slots{
				"item":      "pizza",
				"sides":     []string{"pepperoni"},
				"portion":   "2 slices",
				"meal_time": "dinner",
			},
			missing:    []string{},
			confidence: 0.85,
		},
		{
			name:       "bm with labeled bristol",
			text:       "bm type 4",
			intent:     types.IntentBM,
			slots:      types.Slots{"bristol": 4},
			missing:    []string{},
			confidence: 0.8,
		},
		{
			name:       "greeting",
			text:       "hi",
			intent:     types.IntentGreeting,
			slots:      types.Slots{},
			missing:    []string{},
			confidence: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(ctx, tt.text, Options{})
			assert.Equal(t, tt.intent, got.Intent)
			if diff := cmp.Diff(tt.slots, got.Slots); diff != "" {
				t.Errorf("slots mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.missing, got.Missing)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, types.SourceRules, got.Source)
		})
	}
}

func TestExtract_IntentDetection(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	tests := []struct {
		text string
		want types.Intent
	}{
		{"", types.IntentOther},
		{"   ", types.IntentOther},
		{"12345", types.IntentOther},
		{"7 8 9", types.IntentOther},
		{"had coffee", types.IntentDrink},
		{"drank a latte from starbucks", types.IntentDrink},
		{"ate a burrito", types.IntentFood},
		{"coffee gave me heartburn", types.IntentReflux},
		{"had a headache", types.IntentSymptom},
		{"I feel off", types.IntentSymptom},
		{"not feeling great", types.IntentSymptom},
		{"feeling great today", types.IntentCheckin},
		{"good", types.IntentCheckin},
		{"good morning", types.IntentGreeting},
		{"thanks!", types.IntentThanks},
		{"bye", types.IntentFarewell},
		{"lol", types.IntentChitChat},
		{"how are you?", types.IntentChitChat},
		{"what should I eat?", types.IntentQuestion},
		{"why does coffee upset me?", types.IntentQuestion},
		{"what can you do?", types.IntentHelp},
		{"undo", types.IntentUndo},
		{"scratch that", types.IntentUndo},
		{"change my timezone", types.IntentSettings},
		{"diarrhea again", types.IntentBM},
		{"pooped twice", types.IntentBM},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := e.Extract(ctx, tt.text, Options{})
			if got.Intent != tt.want {
				t.Errorf("Extract(%q).Intent = %s, want %s", tt.text, got.Intent, tt.want)
			}
		})
	}
}

func TestExtract_EmptyHasZeroConfidence(t *testing.T) {
	e := newTestExtractor(dinnertime)
	for _, text := range []string{"", "  \t\n", "123", "42 17"} {
		got := e.Extract(context.Background(), text, Options{})
		assert.Equal(t, types.IntentOther, got.Intent, text)
		assert.Zero(t, got.Confidence, text)
		assert.Empty(t, got.Missing, text)
	}
}

func TestExtract_Severity(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	tests := []struct {
		text string
		want int
	}{
		{"bloated 7/10", 7},
		{"pain 7 out of 10", 7},
		{"cramps 10/10", 10},
		{"really bad cramps", 7},
		{"pretty bad nausea", 6},
		{"a little bloated", 2},
		{"terrible stomach ache", 8},
		{"worst cramps ever", 10},
		{"nausea 3 bad", 3},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := e.Extract(ctx, tt.text, Options{})
			sev, ok := got.Slots.Int(types.SlotSeverity)
			require.True(t, ok, "severity missing for %q: %v", tt.text, got.Slots)
			assert.Equal(t, tt.want, sev)
		})
	}

	got := e.Extract(ctx, "cramps 2 hours after lunch", Options{})
	assert.False(t, got.Slots.Has(types.SlotSeverity), "a duration is not a severity")
}

func TestExtract_SymptomTypes(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"stomach ache", "pain"},
		{"so bloated", "bloat"},
		{"feeling queasy", "nausea"},
		{"sick to my stomach", "nausea"},
		{"feel awful", "general"},
		{"acid reflux", "reflux"},
	}
	for _, tt := range tests {
		got := e.Extract(ctx, tt.text, Options{})
		assert.Equal(t, tt.want, got.Slots.String(types.SlotSymptomType), tt.text)
	}
}

func TestExtract_AmbiguousSymptomIsPenalized(t *testing.T) {
	e := newTestExtractor(dinnertime)
	single := e.Extract(context.Background(), "bloated 5", Options{})
	mixed := e.Extract(context.Background(), "nauseous bloated 5", Options{})
	assert.Less(t, mixed.Confidence, single.Confidence)
}

func TestExtract_BristolFromDescriptor(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	tests := []struct {
		text        string
		bristol     int
		description string
	}{
		{"loose bm", 6, "loose"},
		{"watery poop", 7, "loose"},
		{"hard bm", 2, "hard"},
		{"normal bm", 4, "normal"},
		{"loose bm bristol 5", 5, "loose"},
		{"bm 3", 3, ""},
		{"number 2 was type #1", 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := e.Extract(ctx, tt.text, Options{})
			require.Equal(t, types.IntentBM, got.Intent)
			b, ok := got.Slots.Int(types.SlotBristol)
			require.True(t, ok, "bristol missing: %v", got.Slots)
			assert.Equal(t, tt.bristol, b)
			assert.Equal(t, tt.description, got.Slots.String(types.SlotDescription))
		})
	}
}

func TestExtract_MealTimeInference(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), "breakfast"},
		{time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC), "lunch"},
		{time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), "dinner"},
		{time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC), "snack"},
		{time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), "snack"},
	}
	for _, tt := range tests {
		e := newTestExtractor(tt.at)
		got := e.Extract(ctx, "ate a banana", Options{})
		assert.Equal(t, tt.want, got.Slots.String(types.SlotMealTime), tt.at.Format(time.Kitchen))
	}

	// 13:00 UTC is 08:00 in Chicago, which is breakfast there and snack in UTC.
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	e := newTestExtractor(time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC))
	got := e.Extract(ctx, "ate a banana", Options{Timezone: chicago})
	assert.Equal(t, "breakfast", got.Slots.String(types.SlotMealTime))
}

func TestExtract_InferredMealScoresLower(t *testing.T) {
	e := newTestExtractor(dinnertime)
	named := e.Extract(context.Background(), "ate a banana for dinner", Options{})
	inferred := e.Extract(context.Background(), "ate a banana", Options{})
	assert.Equal(t, "dinner", inferred.Slots.String(types.SlotMealTime))
	assert.Less(t, inferred.Confidence, named.Confidence)
}

func TestExtract_IntakeSlots(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	got := e.Extract(ctx, "drank a latte from starbucks", Options{})
	assert.Equal(t, "latte", got.Slots.String(types.SlotItem))
	assert.Equal(t, "starbucks", got.Slots.String(types.SlotBrand))

	got = e.Extract(ctx, "a cup of coffee", Options{})
	assert.Equal(t, types.IntentDrink, got.Intent)
	assert.Equal(t, "coffee", got.Slots.String(types.SlotItem))
	assert.Equal(t, "a cup", got.Slots.String(types.SlotPortion))

	got = e.Extract(ctx, "ate eggs, toast & jam for breakfast", Options{})
	assert.Equal(t, "eggs", got.Slots.String(types.SlotItem))
	assert.Equal(t, []string{"toast", "jam"}, got.Slots.Strings(types.SlotSides))
	assert.Equal(t, "breakfast", got.Slots.String(types.SlotMealTime))

	got = e.Extract(ctx, "had a coffee and a bagel", Options{})
	assert.Equal(t, types.IntentDrink, got.Intent)
	assert.Empty(t, got.MultiActions)
	assert.Equal(t, "coffee", got.Slots.String(types.SlotItem))
	assert.Equal(t, []string{"bagel"}, got.Slots.Strings(types.SlotSides))
}

func TestExtract_MultiAction(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	got := e.Extract(ctx, "had eggs and felt bloated", Options{})
	require.Equal(t, types.IntentFood, got.Intent)
	assert.Equal(t, "eggs", got.Slots.String(types.SlotItem))
	require.Len(t, got.MultiActions, 1)
	assert.Equal(t, types.IntentSymptom, got.MultiActions[0].Intent)
	assert.Equal(t, "bloat", got.MultiActions[0].Slots.String(types.SlotSymptomType))

	got = e.Extract(ctx, "ate pizza, then heartburn 6 and then a loose bm", Options{})
	require.Equal(t, types.IntentFood, got.Intent)
	require.Len(t, got.MultiActions, 2)
	assert.Equal(t, types.IntentReflux, got.MultiActions[0].Intent)
	assert.Equal(t, types.IntentBM, got.MultiActions[1].Intent)
	for _, m := range got.MultiActions {
		assert.Empty(t, m.MultiActions, "multi-actions are flat")
	}
}

func TestExtract_SameSymptomTwiceIsOneEvent(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	got := e.Extract(ctx, "bloated 5 and gassy 5", Options{})
	require.Equal(t, types.IntentSymptom, got.Intent)
	assert.Empty(t, got.MultiActions)
	assert.Equal(t, "bloat", got.Slots.String(types.SlotSymptomType))
	sev, ok := got.Slots.Int(types.SlotSeverity)
	require.True(t, ok)
	assert.Equal(t, 5, sev)
	assertParseInvariants(t, got)

	got = e.Extract(ctx, "bloated and gassy 6", Options{})
	assert.Empty(t, got.MultiActions)
	sev, _ = got.Slots.Int(types.SlotSeverity)
	assert.Equal(t, 6, sev)
	assert.Empty(t, got.Missing)

	got = e.Extract(ctx, "bloated 5 and nauseous 3", Options{})
	require.Len(t, got.MultiActions, 1)
	assert.Equal(t, "nausea", got.MultiActions[0].Slots.String(types.SlotSymptomType))
}

func TestExtract_SmallTalkIsNotAnItem(t *testing.T) {
	e := newTestExtractor(dinnertime)
	ctx := context.Background()

	for _, text := range []string{
		"hello, I had pizza",
		"hey I had pizza",
		"good morning, had pizza",
		"had pizza, thanks",
	} {
		got := e.Extract(ctx, text, Options{})
		require.Equal(t, types.IntentFood, got.Intent, text)
		assert.Equal(t, "pizza", got.Slots.String(types.SlotItem), text)
		assert.Empty(t, got.Slots.Strings(types.SlotSides), text)
	}
}

func TestExtract_ForcedIntent(t *testing.T) {
	e := newTestExtractor(dinnertime)
	got := e.Extract(context.Background(), "pizza", Options{ForcedIntent: types.IntentFood})
	assert.Equal(t, types.IntentFood, got.Intent)
	assert.Equal(t, "pizza", got.Slots.String(types.SlotItem))
	assert.Greater(t, got.Confidence, 0.0)

	got = e.Extract(context.Background(), "6", Options{ForcedIntent: types.IntentReflux})
	assert.Equal(t, types.IntentReflux, got.Intent)
	sev, _ := got.Slots.Int(types.SlotSeverity)
	assert.Equal(t, 6, sev)
	assert.Empty(t, got.Missing)
}

func TestExtract_LearnedPhraseShortCircuits(t *testing.T) {
	book := phraseBook{
		"u1|the usual": {Intent: types.IntentFood, Slots: types.Slots{"item": "oatmeal", "meal_time": "breakfast"}},
	}
	e := NewExtractor(clock.NewFake(dinnertime), book)

	got := e.Extract(context.Background(), "  The usual. ", Options{UserID: "u1"})
	assert.Equal(t, types.IntentFood, got.Intent)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, types.SourceLearned, got.Source)
	assert.Equal(t, "oatmeal", got.Slots.String(types.SlotItem))
	assert.Empty(t, got.Missing)

	// Other users and forced intents do not see the phrase.
	other := e.Extract(context.Background(), "the usual", Options{UserID: "u2"})
	assert.NotEqual(t, types.SourceLearned, other.Source)
	forced := e.Extract(context.Background(), "the usual", Options{UserID: "u1", ForcedIntent: types.IntentDrink})
	assert.Equal(t, types.IntentDrink, forced.Intent)

	// The stored slots are not aliased.
	got.Slots["item"] = "changed"
	assert.Equal(t, "oatmeal", book["u1|the usual"].Slots["item"])
}

func TestExtract_MissingInvariantHolds(t *testing.T) {
	e := newTestExtractor(dinnertime)
	inputs := []string{
		"stomach hurts", "had pizza", "bm", "heartburn", "coffee", "hi", "thanks",
		"😀😀", "?!?!", "and and and", "with with", "/undo", "#2", "10/10",
		"had eggs and then pain 4 but also a loose bm", "ate ate ate",
	}
	for _, text := range inputs {
		assertParseInvariants(t, e.Extract(context.Background(), text, Options{}))
	}
}

func assertParseInvariants(t *testing.T, p types.ParseResult) {
	t.Helper()
	var want []string
	for _, slot := range types.RequiredSlots(p.Intent) {
		if !p.Slots.Has(slot) {
			want = append(want, slot)
		}
	}
	if len(want) == 0 {
		assert.Empty(t, p.Missing, "%q", p.Text)
	} else {
		assert.Equal(t, want, p.Missing, "%q", p.Text)
	}
	assert.GreaterOrEqual(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 1.0)
	if p.Intent.IsConversational() {
		assert.Empty(t, p.Slots, "%q", p.Text)
		assert.Empty(t, p.Missing, "%q", p.Text)
	}
	for _, m := range p.MultiActions {
		assertParseInvariants(t, m)
	}
}
