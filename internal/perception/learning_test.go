package perception

import (
	"context"
	"testing"

	"gutcheck/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestParseCorrection(t *testing.T) {
	tests := []struct {
		in      string
		ok      bool
		intent  types.Intent
		details string
	}{
		{"correction: bm", true, types.IntentBM, ""},
		{"Correction: food pizza for lunch", true, types.IntentFood, "pizza for lunch"},
		{"correct: heartburn 4", true, types.IntentReflux, "4"},
		{"fix: /drink", true, types.IntentDrink, ""},
		{"correction:", false, "", ""},
		{"correction: dance", false, "", ""},
		{"correction: other", false, "", ""},
		{"I need a correction: food", false, "", ""},
	}
	for _, tt := range tests {
		c, ok := ParseCorrection(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if !tt.ok {
			continue
		}
		assert.Equal(t, tt.intent, c.Intent, tt.in)
		assert.Equal(t, tt.details, c.Details, tt.in)
	}
}

func TestRelearn(t *testing.T) {
	e := newTestExtractor(dinnertime)

	got := Relearn(context.Background(), e, "the usual", Correction{Intent: types.IntentFood, Details: "oatmeal for breakfast"}, Options{})
	assert.Equal(t, types.IntentFood, got.Intent)
	assert.Equal(t, "oatmeal", got.Slots.String(types.SlotItem))
	assert.Equal(t, "breakfast", got.Slots.String(types.SlotMealTime))
	assert.Equal(t, "the usual", got.Text)
	assert.Equal(t, types.SourceLearned, got.Source)
	assert.Equal(t, 1.0, got.Confidence)

	got = Relearn(context.Background(), e, "got the runs", Correction{Intent: types.IntentBM}, Options{})
	assert.Equal(t, types.IntentBM, got.Intent)
	b, _ := got.Slots.Int(types.SlotBristol)
	assert.Equal(t, 7, b)
}
