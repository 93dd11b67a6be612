package assistant

import (
	"context"
	"errors"
	"fmt"

	"gutcheck/internal/logging"
	"gutcheck/internal/memory"
	"gutcheck/internal/perception"
	"gutcheck/internal/store"
)

// correct replaces the last reading with the user's correction and learns the
// phrase so the same words read the corrected way next time.
func (a *Assistant) correct(ctx context.Context, t *turn, corr perception.Correction) {
	userID := t.msg.UserID
	last := a.deps.Memory.PendingOfType(ctx, userID, memory.TypeLastParse)
	original := last.String(keyText)
	if original == "" {
		t.say(KindInfo, "There's nothing recent to correct.")
		return
	}

	if ref := last.String(keyRef); ref != "" {
		if err := a.deps.Store.Undo(ctx, store.RowRef(ref)); err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.AssistantError("undo for correction failed for user=%s: %v", userID, err)
			t.say(KindError, "Sorry, I couldn't replace that entry.")
			return
		}
	}
	_ = a.deps.Memory.ClearPendingOfType(ctx, userID, memory.TypeNLUClarification)
	_ = a.deps.Memory.ClearPendingOfType(ctx, userID, memory.TypeIntentClarification)

	p := perception.Relearn(ctx, a.deps.Pipeline.Extractor(), original, corr, perception.Options{
		UserID:   userID,
		Timezone: t.msg.Location,
	})
	t.resp.Parse = &p
	if err := a.deps.Memory.LearnPhrase(ctx, userID, original, p.Intent, p.Slots); err != nil {
		logging.AssistantWarn("could not learn correction for user=%s: %v", userID, err)
	}
	logging.Assistant("correction for user=%s: %q is %s", userID, original, p.Intent)
	t.say(KindInfo, fmt.Sprintf("Got it, %q is %s. I'll remember that.", original, p.Intent))

	// The user already said what it is; only missing slots are asked for.
	if c := a.deps.Dialog.NeedsClarification("", &p); c != nil {
		if err := a.deps.Dialog.Clarify(ctx, t.msg, p, *c); err != nil {
			logging.AssistantError("clarify failed for user=%s: %v", userID, err)
		}
		return
	}
	a.record(ctx, t, p)
}
