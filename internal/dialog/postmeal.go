package dialog

import (
	"context"

	"gutcheck/internal/logging"
	"gutcheck/internal/memory"
	"gutcheck/internal/ontology"
	"gutcheck/internal/perception"
	"gutcheck/internal/types"
)

// =============================================================================
// POST-MEAL CHECK
// =============================================================================
// post_meal_check -> (reply "fine")          -> checkin logged
//                 -> (reply "bloated, 7")    -> symptom logged
//                 -> (reply "bloated")       -> post_meal_check_wait_severity
// post_meal_check_wait_severity -> (reply "6") -> symptom logged
// Any other reply closes the check and is handled as a new message.

// TypePostMeal is the clarification sent for a post-meal check.
const TypePostMeal ClarificationType = "post_meal"

const (
	keyItem        = "item"
	keyIntent      = "intent"
	keySymptomType = "symptom_type"
)

// StartPostMealCheck asks how the user feels after item and waits for the
// reply.
func (m *Manager) StartPostMealCheck(ctx context.Context, msg Message, item string) error {
	if err := m.mem.SetPending(ctx, msg.UserID, memory.TypePostMealCheck, map[string]any{keyItem: item}, m.cfg.PostMealTTL); err != nil {
		return err
	}
	_ = m.mem.ClearPendingOfType(ctx, msg.UserID, memory.TypePostMealSeverity)
	q := "How are you feeling?"
	if item != "" {
		q = "How are you feeling after the " + item + "?"
	}
	return m.Ask(ctx, Clarification{Type: TypePostMeal, Question: q, Options: []string{"fine", "bloated", "pain", "reflux"}}, msg)
}

// HandlePostMeal interprets msg as a reply to an open post-meal check. It
// reports false when no check is open or the reply does not fit it.
func (m *Manager) HandlePostMeal(ctx context.Context, msg Message) (Outcome, bool) {
	if pc := m.mem.PendingOfType(ctx, msg.UserID, memory.TypePostMealSeverity); pc != nil {
		return m.postMealSeverity(ctx, msg, pc)
	}
	pc := m.mem.PendingOfType(ctx, msg.UserID, memory.TypePostMealCheck)
	if pc == nil {
		return Outcome{}, false
	}
	item := pc.String(keyItem)
	_ = m.mem.ClearPendingOfType(ctx, msg.UserID, memory.TypePostMealCheck)

	p := m.parser.Extract(ctx, msg.Text, perception.Options{UserID: msg.UserID, Timezone: msg.Location})
	perception.Postprocess(&p)
	p.MultiActions = nil

	switch {
	case p.Intent == types.IntentCheckin:
		p.Source = types.SourceDialog
		logging.Dialog("post-meal check: user=%s feels %s", msg.UserID, p.Slots.String(types.SlotMood))
		return Outcome{Status: StatusCompleted, Parse: p}, true

	case p.Intent.IsSymptomLike():
		if item != "" {
			p.Slots.Set(types.SlotLinkedItem, item)
		}
		if !p.Slots.Has(types.SlotSymptomType) {
			p.Slots.Set(types.SlotSymptomType, ontology.SymptomGeneral)
		}
		p.Source = types.SourceDialog
		p.Recompute()
		if p.Slots.Has(types.SlotSeverity) {
			return Outcome{Status: StatusCompleted, Parse: p}, true
		}
		payload := map[string]any{
			keyItem:        item,
			keyIntent:      string(p.Intent),
			keySymptomType: p.Slots.String(types.SlotSymptomType),
		}
		if err := m.mem.SetPending(ctx, msg.UserID, memory.TypePostMealSeverity, payload, m.cfg.PostMealTTL); err != nil {
			return Outcome{Status: StatusAbandoned, Parse: p}, true
		}
		_ = m.Ask(ctx, *SlotClarification(types.SlotSeverity), msg)
		return Outcome{Status: StatusAsked, Parse: p}, true
	}

	logging.DialogDebug("post-meal check closed by unrelated reply from user=%s", msg.UserID)
	return Outcome{}, false
}

func (m *Manager) postMealSeverity(ctx context.Context, msg Message, pc *memory.PendingContext) (Outcome, bool) {
	_ = m.mem.ClearPendingOfType(ctx, msg.UserID, memory.TypePostMealSeverity)

	intent, ok := types.ParseIntent(pc.String(keyIntent))
	if !ok || !intent.IsSymptomLike() {
		intent = types.IntentSymptom
	}
	rp := m.parser.Extract(ctx, msg.Text, perception.Options{
		UserID:       msg.UserID,
		Timezone:     msg.Location,
		ForcedIntent: intent,
	})
	perception.Postprocess(&rp)
	sev, ok := rp.Slots.Int(types.SlotSeverity)
	if !ok {
		return Outcome{}, false
	}

	p := types.NewParseResult(msg.Text, intent)
	p.Slots.Set(types.SlotSymptomType, pc.String(keySymptomType))
	p.Slots.Set(types.SlotSeverity, sev)
	p.Slots.Set(types.SlotLinkedItem, pc.String(keyItem))
	p.Confidence = rp.Confidence
	p.Source = types.SourceDialog
	perception.Postprocess(&p)
	return Outcome{Status: StatusCompleted, Parse: p}, true
}
