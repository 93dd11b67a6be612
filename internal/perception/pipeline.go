package perception

import (
	"context"
	"runtime/debug"

	"gutcheck/internal/logging"
	"gutcheck/internal/types"
)

// FollowUps hands out the item a symptom should be linked to. Taking it
// clears it, whether or not the current message uses it.
type FollowUps interface {
	TakeFollowUp(ctx context.Context, userID string) (linkedItem string, ok bool)
}

// Pipeline is the understand entry point: rules, gate, postprocess, follow-up
// linking.
type Pipeline struct {
	extractor *Extractor
	gate      *Gate
	followUps FollowUps
}

// NewPipeline wires the stages. gate and followUps may be nil.
func NewPipeline(extractor *Extractor, gate *Gate, followUps FollowUps) *Pipeline {
	return &Pipeline{extractor: extractor, gate: gate, followUps: followUps}
}

// Gate returns the pipeline's gate, or nil.
func (p *Pipeline) Gate() *Gate {
	return p.gate
}

// Extractor returns the rule extractor.
func (p *Pipeline) Extractor() *Extractor {
	return p.extractor
}

// Understand returns the final parse for text. It never fails and never
// panics: the worst case is intent other with confidence 0.
func (p *Pipeline) Understand(ctx context.Context, text string, opts Options) (result types.ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.PerceptionError("understand panicked on %q: %v\n%s", text, r, debug.Stack())
			result = types.Unknown(text)
		}
	}()

	parse := p.extractor.Extract(ctx, text, opts)
	if parse.Source != types.SourceLearned && p.gate != nil {
		parse = p.gate.Apply(ctx, parse, text)
	}
	Postprocess(&parse)
	p.link(ctx, &parse, opts.UserID)

	logging.Perception("understood user=%s %s conf=%.2f src=%s", opts.UserID, parse.Summary(), parse.Confidence, parse.Source)
	return parse
}

// link attaches symptoms to the meal they follow: an intake named earlier in
// the same message, else a pending follow-up. The follow-up is consumed
// either way.
func (p *Pipeline) link(ctx context.Context, parse *types.ParseResult, userID string) {
	linkWithinMessage(parse)

	if p.followUps == nil || userID == "" {
		return
	}
	item, ok := p.followUps.TakeFollowUp(ctx, userID)
	if !ok || item == "" {
		return
	}
	linked := false
	attach := func(a *types.ParseResult) {
		if a.Intent.IsSymptomLike() && !a.Slots.Has(types.SlotLinkedItem) {
			a.Slots.Set(types.SlotLinkedItem, item)
			linked = true
		}
	}
	attach(parse)
	for i := range parse.MultiActions {
		attach(&parse.MultiActions[i])
	}
	if linked {
		logging.PerceptionDebug("linked symptom to %q for user=%s", item, userID)
	}
}

// linkWithinMessage links each symptom action to the nearest intake before it.
func linkWithinMessage(parse *types.ParseResult) {
	last := ""
	if parse.Intent.IsIntake() {
		last = parse.Slots.String(types.SlotItem)
	}
	for i := range parse.MultiActions {
		a := &parse.MultiActions[i]
		switch {
		case a.Intent.IsIntake():
			if item := a.Slots.String(types.SlotItem); item != "" {
				last = item
			}
		case a.Intent.IsSymptomLike() && last != "" && !a.Slots.Has(types.SlotLinkedItem):
			a.Slots.Set(types.SlotLinkedItem, last)
		}
	}
}
