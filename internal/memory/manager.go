package memory

import (
	"context"
	"errors"
	"time"

	"gutcheck/internal/clock"
	"gutcheck/internal/logging"
	"gutcheck/internal/ontology"
	"gutcheck/internal/types"
)

// Options tunes the Manager.
type Options struct {
	RecentSize       int           // ring size per user
	RoughPatchCount  int           // symptom entries that make a rough patch
	RoughPatchWindow time.Duration // lookback for rough patches
	FollowUpTTL      time.Duration // how long a logged meal waits for a symptom
}

// DefaultOptions returns the defaults used by the assistant.
func DefaultOptions() Options {
	return Options{
		RecentSize:       20,
		RoughPatchCount:  3,
		RoughPatchWindow: 48 * time.Hour,
		FollowUpTTL:      10 * time.Minute,
	}
}

// Manager is the context memory API. Store errors are logged and read as
// absence so a broken backend never fails a turn.
type Manager struct {
	store   Store
	phrases PhraseStore
	clock   clock.Clock
	opts    Options
}

// NewManager creates a manager. phrases may be nil, in which case learned
// phrases are kept nowhere.
func NewManager(store Store, phrases PhraseStore, c clock.Clock, opts Options) *Manager {
	if c == nil {
		c = clock.Real{}
	}
	def := DefaultOptions()
	if opts.RecentSize <= 0 {
		opts.RecentSize = def.RecentSize
	}
	if opts.RoughPatchCount <= 0 {
		opts.RoughPatchCount = def.RoughPatchCount
	}
	if opts.RoughPatchWindow <= 0 {
		opts.RoughPatchWindow = def.RoughPatchWindow
	}
	if opts.FollowUpTTL <= 0 {
		opts.FollowUpTTL = def.FollowUpTTL
	}
	return &Manager{store: store, phrases: phrases, clock: c, opts: opts}
}

// Clock returns the manager's clock.
func (m *Manager) Clock() clock.Clock {
	return m.clock
}

// =============================================================================
// PENDING CONTEXTS
// =============================================================================

// PendingOfType returns the live context of one type, or nil.
func (m *Manager) PendingOfType(ctx context.Context, userID, ctxType string) *PendingContext {
	pc, err := m.store.GetContext(ctx, userID, ctxType)
	if err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			logging.MemoryWarn("dropping malformed %s context for user=%s: %v", ctxType, userID, err)
			_ = m.store.DeleteContext(ctx, userID, ctxType)
		} else {
			logging.MemoryWarn("context read failed for user=%s type=%s: %v", userID, ctxType, err)
		}
		return nil
	}
	if pc == nil {
		return nil
	}
	if pc.Expired(m.clock.Now()) {
		_ = m.store.DeleteContext(ctx, userID, ctxType)
		return nil
	}
	return pc
}

// Pending returns the most recently created live context, ignoring the
// last_parse bookkeeping entry.
func (m *Manager) Pending(ctx context.Context, userID string) *PendingContext {
	var newest *PendingContext
	for _, t := range ContextTypes {
		if t == TypeLastParse {
			continue
		}
		pc := m.PendingOfType(ctx, userID, t)
		if pc != nil && (newest == nil || pc.CreatedAt.After(newest.CreatedAt)) {
			newest = pc
		}
	}
	return newest
}

// SetPending stores a context of ctxType for ttl, replacing any previous one
// of the same type.
func (m *Manager) SetPending(ctx context.Context, userID, ctxType string, payload map[string]any, ttl time.Duration) error {
	now := m.clock.Now()
	pc := PendingContext{
		Type:      ctxType,
		Payload:   payload,
		CreatedAt: now,
	}
	if ttl > 0 {
		pc.ExpiresAt = now.Add(ttl)
	}
	if err := m.store.PutContext(ctx, userID, pc, ttl); err != nil {
		logging.MemoryWarn("context write failed for user=%s type=%s: %v", userID, ctxType, err)
		return err
	}
	logging.MemoryDebug("set %s for user=%s ttl=%v", ctxType, userID, ttl)
	return nil
}

// ClearPending removes every context of the user.
func (m *Manager) ClearPending(ctx context.Context, userID string) error {
	return m.store.DeleteContexts(ctx, userID)
}

// ClearPendingOfType removes one context.
func (m *Manager) ClearPendingOfType(ctx context.Context, userID, ctxType string) error {
	return m.store.DeleteContext(ctx, userID, ctxType)
}

// =============================================================================
// FOLLOW-UP LINKING
// =============================================================================

// ArmFollowUp records that the next symptom should be linked to item.
func (m *Manager) ArmFollowUp(ctx context.Context, userID, item string) error {
	return m.SetPending(ctx, userID, TypeFollowUp, map[string]any{types.SlotLinkedItem: item}, m.opts.FollowUpTTL)
}

// TakeFollowUp returns and clears the armed follow-up. Any message consumes
// it, linked or not.
func (m *Manager) TakeFollowUp(ctx context.Context, userID string) (string, bool) {
	pc := m.PendingOfType(ctx, userID, TypeFollowUp)
	if pc == nil {
		return "", false
	}
	_ = m.store.DeleteContext(ctx, userID, TypeFollowUp)
	item := pc.String(types.SlotLinkedItem)
	return item, item != ""
}

// =============================================================================
// RECENT ENTRIES
// =============================================================================

// Push records a logged entry in the user's ring.
func (m *Manager) Push(ctx context.Context, userID string, e types.EntrySummary) error {
	if e.At.IsZero() {
		e.At = m.clock.Now()
	}
	if err := m.store.PushRecent(ctx, userID, e, m.opts.RecentSize); err != nil {
		logging.MemoryWarn("recent push failed for user=%s: %v", userID, err)
		return err
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (m *Manager) Recent(ctx context.Context, userID string, n int) []types.EntrySummary {
	entries, err := m.store.Recent(ctx, userID, n)
	if err != nil {
		logging.MemoryWarn("recent read failed for user=%s: %v", userID, err)
		return nil
	}
	return entries
}

// HasRoughPatch reports at least RoughPatchCount symptom or reflux entries
// within RoughPatchWindow.
func (m *Manager) HasRoughPatch(ctx context.Context, userID string) bool {
	cutoff := m.clock.Now().Add(-m.opts.RoughPatchWindow)
	count := 0
	for _, e := range m.Recent(ctx, userID, m.opts.RecentSize) {
		if e.Intent.IsSymptomLike() && !e.At.Before(cutoff) {
			count++
		}
	}
	return count >= m.opts.RoughPatchCount
}

// =============================================================================
// LEARNED PHRASES
// =============================================================================

// LearnPhrase remembers that text means intent with slots for this user.
// Re-learning the same text overwrites.
func (m *Manager) LearnPhrase(ctx context.Context, userID, text string, intent types.Intent, slots types.Slots) error {
	if m.phrases == nil {
		return nil
	}
	normalized := ontology.Normalize(text)
	if normalized == "" {
		return nil
	}
	if err := m.phrases.SavePhrase(ctx, userID, normalized, LearnedPhrase{Intent: intent, Slots: slots.Clone()}); err != nil {
		logging.MemoryWarn("learn phrase failed for user=%s: %v", userID, err)
		return err
	}
	logging.Memory("learned %q as %s for user=%s", normalized, intent, userID)
	return nil
}

// LookupPhrase returns the learned reading of an already normalized text.
func (m *Manager) LookupPhrase(ctx context.Context, userID, normalized string) (types.Intent, types.Slots, bool) {
	if m.phrases == nil {
		return "", nil, false
	}
	p, err := m.phrases.Phrase(ctx, userID, normalized)
	if err != nil {
		logging.MemoryWarn("phrase lookup failed for user=%s: %v", userID, err)
		return "", nil, false
	}
	if p == nil {
		return "", nil, false
	}
	return p.Intent, p.Slots, true
}
