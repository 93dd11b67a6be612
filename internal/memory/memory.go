// Package memory is the short-lived per-user conversational state: pending
// clarification and follow-up contexts, a ring of recently logged entries
// and the learned phrase book. Storage is pluggable; the Manager owns TTL
// and linking semantics.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gutcheck/internal/types"
)

// Pending context types.
const (
	TypeFollowUp            = "expecting_symptom_follow_up"
	TypePostMealCheck       = "post_meal_check"
	TypePostMealSeverity    = "post_meal_check_wait_severity"
	TypeNLUClarification    = "nlu_clarification"
	TypeIntentClarification = "intent_clarification"
	TypeLastParse           = "last_parse"
)

// ContextTypes lists every pending context type.
var ContextTypes = []string{
	TypeFollowUp, TypePostMealCheck, TypePostMealSeverity,
	TypeNLUClarification, TypeIntentClarification, TypeLastParse,
}

// ErrMalformedPayload is returned when stored state cannot be decoded. The
// Manager treats it as absence.
var ErrMalformedPayload = errors.New("malformed context payload")

// PendingContext is per-user, per-type state with an expiry.
type PendingContext struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the context has lapsed at now.
func (p *PendingContext) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// String returns a payload value as text.
func (p *PendingContext) String(key string) string {
	if p == nil || p.Payload == nil {
		return ""
	}
	return types.ExtractString(p.Payload[key])
}

// Decode re-reads payload[key] into out, e.g. a stored ParseResult.
func (p *PendingContext) Decode(key string, out any) error {
	if p == nil || p.Payload == nil {
		return fmt.Errorf("%w: no payload", ErrMalformedPayload)
	}
	v, ok := p.Payload[key]
	if !ok {
		return fmt.Errorf("%w: missing %s", ErrMalformedPayload, key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// Store persists pending contexts and recent entries. Implementations must be
// safe for concurrent use. A missing context is (nil, nil).
type Store interface {
	GetContext(ctx context.Context, userID, ctxType string) (*PendingContext, error)
	PutContext(ctx context.Context, userID string, pc PendingContext, ttl time.Duration) error
	DeleteContext(ctx context.Context, userID, ctxType string) error
	DeleteContexts(ctx context.Context, userID string) error
	PushRecent(ctx context.Context, userID string, e types.EntrySummary, limit int) error
	Recent(ctx context.Context, userID string, n int) ([]types.EntrySummary, error)
}

// LearnedPhrase is a correction remembered for one user.
type LearnedPhrase struct {
	Intent types.Intent `json:"intent"`
	Slots  types.Slots  `json:"slots"`
}

// PhraseStore persists learned phrases. A missing phrase is (nil, nil).
type PhraseStore interface {
	SavePhrase(ctx context.Context, userID, normalized string, p LearnedPhrase) error
	Phrase(ctx context.Context, userID, normalized string) (*LearnedPhrase, error)
}

func encodeContext(pc PendingContext) ([]byte, error) {
	return json.Marshal(pc)
}

func decodeContext(raw []byte) (*PendingContext, error) {
	var pc PendingContext
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if pc.Type == "" {
		return nil, fmt.Errorf("%w: no type", ErrMalformedPayload)
	}
	return &pc, nil
}
