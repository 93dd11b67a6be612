package perception

import (
	"context"
	"errors"
	"time"
)

// LLMClient defines the interface for LLM providers used by escalation.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrNoAPIKey is returned by clients constructed without credentials.
var ErrNoAPIKey = errors.New("API key not configured")

// withDeadline applies timeout when ctx carries no deadline of its own.
func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
