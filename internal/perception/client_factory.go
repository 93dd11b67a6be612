package perception

import (
	"context"
	"fmt"
	"time"

	"gutcheck/internal/config"
	"gutcheck/internal/logging"
)

// NewClientFromConfig builds the LLM client for the configured provider.
// Provider none returns a nil client and no error: the gate then runs on
// rules alone.
func NewClientFromConfig(ctx context.Context, cfg config.EscalationConfig, timeout time.Duration) (LLMClient, error) {
	switch cfg.Provider {
	case "", config.ProviderNone:
		logging.Escalation("remote extraction disabled")
		return nil, nil
	case config.ProviderOpenAI:
		oc := DefaultOpenAIConfig(cfg.APIKey)
		oc.BaseURL = cfg.BaseURL
		oc.Timeout = timeout
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		logging.Escalation("remote extraction via openai model=%s", oc.Model)
		return NewOpenAIClient(oc), nil
	case config.ProviderGemini:
		client, err := NewGeminiClient(ctx, GeminiConfig{APIKey: cfg.APIKey, Model: cfg.Model, Timeout: timeout})
		if err != nil {
			return nil, err
		}
		logging.Escalation("remote extraction via gemini model=%s", client.model)
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported escalation provider: %s", cfg.Provider)
	}
}
