package config

import "fmt"

// Remote extraction providers.
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ValidProviders lists all supported remote extraction providers.
var ValidProviders = []string{ProviderNone, ProviderOpenAI, ProviderGemini}

// EscalationConfig configures the remote structured-extraction pass.
type EscalationConfig struct {
	Provider  string `yaml:"provider"` // none, openai, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	CacheSize int    `yaml:"cache_size"`
}

// Enabled reports whether a remote provider is configured.
func (e EscalationConfig) Enabled() bool {
	return e.Provider != "" && e.Provider != ProviderNone
}

// Validate checks the provider name and credentials.
func (e EscalationConfig) Validate() error {
	provider := e.Provider
	if provider == "" {
		provider = ProviderNone
	}
	valid := false
	for _, p := range ValidProviders {
		if provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid escalation provider: %s (valid: %v)", e.Provider, ValidProviders)
	}
	if e.Enabled() && e.APIKey == "" {
		return fmt.Errorf("escalation provider %s needs an API key (set OPENAI_API_KEY or GEMINI_API_KEY)", e.Provider)
	}
	if e.CacheSize < 0 {
		return fmt.Errorf("escalation.cache_size must not be negative, got %d", e.CacheSize)
	}
	return nil
}

// NLUConfig holds the tunable confidence thresholds.
type NLUConfig struct {
	// Parses at or above the gate threshold skip escalation.
	GateThresholds       map[string]float64 `yaml:"gate_thresholds"`
	DefaultGateThreshold float64            `yaml:"default_gate_threshold"`

	// Complete parses below the log threshold are confirmed before logging.
	LogThresholds       map[string]float64 `yaml:"log_thresholds"`
	DefaultLogThreshold float64            `yaml:"default_log_threshold"`
}

// GateThreshold returns the escalation threshold for an intent.
func (n NLUConfig) GateThreshold(intent string) float64 {
	if v, ok := n.GateThresholds[intent]; ok {
		return v
	}
	return n.DefaultGateThreshold
}

// LogThreshold returns the logging threshold for an intent.
func (n NLUConfig) LogThreshold(intent string) float64 {
	if v, ok := n.LogThresholds[intent]; ok {
		return v
	}
	return n.DefaultLogThreshold
}

// Validate checks every threshold lies in [0,1].
func (n NLUConfig) Validate() error {
	check := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s must be in [0,1], got %v", name, v)
		}
		return nil
	}
	if err := check("default_gate_threshold", n.DefaultGateThreshold); err != nil {
		return err
	}
	if err := check("default_log_threshold", n.DefaultLogThreshold); err != nil {
		return err
	}
	for k, v := range n.GateThresholds {
		if err := check("gate_thresholds."+k, v); err != nil {
			return err
		}
	}
	for k, v := range n.LogThresholds {
		if err := check("log_thresholds."+k, v); err != nil {
			return err
		}
	}
	return nil
}
