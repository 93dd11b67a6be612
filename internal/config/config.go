package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gutcheck configuration.
type Config struct {
	// Core settings
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"` // default user timezone (IANA name)

	// Remote structured extraction for low-confidence parses
	Escalation EscalationConfig `yaml:"escalation"`

	// Confidence thresholds
	NLU NLUConfig `yaml:"nlu"`

	// Context memory backend
	Memory MemoryConfig `yaml:"memory"`

	// Clarification dialogs
	Dialog DialogConfig `yaml:"dialog"`

	// Entry log persistence
	Store StoreConfig `yaml:"store"`

	// HTTP transport
	Server ServerConfig `yaml:"server"`

	// Scheduled check-ins
	Reminders ReminderConfig `yaml:"reminders"`

	// Background task pool
	Tasks TasksConfig `yaml:"tasks"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the SQLite entry log.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	Mode string `yaml:"mode"` // gin mode: release, debug, test
}

// TasksConfig configures the detached task pool.
type TasksConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "gutcheck",
		Timezone: "UTC",

		Escalation: EscalationConfig{
			Provider:  ProviderNone,
			Timeout:   "800ms",
			CacheSize: 512,
		},

		NLU: NLUConfig{
			GateThresholds: map[string]float64{
				"food":    0.65,
				"drink":   0.65,
				"symptom": 0.7,
				"reflux":  0.7,
				"bm":      0.7,
			},
			DefaultGateThreshold: 0.8,
			LogThresholds: map[string]float64{
				"checkin": 0.5,
			},
			DefaultLogThreshold: 0.55,
		},

		Memory: MemoryConfig{
			Backend:          BackendMemory,
			RecentSize:       20,
			RoughPatchCount:  3,
			RoughPatchWindow: "48h",
			FollowUpTTL:      "10m",
			PostMealTTL:      "30m",
		},

		Dialog: DialogConfig{
			TTL:       "5m",
			MaxRounds: 3,
		},

		Store: StoreConfig{
			DatabasePath: "data/gutcheck.db",
		},

		Server: ServerConfig{
			Addr: ":8080",
			Mode: "release",
		},

		Reminders: ReminderConfig{
			Enabled:       false,
			CheckinSpec:   "0 20 * * *",
			PostMealDelay: "90m",
		},

		Tasks: TasksConfig{
			PoolSize: 8,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Remote extraction key from environment (later entries win)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Escalation.APIKey = key
		c.Escalation.Provider = ProviderOpenAI
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Escalation.APIKey = key
		c.Escalation.Provider = ProviderGemini
	}
	if p := os.Getenv("GUTCHECK_ESCALATION"); p != "" {
		c.Escalation.Provider = strings.ToLower(p)
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		c.Memory.RedisURL = url
		c.Memory.Backend = BackendRedis
	}

	if path := os.Getenv("GUTCHECK_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if addr := os.Getenv("GUTCHECK_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if tz := os.Getenv("GUTCHECK_TZ"); tz != "" {
		c.Timezone = tz
	}
	if level := os.Getenv("GUTCHECK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Escalation.Validate(); err != nil {
		return err
	}
	if err := c.NLU.Validate(); err != nil {
		return err
	}
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	if c.Dialog.MaxRounds < 1 {
		return fmt.Errorf("dialog.max_rounds must be at least 1, got %d", c.Dialog.MaxRounds)
	}
	if c.Tasks.PoolSize < 1 {
		return fmt.Errorf("tasks.pool_size must be at least 1, got %d", c.Tasks.PoolSize)
	}
	for name, v := range map[string]string{
		"escalation.timeout":        c.Escalation.Timeout,
		"memory.rough_patch_window": c.Memory.RoughPatchWindow,
		"memory.follow_up_ttl":      c.Memory.FollowUpTTL,
		"memory.post_meal_ttl":      c.Memory.PostMealTTL,
		"dialog.ttl":                c.Dialog.TTL,
		"reminders.post_meal_delay": c.Reminders.PostMealDelay,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}
	return nil
}

// parseDuration parses s, returning fallback when s is empty or invalid.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetEscalationTimeout returns the remote extraction timeout as a duration.
func (c *Config) GetEscalationTimeout() time.Duration {
	return parseDuration(c.Escalation.Timeout, 800*time.Millisecond)
}

// GetDialogTTL returns how long a clarification waits for a reply.
func (c *Config) GetDialogTTL() time.Duration {
	return parseDuration(c.Dialog.TTL, 5*time.Minute)
}

// GetFollowUpTTL returns how long a logged meal waits for a symptom.
func (c *Config) GetFollowUpTTL() time.Duration {
	return parseDuration(c.Memory.FollowUpTTL, 10*time.Minute)
}

// GetPostMealTTL returns how long a post-meal check stays open.
func (c *Config) GetPostMealTTL() time.Duration {
	return parseDuration(c.Memory.PostMealTTL, 30*time.Minute)
}

// GetRoughPatchWindow returns the rolling window for rough-patch detection.
func (c *Config) GetRoughPatchWindow() time.Duration {
	return parseDuration(c.Memory.RoughPatchWindow, 48*time.Hour)
}

// GetPostMealDelay returns the delay before a post-meal check is sent.
func (c *Config) GetPostMealDelay() time.Duration {
	return parseDuration(c.Reminders.PostMealDelay, 90*time.Minute)
}

// Location returns the default user timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}
