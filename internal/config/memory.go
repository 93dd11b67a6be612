package config

import "fmt"

// Context memory backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// MemoryConfig configures per-user context memory.
type MemoryConfig struct {
	Backend  string `yaml:"backend"` // memory, redis
	RedisURL string `yaml:"redis_url"`

	// Ring buffer of recent entries used for linking and rough-patch checks
	RecentSize int `yaml:"recent_size"`

	// A rough patch is RoughPatchCount symptom entries inside RoughPatchWindow
	RoughPatchCount  int    `yaml:"rough_patch_count"`
	RoughPatchWindow string `yaml:"rough_patch_window"`

	// Pending context lifetimes
	FollowUpTTL string `yaml:"follow_up_ttl"`
	PostMealTTL string `yaml:"post_meal_ttl"`
}

// Validate checks the backend selection.
func (m MemoryConfig) Validate() error {
	switch m.Backend {
	case "", BackendMemory:
	case BackendRedis:
		if m.RedisURL == "" {
			return fmt.Errorf("memory backend redis needs redis_url (or REDIS_URL)")
		}
	default:
		return fmt.Errorf("invalid memory backend: %s", m.Backend)
	}
	if m.RecentSize < 1 {
		return fmt.Errorf("memory.recent_size must be at least 1, got %d", m.RecentSize)
	}
	if m.RoughPatchCount < 1 {
		return fmt.Errorf("memory.rough_patch_count must be at least 1, got %d", m.RoughPatchCount)
	}
	return nil
}

// DialogConfig configures clarification dialogs.
type DialogConfig struct {
	TTL       string `yaml:"ttl"`
	MaxRounds int    `yaml:"max_rounds"`
}

// ReminderConfig configures scheduled check-ins.
type ReminderConfig struct {
	Enabled       bool           `yaml:"enabled"`
	CheckinSpec   string         `yaml:"checkin_spec"` // cron spec in the user's timezone
	PostMealDelay string         `yaml:"post_meal_delay"`
	Users         []ReminderUser `yaml:"users"`
}

// ReminderUser is a user who receives daily check-ins.
type ReminderUser struct {
	ID       string `yaml:"id"`
	Timezone string `yaml:"timezone"`
}
