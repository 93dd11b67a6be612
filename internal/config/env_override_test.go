package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_Escalation(t *testing.T) {
	t.Run("OPENAI_API_KEY selects openai", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.Escalation.APIKey)
		assert.Equal(t, ProviderOpenAI, cfg.Escalation.Provider)
	})

	t.Run("Precedence: GEMINI overrides OPENAI", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gem-key", cfg.Escalation.APIKey)
		assert.Equal(t, ProviderGemini, cfg.Escalation.Provider)
	})

	t.Run("GUTCHECK_ESCALATION=none disables escalation", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GUTCHECK_ESCALATION", "NONE")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, ProviderNone, cfg.Escalation.Provider)
		assert.False(t, cfg.Escalation.Enabled())
	})
}

func TestEnvOverrides_Infrastructure(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("GUTCHECK_DB", "/tmp/g.db")
	t.Setenv("GUTCHECK_ADDR", ":9999")
	t.Setenv("GUTCHECK_TZ", "America/Chicago")
	t.Setenv("GUTCHECK_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, BackendRedis, cfg.Memory.Backend)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Memory.RedisURL)
	assert.Equal(t, "/tmp/g.db", cfg.Store.DatabasePath)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides_AppliedWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GUTCHECK_ADDR", ":7000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gutcheck.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { changes <- c })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	cfg := DefaultConfig()
	cfg.NLU.DefaultGateThreshold = 0.9
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-changes:
		assert.Equal(t, 0.9, got.NLU.DefaultGateThreshold)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcher_IgnoresInvalidEdit(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gutcheck.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(*Config) { called <- struct{}{} })
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("nlu:\n  default_gate_threshold: 7\n"), 0644))

	select {
	case <-called:
		t.Fatal("invalid config should not be delivered")
	case <-time.After(300 * time.Millisecond):
	}
}
