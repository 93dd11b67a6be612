package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gutcheck/internal/assistant"
	"gutcheck/internal/clock"
	"gutcheck/internal/config"
	"gutcheck/internal/dialog"
	"gutcheck/internal/insights"
	"gutcheck/internal/logging"
	"gutcheck/internal/memory"
	"gutcheck/internal/perception"
	"gutcheck/internal/reminder"
	"gutcheck/internal/store"
	"gutcheck/internal/tasks"
)

// app holds every wired component of one process.
type app struct {
	cfg *config.Config

	store     *store.SQLiteStore
	local     *memory.LocalStore // nil with the redis backend
	redis     *memory.RedisStore // nil with the memory backend
	mem       *memory.Manager
	gate      *perception.Gate
	pipeline  *perception.Pipeline
	parser    *perception.Pipeline // stateless: never consumes follow-ups
	outbox    *assistant.Outbox
	dialog    *dialog.Manager
	insights  *insights.Service
	pool      *tasks.Pool
	scheduler *reminder.Scheduler
	assistant *assistant.Assistant
	watcher   *config.Watcher
}

// =============================================================================
// WIRING
// =============================================================================

// newApp builds the component graph from cfg. The caller must Close it.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	timer := logging.StartTimer(logging.CategoryBoot, "newApp")
	defer timer.Stop()

	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	c := clock.Real{}

	if cfg.Store.DatabasePath != store.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.DatabasePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	a.store, err = store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return nil, err
	}

	var backend memory.Store
	switch cfg.Memory.Backend {
	case config.BackendRedis:
		a.redis, err = memory.NewRedisStore(ctx, cfg.Memory.RedisURL)
		if err != nil {
			return nil, err
		}
		backend = a.redis
	default:
		a.local = memory.NewLocalStore(c)
		a.local.StartJanitor(context.Background(), time.Minute)
		backend = a.local
	}
	a.mem = memory.NewManager(backend, a.store, c, memory.Options{
		RecentSize:       cfg.Memory.RecentSize,
		RoughPatchCount:  cfg.Memory.RoughPatchCount,
		RoughPatchWindow: cfg.GetRoughPatchWindow(),
		FollowUpTTL:      cfg.GetFollowUpTTL(),
	})

	ext := perception.NewExtractor(c, a.mem)
	client, err := perception.NewClientFromConfig(ctx, cfg.Escalation, cfg.GetEscalationTimeout())
	if err != nil {
		return nil, err
	}
	var remote perception.RemoteExtractor
	if client != nil {
		remote = perception.NewLLMExtractor(client)
	}
	a.gate, err = perception.NewGate(remote, perception.GateConfig{
		Timeout:    cfg.GetEscalationTimeout(),
		CacheSize:  cfg.Escalation.CacheSize,
		Thresholds: cfg.NLU,
	})
	if err != nil {
		return nil, err
	}
	a.pipeline = perception.NewPipeline(ext, a.gate, a.mem)
	a.parser = perception.NewPipeline(ext, a.gate, nil)

	a.outbox = assistant.NewOutbox(nil)
	a.dialog = dialog.NewManager(a.mem, ext, a.outbox, cfg.NLU, dialog.Config{
		TTL:         cfg.GetDialogTTL(),
		MaxRounds:   cfg.Dialog.MaxRounds,
		PostMealTTL: cfg.GetPostMealTTL(),
	})
	a.insights = insights.NewService(a.store, c)

	a.pool, err = tasks.New(cfg.Tasks.PoolSize, tasks.DefaultTaskTimeout)
	if err != nil {
		return nil, err
	}

	deps := assistant.Deps{
		Pipeline: a.pipeline,
		Dialog:   a.dialog,
		Memory:   a.mem,
		Store:    a.store,
		Outbox:   a.outbox,
		Insights: a.insights,
		Tasks:    a.pool,
	}
	if cfg.Reminders.Enabled {
		a.scheduler = reminder.NewScheduler(a.dialog)
		for _, u := range cfg.Reminders.Users {
			loc := cfg.Location()
			if u.Timezone != "" {
				loc = clock.LoadLocation(u.Timezone)
			}
			if err := a.scheduler.AddDailyCheckin(reminder.User{ID: u.ID, Location: loc}, cfg.Reminders.CheckinSpec); err != nil {
				return nil, err
			}
		}
		deps.Reminders = a.scheduler
	}

	a.assistant, err = assistant.New(deps, assistant.Options{
		DefaultLocation: cfg.Location(),
		PostMealDelay:   cfg.GetPostMealDelay(),
	})
	if err != nil {
		return nil, err
	}

	logging.Boot("gutcheck wired: store=%s memory=%s escalation=%s reminders=%v",
		cfg.Store.DatabasePath, backendName(cfg), cfg.Escalation.Provider, cfg.Reminders.Enabled)
	return a, nil
}

func backendName(cfg *config.Config) string {
	if cfg.Memory.Backend == "" {
		return config.BackendMemory
	}
	return cfg.Memory.Backend
}

// start runs the background parts: reminders and config hot reload.
func (a *app) start(ctx context.Context, configPath string) {
	if a.scheduler != nil {
		a.scheduler.Start()
	}
	if configPath == "" {
		return
	}
	if _, err := os.Stat(configPath); err != nil {
		return
	}
	w, err := config.NewWatcher(configPath, a.reload)
	if err != nil {
		logging.ConfigWarn("config hot reload disabled: %v", err)
		return
	}
	if err := w.Start(ctx); err != nil {
		logging.ConfigWarn("config hot reload disabled: %v", err)
		w.Stop()
		return
	}
	a.watcher = w
}

// reload applies the settings that can change without a restart.
func (a *app) reload(cfg *config.Config) {
	a.gate.SetThresholds(cfg.NLU)
	a.dialog.SetThresholds(cfg.NLU)
	logging.ConfigInfo("thresholds reloaded")
}

// Close stops background work and releases resources.
func (a *app) Close() error {
	var errs []error
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.pool != nil {
		if err := a.pool.Close(10 * time.Second); err != nil {
			errs = append(errs, err)
		}
	}
	if a.local != nil {
		a.local.Stop()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
