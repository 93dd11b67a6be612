package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level, enabled map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetLogger(zap.New(core), enabled)
	t.Cleanup(func() { SetLogger(nil, nil) })
	return logs
}

// TestAllCategoriesLog tests that every category reaches the root logger
func TestAllCategoriesLog(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)

	for _, cat := range AllCategories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		Get(cat).Info("Test info message for %s", cat)
	}

	if logs.Len() != len(AllCategories) {
		t.Fatalf("expected %d entries, got %d", len(AllCategories), logs.Len())
	}
	for i, entry := range logs.All() {
		if entry.LoggerName != string(AllCategories[i]) {
			t.Errorf("entry %d: logger name = %q, want %q", i, entry.LoggerName, AllCategories[i])
		}
	}
}

// TestNoopBeforeInitialize tests that nothing is logged without a root logger
func TestNoopBeforeInitialize(t *testing.T) {
	SetLogger(nil, nil)

	if IsCategoryEnabled(CategoryBoot) {
		t.Error("categories should be disabled before initialization")
	}

	// Must not panic.
	Boot("not logged")
	PerceptionDebug("not logged")
	Get(CategoryStore).With("k", "v").Error("not logged")
	StartTimer(CategoryTasks, "noop").Stop()
}

// TestCategoryToggle tests individual category enable/disable
func TestCategoryToggle(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, map[string]bool{
		"perception": false,
		"memory":     true,
	})

	Perception("hidden")
	Memory("shown")
	Dialog("shown by default")

	if IsCategoryEnabled(CategoryPerception) {
		t.Error("perception should be disabled")
	}
	if got := logs.FilterMessage("hidden").Len(); got != 0 {
		t.Errorf("disabled category logged %d entries", got)
	}
	if got := logs.FilterLoggerName("memory").Len(); got != 1 {
		t.Errorf("memory entries = %d, want 1", got)
	}
	if got := logs.FilterLoggerName("dialog").Len(); got != 1 {
		t.Errorf("dialog entries = %d, want 1", got)
	}
}

// TestLogLevels tests that entries below the configured level are dropped
func TestLogLevels(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel, nil)

	PerceptionDebug("debug")
	Perception("info")
	PerceptionWarn("warn")
	PerceptionError("error")

	if logs.Len() != 2 {
		t.Fatalf("expected 2 entries at warn level, got %d", logs.Len())
	}
	if logs.All()[0].Level != zapcore.WarnLevel {
		t.Errorf("first entry level = %v", logs.All()[0].Level)
	}
}

// TestConfigHelpers tests that the config helpers log under the config
// category alongside the Config type.
func TestConfigHelpers(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)

	var _ Config // the type and the helpers share the package
	ConfigInfo("reloaded %s", "gutcheck.yaml")
	ConfigWarn("ignored %s", "bad edit")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.LoggerName != string(CategoryConfig) {
			t.Errorf("logger name = %q, want %q", e.LoggerName, CategoryConfig)
		}
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "reloaded gutcheck.yaml" {
		t.Errorf("unexpected first entry: %v %q", entries[0].Level, entries[0].Message)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Errorf("second entry level = %v", entries[1].Level)
	}
}

func TestWithFields(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)

	ForUser(CategoryAssistant, "u1").With("intent", "food").Info("logged %d rows", 2)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["user"] != "u1" || ctx["intent"] != "food" {
		t.Errorf("unexpected context: %v", ctx)
	}
	if entries[0].Message != "logged 2 rows" {
		t.Errorf("message = %q", entries[0].Message)
	}
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel, nil)

	timer := StartTimer(CategoryEscalation, "remote extract")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Nanosecond)

	if got := logs.FilterLevelExact(zapcore.WarnLevel).Len(); got != 1 {
		t.Errorf("expected one slow-operation warning, got %d", got)
	}
}

func TestInitializeWritesFile(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil, nil) })
	path := filepath.Join(t.TempDir(), "gutcheck.log")

	if err := Initialize(Config{Level: "debug", Format: "json", Output: path}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	Store("opened %s", "db")
	Sync()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), `"logger":"store"`) {
		t.Errorf("log file missing store entry: %s", content)
	}
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil, nil) })
	if err := Initialize(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
