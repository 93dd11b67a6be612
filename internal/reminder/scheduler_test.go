package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"gutcheck/internal/dialog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// Imported SDKs start package-level workers at init (opencensus view worker).
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

type call struct {
	user, item, channel string
}

type fakeChecker struct {
	mu     sync.Mutex
	calls  []call
	active map[string]bool
}

func (f *fakeChecker) StartPostMealCheck(_ context.Context, msg dialog.Message, item string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{user: msg.UserID, item: item, channel: msg.Channel})
	return nil
}

func (f *fakeChecker) Active(_ context.Context, userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[userID]
}

func (f *fakeChecker) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func TestSchedulePostMeal_FiresOnce(t *testing.T) {
	fc := &fakeChecker{}
	s := NewScheduler(fc)
	s.Start()
	defer s.Stop()

	s.SchedulePostMeal("u1", "pizza", time.UTC, 30*time.Millisecond)
	assert.True(t, s.PendingPostMeal("u1"))

	require.Eventually(t, func() bool { return len(fc.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, call{user: "u1", item: "pizza", channel: Channel}, fc.snapshot()[0])
	assert.Eventually(t, func() bool { return !s.PendingPostMeal("u1") }, time.Second, 10*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Len(t, fc.snapshot(), 1)
}

func TestSchedulePostMeal_NewerMealReplaces(t *testing.T) {
	fc := &fakeChecker{}
	s := NewScheduler(fc)
	s.Start()
	defer s.Stop()

	s.SchedulePostMeal("u1", "pizza", time.UTC, 40*time.Millisecond)
	s.SchedulePostMeal("u1", "salad", time.UTC, 80*time.Millisecond)

	require.Eventually(t, func() bool { return len(fc.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	calls := fc.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "salad", calls[0].item)
}

func TestCheckin_SkippedDuringDialog(t *testing.T) {
	fc := &fakeChecker{active: map[string]bool{"busy": true}}
	s := NewScheduler(fc)

	s.CheckinNow("busy", time.UTC)
	s.CheckinNow("free", time.UTC)

	calls := fc.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "free", calls[0].user)
	assert.Empty(t, calls[0].item)
}

func TestAddDailyCheckin(t *testing.T) {
	s := NewScheduler(&fakeChecker{})
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	require.NoError(t, s.AddDailyCheckin(User{ID: "u1", Location: ny}, "0 20 * * *"))
	require.NoError(t, s.AddDailyCheckin(User{ID: "u1", Location: ny}, "30 19 * * *"))
	assert.Len(t, s.cron.Entries(), 1, "re-adding replaces the user's schedule")

	assert.Error(t, s.AddDailyCheckin(User{ID: "u2"}, "not a spec"))
	assert.Error(t, s.AddDailyCheckin(User{}, ""))

	s.RemoveDailyCheckin("u1")
	assert.Empty(t, s.cron.Entries())
}

func TestOnce(t *testing.T) {
	at := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	o := &once{at: at}
	assert.Equal(t, at, o.Next(at.Add(-time.Minute)))
	assert.True(t, o.Next(at).IsZero())
	assert.True(t, o.Next(at.Add(time.Second)).IsZero())
}
