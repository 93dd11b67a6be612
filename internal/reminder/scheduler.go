// Package reminder schedules proactive check-ins: a daily "how are you
// feeling?" per configured user and a one-shot post-meal check some time after
// a meal is logged. Both open a post-meal check through the dialog manager so
// the reply is understood in context.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gutcheck/internal/dialog"
	"gutcheck/internal/logging"

	"github.com/robfig/cron/v3"
)

// Channel is the message channel reminders are sent on.
const Channel = "reminder"

// DefaultCheckinSpec fires at 20:00 in the user's timezone.
const DefaultCheckinSpec = "0 20 * * *"

// Checker opens post-meal checks. *dialog.Manager implements it.
type Checker interface {
	StartPostMealCheck(ctx context.Context, msg dialog.Message, item string) error
	Active(ctx context.Context, userID string) bool
}

// User receives daily check-ins.
type User struct {
	ID       string
	Location *time.Location
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron    *cron.Cron
	checker Checker

	mu      sync.Mutex
	daily   map[string]cron.EntryID
	pending map[string]cron.EntryID // user -> queued post-meal check
	running bool
}

// NewScheduler creates a stopped scheduler. Schedules follow the wall clock.
func NewScheduler(checker Checker) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{}))),
		checker: checker,
		daily:   make(map[string]cron.EntryID),
		pending: make(map[string]cron.EntryID),
	}
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	logging.Reminder("reminder scheduler started (%d daily check-ins)", len(s.daily))
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	logging.Reminder("reminder scheduler stopped")
}

// AddDailyCheckin schedules spec (standard five-field cron) in the user's
// timezone, replacing any earlier schedule for the same user.
func (s *Scheduler) AddDailyCheckin(u User, spec string) error {
	if u.ID == "" {
		return fmt.Errorf("daily check-in needs a user id")
	}
	if spec == "" {
		spec = DefaultCheckinSpec
	}
	loc := u.Location
	if loc == nil {
		loc = time.UTC
	}
	full := fmt.Sprintf("CRON_TZ=%s %s", loc.String(), spec)

	id, err := s.cron.AddFunc(full, func() { s.checkin(u.ID, loc) })
	if err != nil {
		return fmt.Errorf("invalid check-in schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	old, replaced := s.daily[u.ID]
	s.daily[u.ID] = id
	s.mu.Unlock()
	if replaced {
		s.cron.Remove(old)
	}
	logging.Reminder("daily check-in for user=%s at %q", u.ID, full)
	return nil
}

// RemoveDailyCheckin drops the user's daily schedule.
func (s *Scheduler) RemoveDailyCheckin(userID string) {
	s.mu.Lock()
	id, ok := s.daily[userID]
	delete(s.daily, userID)
	s.mu.Unlock()
	if ok {
		s.cron.Remove(id)
	}
}

// SchedulePostMeal queues a one-shot check about item after delay. A newer
// meal replaces the user's queued check.
func (s *Scheduler) SchedulePostMeal(userID, item string, loc *time.Location, delay time.Duration) {
	at := time.Now().Add(delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	var id cron.EntryID
	id = s.cron.Schedule(&once{at: at}, cron.FuncJob(func() {
		s.mu.Lock()
		if s.pending[userID] == id {
			delete(s.pending, userID)
		}
		s.mu.Unlock()
		s.cron.Remove(id)
		s.postMeal(userID, item, loc)
	}))
	if old, ok := s.pending[userID]; ok {
		s.cron.Remove(old)
	}
	s.pending[userID] = id
	logging.Reminder("post-meal check for user=%s about %q at %s", userID, item, at.Format(time.RFC3339))
}

// PendingPostMeal reports whether a post-meal check is queued for the user.
func (s *Scheduler) PendingPostMeal(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[userID]
	return ok
}

// CheckinNow runs the daily check-in for a user immediately.
func (s *Scheduler) CheckinNow(userID string, loc *time.Location) {
	s.checkin(userID, loc)
}

func (s *Scheduler) checkin(userID string, loc *time.Location) {
	s.open(userID, "", loc, "daily check-in")
}

func (s *Scheduler) postMeal(userID, item string, loc *time.Location) {
	s.open(userID, item, loc, "post-meal check")
}

func (s *Scheduler) open(userID, item string, loc *time.Location, what string) {
	ctx := context.Background()
	if s.checker.Active(ctx, userID) {
		logging.Reminder("%s for user=%s skipped: dialog in progress", what, userID)
		return
	}
	msg := dialog.Message{UserID: userID, Channel: Channel, Location: loc}
	if err := s.checker.StartPostMealCheck(ctx, msg, item); err != nil {
		logging.ReminderError("%s for user=%s failed: %v", what, userID, err)
		return
	}
	logging.Reminder("%s sent to user=%s", what, userID)
}

// once fires a single time at at.
type once struct {
	at time.Time
}

// Next returns at until it has passed, then the zero time, which cron treats
// as never.
func (o *once) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// cronLogger routes cron's own logging into the reminder category.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Get(logging.CategoryReminder).Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.ReminderError("cron: %s: %v %v", msg, err, keysAndValues)
}
