// Package insights derives trend summaries from the entry log: the current
// symptom-free streak, per-intent counts over a window and the foods most
// often linked to symptoms.
package insights

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gutcheck/internal/clock"
	"gutcheck/internal/logging"
	"gutcheck/internal/store"
	"gutcheck/internal/types"
)

// DefaultWindowDays is the summary window used when none is given.
const DefaultWindowDays = 7

// MaxTriggers bounds Summary.TopTriggers.
const MaxTriggers = 3

// Querier reads the entry log. store.LogStore implements it.
type Querier interface {
	Query(ctx context.Context, userID string, f store.Filter) ([]store.Row, error)
}

// Service computes insights for one user at a time.
type Service struct {
	q     Querier
	clock clock.Clock
}

// NewService creates an insights service.
func NewService(q Querier, c clock.Clock) *Service {
	if c == nil {
		c = clock.Real{}
	}
	return &Service{q: q, clock: c}
}

// Streak is the run of symptom-free days ending today.
type Streak struct {
	Days        int
	LastSymptom time.Time // zero when no symptom was ever logged
	HasHistory  bool      // false when nothing was ever logged
}

// Trigger is a food or drink that symptoms were linked to.
type Trigger struct {
	Item        string
	Count       int
	AvgSeverity float64
}

// Summary aggregates one window of entries.
type Summary struct {
	From, To    time.Time
	Counts      map[types.Intent]int
	Symptoms    int
	AvgSeverity float64
	TopTriggers []Trigger
}

var symptomIntents = []types.Intent{types.IntentSymptom, types.IntentReflux}

// Streak counts the calendar days in loc since the last symptom, today
// included. Without any symptom it counts from the first logged day.
func (s *Service) Streak(ctx context.Context, userID string, loc *time.Location) (Streak, error) {
	now := clock.In(s.clock, loc)

	last, err := s.q.Query(ctx, userID, store.Filter{Intents: symptomIntents, Limit: 1})
	if err != nil {
		return Streak{}, fmt.Errorf("failed to read symptoms: %w", err)
	}
	if len(last) > 0 {
		at := last[0].LoggedAt.In(now.Location())
		return Streak{Days: daysBetween(at, now), LastSymptom: at, HasHistory: true}, nil
	}

	all, err := s.q.Query(ctx, userID, store.Filter{})
	if err != nil {
		return Streak{}, fmt.Errorf("failed to read entries: %w", err)
	}
	if len(all) == 0 {
		return Streak{}, nil
	}
	first := all[len(all)-1].LoggedAt.In(now.Location())
	return Streak{Days: daysBetween(first, now) + 1, HasHistory: true}, nil
}

// Summary aggregates the last days days of entries.
func (s *Service) Summary(ctx context.Context, userID string, days int) (Summary, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	timer := logging.StartTimer(logging.CategoryAssistant, "insights.Summary")
	defer timer.Stop()

	to := s.clock.Now()
	from := to.Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := s.q.Query(ctx, userID, store.Filter{Since: from})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read entries: %w", err)
	}

	sum := Summary{From: from, To: to, Counts: make(map[types.Intent]int)}
	type agg struct {
		count int
		total int
		rated int
	}
	triggers := make(map[string]*agg)
	severityTotal, severityN := 0, 0

	for _, r := range rows {
		sum.Counts[r.Intent]++
		if !r.Intent.IsSymptomLike() {
			continue
		}
		sum.Symptoms++
		sev, hasSev := r.Slots.Int(types.SlotSeverity)
		if hasSev {
			severityTotal += sev
			severityN++
		}
		if item := r.Slots.String(types.SlotLinkedItem); item != "" {
			a := triggers[item]
			if a == nil {
				a = &agg{}
				triggers[item] = a
			}
			a.count++
			if hasSev {
				a.total += sev
				a.rated++
			}
		}
	}
	if severityN > 0 {
		sum.AvgSeverity = float64(severityTotal) / float64(severityN)
	}

	for item, a := range triggers {
		t := Trigger{Item: item, Count: a.count}
		if a.rated > 0 {
			t.AvgSeverity = float64(a.total) / float64(a.rated)
		}
		sum.TopTriggers = append(sum.TopTriggers, t)
	}
	sort.Slice(sum.TopTriggers, func(i, j int) bool {
		a, b := sum.TopTriggers[i], sum.TopTriggers[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.AvgSeverity != b.AvgSeverity {
			return a.AvgSeverity > b.AvgSeverity
		}
		return a.Item < b.Item
	})
	if len(sum.TopTriggers) > MaxTriggers {
		sum.TopTriggers = sum.TopTriggers[:MaxTriggers]
	}
	return sum, nil
}

// daysBetween counts calendar-day boundaries from a to b in b's location.
func daysBetween(a, b time.Time) int {
	a = a.In(b.Location())
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	n := int(db.Sub(da).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}
