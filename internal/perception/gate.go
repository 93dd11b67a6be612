package perception

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gutcheck/internal/logging"
	"gutcheck/internal/ontology"
	"gutcheck/internal/types"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// CONFIDENCE GATE
// =============================================================================
// Accepts a rule parse as-is when it is confident or complete; otherwise asks
// the remote extractor and merges. Escalation failure always falls back to
// the rule parse.

// DefaultEscalationTimeout bounds one remote extraction call.
const DefaultEscalationTimeout = 800 * time.Millisecond

// DefaultCacheSize bounds the escalation cache.
const DefaultCacheSize = 512

// Thresholds supplies the per-intent acceptance threshold.
type Thresholds interface {
	GateThreshold(intent string) float64
}

// StaticThreshold applies one threshold to every intent.
type StaticThreshold float64

// GateThreshold returns t.
func (t StaticThreshold) GateThreshold(string) float64 { return float64(t) }

// GateConfig configures a Gate.
type GateConfig struct {
	Timeout    time.Duration
	CacheSize  int
	Thresholds Thresholds
}

type thresholdBox struct{ t Thresholds }

// Gate decides between the rule parse and escalation.
type Gate struct {
	remote     RemoteExtractor
	cache      *lru.Cache[string, RemoteResult]
	group      singleflight.Group
	timeout    time.Duration
	thresholds atomic.Pointer[thresholdBox]
}

// NewGate creates a gate. A nil remote makes the gate rules-only.
func NewGate(remote RemoteExtractor, cfg GateConfig) (*Gate, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEscalationTimeout
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = StaticThreshold(0.8)
	}
	cache, err := lru.New[string, RemoteResult](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create escalation cache: %w", err)
	}
	g := &Gate{remote: remote, cache: cache, timeout: cfg.Timeout}
	g.thresholds.Store(&thresholdBox{t: cfg.Thresholds})
	return g, nil
}

// SetThresholds swaps the thresholds, e.g. after a config reload.
func (g *Gate) SetThresholds(t Thresholds) {
	if t != nil {
		g.thresholds.Store(&thresholdBox{t: t})
	}
}

// Threshold returns the acceptance threshold for intent.
func (g *Gate) Threshold(intent types.Intent) float64 {
	return g.thresholds.Load().t.GateThreshold(string(intent))
}

// Accepts reports whether p passes without escalation.
func (g *Gate) Accepts(p types.ParseResult) bool {
	return p.Confidence >= g.Threshold(p.Intent) || len(p.Missing) == 0
}

// Apply returns the final parse for rawText. It never fails.
func (g *Gate) Apply(ctx context.Context, p types.ParseResult, rawText string) types.ParseResult {
	if g.Accepts(p) {
		return p
	}
	if g.remote == nil {
		logging.EscalationDebug("escalation skipped: no remote extractor")
		return p
	}

	key := ontology.Normalize(rawText)
	if cached, ok := g.cache.Get(key); ok {
		logging.EscalationDebug("escalation cache hit: %q", key)
		return Merge(p, cached)
	}

	timer := logging.StartTimer(logging.CategoryEscalation, "remote extraction")
	res, err := g.fetch(ctx, key, rawText, p)
	timer.StopWithThreshold(g.timeout / 2)
	if err != nil {
		logging.EscalationWarn("escalation failed, keeping rule parse: %v", err)
		return p
	}
	return Merge(p, res)
}

// fetch runs one remote extraction per key at a time. The shared call is
// detached from the caller's cancellation so one impatient caller cannot fail
// the others; each caller still waits at most until its own context ends.
func (g *Gate) fetch(ctx context.Context, key, rawText string, rule types.ParseResult) (RemoteResult, error) {
	ch := g.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		res, err := g.remote.Extract(callCtx, rawText, rule)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("remote extractor returned no result")
		}
		if err := res.Validate(); err != nil {
			return nil, err
		}
		g.cache.Add(key, *res)
		return *res, nil
	})

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	select {
	case r := <-ch:
		if r.Err != nil {
			return RemoteResult{}, r.Err
		}
		return r.Val.(RemoteResult), nil
	case <-waitCtx.Done():
		return RemoteResult{}, fmt.Errorf("remote extraction: %w", waitCtx.Err())
	}
}

// Merge folds a remote result into the rule parse: remote slots only fill
// gaps, the higher confidence wins, and the remote intent is adopted only when
// the rules found none.
func Merge(p types.ParseResult, r RemoteResult) types.ParseResult {
	out := p.Clone()
	if out.Intent == types.IntentOther && r.Intent != "" {
		out.Intent = r.Intent
	}
	for key, v := range r.Slots {
		if out.Slots.Has(key) || !types.AllowsSlot(out.Intent, key) {
			continue
		}
		out.Slots.Set(key, v)
	}
	if r.Confidence > out.Confidence {
		out.Confidence = r.Confidence
	}
	out.Source = types.SourceEscalated
	out.Recompute()
	return out
}

// CacheLen reports the number of cached escalation results.
func (g *Gate) CacheLen() int {
	return g.cache.Len()
}
