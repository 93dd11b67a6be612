package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gutcheck/internal/clock"
	"gutcheck/internal/logging"
	"gutcheck/internal/types"
)

type contextKey struct {
	user string
	typ  string
}

type storedContext struct {
	raw       []byte
	expiresAt time.Time
}

// LocalStore is the in-process Store and PhraseStore. Values are kept as
// JSON so it behaves like the Redis store.
type LocalStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	contexts map[contextKey]storedContext
	recent   map[string][][]byte
	phrases  map[string]map[string][]byte

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewLocalStore creates an empty store.
func NewLocalStore(c clock.Clock) *LocalStore {
	if c == nil {
		c = clock.Real{}
	}
	return &LocalStore{
		clock:    c,
		contexts: make(map[contextKey]storedContext),
		recent:   make(map[string][][]byte),
		phrases:  make(map[string]map[string][]byte),
	}
}

// GetContext returns the stored context, or nil once its TTL has passed.
func (s *LocalStore) GetContext(_ context.Context, userID, ctxType string) (*PendingContext, error) {
	s.mu.Lock()
	sc, ok := s.contexts[contextKey{userID, ctxType}]
	if ok && !sc.expiresAt.IsZero() && !s.clock.Now().Before(sc.expiresAt) {
		delete(s.contexts, contextKey{userID, ctxType})
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decodeContext(sc.raw)
}

// PutContext stores pc for ttl. A zero ttl never expires.
func (s *LocalStore) PutContext(_ context.Context, userID string, pc PendingContext, ttl time.Duration) error {
	raw, err := encodeContext(pc)
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}
	sc := storedContext{raw: raw}
	if ttl > 0 {
		sc.expiresAt = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.contexts[contextKey{userID, pc.Type}] = sc
	s.mu.Unlock()
	return nil
}

// DeleteContext removes one context.
func (s *LocalStore) DeleteContext(_ context.Context, userID, ctxType string) error {
	s.mu.Lock()
	delete(s.contexts, contextKey{userID, ctxType})
	s.mu.Unlock()
	return nil
}

// DeleteContexts removes every context of the user.
func (s *LocalStore) DeleteContexts(_ context.Context, userID string) error {
	s.mu.Lock()
	for k := range s.contexts {
		if k.user == userID {
			delete(s.contexts, k)
		}
	}
	s.mu.Unlock()
	return nil
}

// PushRecent prepends e and trims the ring to limit.
func (s *LocalStore) PushRecent(_ context.Context, userID string, e types.EntrySummary, limit int) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ring := append([][]byte{raw}, s.recent[userID]...)
	if limit > 0 && len(ring) > limit {
		ring = ring[:limit]
	}
	s.recent[userID] = ring
	return nil
}

// Recent returns up to n entries, newest first. Undecodable entries are
// skipped.
func (s *LocalStore) Recent(_ context.Context, userID string, n int) ([]types.EntrySummary, error) {
	s.mu.Lock()
	ring := s.recent[userID]
	if n <= 0 || n > len(ring) {
		n = len(ring)
	}
	raws := make([][]byte, n)
	copy(raws, ring[:n])
	s.mu.Unlock()

	out := make([]types.EntrySummary, 0, n)
	for _, raw := range raws {
		var e types.EntrySummary
		if err := json.Unmarshal(raw, &e); err != nil {
			logging.MemoryWarn("skipping malformed recent entry for user=%s: %v", userID, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SavePhrase stores or replaces a learned phrase.
func (s *LocalStore) SavePhrase(_ context.Context, userID, normalized string, p LearnedPhrase) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode phrase: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phrases[userID] == nil {
		s.phrases[userID] = make(map[string][]byte)
	}
	s.phrases[userID][normalized] = raw
	return nil
}

// Phrase returns a learned phrase or nil.
func (s *LocalStore) Phrase(_ context.Context, userID, normalized string) (*LearnedPhrase, error) {
	s.mu.Lock()
	raw, ok := s.phrases[userID][normalized]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var p LearnedPhrase
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}

// Sweep drops expired contexts and returns how many were removed.
func (s *LocalStore) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, sc := range s.contexts {
		if !sc.expiresAt.IsZero() && !now.Before(sc.expiresAt) {
			delete(s.contexts, k)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired contexts every interval until Stop or ctx ends.
func (s *LocalStore) StartJanitor(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.stopCh, s.doneCh = stopCh, doneCh
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					logging.MemoryDebug("janitor removed %d expired contexts", n)
				}
			}
		}
	}()
}

// Stop stops the janitor and waits for it to exit.
func (s *LocalStore) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()
	close(stopCh)
	<-doneCh
}
