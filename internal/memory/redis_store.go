package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gutcheck/internal/logging"
	"gutcheck/internal/types"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "gutcheck"

// RedisStore is a Store and PhraseStore on Redis. Context expiry uses native
// key TTLs.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis server at url
// (redis://[:password@]host:port/db).
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", opts.Addr, err)
	}
	logging.Memory("context store on redis %s db=%d", opts.Addr, opts.DB)
	return &RedisStore{client: client, prefix: redisPrefix}, nil
}

// NewRedisStoreFromClient wraps an existing client. prefix namespaces keys.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) contextKey(userID, ctxType string) string {
	return s.prefix + ":ctx:" + userID + ":" + ctxType
}

func (s *RedisStore) recentKey(userID string) string {
	return s.prefix + ":recent:" + userID
}

func (s *RedisStore) phraseKey(userID string) string {
	return s.prefix + ":phrases:" + userID
}

// GetContext returns the context or nil when the key is absent or expired.
func (s *RedisStore) GetContext(ctx context.Context, userID, ctxType string) (*PendingContext, error) {
	raw, err := s.client.Get(ctx, s.contextKey(userID, ctxType)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get context: %w", err)
	}
	return decodeContext(raw)
}

// PutContext stores pc with ttl. A zero ttl never expires.
func (s *RedisStore) PutContext(ctx context.Context, userID string, pc PendingContext, ttl time.Duration) error {
	raw, err := encodeContext(pc)
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}
	if err := s.client.Set(ctx, s.contextKey(userID, pc.Type), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set context: %w", err)
	}
	return nil
}

// DeleteContext removes one context.
func (s *RedisStore) DeleteContext(ctx context.Context, userID, ctxType string) error {
	if err := s.client.Del(ctx, s.contextKey(userID, ctxType)).Err(); err != nil {
		return fmt.Errorf("redis delete context: %w", err)
	}
	return nil
}

// DeleteContexts removes every context type of the user.
func (s *RedisStore) DeleteContexts(ctx context.Context, userID string) error {
	keys := make([]string, 0, len(ContextTypes))
	for _, t := range ContextTypes {
		keys = append(keys, s.contextKey(userID, t))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete contexts: %w", err)
	}
	return nil
}

// PushRecent prepends e and trims the list to limit in one transaction.
func (s *RedisStore) PushRecent(ctx context.Context, userID string, e types.EntrySummary, limit int) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	key := s.recentKey(userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, raw)
		if limit > 0 {
			pipe.LTrim(ctx, key, 0, int64(limit-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push recent: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *RedisStore) Recent(ctx context.Context, userID string, n int) ([]types.EntrySummary, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	raws, err := s.client.LRange(ctx, s.recentKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent: %w", err)
	}
	out := make([]types.EntrySummary, 0, len(raws))
	for _, raw := range raws {
		var e types.EntrySummary
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			logging.MemoryWarn("skipping malformed recent entry for user=%s: %v", userID, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SavePhrase stores or replaces a learned phrase.
func (s *RedisStore) SavePhrase(ctx context.Context, userID, normalized string, p LearnedPhrase) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode phrase: %w", err)
	}
	if err := s.client.HSet(ctx, s.phraseKey(userID), normalized, raw).Err(); err != nil {
		return fmt.Errorf("redis save phrase: %w", err)
	}
	return nil
}

// Phrase returns a learned phrase or nil.
func (s *RedisStore) Phrase(ctx context.Context, userID, normalized string) (*LearnedPhrase, error) {
	raw, err := s.client.HGet(ctx, s.phraseKey(userID), normalized).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get phrase: %w", err)
	}
	var p LearnedPhrase
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &p, nil
}
