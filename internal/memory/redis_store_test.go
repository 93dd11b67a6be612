package memory

import (
	"context"
	"os"
	"testing"
	"time"

	"gutcheck/internal/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a live server only when REDIS_URL is set.
func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := NewRedisStore(ctx, url)
	require.NoError(t, err)
	s.prefix = "gutcheck-test-" + uuid.NewString()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStore_Contexts(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	pc, err := s.GetContext(ctx, "u1", TypeFollowUp)
	require.NoError(t, err)
	assert.Nil(t, pc)

	require.NoError(t, s.PutContext(ctx, "u1", PendingContext{
		Type:    TypeFollowUp,
		Payload: map[string]any{types.SlotLinkedItem: "pizza"},
	}, time.Minute))
	pc, err = s.GetContext(ctx, "u1", TypeFollowUp)
	require.NoError(t, err)
	require.NotNil(t, pc)
	assert.Equal(t, "pizza", pc.String(types.SlotLinkedItem))

	require.NoError(t, s.DeleteContexts(ctx, "u1"))
	pc, err = s.GetContext(ctx, "u1", TypeFollowUp)
	require.NoError(t, err)
	assert.Nil(t, pc)
}

func TestRedisStore_RecentAndPhrases(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	for _, item := range []string{"a", "b", "c"} {
		require.NoError(t, s.PushRecent(ctx, "u1", types.EntrySummary{Intent: types.IntentFood, Item: item}, 2))
	}
	got, err := s.Recent(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Item)

	require.NoError(t, s.SavePhrase(ctx, "u1", "my usual", LearnedPhrase{Intent: types.IntentFood}))
	p, err := s.Phrase(ctx, "u1", "my usual")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, types.IntentFood, p.Intent)
}
