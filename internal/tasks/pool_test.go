package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// ants starts the purge and ticktock goroutines of its default pool at init.
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

func newPool(t *testing.T, size int) *Pool {
	t.Helper()
	p, err := New(size, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(time.Second) })
	return p
}

func TestSubmit_RunsTasks(t *testing.T) {
	p := newPool(t, 2)
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit("count", func(context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	p.Wait()
	assert.Equal(t, int32(10), n.Load())
}

func TestSubmit_FailuresAreContained(t *testing.T) {
	p := newPool(t, 1)
	var after atomic.Bool

	require.NoError(t, p.Submit("fails", func(context.Context) error {
		return errors.New("boom")
	}))
	require.NoError(t, p.Submit("panics", func(context.Context) error {
		panic("bad task")
	}))
	require.NoError(t, p.Submit("after", func(context.Context) error {
		after.Store(true)
		return nil
	}))
	p.Wait()
	assert.True(t, after.Load(), "pool keeps working after a failing task")
}

func TestSubmit_TaskContextHasDeadline(t *testing.T) {
	p := newPool(t, 1)
	var hasDeadline atomic.Bool
	require.NoError(t, p.Submit("deadline", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hasDeadline.Store(ok)
		return nil
	}))
	p.Wait()
	assert.True(t, hasDeadline.Load())
}

func TestClose_CancelsSlowTasks(t *testing.T) {
	p, err := New(1, time.Minute)
	require.NoError(t, err)

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, p.Submit("slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	<-started

	require.NoError(t, p.Close(50*time.Millisecond))
	assert.True(t, cancelled.Load())
	assert.ErrorIs(t, p.Submit("late", func(context.Context) error { return nil }), ErrClosed)
	assert.NoError(t, p.Close(time.Second), "closing twice is a no-op")
}

func TestClose_AbandonsTasksIgnoringCancel(t *testing.T) {
	p, err := New(1, time.Minute)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, p.Submit("stubborn", func(context.Context) error {
		defer close(finished)
		close(started)
		<-release
		return nil
	}))
	<-started

	closed := make(chan error, 1)
	go func() { closed <- p.Close(20 * time.Millisecond) }()
	select {
	case err := <-closed:
		assert.ErrorIs(t, err, ErrAbandoned)
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on a task that ignores its context")
	}

	close(release)
	<-finished
	p.Wait()
}
