// Package storetest holds tests shared by every store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/scheduler/store"
)

var t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// Options selects the optional parts of the suite.
type Options struct {
	// Conflicts is set for stores where an Update nested inside another
	// Update of the same configuration makes the outer one fail with
	// store.ErrConflict. Stores that lock the row for the duration of the
	// transaction would deadlock instead.
	Conflicts bool
}

// Run runs the shared suite against a freshly created, empty Store.
func Run(t *testing.T, s store.Store, opts Options) {
	t.Run("Get_NoQueue_ReturnsNotFound", func(t *testing.T) {
		testGetNoQueue(t, s)
	})
	t.Run("Update_CallbackDeclinesWrite_NothingStored", func(t *testing.T) {
		testUpdateNoWrite(t, s)
	})
	t.Run("Update_WritesQueue_IncrementsVersion", func(t *testing.T) {
		testUpdateWrites(t, s)
	})
	t.Run("Update_CallbackError_ReturnedAndNotStored", func(t *testing.T) {
		testUpdateCallbackError(t, s)
	})
	t.Run("List_ReturnsSortedConfigurations", func(t *testing.T) {
		testList(t, s)
	})
	if opts.Conflicts {
		t.Run("Update_ConcurrentWriter_ReturnsConflict", func(t *testing.T) {
			testConflict(t, s)
		})
	}
}

func testGetNoQueue(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), "no-such-configuration")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateNoWrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	called := false
	err := s.Update(ctx, "read-only", func(q *queue.ConfigurationQueue) (bool, error) {
		called = true
		assert.Equal(t, "read-only", q.Configuration)
		assert.Empty(t, q.Elements)
		return false, nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	_, err = s.Get(ctx, "read-only")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateWrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	const config = "linux-perf"
	err := s.Update(ctx, config, func(q *queue.ConfigurationQueue) (bool, error) {
		q.Enqueue("job1", t0)
		q.Enqueue("job2", t0.Add(time.Minute))
		return true, nil
	})
	require.NoError(t, err)

	err = s.Update(ctx, config, func(q *queue.ConfigurationQueue) (bool, error) {
		require.Len(t, q.Elements, 2)
		_, ok, changed := q.Pick()
		return changed && ok, nil
	})
	require.NoError(t, err)

	q, err := s.Get(ctx, config)
	require.NoError(t, err)
	assert.Equal(t, config, q.Configuration)
	assert.Equal(t, int64(2), q.Version)
	require.Len(t, q.Elements, 2)
	assert.Equal(t, "job1", q.Elements[0].JobID)
	assert.Equal(t, queue.Running, q.Elements[0].Status)
	assert.True(t, t0.Equal(q.Elements[0].EnqueueTime))
	assert.Equal(t, "job2", q.Elements[1].JobID)
	assert.Equal(t, queue.Queued, q.Elements[1].Status)

	err = s.Update(ctx, config, func(q *queue.ConfigurationQueue) (bool, error) {
		return q.Complete("job1", t0.Add(10*time.Minute), queue.DefaultWaitTimeSamples), nil
	})
	require.NoError(t, err)

	q, err = s.Get(ctx, config)
	require.NoError(t, err)
	require.Len(t, q.WaitTimeSamples, 1)
	assert.Equal(t, 10*time.Minute, q.WaitTimeSamples[0].Duration())
}

func testUpdateCallbackError(t *testing.T, s store.Store) {
	ctx := context.Background()
	myErr := errors.New("callback failed")
	err := s.Update(ctx, "erroring", func(q *queue.ConfigurationQueue) (bool, error) {
		q.Enqueue("job1", t0)
		return true, myErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, myErr)

	_, err = s.Get(ctx, "erroring")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, config := range []string{"list-c", "list-a", "list-b"} {
		require.NoError(t, s.Update(ctx, config, func(q *queue.ConfigurationQueue) (bool, error) {
			q.Enqueue("job", t0)
			return true, nil
		}))
	}
	configs, err := s.List(ctx)
	require.NoError(t, err)

	var listed []string
	for _, c := range configs {
		if c == "list-a" || c == "list-b" || c == "list-c" {
			listed = append(listed, c)
		}
	}
	assert.Equal(t, []string{"list-a", "list-b", "list-c"}, listed)
	assert.IsNonDecreasing(t, configs)
}

func testConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	const config = "contended"
	err := s.Update(ctx, config, func(q *queue.ConfigurationQueue) (bool, error) {
		err := s.Update(ctx, config, func(inner *queue.ConfigurationQueue) (bool, error) {
			inner.Enqueue("inner", t0)
			return true, nil
		})
		require.NoError(t, err)
		q.Enqueue("outer", t0)
		return true, nil
	})
	require.Error(t, err)
	assert.True(t, store.IsConflict(err))

	q, err := s.Get(ctx, config)
	require.NoError(t, err)
	require.Len(t, q.Elements, 1)
	assert.Equal(t, "inner", q.Elements[0].JobID)
}
