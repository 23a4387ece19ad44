package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/scheduler/store/storetest"
)

func setupForTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return New(client, "bisect-test"), mr
}

func TestStore_SharedSuite(t *testing.T) {
	s, _ := setupForTest(t)
	storetest.Run(t, s, storetest.Options{Conflicts: true})
}

func TestUpdate_KeysArePrefixed(t *testing.T) {
	s, mr := setupForTest(t)
	require.NoError(t, s.Update(context.Background(), "mac", func(q *queue.ConfigurationQueue) (bool, error) {
		q.Enqueue("job1", time.Unix(100, 0).UTC())
		return true, nil
	}))

	assert.True(t, mr.Exists("bisect-test:queue:mac"))
	members, err := mr.Members("bisect-test:configurations")
	require.NoError(t, err)
	assert.Equal(t, []string{"mac"}, members)
}

func TestGet_CorruptValue_ReturnsError(t *testing.T) {
	s, mr := setupForTest(t)
	require.NoError(t, mr.Set("bisect-test:queue:mac", "{not json"))

	_, err := s.Get(context.Background(), "mac")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding queue")
}
