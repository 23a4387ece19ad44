// Package redisstore keeps ConfigurationQueues in Redis as JSON values.
// Updates use WATCH/MULTI so a concurrent write aborts the transaction.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/scheduler/store"
	"go.skia.org/bisection/go/skerr"
)

// Store implements store.Store.
type Store struct {
	client *redis.Client

	// prefix namespaces every key written by this Store.
	prefix string
}

// New returns a Store that writes keys under prefix.
func New(client *redis.Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
	}
}

func (s *Store) queueKey(configuration string) string {
	return s.prefix + ":queue:" + configuration
}

func (s *Store) indexKey() string {
	return s.prefix + ":configurations"
}

func decode(b []byte) (*queue.ConfigurationQueue, error) {
	var q queue.ConfigurationQueue
	if err := json.Unmarshal(b, &q); err != nil {
		return nil, skerr.Wrapf(err, "decoding queue")
	}
	return &q, nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, configuration string, fn store.UpdateCallback) error {
	key := s.queueKey(configuration)
	var cbErr error
	txf := func(tx *redis.Tx) error {
		q := queue.New(configuration)
		b, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if q, err = decode(b); err != nil {
				return err
			}
		}
		write, err := fn(q)
		if err != nil {
			cbErr = err
			return err
		}
		if !write {
			return nil
		}
		q.Version++
		b, err = json.Marshal(q)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.SAdd(ctx, s.indexKey(), configuration)
			return nil
		})
		return err
	}
	err := s.client.Watch(ctx, txf, key)
	if cbErr != nil {
		return cbErr
	}
	if errors.Is(err, redis.TxFailedErr) {
		return skerr.Wrapf(store.ErrConflict, "queue %q", configuration)
	}
	if err != nil {
		return skerr.Wrapf(err, "updating queue %q", configuration)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, configuration string) (*queue.ConfigurationQueue, error) {
	b, err := s.client.Get(ctx, s.queueKey(configuration)).Bytes()
	if err == redis.Nil {
		return nil, skerr.Wrapf(store.ErrNotFound, "configuration %q", configuration)
	}
	if err != nil {
		return nil, skerr.Wrapf(err, "reading queue %q", configuration)
	}
	return decode(b)
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rv, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, skerr.Wrapf(err, "listing configurations")
	}
	sort.Strings(rv)
	return rv, nil
}

var _ store.Store = (*Store)(nil)
