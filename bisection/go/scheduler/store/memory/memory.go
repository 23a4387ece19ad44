// Package memory is an in-process Store with optimistic concurrency. Queues
// are copied on every read so callers never share state with the store.
package memory

import (
	"context"
	"sort"
	"sync"

	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/scheduler/store"
	"go.skia.org/bisection/go/skerr"
)

// Store implements store.Store.
type Store struct {
	mtx    sync.Mutex
	queues map[string]*queue.ConfigurationQueue
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		queues: map[string]*queue.ConfigurationQueue{},
	}
}

func (s *Store) load(configuration string) *queue.ConfigurationQueue {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if q, ok := s.queues[configuration]; ok {
		return q.Copy()
	}
	return queue.New(configuration)
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, configuration string, fn store.UpdateCallback) error {
	q := s.load(configuration)
	readVersion := q.Version
	write, err := fn(q)
	if err != nil || !write {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	current := int64(0)
	if existing, ok := s.queues[configuration]; ok {
		current = existing.Version
	}
	if current != readVersion {
		return skerr.Wrapf(store.ErrConflict, "queue %q is at version %d, read %d", configuration, current, readVersion)
	}
	q.Version = readVersion + 1
	s.queues[configuration] = q.Copy()
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, configuration string) (*queue.ConfigurationQueue, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	q, ok := s.queues[configuration]
	if !ok {
		return nil, skerr.Wrapf(store.ErrNotFound, "configuration %q", configuration)
	}
	return q.Copy(), nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	rv := make([]string, 0, len(s.queues))
	for k := range s.queues {
		rv = append(rv, k)
	}
	sort.Strings(rv)
	return rv, nil
}

var _ store.Store = (*Store)(nil)
