// Package store persists ConfigurationQueues with atomic read-modify-write.
package store

import (
	"context"
	"errors"

	"go.skia.org/bisection/bisection/go/scheduler/queue"
)

// ErrConflict is returned by Update when a concurrent writer changed the
// queue between the read and the write. The caller may retry.
var ErrConflict = errors.New("transaction conflict")

// ErrNotFound is returned by Get for a configuration without a queue.
var ErrNotFound = errors.New("queue not found")

// IsConflict returns true if err is or wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// UpdateCallback mutates q in place and returns true if it should be
// written. It may be called more than once per Update by stores which retry
// internally, so it must not have side effects beyond q and its own results.
type UpdateCallback func(q *queue.ConfigurationQueue) (bool, error)

// Store is implemented by every queue backend.
type Store interface {
	// Update reads the queue for configuration, or a new empty queue if
	// there is none, and passes it to fn. If fn returns true the queue is
	// written with its Version incremented, atomically with respect to
	// other Updates of the same configuration.
	Update(ctx context.Context, configuration string, fn UpdateCallback) error

	// Get returns the queue for configuration or ErrNotFound.
	Get(ctx context.Context, configuration string) (*queue.ConfigurationQueue, error)

	// List returns every configuration with a stored queue, sorted.
	List(ctx context.Context) ([]string, error)
}
