// Package fsstore keeps ConfigurationQueues in Cloud Firestore, one document
// per configuration under /bisection/<instance>/queues.
package fsstore

import (
	"context"
	"net/url"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/scheduler/store"
	"go.skia.org/bisection/go/metrics2"
	"go.skia.org/bisection/go/skerr"
	"golang.org/x/oauth2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	appName = "bisection"

	queuesCollectionName = "queues"

	updateTimeout = 10 * time.Second
)

// Store implements store.Store.
type Store struct {
	client *firestore.Client
	queues *firestore.CollectionRef

	updateCounter         metrics2.Counter
	updateConflictCounter metrics2.Counter
}

// New connects to Firestore in project and returns a Store whose documents
// live under instance. A nil ts uses the default credentials, or none when
// FIRESTORE_EMULATOR_HOST is set.
func New(ctx context.Context, project, instance string, ts oauth2.TokenSource) (*Store, error) {
	if project == "" {
		return nil, skerr.Fmt("project is required")
	}
	var opts []option.ClientOption
	if ts != nil {
		opts = append(opts, option.WithTokenSource(ts))
	}
	client, err := firestore.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, skerr.Wrapf(err, "creating firestore client")
	}
	return NewFromClient(client, instance)
}

// NewFromClient returns a Store using an existing client.
func NewFromClient(client *firestore.Client, instance string) (*Store, error) {
	if instance == "" {
		return nil, skerr.Fmt("instance is required")
	}
	return &Store{
		client:                client,
		queues:                client.Collection(appName).Doc(instance).Collection(queuesCollectionName),
		updateCounter:         metrics2.GetCounter("bisection_fsstore_update", map[string]string{"instance": instance}),
		updateConflictCounter: metrics2.GetCounter("bisection_fsstore_update_conflict", map[string]string{"instance": instance}),
	}, nil
}

// Configurations may contain '/', which is not allowed in a document ID.
func (s *Store) docRef(configuration string) *firestore.DocumentRef {
	return s.queues.Doc(url.PathEscape(configuration))
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, configuration string, fn store.UpdateCallback) error {
	s.updateCounter.Inc(1)
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	docRef := s.docRef(configuration)
	var cbErr error
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		q := queue.New(configuration)
		if snap, err := tx.Get(docRef); err == nil {
			if err := snap.DataTo(q); err != nil {
				return skerr.Wrapf(err, "decoding queue %q", configuration)
			}
		} else if st, ok := status.FromError(err); !ok || st.Code() != codes.NotFound {
			return skerr.Wrapf(err, "reading queue %q", configuration)
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
		return tx.Set(docRef, q)
	}, firestore.MaxAttempts(1))
	if cbErr != nil {
		return cbErr
	}
	if status.Code(err) == codes.Aborted {
		s.updateConflictCounter.Inc(1)
		return skerr.Wrapf(store.ErrConflict, "queue %q: %s", configuration, err)
	}
	if err != nil {
		return skerr.Wrapf(err, "updating queue %q", configuration)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, configuration string) (*queue.ConfigurationQueue, error) {
	snap, err := s.docRef(configuration).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, skerr.Wrapf(store.ErrNotFound, "configuration %q", configuration)
	}
	if err != nil {
		return nil, skerr.Wrapf(err, "reading queue %q", configuration)
	}
	q := queue.New(configuration)
	if err := snap.DataTo(q); err != nil {
		return nil, skerr.Wrapf(err, "decoding queue %q", configuration)
	}
	return q, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]string, error) {
	iter := s.queues.Select("configuration").Documents(ctx)
	defer iter.Stop()
	rv := []string{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, skerr.Wrapf(err, "listing queues")
		}
		var q queue.ConfigurationQueue
		if err := snap.DataTo(&q); err != nil {
			return nil, skerr.Wrapf(err, "decoding queue %q", snap.Ref.ID)
		}
		rv = append(rv, q.Configuration)
	}
	sort.Strings(rv)
	return rv, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ store.Store = (*Store)(nil)
