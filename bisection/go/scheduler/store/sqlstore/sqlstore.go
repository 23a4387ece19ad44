// Package sqlstore keeps ConfigurationQueues in CockroachDB, one row per
// configuration with the queue stored as JSONB.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/scheduler/store"
	"go.skia.org/bisection/go/skerr"
)

// Schema creates the table used by Store.
const Schema = `CREATE TABLE IF NOT EXISTS ConfigurationQueues (
  configuration TEXT PRIMARY KEY,
  version INT8 NOT NULL,
  queue JSONB NOT NULL
);`

// serializationFailure is the SQLSTATE for a transaction that lost a
// serializable conflict and was not retried.
const serializationFailure = "40001"

// Store implements store.Store.
type Store struct {
	db *pgxpool.Pool
}

// New returns a Store using db. The table in Schema must already exist.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Connect opens a pool to connectionString and makes sure the schema exists.
func Connect(ctx context.Context, connectionString string, maxConns int32) (*pgxpool.Pool, error) {
	conf, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, skerr.Wrapf(err, "parsing connection string")
	}
	if maxConns > 0 {
		conf.MaxConns = maxConns
	}
	db, err := pgxpool.ConnectConfig(ctx, conf)
	if err != nil {
		return nil, skerr.Wrapf(err, "connecting to database")
	}
	if _, err := db.Exec(ctx, Schema); err != nil {
		db.Close()
		return nil, skerr.Wrapf(err, "creating schema")
	}
	return db, nil
}

// Update implements store.Store. The row is locked with SELECT ... FOR
// UPDATE so concurrent Updates of one configuration are serialized by the
// database rather than reported as conflicts.
func (s *Store) Update(ctx context.Context, configuration string, fn store.UpdateCallback) error {
	var cbErr error
	err := crdbpgx.ExecuteTx(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		cbErr = nil
		q := queue.New(configuration)
		var b []byte
		err := tx.QueryRow(ctx, `SELECT queue FROM ConfigurationQueues WHERE configuration = $1 FOR UPDATE`, configuration).Scan(&b)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err // Don't wrap - crdbpgx might retry
		}
		if err == nil {
			if err := json.Unmarshal(b, q); err != nil {
				return skerr.Wrapf(err, "decoding queue %q", configuration)
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
			return skerr.Wrapf(err, "encoding queue %q", configuration)
		}
		_, err = tx.Exec(ctx, `
INSERT INTO ConfigurationQueues (configuration, version, queue) VALUES ($1, $2, $3)
ON CONFLICT (configuration) DO UPDATE SET version = excluded.version, queue = excluded.queue`,
			configuration, q.Version, b)
		return err // Don't wrap - crdbpgx might retry
	})
	if cbErr != nil {
		return cbErr
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
		return skerr.Wrapf(store.ErrConflict, "queue %q: %s", configuration, pgErr.Message)
	}
	if err != nil {
		return skerr.Wrapf(err, "updating queue %q", configuration)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, configuration string) (*queue.ConfigurationQueue, error) {
	var b []byte
	err := s.db.QueryRow(ctx, `SELECT queue FROM ConfigurationQueues WHERE configuration = $1`, configuration).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, skerr.Wrapf(store.ErrNotFound, "configuration %q", configuration)
	}
	if err != nil {
		return nil, skerr.Wrapf(err, "reading queue %q", configuration)
	}
	q := queue.New(configuration)
	if err := json.Unmarshal(b, q); err != nil {
		return nil, skerr.Wrapf(err, "decoding queue %q", configuration)
	}
	return q, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT configuration FROM ConfigurationQueues ORDER BY configuration ASC`)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	defer rows.Close()
	rv := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, skerr.Wrap(err)
		}
		rv = append(rv, c)
	}
	return rv, skerr.Wrap(rows.Err())
}

var _ store.Store = (*Store)(nil)
