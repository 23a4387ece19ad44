package cli

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/config"
	"go.skia.org/bisection/bisection/go/manifest"
	"go.skia.org/bisection/bisection/go/midpoint"
	"go.skia.org/bisection/bisection/go/repos"
	"go.skia.org/bisection/bisection/go/scheduler"
	"go.skia.org/bisection/bisection/go/scheduler/store"
	"go.skia.org/bisection/bisection/go/scheduler/store/fsstore"
	"go.skia.org/bisection/bisection/go/scheduler/store/memory"
	"go.skia.org/bisection/bisection/go/scheduler/store/redisstore"
	"go.skia.org/bisection/bisection/go/scheduler/store/sqlstore"
	"go.skia.org/bisection/bisection/go/sourcecontrol/gitiles"
	"go.skia.org/bisection/bisection/go/sourcecontrol/local"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/sklog"
)

// env holds everything built from an InstanceConfig.
type env struct {
	cfg       *config.InstanceConfig
	registry  *repos.Registry
	sc        change.SourceControl
	handler   *midpoint.Handler
	scheduler *scheduler.Scheduler

	closers []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func newSourceControl(ctx context.Context, cfg config.SourceControlConfig, registry *repos.Registry) (change.SourceControl, error) {
	switch cfg.Kind {
	case config.SourceControlLocal:
		return local.Open(registry, cfg.LocalCheckouts)
	case config.SourceControlGitiles:
		if cfg.Authenticated {
			return gitiles.NewAuthenticated(ctx, registry)
		}
		return gitiles.New(registry, nil), nil
	}
	return nil, skerr.Fmt("unknown source control kind %q", cfg.Kind)
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Kind {
	case config.StoreMemory:
		sklog.Warning("Using an in-memory queue store; queues are lost when the process exits.")
		return memory.New(), func() {}, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, skerr.Wrapf(err, "connecting to redis at %s", cfg.RedisAddr)
		}
		return redisstore.New(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil
	case config.StoreFirestore:
		s, err := fsstore.New(ctx, cfg.FirestoreProject, cfg.FirestoreInstance, nil)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.StoreSQL:
		db, err := sqlstore.Connect(ctx, cfg.SQLConnection, 0)
		if err != nil {
			return nil, nil, err
		}
		return sqlstore.New(db), db.Close, nil
	}
	return nil, nil, skerr.Fmt("unknown store kind %q", cfg.Kind)
}

func newEnv(ctx context.Context, cfg *config.InstanceConfig) (*env, error) {
	registry, err := repos.New(cfg.Repositories)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	sc, err := newSourceControl(ctx, cfg.SourceControl, registry)
	if err != nil {
		return nil, skerr.Wrapf(err, "creating source control")
	}
	reader, err := manifest.NewReader(sc, registry, cfg.ManifestCacheSize)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	st, closeStore, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, skerr.Wrapf(err, "creating %s store", cfg.Store.Kind)
	}
	return &env{
		cfg:       cfg,
		registry:  registry,
		sc:        sc,
		handler:   midpoint.New(sc, reader),
		scheduler: scheduler.New(st, cfg.Scheduler),
		closers:   []func(){closeStore},
	}, nil
}
