// Package config holds the instance configuration of the bisection service.
package config

import (
	"os"

	"github.com/flynn/json5"
	"go.skia.org/bisection/bisection/go/manifest"
	"go.skia.org/bisection/bisection/go/scheduler"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/sweeper"
	"go.skia.org/bisection/go/skerr"
)

// SourceControlKind selects the source-control backend.
type SourceControlKind string

const (
	SourceControlGitiles SourceControlKind = "gitiles"
	SourceControlLocal   SourceControlKind = "local"
)

// StoreKind selects the queue store.
type StoreKind string

const (
	StoreMemory    StoreKind = "memory"
	StoreRedis     StoreKind = "redis"
	StoreFirestore StoreKind = "firestore"
	StoreSQL       StoreKind = "sql"
)

// SourceControlConfig configures commit and file lookups.
type SourceControlConfig struct {
	Kind SourceControlKind `json:"kind"`

	// Authenticated makes Gitiles requests with the default Google
	// credentials.
	Authenticated bool `json:"authenticated,omitempty"`

	// LocalCheckouts maps repository names to paths of git checkouts. Only
	// used by SourceControlLocal.
	LocalCheckouts map[string]string `json:"local_checkouts,omitempty"`
}

// StoreConfig configures where queues are kept.
type StoreConfig struct {
	Kind StoreKind `json:"kind"`

	RedisAddr   string `json:"redis_addr,omitempty"`
	RedisPrefix string `json:"redis_prefix,omitempty"`

	FirestoreProject  string `json:"firestore_project,omitempty"`
	FirestoreInstance string `json:"firestore_instance,omitempty"`

	// SQLConnection is a postgres connection string, e.g.
	// postgresql://root@localhost:26257/bisection?sslmode=disable
	SQLConnection string `json:"sql_connection,omitempty"`
}

// InstanceConfig is the top level configuration.
type InstanceConfig struct {
	// Repositories maps repository names to URLs.
	Repositories map[string]string `json:"repositories"`

	SourceControl SourceControlConfig `json:"source_control"`
	Store         StoreConfig         `json:"store"`
	Scheduler     scheduler.Options   `json:"scheduler"`

	ManifestCacheSize int    `json:"manifest_cache_size,omitempty"`
	SweepSchedule     string `json:"sweep_schedule,omitempty"`
}

// Default returns an InstanceConfig with every default filled in and an
// in-memory store.
func Default() *InstanceConfig {
	c := &InstanceConfig{
		Repositories: map[string]string{},
	}
	c.setDefaults()
	return c
}

func (c *InstanceConfig) setDefaults() {
	if c.SourceControl.Kind == "" {
		c.SourceControl.Kind = SourceControlGitiles
	}
	if c.Store.Kind == "" {
		c.Store.Kind = StoreMemory
	}
	if c.Store.Kind == StoreRedis && c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = "bisection"
	}
	if c.Store.Kind == StoreFirestore && c.Store.FirestoreInstance == "" {
		c.Store.FirestoreInstance = "default"
	}
	if c.Scheduler.MaxConflictRetries <= 0 {
		c.Scheduler.MaxConflictRetries = scheduler.DefaultMaxConflictRetries
	}
	if c.Scheduler.WaitTimeSamples <= 0 {
		c.Scheduler.WaitTimeSamples = queue.DefaultWaitTimeSamples
	}
	if c.ManifestCacheSize <= 0 {
		c.ManifestCacheSize = manifest.DefaultCacheSize
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = sweeper.DefaultSchedule
	}
}

// Validate returns an error describing the first problem with c.
func (c *InstanceConfig) Validate() error {
	for name, url := range c.Repositories {
		if name == "" || url == "" {
			return skerr.Fmt("repository %q has an empty name or url", name)
		}
	}
	switch c.SourceControl.Kind {
	case SourceControlGitiles:
	case SourceControlLocal:
		for name := range c.SourceControl.LocalCheckouts {
			if _, ok := c.Repositories[name]; !ok {
				return skerr.Fmt("local checkout for unknown repository %q", name)
			}
		}
	default:
		return skerr.Fmt("unknown source_control kind %q", c.SourceControl.Kind)
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return skerr.Fmt("redis store requires redis_addr")
		}
	case StoreFirestore:
		if c.Store.FirestoreProject == "" {
			return skerr.Fmt("firestore store requires firestore_project")
		}
	case StoreSQL:
		if c.Store.SQLConnection == "" {
			return skerr.Fmt("sql store requires sql_connection")
		}
	default:
		return skerr.Fmt("unknown store kind %q", c.Store.Kind)
	}
	return nil
}

// Parse decodes a JSON5 config, fills defaults and validates it.
func Parse(b []byte) (*InstanceConfig, error) {
	var c InstanceConfig
	if err := json5.Unmarshal(b, &c); err != nil {
		return nil, skerr.Wrapf(err, "decoding config")
	}
	if c.Repositories == nil {
		c.Repositories = map[string]string{}
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, skerr.Wrap(err)
	}
	return &c, nil
}

// Load reads and parses the config at path.
func Load(path string) (*InstanceConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, skerr.Wrapf(err, "reading config %s", path)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, skerr.Wrapf(err, "in %s", path)
	}
	return c, nil
}
