// Package manifest reads the dependency pins recorded in a repository's DEPS
// file.
package manifest

import (
	"context"
	"errors"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/repos"
	"go.skia.org/bisection/go/depot_tools/deps_parser"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/sklog"
)

// DefaultCacheSize is the number of parsed manifests a Reader keeps.
const DefaultCacheSize = 1000

// Manifest maps dependency repository name to pinned git hash.
type Manifest map[string]string

// Names returns the dependency names in lexicographic order.
func (m Manifest) Names() []string {
	rv := make([]string, 0, len(m))
	for name := range m {
		rv = append(rv, name)
	}
	sort.Strings(rv)
	return rv
}

// Pin is one pinned git dependency. URL is the repository URL as written in
// DEPS.
type Pin struct {
	URL     string
	Version string
}

// Parse returns the pinned git dependencies in the DEPS content, keyed by
// normalized repository URL. CIPD packages and unpinned entries are dropped.
func Parse(content []byte) (map[string]Pin, error) {
	entries, err := deps_parser.ParseDeps(string(content))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	rv := map[string]Pin{}
	for _, entry := range entries.Git() {
		if entry.Version == "" {
			continue
		}
		rv[entry.Id] = Pin{URL: entry.URL, Version: entry.Version}
	}
	return rv, nil
}

// Reader fetches and parses manifests through a change.SourceControl. Results
// are cached by repository URL and git hash, which fully determine the file.
type Reader struct {
	sc       change.SourceControl
	registry *repos.Registry
	cache    *lru.Cache
}

// NewReader returns a Reader. Dependency URLs unknown to registry are added
// to it.
func NewReader(sc change.SourceControl, registry *repos.Registry, cacheSize int) (*Reader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, skerr.Wrapf(err, "failed to create manifest cache")
	}
	return &Reader{
		sc:       sc,
		registry: registry,
		cache:    cache,
	}, nil
}

// Deps returns the manifest checked in at commit. A commit without a DEPS
// file has an empty manifest, as does a file read the host rejects as an
// unknown commit after the commit itself resolved.
func (r *Reader) Deps(ctx context.Context, commit change.Commit) (Manifest, error) {
	info, err := commit.Resolve(ctx, r.sc)
	if err != nil {
		return nil, err
	}
	key := info.RepositoryURL + "@" + commit.GitHash
	if cached, ok := r.cache.Get(key); ok {
		return copyManifest(cached.(Manifest)), nil
	}

	content, err := r.sc.FileContents(ctx, info.RepositoryURL, commit.GitHash, deps_parser.DepsFileName)
	var unknown *change.UnknownCommitError
	if errors.Is(err, change.ErrFileNotFound) || errors.As(err, &unknown) {
		// The commit itself resolved above, so the host has no DEPS for it.
		sklog.Debugf("No %s file in %s: %s", deps_parser.DepsFileName, commit, err)
		content = nil
	} else if err != nil {
		return nil, skerr.Wrapf(err, "reading %s at %s", deps_parser.DepsFileName, commit)
	}

	m := Manifest{}
	if len(content) > 0 {
		pins, err := Parse(content)
		if err != nil {
			return nil, skerr.Wrapf(err, "parsing %s at %s", deps_parser.DepsFileName, commit)
		}
		for _, pin := range pins {
			name, err := r.registry.NameForURL(pin.URL, true)
			if err != nil {
				return nil, skerr.Wrap(err)
			}
			m[name] = pin.Version
		}
	}
	r.cache.Add(key, m)
	return copyManifest(m), nil
}

// Diff fetches the manifests at a and b concurrently.
func (r *Reader) Diff(ctx context.Context, a, b change.Commit) (Manifest, Manifest, error) {
	var ma, mb Manifest
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		ma, err = r.Deps(ctx, a)
		return err
	})
	eg.Go(func() error {
		var err error
		mb, err = r.Deps(ctx, b)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return ma, mb, nil
}

func copyManifest(m Manifest) Manifest {
	rv := make(Manifest, len(m))
	for k, v := range m {
		rv[k] = v
	}
	return rv
}
