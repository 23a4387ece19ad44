// Package repos maps repository names to URLs.
package repos

import (
	"path"
	"sort"
	"strings"
	"sync"

	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/go/depot_tools/deps_parser"
	"go.skia.org/bisection/go/skerr"
)

// Registry is a thread-safe two-way mapping between repository names and
// URLs. URL lookups are normalized, so "https://host/repo.git" and
// "https://host/repo" are the same repository.
type Registry struct {
	mtx    sync.RWMutex
	byName map[string]string
	byURL  map[string]string // normalized URL -> name
}

// New returns a Registry seeded with the given name -> URL map.
func New(repositories map[string]string) (*Registry, error) {
	r := &Registry{
		byName: map[string]string{},
		byURL:  map[string]string{},
	}
	names := make([]string, 0, len(repositories))
	for name := range repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.Add(name, repositories[name]); err != nil {
			return nil, skerr.Wrap(err)
		}
	}
	return r, nil
}

// Add registers a repository. Fails if the name or URL is already registered
// differently.
func (r *Registry) Add(name, url string) error {
	if name == "" || url == "" {
		return skerr.Fmt("repository name and URL must be non-empty; got %q -> %q", name, url)
	}
	key, err := deps_parser.NormalizeURL(url)
	if err != nil {
		return skerr.Wrapf(err, "invalid URL for repository %q", name)
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if existing, ok := r.byName[name]; ok && existing != url {
		return skerr.Fmt("repository %q is already registered as %s", name, existing)
	}
	if existing, ok := r.byURL[key]; ok && existing != name {
		return skerr.Fmt("URL %s is already registered as %q", url, existing)
	}
	r.byName[name] = url
	r.byURL[key] = name
	return nil
}

// URL returns the URL for the named repository.
func (r *Registry) URL(name string) (string, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	url, ok := r.byName[name]
	if !ok {
		return "", &change.UnknownRepositoryError{Repository: name}
	}
	return url, nil
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	rv := make([]string, 0, len(r.byName))
	for name := range r.byName {
		rv = append(rv, name)
	}
	sort.Strings(rv)
	return rv
}

// NameForURL returns the name registered for url. If the URL is unknown and
// addIfMissing is true, it is registered under its last path segment, or
// under "<host>/<segment>" if that name is taken. A URL without a scheme is
// registered as https. Otherwise unknown URLs fail with
// UnknownRepositoryError.
func (r *Registry) NameForURL(url string, addIfMissing bool) (string, error) {
	key, err := deps_parser.NormalizeURL(url)
	if err != nil {
		return "", skerr.Wrapf(err, "invalid repository URL")
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if name, ok := r.byURL[key]; ok {
		return name, nil
	}
	if !addIfMissing {
		return "", &change.UnknownRepositoryError{Repository: url}
	}
	name := path.Base(key)
	if _, taken := r.byName[name]; taken || name == "." || name == "/" {
		name = strings.SplitN(key, "/", 2)[0] + "/" + name
	}
	if _, taken := r.byName[name]; taken {
		name = key
	}
	if !strings.Contains(url, "://") {
		url = "https://" + strings.TrimPrefix(url, "/")
	}
	r.byName[name] = url
	r.byURL[key] = name
	return name, nil
}
