// Package gitiles implements change.SourceControl on top of the Gitiles JSON
// API.
package gitiles

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	ttlcache "github.com/patrickmn/go-cache"
	"golang.org/x/oauth2/google"

	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/repos"
	"go.skia.org/bisection/go/gitiles"
	"go.skia.org/bisection/go/httputils"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/vcsinfo"
)

const (
	DEFAULT_GITILES_SCOPE = "https://www.googleapis.com/auth/gerritcodereview"
	scopeUserinfoEmail    = "https://www.googleapis.com/auth/userinfo.email"

	// Commits never change, so details are kept until evicted for space.
	commitCacheExpiration = 24 * time.Hour
	commitCacheCleanup    = time.Hour
)

// SourceControl talks to Gitiles for every registered repository.
type SourceControl struct {
	registry *repos.Registry
	client   *http.Client

	mtx   sync.Mutex
	repos map[string]*gitiles.Repo

	// commits caches *vcsinfo.LongCommit by "<url>@<hash>".
	commits *ttlcache.Cache
}

// New returns a SourceControl using the given client. If c is nil a default
// client with timeouts and retries is used.
func New(registry *repos.Registry, c *http.Client) *SourceControl {
	if c == nil {
		c = httputils.DefaultClientConfig().Client()
	}
	return &SourceControl{
		registry: registry,
		client:   c,
		repos:    map[string]*gitiles.Repo{},
		commits:  ttlcache.New(commitCacheExpiration, commitCacheCleanup),
	}
}

// NewAuthenticated returns a SourceControl which authenticates with the
// default Google credentials.
func NewAuthenticated(ctx context.Context, registry *repos.Registry) (*SourceControl, error) {
	ts, err := google.DefaultTokenSource(ctx, scopeUserinfoEmail, DEFAULT_GITILES_SCOPE)
	if err != nil {
		return nil, skerr.Wrapf(err, "failed to create token source")
	}
	// Gitiles returns non-200 for about a minute when rate limited; the
	// default backoff covers that.
	c := httputils.DefaultClientConfig().WithTokenSource(ts).Client()
	return New(registry, c), nil
}

func (s *SourceControl) repo(url string) *gitiles.Repo {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	r, ok := s.repos[url]
	if !ok {
		r = gitiles.NewRepo(url, s.client)
		s.repos[url] = r
	}
	return r
}

func (s *SourceControl) details(ctx context.Context, repository, url, gitHash string) (*vcsinfo.LongCommit, error) {
	key := url + "@" + gitHash
	if c, ok := s.commits.Get(key); ok {
		return c.(*vcsinfo.LongCommit), nil
	}
	c, err := s.repo(url).Details(ctx, gitHash)
	if errors.Is(err, gitiles.ErrNotFound) {
		return nil, &change.UnknownCommitError{Repository: repository, GitHash: gitHash}
	} else if err != nil {
		return nil, skerr.Wrap(err)
	}
	s.commits.SetDefault(key, c)
	return c, nil
}

// ResolveCommit implements change.SourceControl. The position comes from the
// Cr-Commit-Position footer and is zero for repositories which don't have
// one.
func (s *SourceControl) ResolveCommit(ctx context.Context, repository, gitHash string) (change.CommitInfo, error) {
	url, err := s.registry.URL(repository)
	if err != nil {
		return change.CommitInfo{}, err
	}
	c, err := s.details(ctx, repository, url, gitHash)
	if err != nil {
		return change.CommitInfo{}, err
	}
	return change.CommitInfo{
		Position:      c.CommitPosition(),
		RepositoryURL: url,
	}, nil
}

// CommitRange implements change.SourceControl.
func (s *SourceControl) CommitRange(ctx context.Context, repository, fromHash, toHash string) ([]string, error) {
	url, err := s.registry.URL(repository)
	if err != nil {
		return nil, err
	}
	// LogLinear is newest first and includes toHash.
	log, err := s.repo(url).LogLinear(ctx, fromHash, toHash)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	if len(log) == 0 {
		return nil, change.NonLinear("%s is not a first-parent ancestor of %s in %s", fromHash, toHash, repository)
	}
	if oldest := log[len(log)-1]; oldest.FirstParent() != fromHash {
		return nil, change.NonLinear("%s is not a first-parent ancestor of %s in %s", fromHash, toHash, repository)
	}
	rv := make([]string, 0, len(log)-1)
	for _, c := range log[1:] {
		rv = append(rv, c.Hash)
	}
	slices.Reverse(rv)
	return rv, nil
}

// FileContents implements change.SourceControl.
func (s *SourceControl) FileContents(ctx context.Context, repositoryURL, gitHash, path string) ([]byte, error) {
	b, err := s.repo(repositoryURL).ReadFileAtRef(ctx, path, gitHash)
	if errors.Is(err, gitiles.ErrNotFound) {
		return nil, skerr.Wrapf(change.ErrFileNotFound, "%s at %s in %s", path, gitHash, repositoryURL)
	} else if err != nil {
		return nil, skerr.Wrap(err)
	}
	return b, nil
}

var _ change.SourceControl = (*SourceControl)(nil)
