// Package fakesc is an in-memory change.SourceControl over linear histories.
package fakesc

import (
	"context"
	"sync"

	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/go/depot_tools/deps_parser"
	"go.skia.org/bisection/go/skerr"
)

type repo struct {
	url     string
	commits []string
	index   map[string]int
	files   map[string]map[string]string // hash -> path -> content
}

// SourceControl holds linear histories keyed by repository name.
type SourceControl struct {
	mtx   sync.RWMutex
	repos map[string]*repo
	byURL map[string]*repo
}

// New returns an empty SourceControl.
func New() *SourceControl {
	return &SourceControl{
		repos: map[string]*repo{},
		byURL: map[string]*repo{},
	}
}

// AddRepository registers a repository with the given history, oldest first.
// Commit positions start at 1.
func (s *SourceControl) AddRepository(name, url string, hashes ...string) {
	r := &repo{
		url:     url,
		commits: append([]string(nil), hashes...),
		index:   make(map[string]int, len(hashes)),
		files:   map[string]map[string]string{},
	}
	for i, h := range hashes {
		r.index[h] = i
	}
	key, _ := deps_parser.NormalizeURL(url)
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.repos[name] = r
	s.byURL[key] = r
}

// SetFile sets the content of path at the given commit.
func (s *SourceControl) SetFile(repository, gitHash, path, content string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	r := s.repos[repository]
	if r.files[gitHash] == nil {
		r.files[gitHash] = map[string]string{}
	}
	r.files[gitHash][path] = content
}

func (s *SourceControl) lookup(repository, gitHash string) (*repo, int, error) {
	r, ok := s.repos[repository]
	if !ok {
		return nil, 0, &change.UnknownRepositoryError{Repository: repository}
	}
	idx, ok := r.index[gitHash]
	if !ok {
		return nil, 0, &change.UnknownCommitError{Repository: repository, GitHash: gitHash}
	}
	return r, idx, nil
}

// ResolveCommit implements change.SourceControl.
func (s *SourceControl) ResolveCommit(ctx context.Context, repository, gitHash string) (change.CommitInfo, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	r, idx, err := s.lookup(repository, gitHash)
	if err != nil {
		return change.CommitInfo{}, err
	}
	return change.CommitInfo{Position: idx + 1, RepositoryURL: r.url}, nil
}

// CommitRange implements change.SourceControl.
func (s *SourceControl) CommitRange(ctx context.Context, repository, fromHash, toHash string) ([]string, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	r, from, err := s.lookup(repository, fromHash)
	if err != nil {
		return nil, err
	}
	_, to, err := s.lookup(repository, toHash)
	if err != nil {
		return nil, err
	}
	if to <= from {
		return nil, change.NonLinear("%s does not precede %s in %s", fromHash, toHash, repository)
	}
	return append([]string{}, r.commits[from+1:to]...), nil
}

// FileContents implements change.SourceControl.
func (s *SourceControl) FileContents(ctx context.Context, repositoryURL, gitHash, path string) ([]byte, error) {
	key, err := deps_parser.NormalizeURL(repositoryURL)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	r, ok := s.byURL[key]
	if !ok {
		return nil, &change.UnknownRepositoryError{Repository: repositoryURL}
	}
	if _, ok := r.index[gitHash]; !ok {
		return nil, &change.UnknownCommitError{Repository: repositoryURL, GitHash: gitHash}
	}
	content, ok := r.files[gitHash][path]
	if !ok {
		return nil, skerr.Wrapf(change.ErrFileNotFound, "%s at %s", path, gitHash)
	}
	return []byte(content), nil
}

var _ change.SourceControl = (*SourceControl)(nil)
