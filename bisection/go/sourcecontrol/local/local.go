// Package local implements change.SourceControl over git checkouts on disk,
// read with go-git. Commit positions are first-parent depths, root = 1.
package local

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/repos"
	"go.skia.org/bisection/go/skerr"
)

type repo struct {
	r *git.Repository

	// depths caches first-parent depth by commit.
	depths map[plumbing.Hash]int
}

// SourceControl serves registered repositories from go-git Repositories.
type SourceControl struct {
	registry *repos.Registry

	mtx   sync.Mutex
	repos map[string]*repo
}

// New returns a SourceControl with no repositories.
func New(registry *repos.Registry) *SourceControl {
	return &SourceControl{
		registry: registry,
		repos:    map[string]*repo{},
	}
}

// Open opens each checkout, keyed by repository name, with git.PlainOpen.
func Open(registry *repos.Registry, checkouts map[string]string) (*SourceControl, error) {
	s := New(registry)
	for name, dir := range checkouts {
		r, err := git.PlainOpen(dir)
		if err != nil {
			return nil, skerr.Wrapf(err, "opening checkout of %q at %s", name, dir)
		}
		if err := s.Add(name, r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add serves the named repository from r. The name must be registered.
func (s *SourceControl) Add(name string, r *git.Repository) error {
	if _, err := s.registry.URL(name); err != nil {
		return skerr.Wrap(err)
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.repos[name] = &repo{
		r:      r,
		depths: map[plumbing.Hash]int{},
	}
	return nil
}

// get must be called with s.mtx held.
func (s *SourceControl) get(repository string) (*repo, error) {
	r, ok := s.repos[repository]
	if !ok {
		return nil, &change.UnknownRepositoryError{Repository: repository}
	}
	return r, nil
}

func (r *repo) commit(repository, gitHash string) (*object.Commit, error) {
	if !plumbing.IsHash(gitHash) {
		return nil, &change.UnknownCommitError{Repository: repository, GitHash: gitHash}
	}
	c, err := r.r.CommitObject(plumbing.NewHash(gitHash))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, &change.UnknownCommitError{Repository: repository, GitHash: gitHash}
	} else if err != nil {
		return nil, skerr.Wrap(err)
	}
	return c, nil
}

func firstParent(c *object.Commit) (*object.Commit, error) {
	if c.NumParents() == 0 {
		return nil, nil
	}
	p, err := c.Parent(0)
	if err != nil {
		return nil, skerr.Wrapf(err, "loading first parent of %s", c.Hash)
	}
	return p, nil
}

// depth returns the first-parent depth of c. Must be called with s.mtx held.
func (r *repo) depth(c *object.Commit) (int, error) {
	var walked []plumbing.Hash
	base := 0
	for cur := c; cur != nil; {
		if d, ok := r.depths[cur.Hash]; ok {
			base = d
			break
		}
		walked = append(walked, cur.Hash)
		var err error
		if cur, err = firstParent(cur); err != nil {
			return 0, err
		}
	}
	for i := len(walked) - 1; i >= 0; i-- {
		base++
		r.depths[walked[i]] = base
	}
	return r.depths[c.Hash], nil
}

// ResolveCommit implements change.SourceControl.
func (s *SourceControl) ResolveCommit(ctx context.Context, repository, gitHash string) (change.CommitInfo, error) {
	url, err := s.registry.URL(repository)
	if err != nil {
		return change.CommitInfo{}, err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	r, err := s.get(repository)
	if err != nil {
		return change.CommitInfo{}, err
	}
	c, err := r.commit(repository, gitHash)
	if err != nil {
		return change.CommitInfo{}, err
	}
	d, err := r.depth(c)
	if err != nil {
		return change.CommitInfo{}, err
	}
	return change.CommitInfo{Position: d, RepositoryURL: url}, nil
}

// CommitRange implements change.SourceControl.
func (s *SourceControl) CommitRange(ctx context.Context, repository, fromHash, toHash string) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	r, err := s.get(repository)
	if err != nil {
		return nil, err
	}
	from, err := r.commit(repository, fromHash)
	if err != nil {
		return nil, err
	}
	to, err := r.commit(repository, toHash)
	if err != nil {
		return nil, err
	}
	var rv []string
	cur, err := firstParent(to)
	for ; cur != nil && err == nil; cur, err = firstParent(cur) {
		if err := ctx.Err(); err != nil {
			return nil, skerr.Wrap(err)
		}
		if cur.Hash == from.Hash {
			slices.Reverse(rv)
			return rv, nil
		}
		rv = append(rv, cur.Hash.String())
	}
	if err != nil {
		return nil, err
	}
	return nil, change.NonLinear("%s is not a first-parent ancestor of %s in %s", fromHash, toHash, repository)
}

// FileContents implements change.SourceControl.
func (s *SourceControl) FileContents(ctx context.Context, repositoryURL, gitHash, path string) ([]byte, error) {
	name, err := s.registry.NameForURL(repositoryURL, false)
	if err != nil {
		return nil, err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	r, err := s.get(name)
	if err != nil {
		return nil, err
	}
	c, err := r.commit(name, gitHash)
	if err != nil {
		return nil, err
	}
	f, err := c.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, skerr.Wrapf(change.ErrFileNotFound, "%s at %s in %s", path, gitHash, name)
	} else if err != nil {
		return nil, skerr.Wrap(err)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return []byte(contents), nil
}

var _ change.SourceControl = (*SourceControl)(nil)
