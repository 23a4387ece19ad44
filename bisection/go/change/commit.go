package change

import (
	"context"

	"go.skia.org/bisection/go/skerr"
)

// Commit identifies one revision in one repository.
type Commit struct {
	// Repository is a name registered with the repository registry, eg.
	// "chromium".
	Repository string `json:"repository"`

	// GitHash is the full git hash of the revision.
	GitHash string `json:"git_hash"`
}

// NewCommit returns a Commit.
func NewCommit(repository, gitHash string) Commit {
	return Commit{Repository: repository, GitHash: gitHash}
}

// ID returns "<repository>@<git_hash>".
func (c Commit) ID() string {
	return c.Repository + "@" + c.GitHash
}

// String returns the ID with the hash abbreviated.
func (c Commit) String() string {
	h := c.GitHash
	if len(h) > 7 {
		h = h[:7]
	}
	return c.Repository + "@" + h
}

// Resolve fetches the commit position and repository URL.
func (c Commit) Resolve(ctx context.Context, sc SourceControl) (CommitInfo, error) {
	info, err := sc.ResolveCommit(ctx, c.Repository, c.GitHash)
	if err != nil {
		return CommitInfo{}, skerr.Wrapf(err, "resolving %s", c)
	}
	return info, nil
}

// Range returns the commits strictly between a and b, ordered by commit
// position ascending.
func Range(ctx context.Context, sc SourceControl, a, b Commit) ([]Commit, error) {
	if a.Repository != b.Repository {
		return nil, NonLinear("%s and %s are in different repositories", a, b)
	}
	infoA, err := a.Resolve(ctx, sc)
	if err != nil {
		return nil, err
	}
	infoB, err := b.Resolve(ctx, sc)
	if err != nil {
		return nil, err
	}
	if a.GitHash == b.GitHash {
		return nil, NonLinear("%s and %s are the same commit", a, b)
	}
	// A zero position is unknown; CommitRange then detects the ordering.
	if infoA.Position != 0 && infoB.Position != 0 && infoB.Position <= infoA.Position {
		return nil, NonLinear("%s (position %d) does not precede %s (position %d)", a, infoA.Position, b, infoB.Position)
	}
	hashes, err := sc.CommitRange(ctx, a.Repository, a.GitHash, b.GitHash)
	if err != nil {
		return nil, skerr.Wrapf(err, "listing commits between %s and %s", a, b)
	}
	rv := make([]Commit, 0, len(hashes))
	for _, h := range hashes {
		rv = append(rv, NewCommit(a.Repository, h))
	}
	return rv, nil
}

// CommitMidpoint returns the element at index len(range)/2 of Range(a, b).
// The bool is false if a and b are adjacent.
func CommitMidpoint(ctx context.Context, sc SourceControl, a, b Commit) (Commit, bool, error) {
	commits, err := Range(ctx, sc, a, b)
	if err != nil {
		return Commit{}, false, err
	}
	if len(commits) == 0 {
		return Commit{}, false, nil
	}
	return commits[len(commits)/2], true, nil
}
