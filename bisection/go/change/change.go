// Package change holds the units a bisection tests and narrows: Commits,
// Patches and the Changes which bundle them.
package change

import (
	"encoding/json"
	"sort"
	"strings"

	"go.skia.org/bisection/go/skerr"
)

// Change is an immutable bundle of one Commit per repository plus an optional
// Patch. The first Commit is the base commit; the rest are dependency commits
// pinned through a manifest. Construct with New or FromDict.
type Change struct {
	commits []Commit
	patch   *Patch
}

// New validates and returns a Change. commits must be non-empty and name
// each repository at most once. The slice and patch are copied.
func New(commits []Commit, patch *Patch) (Change, error) {
	if len(commits) == 0 {
		return Change{}, &InvalidChangeError{Reason: "a change needs at least one commit"}
	}
	seen := make(map[string]bool, len(commits))
	for _, c := range commits {
		if c.Repository == "" || c.GitHash == "" {
			return Change{}, &InvalidChangeError{Reason: "commit " + c.ID() + " is missing its repository or hash"}
		}
		if seen[c.Repository] {
			return Change{}, &InvalidChangeError{Reason: "repository " + c.Repository + " appears more than once"}
		}
		seen[c.Repository] = true
	}
	rv := Change{
		commits: append([]Commit(nil), commits...),
	}
	if patch != nil {
		p := *patch
		rv.patch = &p
	}
	return rv, nil
}

// FromCommits is New without a patch.
func FromCommits(commits ...Commit) (Change, error) {
	return New(commits, nil)
}

// IsZero returns true for the zero Change, which New never returns.
func (c Change) IsZero() bool {
	return len(c.commits) == 0
}

// Commits returns a copy of the ordered commits.
func (c Change) Commits() []Commit {
	return append([]Commit(nil), c.commits...)
}

// BaseCommit is the commit in the primary repository.
func (c Change) BaseCommit() Commit {
	if c.IsZero() {
		return Commit{}
	}
	return c.commits[0]
}

// Deps returns the dependency commits.
func (c Change) Deps() []Commit {
	if c.IsZero() {
		return nil
	}
	return append([]Commit(nil), c.commits[1:]...)
}

// Patch returns a copy of the patch, or nil.
func (c Change) Patch() *Patch {
	if c.patch == nil {
		return nil
	}
	p := *c.patch
	return &p
}

// Commit returns the commit for the given repository.
func (c Change) Commit(repository string) (Commit, bool) {
	for _, commit := range c.commits {
		if commit.Repository == repository {
			return commit, true
		}
	}
	return Commit{}, false
}

// Repositories returns the repository names in commit order.
func (c Change) Repositories() []string {
	rv := make([]string, 0, len(c.commits))
	for _, commit := range c.commits {
		rv = append(rv, commit.Repository)
	}
	return rv
}

// Equal is true if both Changes have the same set of commits, in any order,
// and the same patch.
func (c Change) Equal(o Change) bool {
	if len(c.commits) != len(o.commits) || !equalPatches(c.patch, o.patch) {
		return false
	}
	for _, commit := range c.commits {
		other, ok := o.Commit(commit.Repository)
		if !ok || other != commit {
			return false
		}
	}
	return true
}

// WithCommit returns a new Change where the commit for commit.Repository is
// replaced, or appended if the repository is not present.
func (c Change) WithCommit(commit Commit) Change {
	commits := c.Commits()
	for i := range commits {
		if commits[i].Repository == commit.Repository {
			commits[i] = commit
			return Change{commits: commits, patch: c.Patch()}
		}
	}
	return Change{commits: append(commits, commit), patch: c.Patch()}
}

// Update returns a new Change with every commit of other applied on top of c:
// existing repositories are replaced in place and new ones are appended in
// other's order. Fails with ErrPatchesConflict if both carry different
// patches.
func (c Change) Update(other Change) (Change, error) {
	if c.patch != nil && other.patch != nil && *c.patch != *other.patch {
		return Change{}, skerr.Wrapf(ErrPatchesConflict, "updating %s with %s", c, other)
	}
	rv := Change{commits: c.Commits(), patch: c.Patch()}
	for _, commit := range other.commits {
		rv = rv.WithCommit(commit)
	}
	if rv.patch == nil {
		rv.patch = other.Patch()
	}
	return rv, nil
}

// String is for display; it keeps the commit order.
func (c Change) String() string {
	parts := make([]string, 0, len(c.commits)+1)
	for _, commit := range c.commits {
		parts = append(parts, commit.String())
	}
	if c.patch != nil {
		parts = append(parts, "+ "+c.patch.String())
	}
	return strings.Join(parts, " ")
}

// ID is a canonical identifier usable as a cache key. Commits are sorted by
// repository so that Changes which are Equal have the same ID.
func (c Change) ID() string {
	ids := make([]string, 0, len(c.commits))
	for _, commit := range c.commits {
		ids = append(ids, commit.ID())
	}
	sort.Strings(ids)
	id := strings.Join(ids, ",")
	if c.patch != nil {
		id += "+" + c.patch.Server + "/" + c.patch.ChangeID + "/" + c.patch.RevisionID
	}
	return id
}

// Dict is the serialized form of a Change.
type Dict struct {
	Commits []Commit `json:"commits"`
	Patch   *Patch   `json:"patch,omitempty"`
}

// AsDict returns the serialized form of c.
func (c Change) AsDict() Dict {
	return Dict{
		Commits: c.Commits(),
		Patch:   c.Patch(),
	}
}

// FromDict validates and restores a Change from its serialized form.
func FromDict(d Dict) (Change, error) {
	return New(d.Commits, d.Patch)
}

// MarshalJSON implements json.Marshaler.
func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.AsDict())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Change) UnmarshalJSON(b []byte) error {
	var d Dict
	if err := json.Unmarshal(b, &d); err != nil {
		return skerr.Wrap(err)
	}
	rv, err := FromDict(d)
	if err != nil {
		return skerr.Wrap(err)
	}
	*c = rv
	return nil
}

// Parse reads a Change from "repo@hash,repo@hash". The first entry is the
// base commit.
func Parse(s string) (Change, error) {
	var commits []Commit
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		split := strings.SplitN(part, "@", 2)
		if len(split) != 2 {
			return Change{}, &InvalidChangeError{Reason: "expected repository@hash, got " + part}
		}
		commits = append(commits, NewCommit(split[0], split[1]))
	}
	return New(commits, nil)
}
