// Package midpoint decides which Change to test next when bisecting between
// two Changes, descending into DEPS rolls when the primary repository has no
// commits left between the bounds.
package midpoint

import (
	"context"

	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/manifest"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/sklog"
)

// DefaultMaxDepth bounds how many nested DEPS rolls are followed.
const DefaultMaxDepth = 8

// Step is the result of one bisection step.
type Step struct {
	// Lower and Upper are the bounds the step actually bisected. They equal
	// the inputs unless the step descended into a DEPS roll, in which case
	// both hold the carrying repository at its lower commit and differ only
	// in the rolled dependency.
	Lower change.Change
	Upper change.Change

	// Mid is the next Change to test. Zero if the bounds are adjacent.
	Mid change.Change

	// Decision is the innermost decision taken.
	Decision Decision
}

// Handler computes midpoints. It is safe for concurrent use.
type Handler struct {
	sc       change.SourceControl
	reader   *manifest.Reader
	maxDepth int
}

// New returns a Handler.
func New(sc change.SourceControl, reader *manifest.Reader) *Handler {
	return &Handler{
		sc:       sc,
		reader:   reader,
		maxDepth: DefaultMaxDepth,
	}
}

// WithMaxDepth returns the Handler with the DEPS nesting limit changed.
func (h *Handler) WithMaxDepth(depth int) *Handler {
	h.maxDepth = depth
	return h
}

// Midpoint returns the Change halfway between a and b. The bool is false if
// there is nothing left to bisect, in which case the lower commit of the last
// differing repository is the culprit.
func (h *Handler) Midpoint(ctx context.Context, a, b change.Change) (change.Change, bool, error) {
	step, ok, err := h.Step(ctx, a, b)
	if err != nil {
		return change.Change{}, false, err
	}
	return step.Mid, ok, nil
}

// differingRepository validates that a and b can be bisected and returns the
// one repository whose commit differs.
func differingRepository(a, b change.Change) (string, error) {
	if a.IsZero() || b.IsZero() {
		return "", change.NonLinear("cannot bisect an empty change")
	}
	pa, pb := a.Patch(), b.Patch()
	if (pa == nil) != (pb == nil) || (pa != nil && *pa != *pb) {
		return "", change.NonLinear("%s and %s have different patches", a, b)
	}
	if a.Equal(b) {
		return "", change.NonLinear("%s and %s are the same change", a, b)
	}
	aRepos := a.Repositories()
	if len(aRepos) != len(b.Repositories()) {
		return "", change.NonLinear("%s and %s have different repositories", a, b)
	}
	var differing []string
	for _, repo := range aRepos {
		ca, _ := a.Commit(repo)
		cb, ok := b.Commit(repo)
		if !ok {
			return "", change.NonLinear("%s and %s have different repositories", a, b)
		}
		if ca != cb {
			differing = append(differing, repo)
		}
	}
	if len(differing) != 1 {
		return "", change.NonLinear("%s and %s differ in %d repositories %v; expected exactly one", a, b, len(differing), differing)
	}
	return differing[0], nil
}

// overrides returns the commits of c other than the given repository.
func overrides(c change.Change, except string) map[string]string {
	rv := map[string]string{}
	for _, commit := range c.Commits() {
		if commit.Repository != except {
			rv[commit.Repository] = commit.GitHash
		}
	}
	return rv
}

// Step is Midpoint which also reports the bounds and decision it used.
func (h *Handler) Step(ctx context.Context, a, b change.Change) (Step, bool, error) {
	repo, err := differingRepository(a, b)
	if err != nil {
		return Step{}, false, skerr.Wrap(err)
	}
	from, _ := a.Commit(repo)
	to, _ := b.Commit(repo)
	step := Step{
		Lower: a,
		Upper: b,
		Decision: Decision{
			Kind:       SameRepo,
			Repository: repo,
			From:       from.GitHash,
			To:         to.GitHash,
		},
	}

	for depth := 0; ; depth++ {
		d := step.Decision
		lo := change.NewCommit(d.Repository, d.From)
		hi := change.NewCommit(d.Repository, d.To)
		mid, ok, err := change.CommitMidpoint(ctx, h.sc, lo, hi)
		if err != nil {
			return Step{}, false, skerr.Wrapf(err, "bisecting %s", d)
		}
		if ok {
			step.Mid = step.Lower.WithCommit(mid)
			return step, true, nil
		}

		// lo and hi are adjacent; look for a DEPS roll between them.
		manifestA, manifestB, err := h.reader.Diff(ctx, lo, hi)
		if err != nil {
			return Step{}, false, skerr.Wrapf(err, "reading manifests for %s", d)
		}
		roll, found := FindRoll(lo, manifestA, manifestB, overrides(step.Lower, d.Repository), overrides(step.Upper, d.Repository))
		if !found {
			return step, false, nil
		}
		if depth+1 > h.maxDepth {
			return Step{}, false, change.NonLinear("DEPS rolls nested deeper than %d at %s", h.maxDepth, roll)
		}
		sklog.Debugf("%s and %s are adjacent; following %s", lo, hi, roll)
		step.Lower = step.Lower.WithCommit(lo).WithCommit(change.NewCommit(roll.Repository, roll.From))
		step.Upper = step.Lower.WithCommit(change.NewCommit(roll.Repository, roll.To))
		step.Decision = roll
	}
}

// ExpandDeps makes a and b carry the same repositories so that they can be
// passed to Midpoint. A dependency present on only one side is filled in on
// the other from the manifest of that side's base commit.
func (h *Handler) ExpandDeps(ctx context.Context, a, b change.Change) (change.Change, change.Change, error) {
	if a.BaseCommit().Repository != b.BaseCommit().Repository {
		return change.Change{}, change.Change{}, change.NonLinear("%s and %s have different base repositories", a, b)
	}
	fill := func(dst, src change.Change) (change.Change, error) {
		var missing []string
		for _, repo := range src.Repositories() {
			if _, ok := dst.Commit(repo); !ok {
				missing = append(missing, repo)
			}
		}
		if len(missing) == 0 {
			return dst, nil
		}
		deps, err := h.reader.Deps(ctx, dst.BaseCommit())
		if err != nil {
			return change.Change{}, skerr.Wrap(err)
		}
		for _, repo := range missing {
			hash, ok := deps[repo]
			if !ok {
				return change.Change{}, change.NonLinear("%s is not pinned in the DEPS of %s", repo, dst.BaseCommit())
			}
			dst = dst.WithCommit(change.NewCommit(repo, hash))
		}
		return dst, nil
	}
	expandedA, err := fill(a, b)
	if err != nil {
		return change.Change{}, change.Change{}, err
	}
	expandedB, err := fill(b, a)
	if err != nil {
		return change.Change{}, change.Change{}, err
	}
	return expandedA, expandedB, nil
}
