package midpoint

import (
	"fmt"
	"sort"

	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/manifest"
)

// Kind says which way a bisection step goes.
type Kind int

const (
	// SameRepo bisects between two commits of one repository.
	SameRepo Kind = iota
	// DepsRoll bisects a dependency whose pin changed between two adjacent
	// commits of the carrying repository.
	DepsRoll
)

func (k Kind) String() string {
	switch k {
	case SameRepo:
		return "SameRepo"
	case DepsRoll:
		return "DepsRoll"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Decision is one step of the search: bisect Repository between From and To.
// For DepsRoll the carrying repository is held at CarryingCommit.
type Decision struct {
	Kind       Kind
	Repository string
	From       string
	To         string

	CarryingRepository string
	CarryingCommit     string
}

func (d Decision) String() string {
	if d.Kind == DepsRoll {
		return fmt.Sprintf("%s %s %s..%s via %s@%s", d.Kind, d.Repository, d.From, d.To, d.CarryingRepository, d.CarryingCommit)
	}
	return fmt.Sprintf("%s %s %s..%s", d.Kind, d.Repository, d.From, d.To)
}

// FindRoll returns the first dependency, in lexicographic order of repository
// name, whose effective pin differs between two adjacent commits of the
// carrying repository. The effective pin is the override if one exists for
// that side, else the manifest pin. Dependencies pinned on only one side are
// not rolls. carrying is the lower of the two adjacent commits.
func FindRoll(carrying change.Commit, manifestA, manifestB manifest.Manifest, overridesA, overridesB map[string]string) (Decision, bool) {
	names := map[string]bool{}
	for _, m := range []map[string]string{manifestA, manifestB, overridesA, overridesB} {
		for name := range m {
			names[name] = true
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		if name != carrying.Repository {
			sorted = append(sorted, name)
		}
	}
	sort.Strings(sorted)

	pin := func(m manifest.Manifest, overrides map[string]string, name string) (string, bool) {
		if h, ok := overrides[name]; ok {
			return h, true
		}
		h, ok := m[name]
		return h, ok
	}
	for _, name := range sorted {
		a, okA := pin(manifestA, overridesA, name)
		b, okB := pin(manifestB, overridesB, name)
		if !okA || !okB || a == b {
			continue
		}
		return Decision{
			Kind:               DepsRoll,
			Repository:         name,
			From:               a,
			To:                 b,
			CarryingRepository: carrying.Repository,
			CarryingCommit:     carrying.GitHash,
		}, true
	}
	return Decision{}, false
}
