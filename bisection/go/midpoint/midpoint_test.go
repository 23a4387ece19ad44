package midpoint

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/manifest"
	"go.skia.org/bisection/bisection/go/repos"
	"go.skia.org/bisection/bisection/go/sourcecontrol/fakesc"
)

const (
	chromiumURL = "https://chromium.googlesource.com/chromium/src"
	catapultURL = "https://chromium.googlesource.com/catapult"
	v8URL       = "https://chromium.googlesource.com/v8/v8"
	skiaURL     = "https://skia.googlesource.com/skia"
)

func hashes(prefix string, n int) []string {
	rv := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rv = append(rv, fmt.Sprintf("%s%d", prefix, i))
	}
	return rv
}

func depsFile(pins map[string]string) string {
	s := "deps = {\n"
	i := 0
	for url, hash := range pins {
		s += fmt.Sprintf("  'src/dep%d': '%s.git@%s',\n", i, url, hash)
		i++
	}
	return s + "}\n"
}

// setup creates chromium with commits chromium0..chromium9, catapult with
// commit0..commit9, v8 with v80..v89 and skia with skia0..skia9. chromium5
// rolls catapult from commit0 to commit9.
func setup(t *testing.T) (*Handler, *fakesc.SourceControl) {
	sc := fakesc.New()
	sc.AddRepository("chromium", chromiumURL, hashes("chromium", 10)...)
	sc.AddRepository("catapult", catapultURL, hashes("commit", 10)...)
	sc.AddRepository("v8", v8URL, hashes("v8", 10)...)
	sc.AddRepository("skia", skiaURL, hashes("skia", 10)...)
	for i := 0; i < 10; i++ {
		catapult := "commit0"
		if i >= 5 {
			catapult = "commit9"
		}
		sc.SetFile("chromium", fmt.Sprintf("chromium%d", i), "DEPS", depsFile(map[string]string{
			catapultURL: catapult,
			v8URL:       "v80",
		}))
	}

	registry, err := repos.New(map[string]string{
		"chromium": chromiumURL,
		"catapult": catapultURL,
		"v8":       v8URL,
		"skia":     skiaURL,
	})
	require.NoError(t, err)
	reader, err := manifest.NewReader(sc, registry, 100)
	require.NoError(t, err)
	return New(sc, reader), sc
}

func parse(t *testing.T, s string) change.Change {
	c, err := change.Parse(s)
	require.NoError(t, err)
	return c
}

func TestMidpoint_SameRepo_ReturnsMiddleCommit(t *testing.T) {
	h, _ := setup(t)
	mid, ok, err := h.Midpoint(context.Background(), parse(t, "chromium@chromium1"), parse(t, "chromium@chromium9"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, parse(t, "chromium@chromium5").Equal(mid), mid.String())
}

func TestMidpoint_SameRepoWithDeps_KeepsDeps(t *testing.T) {
	h, _ := setup(t)
	mid, ok, err := h.Midpoint(context.Background(), parse(t, "chromium@chromium6,v8@v83"), parse(t, "chromium@chromium6,v8@v87"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []change.Commit{
		change.NewCommit("chromium", "chromium6"),
		change.NewCommit("v8", "v85"),
	}, mid.Commits())
}

func TestMidpoint_AdjacentWithDepsRoll_BisectsDependency(t *testing.T) {
	h, _ := setup(t)
	a := parse(t, "chromium@chromium4")
	b := parse(t, "chromium@chromium5")

	step, ok, err := h.Step(context.Background(), a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []change.Commit{
		change.NewCommit("chromium", "chromium4"),
		change.NewCommit("catapult", "commit5"),
	}, step.Mid.Commits())
	assert.True(t, parse(t, "chromium@chromium4,catapult@commit0").Equal(step.Lower))
	assert.True(t, parse(t, "chromium@chromium4,catapult@commit9").Equal(step.Upper))
	assert.Equal(t, Decision{
		Kind:               DepsRoll,
		Repository:         "catapult",
		From:               "commit0",
		To:                 "commit9",
		CarryingRepository: "chromium",
		CarryingCommit:     "chromium4",
	}, step.Decision)

	mid, ok, err := h.Midpoint(context.Background(), a, b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, step.Mid.Equal(mid))
}

func TestMidpoint_AdjacentWithoutRoll_ReturnsFalse(t *testing.T) {
	h, _ := setup(t)
	mid, ok, err := h.Midpoint(context.Background(), parse(t, "chromium@chromium2"), parse(t, "chromium@chromium3"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mid.IsZero())
}

func TestMidpoint_AdjacentDependencyCommits_ReturnsFalse(t *testing.T) {
	h, _ := setup(t)
	_, ok, err := h.Midpoint(context.Background(), parse(t, "chromium@chromium4,catapult@commit3"), parse(t, "chromium@chromium4,catapult@commit4"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMidpoint_OverriddenDependency_NotTreatedAsRoll(t *testing.T) {
	h, sc := setup(t)
	// chromium5 also rolls v8 here.
	sc.SetFile("chromium", "chromium5", "DEPS", depsFile(map[string]string{
		catapultURL: "commit9",
		v8URL:       "v89",
	}))
	ctx := context.Background()

	// catapult sorts first, so it is bisected first.
	mid, ok, err := h.Midpoint(ctx, parse(t, "chromium@chromium4"), parse(t, "chromium@chromium5"))
	require.NoError(t, err)
	require.True(t, ok)
	c, _ := mid.Commit("catapult")
	assert.Equal(t, "commit5", c.GitHash)
	_, hasV8 := mid.Commit("v8")
	assert.False(t, hasV8)

	// Once catapult is pinned identically on both sides, v8 is the roll.
	mid, ok, err = h.Midpoint(ctx, parse(t, "chromium@chromium4,catapult@commit9"), parse(t, "chromium@chromium5,catapult@commit9"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []change.Commit{
		change.NewCommit("chromium", "chromium4"),
		change.NewCommit("catapult", "commit9"),
		change.NewCommit("v8", "v85"),
	}, mid.Commits())
}

func TestMidpoint_NestedRoll_DescendsTwice(t *testing.T) {
	h, sc := setup(t)
	// chromium5 rolls catapult commit0 -> commit1, and catapult commit1 rolls
	// skia skia0 -> skia8.
	sc.SetFile("chromium", "chromium5", "DEPS", depsFile(map[string]string{
		catapultURL: "commit1",
		v8URL:       "v80",
	}))
	sc.SetFile("catapult", "commit0", "DEPS", depsFile(map[string]string{skiaURL: "skia0"}))
	sc.SetFile("catapult", "commit1", "DEPS", depsFile(map[string]string{skiaURL: "skia8"}))

	step, ok, err := h.Step(context.Background(), parse(t, "chromium@chromium4"), parse(t, "chromium@chromium5"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []change.Commit{
		change.NewCommit("chromium", "chromium4"),
		change.NewCommit("catapult", "commit0"),
		change.NewCommit("skia", "skia4"),
	}, step.Mid.Commits())
	assert.Equal(t, "skia", step.Decision.Repository)
	assert.Equal(t, "catapult", step.Decision.CarryingRepository)
	assert.True(t, parse(t, "chromium@chromium4,catapult@commit0,skia@skia8").Equal(step.Upper))
}

func TestMidpoint_NestingLimitExceeded_NonLinear(t *testing.T) {
	h, sc := setup(t)
	sc.SetFile("chromium", "chromium5", "DEPS", depsFile(map[string]string{catapultURL: "commit1"}))
	sc.SetFile("catapult", "commit0", "DEPS", depsFile(map[string]string{skiaURL: "skia0"}))
	sc.SetFile("catapult", "commit1", "DEPS", depsFile(map[string]string{skiaURL: "skia8"}))
	h.WithMaxDepth(1)

	_, _, err := h.Midpoint(context.Background(), parse(t, "chromium@chromium4"), parse(t, "chromium@chromium5"))
	require.Error(t, err)
	assert.True(t, change.IsNonLinear(err))
}

func TestMidpoint_InvalidPairs_NonLinear(t *testing.T) {
	h, _ := setup(t)
	patch := &change.Patch{Server: "https://review", ChangeID: "1", RevisionID: "1"}
	withPatch, err := change.New([]change.Commit{change.NewCommit("chromium", "chromium9")}, patch)
	require.NoError(t, err)

	test := func(name string, a, b change.Change) {
		t.Run(name, func(t *testing.T) {
			_, _, err := h.Midpoint(context.Background(), a, b)
			require.Error(t, err)
			assert.True(t, change.IsNonLinear(err), err.Error())
		})
	}
	test("same change", parse(t, "chromium@chromium1"), parse(t, "chromium@chromium1"))
	test("different patches", parse(t, "chromium@chromium1"), withPatch)
	test("different repositories", parse(t, "chromium@chromium1"), parse(t, "chromium@chromium9,v8@v81"))
	test("two repositories differ", parse(t, "chromium@chromium1,v8@v81"), parse(t, "chromium@chromium9,v8@v89"))
	test("reversed", parse(t, "chromium@chromium9"), parse(t, "chromium@chromium1"))
	test("zero", change.Change{}, parse(t, "chromium@chromium1"))
}

func TestMidpoint_UnknownCommit_Propagates(t *testing.T) {
	h, _ := setup(t)
	_, _, err := h.Midpoint(context.Background(), parse(t, "chromium@nope"), parse(t, "chromium@chromium9"))
	var unknown *change.UnknownCommitError
	require.True(t, errors.As(err, &unknown))
}

func TestExpandDeps_FillsMissingFromOwnManifest(t *testing.T) {
	h, _ := setup(t)
	a, b, err := h.ExpandDeps(context.Background(), parse(t, "chromium@chromium4"), parse(t, "chromium@chromium5,catapult@commit7"))
	require.NoError(t, err)
	assert.True(t, parse(t, "chromium@chromium4,catapult@commit0").Equal(a))
	assert.True(t, parse(t, "chromium@chromium5,catapult@commit7").Equal(b))
}

func TestExpandDeps_NotPinned_NonLinear(t *testing.T) {
	h, _ := setup(t)
	_, _, err := h.ExpandDeps(context.Background(), parse(t, "chromium@chromium4"), parse(t, "chromium@chromium5,skia@skia3"))
	require.Error(t, err)
	assert.True(t, change.IsNonLinear(err))
}

func TestExpandDeps_DifferentBase_NonLinear(t *testing.T) {
	h, _ := setup(t)
	_, _, err := h.ExpandDeps(context.Background(), parse(t, "chromium@chromium4"), parse(t, "v8@v81"))
	require.Error(t, err)
	assert.True(t, change.IsNonLinear(err))
}
