package midpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/manifest"
)

func TestFindRoll_TwoDepsChanged_LexicographicFirstWins(t *testing.T) {
	carrying := change.NewCommit("chromium", "c4")
	a := manifest.Manifest{"v8": "v1", "catapult": "k1", "skia": "s1"}
	b := manifest.Manifest{"v8": "v2", "catapult": "k2", "skia": "s1"}

	d, ok := FindRoll(carrying, a, b, nil, nil)
	assert.True(t, ok)
	assert.Equal(t, Decision{
		Kind:               DepsRoll,
		Repository:         "catapult",
		From:               "k1",
		To:                 "k2",
		CarryingRepository: "chromium",
		CarryingCommit:     "c4",
	}, d)

	// Same answer regardless of argument map iteration order.
	for i := 0; i < 20; i++ {
		d2, _ := FindRoll(carrying, a, b, nil, nil)
		assert.Equal(t, d, d2)
	}
}

func TestFindRoll_OverridesTakePrecedence(t *testing.T) {
	carrying := change.NewCommit("chromium", "c4")
	a := manifest.Manifest{"v8": "v1", "catapult": "k1"}
	b := manifest.Manifest{"v8": "v2", "catapult": "k2"}

	d, ok := FindRoll(carrying, a, b, map[string]string{"catapult": "k9"}, map[string]string{"catapult": "k9"})
	assert.True(t, ok)
	assert.Equal(t, "v8", d.Repository)
}

func TestFindRoll_NoDifference_ReturnsFalse(t *testing.T) {
	carrying := change.NewCommit("chromium", "c4")
	a := manifest.Manifest{"v8": "v1"}
	b := manifest.Manifest{"v8": "v1", "added": "x"}
	_, ok := FindRoll(carrying, a, b, nil, nil)
	assert.False(t, ok)
}

func TestFindRoll_IgnoresCarryingRepository(t *testing.T) {
	carrying := change.NewCommit("chromium", "c4")
	_, ok := FindRoll(carrying, manifest.Manifest{}, manifest.Manifest{}, map[string]string{"chromium": "c4"}, map[string]string{"chromium": "c5"})
	assert.False(t, ok)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "SameRepo chromium a..b", Decision{Kind: SameRepo, Repository: "chromium", From: "a", To: "b"}.String())
	assert.Equal(t, "DepsRoll v8 a..b via chromium@c", Decision{Kind: DepsRoll, Repository: "v8", From: "a", To: "b", CarryingRepository: "chromium", CarryingCommit: "c"}.String())
}
