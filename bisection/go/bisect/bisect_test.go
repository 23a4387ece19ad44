package bisect_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.skia.org/bisection/bisection/go/bisect"
	"go.skia.org/bisection/bisection/go/bisect/mocks"
	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/manifest"
	"go.skia.org/bisection/bisection/go/midpoint"
	"go.skia.org/bisection/bisection/go/repos"
	"go.skia.org/bisection/bisection/go/scheduler"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/scheduler/store/memory"
	"go.skia.org/bisection/bisection/go/sourcecontrol/fakesc"
	"go.skia.org/bisection/go/testutils"
)

const (
	chromiumURL = "https://chromium.googlesource.com/chromium/src"
	catapultURL = "https://chromium.googlesource.com/catapult"

	configuration = "linux-perf"
)

func hashes(prefix string, n int) []string {
	rv := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rv = append(rv, fmt.Sprintf("%s%d", prefix, i))
	}
	return rv
}

// setupForTest creates chromium0..chromium9 and catapult commit0..commit9.
// chromium5 rolls catapult from commit0 to commit9.
func setupForTest(t *testing.T) (*midpoint.Handler, *scheduler.Scheduler) {
	sc := fakesc.New()
	sc.AddRepository("chromium", chromiumURL, hashes("chromium", 10)...)
	sc.AddRepository("catapult", catapultURL, hashes("commit", 10)...)
	for i := 0; i < 10; i++ {
		pin := "commit0"
		if i >= 5 {
			pin = "commit9"
		}
		sc.SetFile("chromium", fmt.Sprintf("chromium%d", i), "DEPS",
			fmt.Sprintf("deps = {\n  'src/third_party/catapult': '%s.git@%s',\n}\n", catapultURL, pin))
	}
	registry, err := repos.New(map[string]string{
		"chromium": chromiumURL,
		"catapult": catapultURL,
	})
	require.NoError(t, err)
	reader, err := manifest.NewReader(sc, registry, 100)
	require.NoError(t, err)
	return midpoint.New(sc, reader), scheduler.New(memory.New(), scheduler.Options{})
}

func index(t *testing.T, c change.Change, repo, prefix string) (int, bool) {
	commit, ok := c.Commit(repo)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(commit.GitHash, prefix))
	require.NoError(t, err)
	return i, true
}

// regressedAt returns a Tester for which a Change is slow once its catapult
// commit, explicit or implied by the chromium DEPS, is at least catapult.
// Chromium commits at or after chromium are slow too.
func regressedAt(t *testing.T, chromium, catapult int) bisect.TesterFunc {
	slow := func(c change.Change) bool {
		cr, _ := index(t, c, "chromium", "chromium")
		if cr >= chromium {
			return true
		}
		cat, ok := index(t, c, "catapult", "commit")
		if !ok {
			cat = 0
			if cr >= 5 {
				cat = 9
			}
		}
		return cat >= catapult
	}
	return func(ctx context.Context, a, b change.Change) (bisect.Verdict, error) {
		if slow(a) != slow(b) {
			return bisect.Different, nil
		}
		return bisect.Same, nil
	}
}

func parse(t *testing.T, s string) change.Change {
	c, err := change.Parse(s)
	require.NoError(t, err)
	return c
}

func assertSlotReleased(t *testing.T, s *scheduler.Scheduler) {
	stats, err := s.QueueStats(context.Background(), configuration)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RunningJobs)
	assert.Equal(t, 0, stats.QueuedJobs)
}

func TestRun_RegressionInChromium_NarrowsToAdjacentCommits(t *testing.T) {
	h, s := setupForTest(t)
	r := bisect.NewRunner(s, h, regressedAt(t, 7, 100))

	res, err := r.Run(context.Background(), bisect.Request{
		JobID:         "job1",
		Configuration: configuration,
		Start:         parse(t, "chromium@chromium0"),
		End:           parse(t, "chromium@chromium9"),
	})
	require.NoError(t, err)
	assert.Equal(t, bisect.StatusCulpritFound, res.Status)
	assert.Equal(t, "job1", res.JobID)
	assert.True(t, parse(t, "chromium@chromium6").Equal(res.Lower), res.Lower.String())
	assert.True(t, parse(t, "chromium@chromium7").Equal(res.Upper), res.Upper.String())
	assert.True(t, res.Lower.Equal(res.Culprit))

	stats, err := s.QueueStats(context.Background(), configuration)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.RunningJobs)
	assert.Len(t, stats.WaitTimeSamples, 1)
}

func TestRun_RegressionInDepsRoll_DescendsIntoDependency(t *testing.T) {
	h, s := setupForTest(t)
	r := bisect.NewRunner(s, h, regressedAt(t, 100, 7))

	res, err := r.Run(context.Background(), bisect.Request{
		Configuration: configuration,
		Start:         parse(t, "chromium@chromium0"),
		End:           parse(t, "chromium@chromium9"),
	})
	require.NoError(t, err)
	assert.Equal(t, bisect.StatusCulpritFound, res.Status)
	assert.NotEmpty(t, res.JobID)
	assert.True(t, parse(t, "chromium@chromium4,catapult@commit6").Equal(res.Lower), res.Lower.String())
	assert.True(t, parse(t, "chromium@chromium4,catapult@commit7").Equal(res.Upper), res.Upper.String())
}

func TestRun_EndpointsSame_NoDifference(t *testing.T) {
	h, s := setupForTest(t)
	r := bisect.NewRunner(s, h, regressedAt(t, 100, 100))

	res, err := r.Run(context.Background(), bisect.Request{
		Configuration: configuration,
		Start:         parse(t, "chromium@chromium0"),
		End:           parse(t, "chromium@chromium9"),
	})
	require.NoError(t, err)
	assert.Equal(t, bisect.StatusNoDifference, res.Status)
	assert.Equal(t, 1, res.Comparisons)
	assertSlotReleased(t, s)
}

func TestRun_DifferentBaseRepositories_FailedNeedsTriage(t *testing.T) {
	h, s := setupForTest(t)
	r := bisect.NewRunner(s, h, bisect.TesterFunc(func(ctx context.Context, a, b change.Change) (bisect.Verdict, error) {
		return bisect.Different, nil
	}))

	res, err := r.Run(context.Background(), bisect.Request{
		Configuration: configuration,
		Start:         parse(t, "chromium@chromium0"),
		End:           parse(t, "catapult@commit9"),
	})
	require.NoError(t, err)
	assert.Equal(t, bisect.StatusFailedNeedsTriage, res.Status)
	assert.Contains(t, res.Reason, "different base repositories")
	assertSlotReleased(t, s)
}

func TestRun_UnknownVerdict_FailedNeedsTriage(t *testing.T) {
	h, s := setupForTest(t)
	tester := mocks.NewTester(t)
	tester.On("Compare", testutils.AnyContext, mock.Anything, mock.Anything).Return(bisect.Different, nil).Once()
	tester.On("Compare", testutils.AnyContext, mock.Anything, mock.Anything).Return(bisect.Unknown, nil).Once()
	r := bisect.NewRunner(s, h, tester)

	res, err := r.Run(context.Background(), bisect.Request{
		Configuration: configuration,
		Start:         parse(t, "chromium@chromium0"),
		End:           parse(t, "chromium@chromium9"),
	})
	require.NoError(t, err)
	assert.Equal(t, bisect.StatusFailedNeedsTriage, res.Status)
	assert.Equal(t, 2, res.Comparisons)
	assertSlotReleased(t, s)
}

func TestRun_TesterError_ReturnsErrorAndReleasesSlot(t *testing.T) {
	h, s := setupForTest(t)
	tester := mocks.NewTester(t)
	tester.On("Compare", testutils.AnyContext, mock.Anything, mock.Anything).Return(bisect.Unknown, errors.New("swarming is down"))
	r := bisect.NewRunner(s, h, tester)

	_, err := r.Run(context.Background(), bisect.Request{
		Configuration: configuration,
		Start:         parse(t, "chromium@chromium0"),
		End:           parse(t, "chromium@chromium9"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "swarming is down")
	assertSlotReleased(t, s)
}

func TestRun_SlotBusy_WaitsForAdmission(t *testing.T) {
	h, s := setupForTest(t)
	ctx := context.Background()
	blocker := bisect.Job{ID: "blocker", Config: configuration}
	require.NoError(t, s.Schedule(ctx, blocker))
	id, _, err := s.PickJob(ctx, configuration)
	require.NoError(t, err)
	require.Equal(t, "blocker", id)

	r := bisect.NewRunner(s, h, regressedAt(t, 7, 100)).WithPollInterval(5 * time.Millisecond)
	done := make(chan bisect.Result)
	go func() {
		res, err := r.Run(ctx, bisect.Request{
			JobID:         "waiter",
			Configuration: configuration,
			Start:         parse(t, "chromium@chromium0"),
			End:           parse(t, "chromium@chromium9"),
		})
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool {
		stats, err := s.QueueStats(ctx, configuration)
		return err == nil && stats.QueuedJobs == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Complete(ctx, blocker))

	select {
	case res := <-done:
		assert.Equal(t, "waiter", res.JobID)
		assert.Equal(t, bisect.StatusCulpritFound, res.Status)
	case <-time.After(10 * time.Second):
		require.Fail(t, "job was never admitted")
	}
}

func TestRun_ContextCancelledWhileWaiting_CancelsJob(t *testing.T) {
	h, s := setupForTest(t)
	blocker := bisect.Job{ID: "blocker", Config: configuration}
	require.NoError(t, s.Schedule(context.Background(), blocker))
	_, _, err := s.PickJob(context.Background(), configuration)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := bisect.NewRunner(s, h, regressedAt(t, 7, 100)).WithPollInterval(5 * time.Millisecond)
	_, err = r.Run(ctx, bisect.Request{
		JobID:         "waiter",
		Configuration: configuration,
		Start:         parse(t, "chromium@chromium0"),
		End:           parse(t, "chromium@chromium9"),
	})
	require.Error(t, err)

	stats, err := s.QueueStats(context.Background(), configuration)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RunningJobs)
	assert.Equal(t, 0, stats.QueuedJobs)
	id, status, err := s.PickJob(context.Background(), configuration)
	require.NoError(t, err)
	assert.Equal(t, "blocker", id)
	assert.Equal(t, queue.Running, status)
}

// runBehindBlocker starts Run for "waiter" while "blocker" holds the slot and
// returns once waiter is queued.
func runBehindBlocker(t *testing.T, ctx context.Context, h *midpoint.Handler, s *scheduler.Scheduler) <-chan bisect.Result {
	require.NoError(t, s.Schedule(ctx, bisect.Job{ID: "blocker", Config: configuration}))
	id, _, err := s.PickJob(ctx, configuration)
	require.NoError(t, err)
	require.Equal(t, "blocker", id)

	r := bisect.NewRunner(s, h, regressedAt(t, 7, 100)).WithPollInterval(5 * time.Millisecond)
	done := make(chan bisect.Result, 1)
	go func() {
		res, err := r.Run(ctx, bisect.Request{
			JobID:         "waiter",
			Configuration: configuration,
			Start:         parse(t, "chromium@chromium0"),
			End:           parse(t, "chromium@chromium9"),
		})
		assert.NoError(t, err)
		done <- res
	}()
	require.Eventually(t, func() bool {
		stats, err := s.QueueStats(ctx, configuration)
		return err == nil && stats.QueuedJobs == 1
	}, 5*time.Second, 5*time.Millisecond)
	return done
}

func TestRun_CancelledWhileQueued_ReturnsCancelled(t *testing.T) {
	h, s := setupForTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	done := runBehindBlocker(t, ctx, h, s)

	ok, err := s.Cancel(ctx, bisect.Job{ID: "waiter", Config: configuration})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.Complete(ctx, bisect.Job{ID: "blocker", Config: configuration}))

	select {
	case res := <-done:
		assert.Equal(t, "waiter", res.JobID)
		assert.Equal(t, bisect.StatusCancelled, res.Status)
		assert.NotEmpty(t, res.Reason)
		assert.Equal(t, 0, res.Comparisons)
	case <-time.After(10 * time.Second):
		require.Fail(t, "Run kept waiting for a cancelled job")
	}
	assertSlotReleased(t, s)
}

func TestRun_RemovedWhileQueued_ReturnsCancelled(t *testing.T) {
	h, s := setupForTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	done := runBehindBlocker(t, ctx, h, s)

	require.NoError(t, s.Remove(ctx, configuration, "waiter"))

	select {
	case res := <-done:
		assert.Equal(t, "waiter", res.JobID)
		assert.Equal(t, bisect.StatusCancelled, res.Status)
	case <-time.After(10 * time.Second):
		require.Fail(t, "Run kept waiting for a removed job")
	}

	// The blocker still holds the slot.
	id, status, err := s.PickJob(ctx, configuration)
	require.NoError(t, err)
	assert.Equal(t, "blocker", id)
	assert.Equal(t, queue.Running, status)
}

func TestRun_MissingConfiguration_ReturnsError(t *testing.T) {
	h, s := setupForTest(t)
	r := bisect.NewRunner(s, h, regressedAt(t, 7, 100))
	_, err := r.Run(context.Background(), bisect.Request{
		Start: parse(t, "chromium@chromium0"),
		End:   parse(t, "chromium@chromium9"),
	})
	assert.Error(t, err)
}
