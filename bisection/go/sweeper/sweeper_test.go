package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/bisection/bisection/go/bisect"
	"go.skia.org/bisection/bisection/go/scheduler"
	"go.skia.org/bisection/bisection/go/scheduler/store/memory"
)

func setupForTest(t *testing.T) *scheduler.Scheduler {
	ctx := context.Background()
	s := scheduler.New(memory.New(), scheduler.Options{})
	for _, j := range []bisect.Job{
		{ID: "m1", Config: "mac"},
		{ID: "m2", Config: "mac"},
		{ID: "w1", Config: "win"},
	} {
		require.NoError(t, s.Schedule(ctx, j))
	}
	return s
}

func TestSweepOnce_AdmitsHeadOfEveryConfiguration(t *testing.T) {
	s := setupForTest(t)
	var got []string
	sw := New(s, func(ctx context.Context, configuration, jobID string) {
		got = append(got, configuration+"/"+jobID)
	})

	admitted, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mac": "m1", "win": "w1"}, admitted)
	assert.Equal(t, []string{"mac/m1", "win/w1"}, got)
}

func TestSweepOnce_JobsAlreadyRunning_NothingAdmitted(t *testing.T) {
	s := setupForTest(t)
	sw := New(s, nil)
	_, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)

	admitted, err := sw.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, admitted)
}

func TestSweepOnce_AfterComplete_AdmitsNextJob(t *testing.T) {
	ctx := context.Background()
	s := setupForTest(t)
	sw := New(s, nil)
	_, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, bisect.Job{ID: "m1", Config: "mac"}))

	admitted, err := sw.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mac": "m2"}, admitted)
}

type flakyAdmitter struct {
	*scheduler.Scheduler
}

func (f flakyAdmitter) Pick(ctx context.Context, configuration string) (scheduler.Admission, error) {
	switch configuration {
	case "mac":
		return scheduler.Admission{}, errors.New("store unavailable")
	case "linux":
		return scheduler.Admission{}, errors.New("quota exceeded")
	}
	return f.Scheduler.Pick(ctx, configuration)
}

func TestSweepOnce_OneConfigurationFails_OthersStillSwept(t *testing.T) {
	sw := New(flakyAdmitter{setupForTest(t)}, nil)
	admitted, err := sw.SweepOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.Equal(t, map[string]string{"win": "w1"}, admitted)
}

func TestSweepOnce_SeveralConfigurationsFail_ReportsAll(t *testing.T) {
	s := setupForTest(t)
	require.NoError(t, s.Schedule(context.Background(), bisect.Job{ID: "l1", Config: "linux"}))
	sw := New(flakyAdmitter{s}, nil)
	admitted, err := sw.SweepOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, map[string]string{"win": "w1"}, admitted)
}

func TestStart_InvalidSchedule_ReturnsError(t *testing.T) {
	sw := New(setupForTest(t), nil)
	assert.Error(t, sw.Start(context.Background(), "not a cron spec"))
}

func TestStart_RunsOnSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mtx sync.Mutex
	admitted := map[string]string{}
	sw := New(setupForTest(t), func(ctx context.Context, configuration, jobID string) {
		mtx.Lock()
		defer mtx.Unlock()
		admitted[configuration] = jobID
	})
	require.NoError(t, sw.Start(ctx, "@every 1s"))

	assert.Eventually(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return len(admitted) == 2
	}, 5*time.Second, 50*time.Millisecond)
}
