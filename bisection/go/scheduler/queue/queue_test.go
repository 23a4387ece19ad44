package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPick_EmptyQueue_NothingRunning(t *testing.T) {
	q := New("mac")
	_, ok, changed := q.Pick()
	assert.False(t, ok)
	assert.False(t, changed)
}

func TestPick_PromotesHeadOnce(t *testing.T) {
	q := New("mac")
	q.Enqueue("j1", t0)
	q.Enqueue("j2", t0.Add(time.Second))

	e, ok, changed := q.Pick()
	require.True(t, ok)
	assert.True(t, changed)
	assert.Equal(t, "j1", e.JobID)
	assert.Equal(t, Running, e.Status)

	e, ok, changed = q.Pick()
	require.True(t, ok)
	assert.False(t, changed)
	assert.Equal(t, "j1", e.JobID)
	assert.Equal(t, 1, q.Stats().RunningJobs)
	assert.Equal(t, 1, q.Stats().QueuedJobs)
}

func TestPick_AllTerminal_PrunesAndReturnsNothing(t *testing.T) {
	q := New("mac")
	q.Enqueue("j1", t0)
	q.Enqueue("j2", t0)
	require.True(t, q.Cancel("j1"))
	require.True(t, q.Cancel("j2"))

	_, ok, changed := q.Pick()
	assert.False(t, ok)
	assert.True(t, changed)
	assert.Empty(t, q.Elements)
}

func TestCancel_TerminalOrUnknown_ReturnsFalse(t *testing.T) {
	q := New("mac")
	q.Enqueue("j1", t0)
	_, _, _ = q.Pick()
	require.True(t, q.Complete("j1", t0.Add(time.Minute), 0))

	assert.False(t, q.Cancel("j1"))
	assert.False(t, q.Cancel("nope"))
	e, _ := q.Find("j1")
	assert.Equal(t, Done, e.Status)
}

func TestComplete_NotRunning_NoOp(t *testing.T) {
	q := New("mac")
	q.Enqueue("j1", t0)
	assert.False(t, q.Complete("j1", t0, 0))
	assert.Empty(t, q.WaitTimeSamples)
}

func TestComplete_RecordsWaitTime(t *testing.T) {
	q := New("mac")
	q.Enqueue("j1", t0)
	_, _, _ = q.Pick()
	require.True(t, q.Complete("j1", t0.Add(time.Hour), 0))
	require.Len(t, q.WaitTimeSamples, 1)
	assert.Equal(t, time.Hour, q.WaitTimeSamples[0].Duration())
}

func TestComplete_ReservoirBounded(t *testing.T) {
	q := New("mac")
	for i := 0; i < 3*DefaultWaitTimeSamples; i++ {
		id := fmt.Sprintf("j%d", i)
		q.Enqueue(id, t0.Add(time.Duration(i)*time.Minute))
		e, ok, _ := q.Pick()
		require.True(t, ok)
		require.Equal(t, id, e.JobID)
		require.True(t, q.Complete(id, t0.Add(time.Duration(i+1)*time.Minute), 0))
		require.LessOrEqual(t, len(q.WaitTimeSamples), DefaultWaitTimeSamples)
	}
	require.Len(t, q.WaitTimeSamples, DefaultWaitTimeSamples)
	// The oldest samples were evicted.
	assert.Equal(t, t0.Add(100*time.Minute), q.WaitTimeSamples[0].EnqueueTime)
}

func TestRemove_AnyStatus(t *testing.T) {
	q := New("mac")
	q.Enqueue("j1", t0)
	q.Enqueue("j2", t0)
	q.Enqueue("j3", t0)
	_, _, _ = q.Pick()

	assert.True(t, q.Remove("j1"))
	assert.True(t, q.Remove("j3"))
	assert.False(t, q.Remove("j3"))
	require.Len(t, q.Elements, 1)
	assert.Equal(t, "j2", q.Elements[0].JobID)
}

func TestCopy_IsDeep(t *testing.T) {
	q := New("mac")
	q.Enqueue("j1", t0)
	c := q.Copy()
	c.Elements[0].Status = Cancelled
	assert.Equal(t, Queued, q.Elements[0].Status)
}
