package now

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestNow_FixedTimeInContext_ReturnsFixedTime(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKey, start)
	assert.Equal(t, start, Now(ctx))
}

func TestNow_NoValue_ReturnsWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestTimeTravelCtx_AdvanceAndSet_MovesApparentTime(t *testing.T) {
	ctx := TimeTravelingContext(start)
	assert.Equal(t, start, Now(ctx))

	ctx.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), Now(ctx))

	ctx.SetTime(start.Add(time.Hour))
	assert.Equal(t, start.Add(time.Hour), Now(ctx))
}
