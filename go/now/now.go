// Package now returns the current time, overridable through the context so
// that enqueue times and wait-time samples are deterministic in tests.
package now

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type contextKeyType string

// ContextKey is the context key under which a fixed time.Time or a
// NowProvider may be stored.
//
//	ctx = context.WithValue(ctx, now.ContextKey, time.Unix(0, 12).UTC())
const ContextKey contextKeyType = "overwriteNow"

// NowProvider is evaluated on every call to Now with a context carrying it.
// It must be threadsafe if the context is shared across goroutines.
type NowProvider func() time.Time

// Now returns the time stored in ctx, or time.Now() if there is none.
func Now(ctx context.Context) time.Time {
	if ts := ctx.Value(ContextKey); ts != nil {
		switch v := ts.(type) {
		case NowProvider:
			return v()
		case time.Time:
			return v
		default:
			panic(fmt.Sprintf("Unknown value for ContextKey: %v", v))
		}
	}
	return time.Now()
}

// TimeTravelCtx is a context whose apparent time can be moved by tests.
//
//	ctx := now.TimeTravelingContext(start)
//	s.Schedule(ctx, job)
//	ctx.SetTime(start.Add(2 * time.Minute))
//	s.Complete(ctx, job)
type TimeTravelCtx struct {
	context.Context

	mutex sync.RWMutex
	ts    time.Time
}

// TimeTravelingContext returns a *TimeTravelCtx derived from
// context.Background() that starts at the given time.
func TimeTravelingContext(start time.Time) *TimeTravelCtx {
	t := &TimeTravelCtx{
		ts: start,
	}
	t.Context = context.WithValue(context.Background(), ContextKey, NowProvider(t.now))
	return t
}

func (t *TimeTravelCtx) now() time.Time {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.ts
}

// SetTime changes the time returned by Now for this context.
func (t *TimeTravelCtx) SetTime(newTime time.Time) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.ts = newTime
}

// Advance moves the apparent time forward by d.
func (t *TimeTravelCtx) Advance(d time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.ts = t.ts.Add(d)
}
