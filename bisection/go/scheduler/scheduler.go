// Package scheduler admits at most one bisection job at a time per
// configuration. Every operation is one read-modify-write of the
// configuration's queue in a store.Store; transaction conflicts are retried
// with exponential backoff.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/bisection/go/scheduler/store"
	"go.skia.org/bisection/go/metrics2"
	"go.skia.org/bisection/go/now"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/sklog"
)

const (
	// DefaultMaxConflictRetries is how many times a conflicting transaction
	// is retried before the conflict is returned.
	DefaultMaxConflictRetries = 5

	conflictInitialInterval = 20 * time.Millisecond
	conflictMaxInterval     = time.Second
)

// Job is the part of a bisection job the Scheduler needs.
type Job interface {
	JobID() string
	Configuration() string
}

// Options configures a Scheduler. Zero values use the defaults.
type Options struct {
	MaxConflictRetries int `json:"max_conflict_retries"`
	WaitTimeSamples    int `json:"wait_time_samples"`
}

func (o Options) withDefaults() Options {
	if o.MaxConflictRetries <= 0 {
		o.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if o.WaitTimeSamples <= 0 {
		o.WaitTimeSamples = queue.DefaultWaitTimeSamples
	}
	return o
}

// Admission is the result of Pick.
type Admission struct {
	// JobID is empty if no job may run.
	JobID  string
	Status queue.Status

	// Promoted is true if this call moved the job from Queued to Running.
	Promoted bool
}

// Scheduler implements per-configuration FIFO admission control.
type Scheduler struct {
	store store.Store
	opts  Options
}

// New returns a Scheduler backed by s.
func New(s store.Store, opts Options) *Scheduler {
	return &Scheduler{
		store: s,
		opts:  opts.withDefaults(),
	}
}

func counter(op, configuration string) metrics2.Counter {
	return metrics2.GetCounter("bisection_scheduler_"+op, map[string]string{"configuration": configuration})
}

func (s *Scheduler) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = conflictInitialInterval
	exp.MaxInterval = conflictMaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.opts.MaxConflictRetries)), ctx)
}

// update runs fn in a store transaction, retrying conflicts. fn may run more
// than once, so it must reset any results it records.
func (s *Scheduler) update(ctx context.Context, op, configuration string, fn store.UpdateCallback) error {
	conflicts := counter("conflict", configuration)
	queued := metrics2.GetInt64Metric("bisection_scheduler_queued", map[string]string{"configuration": configuration})
	wrapped := func(q *queue.ConfigurationQueue) (bool, error) {
		write, err := fn(q)
		if err == nil && write {
			queued.Update(int64(q.Stats().QueuedJobs))
		}
		return write, err
	}
	operation := func() error {
		err := s.store.Update(ctx, configuration, wrapped)
		if err == nil || store.IsConflict(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, d time.Duration) {
		conflicts.Inc(1)
		sklog.Warningf("%s on %q conflicted, retrying in %s: %s", op, configuration, d, err)
	}
	if err := backoff.RetryNotify(operation, s.newBackOff(ctx), notify); err != nil {
		return skerr.Wrapf(err, "%s on configuration %q", op, configuration)
	}
	counter(op, configuration).Inc(1)
	return nil
}

// Schedule appends job to the end of its configuration's queue. Scheduling a
// job that is already Queued or Running is a no-op.
func (s *Scheduler) Schedule(ctx context.Context, job Job) error {
	if job.JobID() == "" {
		return skerr.Fmt("job id is required")
	}
	ts := now.Now(ctx)
	added := false
	err := s.update(ctx, "schedule", job.Configuration(), func(q *queue.ConfigurationQueue) (bool, error) {
		added = false
		if e, ok := q.Find(job.JobID()); ok && !e.Status.Terminal() {
			return false, nil
		}
		q.Enqueue(job.JobID(), ts)
		added = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if added {
		sklog.Infof("Scheduled job %s on %q", job.JobID(), job.Configuration())
	}
	return nil
}

// Pick returns the job allowed to run on configuration, promoting the oldest
// Queued job if nothing is Running.
func (s *Scheduler) Pick(ctx context.Context, configuration string) (Admission, error) {
	var rv Admission
	err := s.update(ctx, "pick", configuration, func(q *queue.ConfigurationQueue) (bool, error) {
		rv = Admission{}
		running := runningJob(q)
		e, ok, changed := q.Pick()
		if ok {
			rv = Admission{
				JobID:    e.JobID,
				Status:   e.Status,
				Promoted: e.JobID != running,
			}
		}
		return changed, nil
	})
	if err != nil {
		return Admission{}, err
	}
	if rv.Promoted {
		sklog.Infof("Job %s is now Running on %q", rv.JobID, configuration)
	}
	return rv, nil
}

func runningJob(q *queue.ConfigurationQueue) string {
	for _, e := range q.Elements {
		if e.Status == queue.Running {
			return e.JobID
		}
	}
	return ""
}

// PickJob returns the id and status of the job allowed to run on
// configuration, or empty strings if there is none.
func (s *Scheduler) PickJob(ctx context.Context, configuration string) (string, queue.Status, error) {
	a, err := s.Pick(ctx, configuration)
	if err != nil {
		return "", "", err
	}
	return a.JobID, a.Status, nil
}

// Cancel moves a Queued or Running job to Cancelled. Returns false if the job
// was unknown or already finished.
func (s *Scheduler) Cancel(ctx context.Context, job Job) (bool, error) {
	cancelled := false
	err := s.update(ctx, "cancel", job.Configuration(), func(q *queue.ConfigurationQueue) (bool, error) {
		cancelled = q.Cancel(job.JobID())
		return cancelled, nil
	})
	if err != nil {
		return false, err
	}
	if cancelled {
		sklog.Infof("Cancelled job %s on %q", job.JobID(), job.Configuration())
	}
	return cancelled, nil
}

// Complete moves a Running job to Done and records its wait time. It is a
// no-op for a job that is not Running.
func (s *Scheduler) Complete(ctx context.Context, job Job) error {
	ts := now.Now(ctx)
	completed := false
	var wait time.Duration
	err := s.update(ctx, "complete", job.Configuration(), func(q *queue.ConfigurationQueue) (bool, error) {
		before := len(q.Elements)
		completed = q.Complete(job.JobID(), ts, s.opts.WaitTimeSamples)
		if completed {
			wait = q.WaitTimeSamples[len(q.WaitTimeSamples)-1].Duration()
		}
		return completed || len(q.Elements) != before, nil
	})
	if err != nil {
		return err
	}
	if completed {
		metrics2.GetFloat64SummaryMetric("bisection_scheduler_wait_time_s", map[string]string{"configuration": job.Configuration()}).Observe(wait.Seconds())
		sklog.Infof("Completed job %s on %q after %s", job.JobID(), job.Configuration(), wait)
	}
	return nil
}

// Remove deletes jobID from the queue whatever its status.
func (s *Scheduler) Remove(ctx context.Context, configuration, jobID string) error {
	removed := false
	err := s.update(ctx, "remove", configuration, func(q *queue.ConfigurationQueue) (bool, error) {
		removed = q.Remove(jobID)
		return removed, nil
	})
	if err != nil {
		return err
	}
	if removed {
		sklog.Infof("Removed job %s from %q", jobID, configuration)
	}
	return nil
}

// JobStatus returns the status of jobID in configuration's queue. The bool is
// false if the job is not in the queue, either because it was never
// scheduled or because it was removed or pruned.
func (s *Scheduler) JobStatus(ctx context.Context, configuration, jobID string) (queue.Status, bool, error) {
	q, err := s.store.Get(ctx, configuration)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, skerr.Wrapf(err, "loading queue %q", configuration)
	}
	e, ok := q.Find(jobID)
	return e.Status, ok, nil
}

// QueueStats returns a snapshot of configuration's queue. A configuration
// without a queue has zero stats.
func (s *Scheduler) QueueStats(ctx context.Context, configuration string) (queue.Stats, error) {
	q, err := s.store.Get(ctx, configuration)
	if errors.Is(err, store.ErrNotFound) {
		return queue.New(configuration).Stats(), nil
	}
	if err != nil {
		return queue.Stats{}, skerr.Wrapf(err, "loading queue %q", configuration)
	}
	return q.Stats(), nil
}

// AllConfigurations returns every configuration that has a queue.
func (s *Scheduler) AllConfigurations(ctx context.Context) ([]string, error) {
	rv, err := s.store.List(ctx)
	return rv, skerr.Wrap(err)
}
