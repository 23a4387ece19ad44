// Package bisect runs one bisection job: it waits for a scheduler slot on
// the job's configuration, then narrows the interval between two Changes
// until Midpoint reports nothing left to test.
package bisect

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/midpoint"
	"go.skia.org/bisection/bisection/go/scheduler"
	"go.skia.org/bisection/bisection/go/scheduler/queue"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/sklog"
)

const (
	// DefaultPollInterval is how often PickJob is polled while waiting for
	// admission.
	DefaultPollInterval = 30 * time.Second

	// DefaultMaxIterations bounds the number of Compare calls per job.
	DefaultMaxIterations = 64

	releaseTimeout = 30 * time.Second
)

// Verdict is the outcome of comparing two Changes.
type Verdict string

const (
	Same      Verdict = "Same"
	Different Verdict = "Different"
	Unknown   Verdict = "Unknown"
)

// Tester measures two Changes and decides whether they perform differently.
type Tester interface {
	Compare(ctx context.Context, a, b change.Change) (Verdict, error)
}

// TesterFunc adapts a function to a Tester.
type TesterFunc func(ctx context.Context, a, b change.Change) (Verdict, error)

// Compare implements Tester.
func (f TesterFunc) Compare(ctx context.Context, a, b change.Change) (Verdict, error) {
	return f(ctx, a, b)
}

// Scheduler is the part of scheduler.Scheduler a Runner uses.
type Scheduler interface {
	Schedule(ctx context.Context, job scheduler.Job) error
	PickJob(ctx context.Context, configuration string) (string, queue.Status, error)
	Cancel(ctx context.Context, job scheduler.Job) (bool, error)
	Complete(ctx context.Context, job scheduler.Job) error
	JobStatus(ctx context.Context, configuration, jobID string) (queue.Status, bool, error)
}

// Bisector is the part of midpoint.Handler a Runner uses.
type Bisector interface {
	ExpandDeps(ctx context.Context, a, b change.Change) (change.Change, change.Change, error)
	Step(ctx context.Context, a, b change.Change) (midpoint.Step, bool, error)
}

// Status is the final state of a job.
type Status string

const (
	// StatusCulpritFound means the interval was narrowed to adjacent Changes.
	StatusCulpritFound Status = "CulpritFound"

	// StatusNoDifference means Start and End performed the same.
	StatusNoDifference Status = "NoDifference"

	// StatusFailedNeedsTriage means the job stopped on input it cannot
	// bisect, or on an inconclusive comparison, and needs a human.
	StatusFailedNeedsTriage Status = "FailedNeedsTriage"

	// StatusCancelled means the job was cancelled or removed from its queue
	// before it was admitted.
	StatusCancelled Status = "Cancelled"
)

// Request describes a bisection job.
type Request struct {
	// JobID is generated if empty.
	JobID         string
	Configuration string
	Start         change.Change
	End           change.Change
}

// Job implements scheduler.Job.
type Job struct {
	ID     string
	Config string
}

// JobID implements scheduler.Job.
func (j Job) JobID() string { return j.ID }

// Configuration implements scheduler.Job.
func (j Job) Configuration() string { return j.Config }

// Result is the outcome of Run.
type Result struct {
	JobID  string
	Status Status

	// Culprit is the lower bound of the final interval. Set only for
	// StatusCulpritFound.
	Culprit change.Change

	// Lower and Upper are the last bounds bisected.
	Lower change.Change
	Upper change.Change

	// Reason explains StatusFailedNeedsTriage and StatusCancelled.
	Reason string

	// Comparisons is the number of Compare calls made.
	Comparisons int
}

// Runner runs bisection jobs.
type Runner struct {
	scheduler     Scheduler
	bisector      Bisector
	tester        Tester
	pollInterval  time.Duration
	maxIterations int
}

// NewRunner returns a Runner.
func NewRunner(s Scheduler, b Bisector, t Tester) *Runner {
	return &Runner{
		scheduler:     s,
		bisector:      b,
		tester:        t,
		pollInterval:  DefaultPollInterval,
		maxIterations: DefaultMaxIterations,
	}
}

// WithPollInterval sets how often admission is polled.
func (r *Runner) WithPollInterval(d time.Duration) *Runner {
	r.pollInterval = d
	return r
}

// WithMaxIterations sets the Compare budget per job.
func (r *Runner) WithMaxIterations(n int) *Runner {
	r.maxIterations = n
	return r
}

// Run schedules the job, waits for admission and bisects. The scheduler
// slot is always released: Complete on a result, Cancel on an error or a
// result needing triage. A job cancelled or removed by someone else while
// queued returns StatusCancelled.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Configuration == "" {
		return Result{}, skerr.Fmt("configuration is required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return Result{}, skerr.Fmt("start and end changes are required")
	}
	job := Job{ID: req.JobID, Config: req.Configuration}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := r.scheduler.Schedule(ctx, job); err != nil {
		return Result{}, skerr.Wrapf(err, "scheduling job %s", job.ID)
	}
	if err := r.waitForAdmission(ctx, job); err != nil {
		var w *withdrawnError
		if errors.As(err, &w) {
			sklog.Warningf("Job %s left the queue before admission: %s", job.ID, w.reason)
			return Result{JobID: job.ID, Status: StatusCancelled, Reason: w.reason}, nil
		}
		r.release(ctx, job, false)
		return Result{}, err
	}
	sklog.Infof("Job %s admitted on %q: bisecting %s..%s", job.ID, job.Config, req.Start, req.End)

	res, err := r.bisect(ctx, job.ID, req.Start, req.End)
	if err != nil {
		if change.IsNonLinear(err) {
			res.Status = StatusFailedNeedsTriage
			res.Reason = err.Error()
			r.release(ctx, job, false)
			sklog.Warningf("Job %s needs triage: %s", job.ID, err)
			return res, nil
		}
		r.release(ctx, job, false)
		return res, err
	}
	r.release(ctx, job, res.Status != StatusFailedNeedsTriage)
	sklog.Infof("Job %s finished with %s", job.ID, res.Status)
	return res, nil
}

// withdrawnError means the job left the queue, or reached a terminal state in
// it, without this Runner admitting it.
type withdrawnError struct {
	reason string
}

func (e *withdrawnError) Error() string { return e.reason }

func (r *Runner) waitForAdmission(ctx context.Context, job Job) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		id, status, err := r.scheduler.PickJob(ctx, job.Config)
		if err != nil {
			return skerr.Wrapf(err, "waiting for admission of job %s", job.ID)
		}
		if id == job.ID && status == queue.Running {
			return nil
		}
		own, ok, err := r.scheduler.JobStatus(ctx, job.Config, job.ID)
		if err != nil {
			return skerr.Wrapf(err, "waiting for admission of job %s", job.ID)
		}
		if !ok {
			return &withdrawnError{reason: "job was removed from the queue"}
		}
		if own.Terminal() {
			return &withdrawnError{reason: "job is " + string(own) + " in the queue"}
		}
		select {
		case <-ctx.Done():
			return skerr.Wrapf(ctx.Err(), "waiting for admission of job %s", job.ID)
		case <-ticker.C:
		}
	}
}

// release frees the slot even if ctx is already cancelled.
func (r *Runner) release(ctx context.Context, job Job, completed bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if completed {
		if err := r.scheduler.Complete(ctx, job); err != nil {
			sklog.Errorf("Failed to complete job %s: %s", job.ID, err)
		}
		return
	}
	if _, err := r.scheduler.Cancel(ctx, job); err != nil {
		sklog.Errorf("Failed to cancel job %s: %s", job.ID, err)
	}
}

func (r *Runner) compare(ctx context.Context, res *Result, a, b change.Change) (Verdict, error) {
	res.Comparisons++
	v, err := r.tester.Compare(ctx, a, b)
	if err != nil {
		return Unknown, skerr.Wrapf(err, "comparing %s and %s", a, b)
	}
	return v, nil
}

func (r *Runner) bisect(ctx context.Context, jobID string, start, end change.Change) (Result, error) {
	res := Result{
		JobID: jobID,
		Lower: start,
		Upper: end,
	}
	v, err := r.compare(ctx, &res, start, end)
	if err != nil {
		return res, err
	}
	switch v {
	case Same:
		res.Status = StatusNoDifference
		return res, nil
	case Unknown:
		res.Status = StatusFailedNeedsTriage
		res.Reason = "comparison of start and end was inconclusive"
		return res, nil
	}

	lower, upper := start, end
	for {
		a, b, err := r.bisector.ExpandDeps(ctx, lower, upper)
		if err != nil {
			return res, skerr.Wrap(err)
		}
		step, ok, err := r.bisector.Step(ctx, a, b)
		if err != nil {
			return res, skerr.Wrap(err)
		}
		res.Lower, res.Upper = step.Lower, step.Upper
		if !ok {
			res.Status = StatusCulpritFound
			res.Culprit = step.Lower
			return res, nil
		}
		if res.Comparisons >= r.maxIterations {
			res.Status = StatusFailedNeedsTriage
			res.Reason = "comparison budget exhausted"
			return res, nil
		}

		v, err := r.compare(ctx, &res, step.Lower, step.Mid)
		if err != nil {
			return res, err
		}
		switch v {
		case Different:
			lower, upper = step.Lower, step.Mid
		case Same:
			lower, upper = step.Mid, step.Upper
		default:
			res.Status = StatusFailedNeedsTriage
			res.Reason = "comparison of " + step.Lower.String() + " and " + step.Mid.String() + " was inconclusive"
			return res, nil
		}
	}
}
