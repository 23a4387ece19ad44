// Package sweeper periodically offers every configuration's slot to the
// oldest queued job, so jobs are admitted even when nobody polls for them.
package sweeper

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"go.skia.org/bisection/bisection/go/scheduler"
	"go.skia.org/bisection/go/metrics2"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/sklog"
)

// DefaultSchedule runs a sweep every minute.
const DefaultSchedule = "@every 1m"

// Admitter is the part of scheduler.Scheduler a Sweeper uses.
type Admitter interface {
	AllConfigurations(ctx context.Context) ([]string, error)
	Pick(ctx context.Context, configuration string) (scheduler.Admission, error)
}

// OnAdmitted is called for each job a sweep moved to Running.
type OnAdmitted func(ctx context.Context, configuration, jobID string)

// Sweeper calls Pick on every configuration on a cron schedule.
type Sweeper struct {
	admitter   Admitter
	onAdmitted OnAdmitted

	sweepCounter  metrics2.Counter
	errorsCounter metrics2.Counter
}

// New returns a Sweeper. onAdmitted may be nil.
func New(a Admitter, onAdmitted OnAdmitted) *Sweeper {
	return &Sweeper{
		admitter:      a,
		onAdmitted:    onAdmitted,
		sweepCounter:  metrics2.GetCounter("bisection_sweeper_sweeps"),
		errorsCounter: metrics2.GetCounter("bisection_sweeper_errors"),
	}
}

// SweepOnce picks a job on every configuration and returns the
// configurations whose jobs were newly admitted, mapped to the job ids. A
// failing configuration does not stop the sweep; the errors of all failed
// configurations are returned together once every configuration was tried.
func (s *Sweeper) SweepOnce(ctx context.Context) (map[string]string, error) {
	s.sweepCounter.Inc(1)
	configs, err := s.admitter.AllConfigurations(ctx)
	if err != nil {
		s.errorsCounter.Inc(1)
		return nil, skerr.Wrapf(err, "listing configurations")
	}
	admitted := map[string]string{}
	var errs *multierror.Error
	for _, config := range configs {
		a, err := s.admitter.Pick(ctx, config)
		if err != nil {
			s.errorsCounter.Inc(1)
			sklog.Errorf("Sweep of %q failed: %s", config, err)
			errs = multierror.Append(errs, skerr.Wrapf(err, "sweeping %q", config))
			continue
		}
		if !a.Promoted {
			continue
		}
		admitted[config] = a.JobID
		if s.onAdmitted != nil {
			s.onAdmitted(ctx, config, a.JobID)
		}
	}
	// ErrorOrNil keeps a nil *multierror.Error from becoming a non-nil error.
	return admitted, errs.ErrorOrNil()
}

// Start runs SweepOnce on schedule, a cron spec such as "@every 1m" or
// "*/5 * * * *", until ctx is done.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			sklog.Warningf("Sweep finished with errors: %s", err)
		}
	})
	if err != nil {
		return skerr.Wrapf(err, "invalid sweep schedule %q", schedule)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
