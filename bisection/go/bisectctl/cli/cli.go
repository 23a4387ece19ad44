// Package cli implements the bisectctl commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.skia.org/bisection/bisection/go/bisect"
	"go.skia.org/bisection/bisection/go/change"
	"go.skia.org/bisection/bisection/go/config"
	"go.skia.org/bisection/bisection/go/sweeper"
	"go.skia.org/bisection/go/skerr"
	"go.skia.org/bisection/go/sklog"
	"go.skia.org/bisection/go/sklog/stdlogging"
)

// flag names
const (
	configFlagName        = "config"
	verboseFlagName       = "verbose"
	configurationFlagName = "configuration"
	jobFlagName           = "job"
	startFlagName         = "start"
	endFlagName           = "end"
	watchFlagName         = "watch"
)

func configurationFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     configurationFlagName,
		Usage:    "hardware configuration the job runs on, e.g. mac-m1-pro-perf",
		Required: true,
	}
}

func jobFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     jobFlagName,
		Usage:    "job id",
		Required: required,
	}
}

// App returns the bisectctl application writing results to w.
func App(w io.Writer) *cli.App {
	var e *env
	withEnv := func(f func(c *cli.Context, e *env) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			return f(c, e)
		}
	}
	return &cli.App{
		Name:   "bisectctl",
		Usage:  "bisectctl computes bisection midpoints and manages the per-configuration job queues.",
		Writer: w,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configFlagName,
				Usage: "path to a JSON5 instance config; an in-memory store and no repositories if empty",
			},
			&cli.BoolFlag{
				Name:  verboseFlagName,
				Usage: "log at debug level",
			},
		},
		Before: func(c *cli.Context) error {
			sklog.SetLogger(stdlogging.New(os.Stderr, c.Bool(verboseFlagName)))
			cfg := config.Default()
			if path := c.String(configFlagName); path != "" {
				var err error
				if cfg, err = config.Load(path); err != nil {
					return err
				}
			}
			var err error
			e, err = newEnv(c.Context, cfg)
			return err
		},
		After: func(c *cli.Context) error {
			if e != nil {
				e.close()
			}
			sklog.Flush()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:        "midpoint",
				Usage:       "bisectctl midpoint --start chromium@abc --end chromium@def",
				Description: "Prints the next Change to test between two Changes given as repo@hash,repo@hash.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: startFlagName, Required: true},
					&cli.StringFlag{Name: endFlagName, Required: true},
				},
				Action: withEnv(midpointAction),
			},
			{
				Name:   "schedule",
				Usage:  "Appends a job to a configuration's queue and prints its id.",
				Flags:  []cli.Flag{configurationFlag(), jobFlag(false)},
				Action: withEnv(scheduleAction),
			},
			{
				Name:   "pick",
				Usage:  "Prints the job allowed to run on a configuration, admitting the next one if the slot is free.",
				Flags:  []cli.Flag{configurationFlag()},
				Action: withEnv(pickAction),
			},
			{
				Name:   "cancel",
				Usage:  "Cancels a queued or running job.",
				Flags:  []cli.Flag{configurationFlag(), jobFlag(true)},
				Action: withEnv(cancelAction),
			},
			{
				Name:   "complete",
				Usage:  "Marks a running job as done.",
				Flags:  []cli.Flag{configurationFlag(), jobFlag(true)},
				Action: withEnv(completeAction),
			},
			{
				Name:   "remove",
				Usage:  "Deletes a job from a queue whatever its status.",
				Flags:  []cli.Flag{configurationFlag(), jobFlag(true)},
				Action: withEnv(removeAction),
			},
			{
				Name:   "stats",
				Usage:  "Prints queue statistics as JSON.",
				Flags:  []cli.Flag{configurationFlag()},
				Action: withEnv(statsAction),
			},
			{
				Name:   "configurations",
				Usage:  "Lists every configuration with a queue.",
				Action: withEnv(configurationsAction),
			},
			{
				Name:  "sweep",
				Usage: "Admits the next job on every configuration whose slot is free.",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  watchFlagName,
						Usage: "keep sweeping on the configured schedule until interrupted",
					},
				},
				Action: withEnv(sweepAction),
			},
		},
	}
}

func job(c *cli.Context) bisect.Job {
	return bisect.Job{ID: c.String(jobFlagName), Config: c.String(configurationFlagName)}
}

func midpointAction(c *cli.Context, e *env) error {
	ctx := c.Context
	start, err := change.Parse(c.String(startFlagName))
	if err != nil {
		return skerr.Wrapf(err, "parsing --%s", startFlagName)
	}
	end, err := change.Parse(c.String(endFlagName))
	if err != nil {
		return skerr.Wrapf(err, "parsing --%s", endFlagName)
	}
	a, b, err := e.handler.ExpandDeps(ctx, start, end)
	if err != nil {
		return err
	}
	step, ok, err := e.handler.Step(ctx, a, b)
	if err != nil {
		return err
	}
	if !ok {
		_, err = fmt.Fprintf(c.App.Writer, "No midpoint: %s and %s are adjacent (%s).\nCulprit: %s\n", step.Lower, step.Upper, step.Decision, step.Lower)
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, step.Mid.ID())
	return err
}

func scheduleAction(c *cli.Context, e *env) error {
	j := job(c)
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if err := e.scheduler.Schedule(c.Context, j); err != nil {
		return err
	}
	_, err := fmt.Fprintln(c.App.Writer, j.ID)
	return err
}

func pickAction(c *cli.Context, e *env) error {
	id, status, err := e.scheduler.PickJob(c.Context, c.String(configurationFlagName))
	if err != nil {
		return err
	}
	if id == "" {
		_, err = fmt.Fprintln(c.App.Writer, "No job.")
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "%s %s\n", id, status)
	return err
}

func cancelAction(c *cli.Context, e *env) error {
	ok, err := e.scheduler.Cancel(c.Context, job(c))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, ok)
	return err
}

func completeAction(c *cli.Context, e *env) error {
	return e.scheduler.Complete(c.Context, job(c))
}

func removeAction(c *cli.Context, e *env) error {
	return e.scheduler.Remove(c.Context, c.String(configurationFlagName), c.String(jobFlagName))
}

func statsAction(c *cli.Context, e *env) error {
	stats, err := e.scheduler.QueueStats(c.Context, c.String(configurationFlagName))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func configurationsAction(c *cli.Context, e *env) error {
	configs, err := e.scheduler.AllConfigurations(c.Context)
	if err != nil {
		return err
	}
	for _, name := range configs {
		if _, err := fmt.Fprintln(c.App.Writer, name); err != nil {
			return err
		}
	}
	return nil
}

func sweepAction(c *cli.Context, e *env) error {
	printAdmitted := func(ctx context.Context, configuration, jobID string) {
		_, _ = fmt.Fprintf(c.App.Writer, "%s %s\n", configuration, jobID)
	}
	sw := sweeper.New(e.scheduler, printAdmitted)
	if !c.Bool(watchFlagName) {
		_, err := sw.SweepOnce(c.Context)
		return err
	}
	if err := sw.Start(c.Context, e.cfg.SweepSchedule); err != nil {
		return err
	}
	sklog.Infof("Sweeping on %q until interrupted.", e.cfg.SweepSchedule)
	<-c.Context.Done()
	return nil
}
