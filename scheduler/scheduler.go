package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/azure/tagged-resource-cleanup/types"
)

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type IJob interface {
	Name() string
	Run(ctx context.Context) (*types.RunSummary, error)
}

// Scheduler triggers a job on a six-field cron expression. A tick that fires while the
// previous run is still active is skipped.
type Scheduler struct {
	Expression string
	Job        IJob
	Logger     *logrus.Logger

	schedule cron.Schedule
}

func NewScheduler(expression string, job IJob, logger *logrus.Logger) (*Scheduler, error) {
	schedule, err := ParseSchedule(expression)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		Expression: expression,
		Job:        job,
		Logger:     logger,
		schedule:   schedule,
	}, nil
}

func ParseSchedule(expression string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", expression, err)
	}
	return schedule, nil
}

// Next returns the first activation strictly after t.
func (scheduler *Scheduler) Next(t time.Time) time.Time {
	return scheduler.schedule.Next(t)
}

// Start blocks until ctx is cancelled, then waits for an active run to finish.
func (scheduler *Scheduler) Start(ctx context.Context) error {
	cronLogger := NewCronLogger(scheduler.Logger)
	runner := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	runner.Schedule(scheduler.schedule, cron.FuncJob(func() {
		scheduler.runOnce(ctx)
	}))

	scheduler.Logger.Infof("Scheduling %s with '%s', next run at %s", scheduler.Job.Name(), scheduler.Expression, scheduler.Next(time.Now()).Format(time.RFC3339))
	runner.Start()

	<-ctx.Done()
	scheduler.Logger.Infof("Stopping scheduler, waiting for the active %s run to finish", scheduler.Job.Name())
	<-runner.Stop().Done()
	return nil
}

func (scheduler *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	// The run is not tied to ctx so a shutdown lets the in-flight deletes reach a terminal state.
	summary, err := scheduler.Job.Run(context.WithoutCancel(ctx))
	if err != nil {
		scheduler.Logger.Errorf("%s run failed: %v", scheduler.Job.Name(), err)
		return
	}
	scheduler.Logger.Debugf("%s run %s finished: %d deleted, %d failed", scheduler.Job.Name(), summary.RunID, summary.Deleted, summary.Failed)
}
