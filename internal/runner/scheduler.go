package runner

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a pass every hour.
const DefaultSchedule = "@every 1h"

// Scheduler repeats a job on a cron schedule. A tick that arrives while the
// previous run is still going is dropped.
type Scheduler struct {
	schedule cron.Schedule
	spec     string
}

// NewScheduler parses spec, a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 30m".
func NewScheduler(spec string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schedule %q: %w", spec, err)
	}
	return &Scheduler{schedule: schedule, spec: spec}, nil
}

// Run runs job once immediately and then on every tick until ctx is done.
// It returns after the in-flight run, if any, has finished.
func (s *Scheduler) Run(ctx context.Context, job func(ctx context.Context)) {
	logger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithLogger(logger))

	wrapped := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { job(ctx) }))
	c.Schedule(s.schedule, wrapped)

	c.Start()
	log.Printf("Scheduled sync %q", s.spec)
	first := make(chan struct{})
	go func() {
		defer close(first)
		wrapped.Run()
	}()

	<-ctx.Done()
	log.Printf("Stopping scheduler, waiting for the current run to finish")
	<-c.Stop().Done()
	<-first
}
