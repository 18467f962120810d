// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSweepSpec = "@every 1m"
	sweepTimeout     = 30 * time.Second
)

// Sweeper deletes released images.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	Pending() int
}

type Scheduler struct {
	ctx     context.Context
	cron    *cron.Cron
	spec    string
	sweeper Sweeper
	log     *slog.Logger
}

func New(ctx context.Context, spec string, sweeper Sweeper, log *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSweepSpec
	}

	return &Scheduler{
		ctx:     ctx,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		spec:    spec,
		sweeper: sweeper,
		log:     log,
	}
}

// Spec returns the cron expression the sweep runs on.
func (s *Scheduler) Spec() string {
	return s.spec
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweepImages); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

// Stop stops the cron and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce sweeps immediately, outside the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.sweep(ctx)
}

func (s *Scheduler) sweepImages() {
	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	s.sweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) {
	pending := s.sweeper.Pending()
	if pending == 0 {
		return
	}

	removed, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to sweep released images",
			"error", err,
			"pending", pending,
			"removed", removed)
		return
	}

	s.log.InfoContext(ctx, "Released images are swept",
		"removed", removed)
}
