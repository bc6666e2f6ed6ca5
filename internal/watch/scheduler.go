// Package watch re-runs the compliance check on a cron schedule.
package watch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomoyayamashita/ai-optout/internal/compliance"
	"github.com/tomoyayamashita/ai-optout/internal/events"
	"github.com/tomoyayamashita/ai-optout/internal/logger"
	"github.com/tomoyayamashita/ai-optout/internal/metrics"
)

// Runner performs one compliance check; *compliance.Checker satisfies it
type Runner interface {
	Run(ctx context.Context) (*compliance.Run, error)
}

// Scheduler runs the check immediately and then on a cron schedule.
// A tick that fires while a check is still in progress is skipped.
type Scheduler struct {
	schedule string
	runner   Runner
	metrics  *metrics.Metrics
	emitter  events.Emitter
	log      *logger.Logger
	now      func() time.Time

	busy atomic.Bool
}

// NewScheduler creates a scheduler. emitter may be nil.
func NewScheduler(schedule string, runner Runner, m *metrics.Metrics, emitter events.Emitter, log *logger.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		schedule: schedule,
		runner:   runner,
		metrics:  m,
		emitter:  emitter,
		log:      log,
		now:      time.Now,
	}, nil
}

// Run blocks until ctx is canceled, then waits for an in-flight check to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule compliance check: %w", err)
	}

	s.log.Info("watch_started", "Compliance watch started", map[string]interface{}{
		"schedule": s.schedule,
	})

	s.RunOnce(ctx)

	c.Start()
	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()

	s.log.Info("watch_stopped", "Compliance watch stopped", nil)
	return nil
}

// RunOnce performs a single check and records it. It returns false if a
// check was already in progress.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Warn("watch_skipped", "Previous compliance check still running", nil)
		return false
	}
	defer s.busy.Store(false)

	start := s.now()
	run, err := s.runner.Run(ctx)
	if err != nil {
		// Checker already logged the failure
		s.metrics.RecordFailure(s.now().Sub(start))
		return true
	}

	s.metrics.RecordRun(len(run.Snapshot.Policies), run.Decision, run.Duration, run.StartedAt)

	if s.emitter != nil {
		if err := s.emitter.Emit(ctx, events.FromRun(run)); err != nil {
			s.log.Warn("emit_failed", "Failed to publish compliance event", map[string]interface{}{
				"run_id": run.ID,
				"error":  err.Error(),
			})
		}
	}
	return true
}
