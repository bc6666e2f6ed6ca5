// Package compliance runs a single collect-and-evaluate pass.
package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomoyayamashita/ai-optout/internal/logger"
	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

// Source supplies snapshots; *collector.Collector satisfies it
type Source interface {
	Snapshot(ctx context.Context) (*policy.Snapshot, error)
}

// Run is the outcome of one compliance check
type Run struct {
	ID        string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration_ns"`
	Snapshot  policy.Snapshot `json:"-"`
	Decision  policy.Decision `json:"decision"`
}

// OrganizationID returns the id of the evaluated organization, if known
func (r *Run) OrganizationID() string {
	return r.Snapshot.OrganizationID
}

// Checker collects a snapshot and evaluates it
type Checker struct {
	source Source
	engine *policy.Engine
	log    *logger.Logger
	now    func() time.Time
}

// NewChecker creates a new Checker
func NewChecker(source Source, engine *policy.Engine, log *logger.Logger) *Checker {
	return &Checker{
		source: source,
		engine: engine,
		log:    log,
		now:    time.Now,
	}
}

// Run performs one check.
//
// An error means the organization could not be read at all; it is never
// folded into a NON_COMPLIANT decision.
func (c *Checker) Run(ctx context.Context) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: c.now(),
	}

	c.log.Debug("compliance_check_start", "Collecting organization policy state", map[string]interface{}{
		"run_id": run.ID,
		"mode":   string(c.engine.GetMode()),
	})

	snapshot, err := c.source.Snapshot(ctx)
	if err != nil {
		c.log.Error("compliance_check_failed", "Failed to read organization policy state", map[string]interface{}{
			"run_id": run.ID,
			"error":  err.Error(),
		})
		return nil, err
	}

	run.Snapshot = *snapshot
	run.Decision = c.engine.Evaluate(*snapshot)
	run.Duration = c.now().Sub(run.StartedAt)

	for _, e := range run.Decision.Verdict.Errors {
		c.log.Warn("lookup_failed", "Could not read "+string(e.Scope)+" data", map[string]interface{}{
			"run_id": run.ID,
			"scope":  string(e.Scope),
			"id":     e.ID,
			"error":  e.Message,
		})
	}

	c.log.LogComplianceCheck(run.ID, snapshot.OrganizationID, len(snapshot.Policies), run.Decision, run.Duration)

	return run, nil
}
