// Package events publishes compliance run results to downstream consumers.
package events

import (
	"context"
	"errors"

	"github.com/tomoyayamashita/ai-optout/internal/logger"
)

// Emitter publishes compliance events
type Emitter interface {
	Emit(ctx context.Context, event ComplianceEvent) error
}

// LogEmitter writes events to the JSON Lines log
type LogEmitter struct {
	log *logger.Logger
}

func NewLogEmitter(log *logger.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(_ context.Context, event ComplianceEvent) error {
	e.log.Info("compliance_event", event.Annotation, map[string]interface{}{
		"run_id":          event.RunID,
		"organization_id": event.OrganizationID,
		"result":          event.Result,
		"passed":          event.Passed,
		"advisories":      len(event.Advisories),
		"errors":          len(event.Errors),
	})
	return nil
}

// MultiEmitter fans an event out to every emitter
type MultiEmitter struct {
	emitters []Emitter
}

func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit calls every emitter even if one fails and joins the errors
func (m *MultiEmitter) Emit(ctx context.Context, event ComplianceEvent) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
