package ports

import (
	"context"
	"time"
)

// Renderer is the abstraction for output rendering.
// It decouples telemetry collection from presentation logic.
//
//go:generate mockgen -source=renderer.go -destination=mocks/mock_renderer.go -package=mocks
type Renderer interface {
	// Start initializes the renderer and begins its lifecycle.
	Start(ctx context.Context) error

	// Stop signals the renderer to stop accepting new events and flush buffered output.
	Stop() error

	// Wait blocks until the renderer has fully terminated.
	Wait() error

	// OnPlanEmit is called when the scheduler has planned the job graph.
	// jobs: all job ids in execution order
	// deps: dependency map (job -> upstream jobs)
	// targets: the requested target jobs
	OnPlanEmit(jobs []string, deps map[string][]string, targets []string)

	// OnTaskStart is called when a run begins.
	OnTaskStart(spanID, parentID, name string, startTime time.Time)

	// OnTaskLog is called when a run emits output.
	// data may contain partial lines.
	OnTaskLog(spanID string, data []byte)

	// OnTaskComplete is called when a run finishes. err is nil on success.
	OnTaskComplete(spanID string, endTime time.Time, err error)
}
