package ports

import (
	"context"
	"io"

	"go.trai.ch/trellis/internal/core/domain"
)

// RunRequest is everything needed to execute one queued run.
type RunRequest struct {
	Pipeline *domain.Pipeline
	Job      *domain.Job
	// Run is the queued run. It may already carry dependency problems.
	// A run that is already terminal is only recorded.
	Run *domain.Run
	// Upstream maps upstream job ids to their terminal runs.
	Upstream map[string]*domain.Run
	// Overrides take precedence over pipeline and job parameters.
	Overrides map[string]domain.Param
	// Output receives the output of every step. Nil discards it.
	Output io.Writer
}

// JobRunner executes a single job on a matching agent.
//
//go:generate mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks
type JobRunner interface {
	// Run executes the request and returns the run in a terminal state.
	// Job failures are reported on the run; the error is reserved for
	// infrastructure failures such as an unwritable state store.
	Run(ctx context.Context, req RunRequest) (*domain.Run, error)
}
