// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"

	"go.trai.ch/trellis/internal/core/domain"
)

// Executor defines the interface for executing job steps.
//
//go:generate mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs one step with the specified environment.
	//
	// The env parameter contains environment variables in "KEY=VALUE" format.
	// Secret references in the command or environment are resolved by the
	// executor just before the process starts.
	//
	// A step that ran to completion returns its result and a nil error, even
	// when it exited non-zero. The error is reserved for steps that could not
	// be started or were interrupted.
	Execute(ctx context.Context, step *domain.Step, env []string, stdout, stderr io.Writer) (domain.StepResult, error)
}
