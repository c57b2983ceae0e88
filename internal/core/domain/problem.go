package domain

import (
	"errors"

	"go.trai.ch/zerr"
)

// ProblemKind classifies why a run did not succeed.
type ProblemKind string

const (
	// ProblemStepExecution is a step that exited non-zero or wrote to its error stream.
	ProblemStepExecution ProblemKind = "step-execution"
	// ProblemDependencyFailure is an upstream run that failed.
	ProblemDependencyFailure ProblemKind = "dependency-failure"
	// ProblemDependencyCancel is an upstream run that was canceled.
	ProblemDependencyCancel ProblemKind = "dependency-cancel"
	// ProblemTimeoutExceeded is a run that exceeded the global execution timeout.
	ProblemTimeoutExceeded ProblemKind = "timeout-exceeded"
	// ProblemAgentUnavailable is a job no agent in the pool can satisfy.
	ProblemAgentUnavailable ProblemKind = "agent-unavailable"
	// ProblemArtifact is a failure to publish or retrieve artifacts.
	ProblemArtifact ProblemKind = "artifact"
	// ProblemParameter is a parameter or build number that could not be resolved.
	ProblemParameter ProblemKind = "parameter"
	// ProblemInterrupted is a job that never started because the orchestrator stopped.
	ProblemInterrupted ProblemKind = "interrupted"
)

// Sentinel returns the error the kind corresponds to.
func (k ProblemKind) Sentinel() error {
	switch k {
	case ProblemStepExecution:
		return ErrStepExecution
	case ProblemDependencyFailure:
		return ErrDependencyFailure
	case ProblemDependencyCancel:
		return ErrDependencyCancel
	case ProblemTimeoutExceeded:
		return ErrTimeoutExceeded
	case ProblemAgentUnavailable:
		return ErrNoCompatibleAgent
	case ProblemArtifact:
		return ErrArtifactPublish
	case ProblemParameter:
		return ErrUnresolvedParameter
	default:
		return ErrRunInterrupted
	}
}

// Problem is one entry of a run's structured problem list.
type Problem struct {
	Kind    ProblemKind `json:"kind"`
	Source  string      `json:"source,omitempty"`
	Message string      `json:"message,omitempty"`
}

// NewProblem records err under kind. Source names the step or upstream job involved.
func NewProblem(kind ProblemKind, source string, err error) Problem {
	p := Problem{Kind: kind, Source: source}
	if err != nil {
		p.Message = err.Error()
	}
	return p
}

// Err converts the problem back to an error rooted at its sentinel.
func (p Problem) Err() error {
	err := p.Kind.Sentinel()
	if p.Message != "" {
		err = zerr.Wrap(errors.New(p.Message), err.Error())
	}
	if p.Source != "" {
		err = zerr.With(err, "source", p.Source)
	}
	return err
}

// String renders the problem on one line.
func (p Problem) String() string {
	s := string(p.Kind)
	if p.Source != "" {
		s += " [" + p.Source + "]"
	}
	if p.Message != "" {
		s += ": " + p.Message
	}
	return s
}
