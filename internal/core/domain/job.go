package domain

import (
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// JobKind distinguishes how a job is executed.
type JobKind string

const (
	// JobKindRegular runs steps on an agent.
	JobKindRegular JobKind = "regular"
	// JobKindComposite has no steps; its status is an aggregate of its dependencies.
	JobKindComposite JobKind = "composite"
	// JobKindDeployment runs steps like a regular job but is treated as a release target.
	JobKindDeployment JobKind = "deployment"
)

// ParseJobKind converts a configuration string to a JobKind. Empty means regular.
func ParseJobKind(s string) (JobKind, error) {
	switch strings.ToLower(s) {
	case "", string(JobKindRegular):
		return JobKindRegular, nil
	case string(JobKindComposite):
		return JobKindComposite, nil
	case string(JobKindDeployment):
		return JobKindDeployment, nil
	default:
		return "", zerr.With(ErrInvalidJobKind, "type", s)
	}
}

// Step is one command of a job.
type Step struct {
	Name        string
	Command     []string
	WorkingDir  string
	Environment map[string]string
}

// FailureConditions selects which step outcomes fail a run.
type FailureConditions struct {
	// NonZeroExitCode fails the step when the process exits with a non-zero code.
	NonZeroExitCode bool
	// ErrorMessage fails the step when the process writes to its error stream.
	ErrorMessage bool
}

// DefaultFailureConditions enables both conditions.
func DefaultFailureConditions() FailureConditions {
	return FailureConditions{NonZeroExitCode: true, ErrorMessage: true}
}

// Param is a job parameter. Secret params hold an opaque credential reference.
type Param struct {
	Value  string
	Secret bool
}

// Job is an immutable unit of work in a pipeline.
type Job struct {
	ID                 InternedString
	Name               string
	Kind               JobKind
	Platform           string
	Steps              []Step
	ArtifactRules      []ArtifactRule
	Requirements       []Requirement
	Params             map[string]Param
	BuildNumberPattern string
	MaxConcurrency     int
	FailureConditions  FailureConditions
	Triggers           *TriggerRules
}

// IsComposite reports whether the job only aggregates its dependencies.
func (j *Job) IsComposite() bool {
	return j.Kind == JobKindComposite
}

// DisplayName returns the job name, falling back to its id.
func (j *Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID.String()
}

// StepResult is the observable outcome of one executed step.
type StepResult struct {
	ExitCode int
	// ErrorOutput reports whether the step wrote to its error stream.
	ErrorOutput bool
}

// FailureReason returns why the result fails under fc, or "" when it does not.
func (r StepResult) FailureReason(fc FailureConditions) string {
	switch {
	case fc.NonZeroExitCode && r.ExitCode != 0:
		return "exited with code " + strconv.Itoa(r.ExitCode)
	case fc.ErrorMessage && r.ErrorOutput:
		return "wrote to the error stream"
	default:
		return ""
	}
}
