package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	// RunQueued is a run waiting for its upstream runs, a concurrency slot or an agent.
	RunQueued RunStatus = "queued"
	// RunRunning is a run executing its steps.
	RunRunning RunStatus = "running"
	// RunSucceeded is a run that finished without problems.
	RunSucceeded RunStatus = "succeeded"
	// RunFailed is a run that finished with at least one problem.
	RunFailed RunStatus = "failed"
	// RunCanceled is a run that was canceled before it started.
	RunCanceled RunStatus = "canceled"
)

// IsTerminal reports whether the status is final.
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCanceled
}

// Artifact is one file published by a run.
type Artifact struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Run is one execution of a job.
type Run struct {
	ID          string            `json:"id"`
	JobID       string            `json:"jobId"`
	JobName     string            `json:"jobName"`
	Status      RunStatus         `json:"status"`
	Counter     int64             `json:"counter,omitzero"`
	BuildNumber string            `json:"buildNumber,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	Artifacts   []Artifact        `json:"artifacts,omitempty"`
	Problems    []Problem         `json:"problems,omitempty"`
	Agent       string            `json:"agent,omitempty"`
	// CanceledUpstream marks a failure caused by an upstream cancellation.
	CanceledUpstream bool      `json:"canceledUpstream,omitzero"`
	QueuedAt         time.Time `json:"queuedAt,omitzero"`
	StartedAt        time.Time `json:"startedAt,omitzero"`
	FinishedAt       time.Time `json:"finishedAt,omitzero"`
}

// NewRun creates a queued run for job.
func NewRun(job *Job, now time.Time) *Run {
	return &Run{
		ID:       uuid.NewString(),
		JobID:    job.ID.String(),
		JobName:  job.DisplayName(),
		Status:   RunQueued,
		QueuedAt: now,
	}
}

// AddProblem appends a problem to the run.
func (r *Run) AddProblem(p Problem) {
	r.Problems = append(r.Problems, p)
}

// Finish moves the run to its terminal status. A run with problems always fails.
func (r *Run) Finish(now time.Time) {
	if r.Status != RunCanceled {
		r.Status = RunSucceeded
		if len(r.Problems) > 0 {
			r.Status = RunFailed
		}
	}
	r.FinishedAt = now
}

// Cancel marks the run canceled without starting it.
func (r *Run) Cancel(p Problem, now time.Time) {
	r.AddProblem(p)
	r.Status = RunCanceled
	r.FinishedAt = now
}

// Succeeded reports whether the run succeeded.
func (r *Run) Succeeded() bool {
	return r != nil && r.Status == RunSucceeded
}

// Duration is the time the run spent executing.
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Err joins the run's problems. It returns nil for a run without problems.
func (r *Run) Err() error {
	errs := make([]error, 0, len(r.Problems))
	for _, p := range r.Problems {
		errs = append(errs, p.Err())
	}
	return errors.Join(errs...)
}

// Param returns a resolved parameter of the run. build.number and
// build.counter are always available.
func (r *Run) Param(name string) (string, bool) {
	switch name {
	case ParamBuildNumber:
		return r.BuildNumber, true
	case ParamBuildCounter:
		return formatCounter(r.Counter), true
	}
	v, ok := r.Params[name]
	return v, ok
}

// AggregateStatus folds target statuses: failed if any failed, else canceled
// if any canceled, else succeeded.
func AggregateStatus(runs []*Run) RunStatus {
	status := RunSucceeded
	for _, r := range runs {
		switch r.Status {
		case RunFailed:
			return RunFailed
		case RunCanceled:
			status = RunCanceled
		case RunQueued, RunRunning:
			if status == RunSucceeded {
				status = r.Status
			}
		}
	}
	return status
}
