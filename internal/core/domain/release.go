package domain

import (
	"slices"
	"strconv"
	"time"

	"go.trai.ch/zerr"
)

// ReleaseState is a state of the release gate.
type ReleaseState string

const (
	// ReleaseUnconfigured is the initial state.
	ReleaseUnconfigured ReleaseState = "unconfigured"
	// ReleaseConfiguring is the state while the configure job runs.
	ReleaseConfiguring ReleaseState = "configuring"
	// ReleaseConfigured holds a bound version and waits for an explicit deploy.
	ReleaseConfigured ReleaseState = "configured"
	// ReleaseDeploying is the state while deploy and publish jobs run.
	ReleaseDeploying ReleaseState = "deploying"
	// ReleasePublished is reached only when every deploy and the publish run succeeded.
	ReleasePublished ReleaseState = "published"
	// ReleaseFailed ends an attempt. Only a fresh configure leaves it.
	ReleaseFailed ReleaseState = "failed"
)

var releaseTransitions = map[ReleaseState][]ReleaseState{
	ReleaseUnconfigured: {ReleaseConfiguring},
	ReleaseConfiguring:  {ReleaseConfigured, ReleaseFailed},
	ReleaseConfigured:   {ReleaseDeploying, ReleaseConfiguring},
	ReleaseDeploying:    {ReleasePublished, ReleaseFailed},
	ReleasePublished:    {ReleaseConfiguring},
	ReleaseFailed:       {ReleaseConfiguring},
}

// CanTransition reports whether the gate may move from s to next.
func (s ReleaseState) CanTransition(next ReleaseState) bool {
	return slices.Contains(releaseTransitions[s], next)
}

// InFlight reports whether s is only held while an invocation drives the gate.
func (s ReleaseState) InFlight() bool {
	return s == ReleaseConfiguring || s == ReleaseDeploying
}

// ReleaseConfig declares the jobs taking part in a release.
type ReleaseConfig struct {
	VersionParameter string
	Configure        InternedString
	Deploys          []InternedString
	Publish          InternedString
}

// ReleaseRecord is the persisted state of the current release attempt.
type ReleaseRecord struct {
	State          ReleaseState      `json:"state"`
	Attempt        int               `json:"attempt"`
	VersionParam   string            `json:"versionParam,omitempty"`
	Version        string            `json:"version,omitempty"`
	ConfigureRunID string            `json:"configureRunId,omitempty"`
	DeployRunIDs   map[string]string `json:"deployRunIds,omitempty"`
	PublishRunID   string            `json:"publishRunId,omitempty"`
	Problems       []Problem         `json:"problems,omitempty"`
	UpdatedAt      time.Time         `json:"updatedAt,omitzero"`
}

// NewReleaseRecord returns the record of a gate that was never configured.
func NewReleaseRecord() *ReleaseRecord {
	return &ReleaseRecord{State: ReleaseUnconfigured}
}

// Transition moves the record to next or returns ErrInvalidTransition.
func (r *ReleaseRecord) Transition(next ReleaseState, now time.Time) error {
	if !r.State.CanTransition(next) {
		err := zerr.With(ErrInvalidTransition, "from", string(r.State))
		return zerr.With(err, "to", string(next))
	}
	r.State = next
	r.UpdatedAt = now
	return nil
}

// Abandon fails an attempt whose invocation stopped while the record was in
// flight. It is a no-op for any other state.
func (r *ReleaseRecord) Abandon(now time.Time) error {
	if !r.State.InFlight() {
		return nil
	}
	r.Problems = append(r.Problems, Problem{
		Kind:    ProblemInterrupted,
		Message: "attempt " + strconv.Itoa(r.Attempt) + " abandoned while " + string(r.State),
	})
	return r.Transition(ReleaseFailed, now)
}

// Restart begins a fresh attempt. Nothing from the previous attempt is kept.
func (r *ReleaseRecord) Restart(versionParam string, now time.Time) error {
	if err := r.Transition(ReleaseConfiguring, now); err != nil {
		return err
	}
	*r = ReleaseRecord{
		State:        ReleaseConfiguring,
		Attempt:      r.Attempt + 1,
		VersionParam: versionParam,
		UpdatedAt:    now,
	}
	return nil
}
