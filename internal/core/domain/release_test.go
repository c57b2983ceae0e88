package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/core/domain"
)

func TestReleaseRecord_Transitions(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := domain.NewReleaseRecord()

	require.ErrorContains(t, r.Transition(domain.ReleaseDeploying, now), "invalid release transition")

	require.NoError(t, r.Restart("releaseVersion", now))
	assert.Equal(t, 1, r.Attempt)
	require.ErrorContains(t, r.Restart("releaseVersion", now), "invalid release transition")
	require.NoError(t, r.Transition(domain.ReleaseConfigured, now))

	require.ErrorContains(t, r.Transition(domain.ReleasePublished, now), "invalid release transition")

	require.NoError(t, r.Transition(domain.ReleaseDeploying, now))
	require.ErrorContains(t, r.Restart("releaseVersion", now), "invalid release transition")
	require.NoError(t, r.Transition(domain.ReleaseFailed, now))
	require.ErrorContains(t, r.Transition(domain.ReleaseDeploying, now), "invalid release transition")
}

func TestReleaseRecord_RestartDiscardsBoundVersion(t *testing.T) {
	now := time.Now()
	r := &domain.ReleaseRecord{State: domain.ReleaseConfigured, Attempt: 1, Version: "0.1.0-dev-1"}

	require.NoError(t, r.Restart("releaseVersion", now))
	assert.Equal(t, domain.ReleaseConfiguring, r.State)
	assert.Equal(t, 2, r.Attempt)
	assert.Empty(t, r.Version)
}

func TestReleaseRecord_Abandon(t *testing.T) {
	now := time.Now()

	for _, state := range []domain.ReleaseState{domain.ReleaseConfiguring, domain.ReleaseDeploying} {
		t.Run(string(state), func(t *testing.T) {
			r := &domain.ReleaseRecord{State: state, Attempt: 3}
			require.NoError(t, r.Abandon(now))
			assert.Equal(t, domain.ReleaseFailed, r.State)
			require.Len(t, r.Problems, 1)
			assert.Equal(t, domain.ProblemInterrupted, r.Problems[0].Kind)
			assert.Contains(t, r.Problems[0].Message, "attempt 3 abandoned while "+string(state))

			require.NoError(t, r.Restart("releaseVersion", now))
			assert.Equal(t, 4, r.Attempt)
		})
	}

	published := &domain.ReleaseRecord{State: domain.ReleasePublished}
	require.NoError(t, published.Abandon(now))
	assert.Equal(t, domain.ReleasePublished, published.State)
	assert.Empty(t, published.Problems)
}

func TestReleaseRecord_RestartDropsPreviousAttempt(t *testing.T) {
	now := time.Now()
	r := &domain.ReleaseRecord{
		State:          domain.ReleaseFailed,
		Attempt:        2,
		Version:        "0.1.0-dev-4",
		ConfigureRunID: "old",
		DeployRunIDs:   map[string]string{"Deploy_Linux": "x"},
		Problems:       []domain.Problem{{Kind: domain.ProblemStepExecution}},
	}

	require.NoError(t, r.Restart("releaseVersion", now))
	assert.Equal(t, domain.ReleaseConfiguring, r.State)
	assert.Equal(t, 3, r.Attempt)
	assert.Empty(t, r.Version)
	assert.Empty(t, r.ConfigureRunID)
	assert.Empty(t, r.DeployRunIDs)
	assert.Empty(t, r.Problems)
}

func TestVersionParameter(t *testing.T) {
	v := domain.NewVersionParameter("releaseVersion")
	_, err := v.Value()
	require.ErrorContains(t, err, "not resolved")

	require.NoError(t, v.Bind("0.1.0-dev-1"))
	require.ErrorContains(t, v.Bind("0.1.0-dev-2"), "already resolved")

	got, err := v.Value()
	require.NoError(t, err)
	assert.Equal(t, "0.1.0-dev-1", got)
}

func TestRun_FinishAndErr(t *testing.T) {
	now := time.Now()
	j := &domain.Job{ID: id("Build_Linux"), Name: "Build (Linux)"}

	ok := domain.NewRun(j, now)
	ok.Finish(now)
	assert.Equal(t, domain.RunSucceeded, ok.Status)
	require.NoError(t, ok.Err())

	bad := domain.NewRun(j, now)
	bad.AddProblem(domain.NewProblem(domain.ProblemStepExecution, "compile", assert.AnError))
	bad.AddProblem(domain.Problem{Kind: domain.ProblemTimeoutExceeded})
	bad.Finish(now)
	assert.Equal(t, domain.RunFailed, bad.Status)
	require.ErrorContains(t, bad.Err(), "step execution failed")
	require.ErrorContains(t, bad.Err(), "execution timeout exceeded")
	require.ErrorIs(t, bad.Err(), domain.ErrTimeoutExceeded)

	canceled := domain.NewRun(j, now)
	canceled.Cancel(domain.Problem{Kind: domain.ProblemDependencyCancel, Source: "up"}, now)
	canceled.Finish(now)
	assert.Equal(t, domain.RunCanceled, canceled.Status)
	assert.True(t, canceled.Status.IsTerminal())
}

func TestAggregateStatus(t *testing.T) {
	runs := func(statuses ...domain.RunStatus) []*domain.Run {
		out := make([]*domain.Run, len(statuses))
		for i, s := range statuses {
			out[i] = &domain.Run{Status: s}
		}
		return out
	}

	assert.Equal(t, domain.RunSucceeded, domain.AggregateStatus(runs(domain.RunSucceeded, domain.RunSucceeded)))
	assert.Equal(t, domain.RunCanceled, domain.AggregateStatus(runs(domain.RunSucceeded, domain.RunCanceled)))
	assert.Equal(t, domain.RunFailed, domain.AggregateStatus(runs(domain.RunCanceled, domain.RunFailed)))
}
