package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/adapters/telemetry"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/trellis/internal/core/ports/mocks"
	"go.trai.ch/trellis/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

func id(s string) domain.InternedString {
	return domain.NewInternedString(s)
}

func ids(names ...string) []domain.InternedString {
	out := make([]domain.InternedString, len(names))
	for i, n := range names {
		out[i] = id(n)
	}
	return out
}

func edge(dep, up string, onFailure, onCancel domain.FailureAction) domain.Edge {
	return domain.NewSnapshotEdge(id(dep), id(up), onFailure, onCancel)
}

func newPipeline(t *testing.T, jobs []string, edges ...domain.Edge) *domain.Pipeline {
	t.Helper()
	g := domain.NewGraph()
	for _, name := range jobs {
		require.NoError(t, g.AddJob(&domain.Job{ID: id(name), Kind: domain.JobKindRegular}))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e))
	}
	require.NoError(t, g.Validate())
	return &domain.Pipeline{Project: "kotlinx-io", Root: "/work", Graph: g, Parallelism: 4}
}

// fakeRunner finishes every started run, failing the jobs listed in fail.
type fakeRunner struct {
	mu       sync.Mutex
	fail     map[string]bool
	executed []string
	recorded []string
}

func (f *fakeRunner) run(_ context.Context, req ports.RunRequest) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	jobID := req.Job.ID.String()
	if req.Run.Status.IsTerminal() {
		f.recorded = append(f.recorded, jobID)
		return req.Run, nil
	}
	f.executed = append(f.executed, jobID)
	if f.fail[jobID] {
		req.Run.AddProblem(domain.NewProblem(domain.ProblemStepExecution, "compile", nil))
	}
	req.Run.Finish(time.Now())
	return req.Run, nil
}

func (f *fakeRunner) ran(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.executed, jobID)
}

func newScheduler(t *testing.T, f *fakeRunner) *scheduler.Scheduler {
	t.Helper()
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockJobRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(f.run).AnyTimes()
	return scheduler.NewScheduler(runner, telemetry.NewNoOpTracer())
}

func TestScheduler_AddProblemLetsOtherPlatformsFinish(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p := newPipeline(t,
			[]string{"Build_Windows", "Build_Linux", "Build_Mac", "Build_All"},
			edge("Build_All", "Build_Windows", domain.ActionAddProblem, domain.ActionAddProblem),
			edge("Build_All", "Build_Linux", domain.ActionAddProblem, domain.ActionAddProblem),
			edge("Build_All", "Build_Mac", domain.ActionAddProblem, domain.ActionAddProblem),
		)
		f := &fakeRunner{fail: map[string]bool{"Build_Linux": true}}

		res, err := newScheduler(t, f).Run(t.Context(), scheduler.Request{Pipeline: p, Targets: ids("Build_All")})
		require.NoError(t, err)

		assert.Equal(t, domain.RunSucceeded, res.Run("Build_Windows").Status)
		assert.Equal(t, domain.RunSucceeded, res.Run("Build_Mac").Status)
		assert.Equal(t, domain.RunFailed, res.Run("Build_Linux").Status)

		all := res.Run("Build_All")
		assert.True(t, f.ran("Build_All"))
		assert.Equal(t, domain.RunFailed, all.Status)
		assert.Equal(t, []domain.Problem{{Kind: domain.ProblemDependencyFailure, Source: "Build_Linux"}}, all.Problems)
		assert.Equal(t, domain.RunFailed, res.Status())
	})
}

func TestScheduler_CancelPropagatesToEveryDependent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p := newPipeline(t,
			[]string{"Deploy_Configure", "Deploy_Linux", "Deploy_Windows", "Deploy_Publish"},
			edge("Deploy_Linux", "Deploy_Configure", domain.ActionCancel, domain.ActionCancel),
			edge("Deploy_Windows", "Deploy_Configure", domain.ActionCancel, domain.ActionCancel),
			edge("Deploy_Publish", "Deploy_Linux", domain.ActionAddProblem, domain.ActionCancel),
			edge("Deploy_Publish", "Deploy_Windows", domain.ActionAddProblem, domain.ActionCancel),
		)
		f := &fakeRunner{fail: map[string]bool{"Deploy_Configure": true}}

		res, err := newScheduler(t, f).Run(t.Context(), scheduler.Request{Pipeline: p, Targets: ids("Deploy_Publish")})
		require.NoError(t, err)

		for _, name := range []string{"Deploy_Linux", "Deploy_Windows", "Deploy_Publish"} {
			assert.Equal(t, domain.RunCanceled, res.Run(name).Status, name)
			assert.False(t, f.ran(name), name)
		}
		assert.Equal(t, domain.ProblemDependencyFailure, res.Run("Deploy_Linux").Problems[0].Kind)
		assert.Equal(t, domain.ProblemDependencyCancel, res.Run("Deploy_Publish").Problems[0].Kind)
		assert.Equal(t, domain.RunCanceled, res.Status())
		assert.ElementsMatch(t, []string{"Deploy_Linux", "Deploy_Windows", "Deploy_Publish"}, f.recorded)
	})
}

func TestScheduler_FailToStartAndIgnore(t *testing.T) {
	p := newPipeline(t,
		[]string{"Build", "Test", "Docs"},
		edge("Test", "Build", domain.ActionFailToStart, domain.ActionCancel),
		edge("Docs", "Build", domain.ActionIgnore, domain.ActionIgnore),
	)
	f := &fakeRunner{fail: map[string]bool{"Build": true}}

	res, err := newScheduler(t, f).Run(t.Context(), scheduler.Request{Pipeline: p, Targets: ids("Test", "Docs")})
	require.NoError(t, err)

	assert.Equal(t, domain.RunFailed, res.Run("Test").Status)
	assert.False(t, f.ran("Test"))
	assert.True(t, res.Run("Test").StartedAt.IsZero())

	assert.True(t, f.ran("Docs"))
	assert.Equal(t, domain.RunSucceeded, res.Run("Docs").Status)
	assert.Equal(t, domain.RunFailed, res.Status())
}

func TestScheduler_StrongestActionWins(t *testing.T) {
	p := newPipeline(t,
		[]string{"A", "B", "OK", "D"},
		edge("D", "A", domain.ActionAddProblem, domain.ActionAddProblem),
		edge("D", "OK", domain.ActionCancel, domain.ActionCancel),
		edge("D", "B", domain.ActionFailToStart, domain.ActionFailToStart),
	)
	f := &fakeRunner{fail: map[string]bool{"A": true, "B": true}}

	res, err := newScheduler(t, f).Run(t.Context(), scheduler.Request{Pipeline: p, Targets: ids("D")})
	require.NoError(t, err)

	d := res.Run("D")
	assert.False(t, f.ran("D"))
	assert.Equal(t, domain.RunFailed, d.Status)
	assert.ElementsMatch(t, []domain.Problem{
		{Kind: domain.ProblemDependencyFailure, Source: "A"},
		{Kind: domain.ProblemDependencyFailure, Source: "B"},
	}, d.Problems)
}

func TestScheduler_CanceledUpstreamMatchesBothPolicies(t *testing.T) {
	p := newPipeline(t,
		[]string{"Configure", "Build", "Publish"},
		edge("Build", "Configure", domain.ActionAddProblem, domain.ActionAddProblem),
		edge("Publish", "Build", domain.ActionAddProblem, domain.ActionCancel),
	)
	configure := &domain.Run{ID: "c1", JobID: "Configure", Status: domain.RunCanceled}
	f := &fakeRunner{}

	res, err := newScheduler(t, f).Run(t.Context(), scheduler.Request{
		Pipeline:  p,
		Targets:   ids("Publish"),
		Completed: map[string]*domain.Run{"Configure": configure},
	})
	require.NoError(t, err)

	build := res.Run("Build")
	assert.True(t, f.ran("Build"))
	assert.Equal(t, domain.RunFailed, build.Status)
	assert.True(t, build.CanceledUpstream)

	assert.Equal(t, domain.RunCanceled, res.Run("Publish").Status)
	assert.False(t, f.ran("Publish"))
	assert.Equal(t, []string{"Build", "Publish"}, res.Planned)
}

func TestScheduler_CompletedUpstreamIsReused(t *testing.T) {
	p := newPipeline(t,
		[]string{"Deploy_Configure", "Deploy_Linux"},
		edge("Deploy_Linux", "Deploy_Configure", domain.ActionFailToStart, domain.ActionCancel),
	)
	configure := &domain.Run{ID: "c1", JobID: "Deploy_Configure", Status: domain.RunSucceeded, BuildNumber: "0.1.0-dev-3"}

	ctrl := gomock.NewController(t)
	runner := mocks.NewMockJobRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, req ports.RunRequest) (*domain.Run, error) {
		assert.Equal(t, "Deploy_Linux", req.Job.ID.String())
		assert.Same(t, configure, req.Upstream["Deploy_Configure"])
		assert.Equal(t, "0.2.0", req.Overrides["releaseVersion"].Value)
		req.Run.Finish(time.Now())
		return req.Run, nil
	})

	res, err := scheduler.NewScheduler(runner, telemetry.NewNoOpTracer()).Run(t.Context(), scheduler.Request{
		Pipeline:  p,
		Targets:   ids("Deploy_Linux"),
		Completed: map[string]*domain.Run{"Deploy_Configure": configure},
		Overrides: map[string]domain.Param{"releaseVersion": {Value: "0.2.0"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Deploy_Linux"}, res.Planned)
	assert.Same(t, configure, res.Run("Deploy_Configure"))
	assert.Equal(t, domain.RunSucceeded, res.Status())
}

func TestScheduler_Parallelism(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p := newPipeline(t, []string{"A", "B", "C", "D"})

		var active, peak atomic.Int32
		ctrl := gomock.NewController(t)
		runner := mocks.NewMockJobRunner(ctrl)
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).Times(4).
			DoAndReturn(func(_ context.Context, req ports.RunRequest) (*domain.Run, error) {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(time.Second)
				active.Add(-1)
				req.Run.Finish(time.Now())
				return req.Run, nil
			})

		res, err := scheduler.NewScheduler(runner, telemetry.NewNoOpTracer()).Run(t.Context(), scheduler.Request{
			Pipeline:    p,
			Targets:     ids("A", "B", "C", "D"),
			Parallelism: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(2), peak.Load())
		assert.Equal(t, domain.RunSucceeded, res.Status())
	})
}

func TestScheduler_InterruptCancelsPendingJobs(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		p := newPipeline(t,
			[]string{"Build", "Publish"},
			edge("Publish", "Build", domain.ActionAddProblem, domain.ActionCancel),
		)

		started := make(chan struct{})
		ctrl := gomock.NewController(t)
		runner := mocks.NewMockJobRunner(ctrl)
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, req ports.RunRequest) (*domain.Run, error) {
				assert.Equal(t, "Build", req.Job.ID.String())
				close(started)
				<-ctx.Done()
				req.Run.AddProblem(domain.NewProblem(domain.ProblemInterrupted, "compile", ctx.Err()))
				req.Run.Finish(time.Now())
				return req.Run, nil
			})

		ctx, cancel := context.WithCancel(t.Context())
		type outcome struct {
			res *scheduler.Result
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := scheduler.NewScheduler(runner, telemetry.NewNoOpTracer()).
				Run(ctx, scheduler.Request{Pipeline: p, Targets: ids("Publish")})
			done <- outcome{res, err}
		}()

		<-started
		cancel()
		out := <-done

		require.NoError(t, out.err)
		assert.Equal(t, domain.RunFailed, out.res.Run("Build").Status)
		publish := out.res.Run("Publish")
		assert.Equal(t, domain.RunCanceled, publish.Status)
		assert.Equal(t, domain.ProblemInterrupted, publish.Problems[0].Kind)
		assert.Equal(t, domain.RunCanceled, out.res.Status())
	})
}

func TestScheduler_RunnerErrorIsReturned(t *testing.T) {
	p := newPipeline(t,
		[]string{"Build", "Publish"},
		edge("Publish", "Build", domain.ActionAddProblem, domain.ActionAddProblem),
	)
	storeErr := errors.New("disk full")

	ctrl := gomock.NewController(t)
	runner := mocks.NewMockJobRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, req ports.RunRequest) (*domain.Run, error) {
			if req.Job.ID.String() == "Build" {
				return nil, storeErr
			}
			req.Run.Finish(time.Now())
			return req.Run, nil
		})

	res, err := scheduler.NewScheduler(runner, telemetry.NewNoOpTracer()).
		Run(t.Context(), scheduler.Request{Pipeline: p, Targets: ids("Publish")})
	require.ErrorIs(t, err, storeErr)
	require.ErrorContains(t, err, "job execution failed")

	assert.Equal(t, domain.RunFailed, res.Run("Build").Status)
	assert.Equal(t, domain.RunFailed, res.Run("Publish").Status)
}

type planRecorder struct {
	telemetry.NoOpTracer
	jobs    []string
	deps    map[string][]string
	targets []string
}

func (r *planRecorder) EmitPlan(_ context.Context, jobs []string, deps map[string][]string, targets []string) {
	r.jobs, r.deps, r.targets = jobs, deps, targets
}

func TestScheduler_EmitsPlan(t *testing.T) {
	p := newPipeline(t,
		[]string{"Build_Linux", "Build_Mac", "Build_All", "Unrelated"},
		edge("Build_All", "Build_Linux", domain.ActionAddProblem, domain.ActionAddProblem),
		edge("Build_All", "Build_Mac", domain.ActionAddProblem, domain.ActionAddProblem),
	)
	f := &fakeRunner{}
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockJobRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(f.run).Times(3)
	rec := &planRecorder{}

	_, err := scheduler.NewScheduler(runner, rec).Run(t.Context(), scheduler.Request{Pipeline: p, Targets: ids("Build_All")})
	require.NoError(t, err)

	assert.Equal(t, []string{"Build_Linux", "Build_Mac", "Build_All"}, rec.jobs)
	assert.Equal(t, []string{"Build_Linux", "Build_Mac"}, rec.deps["Build_All"])
	assert.Equal(t, []string{"Build_All"}, rec.targets)
	assert.False(t, f.ran("Unrelated"))
}

func TestScheduler_TargetErrors(t *testing.T) {
	p := newPipeline(t, []string{"Build"})
	s := newScheduler(t, &fakeRunner{})

	_, err := s.Run(t.Context(), scheduler.Request{Pipeline: p})
	require.ErrorIs(t, err, domain.ErrNoTargetsSpecified)

	_, err = s.Run(t.Context(), scheduler.Request{Pipeline: p, Targets: ids("Nope")})
	require.ErrorContains(t, err, "job not found")
}

// randomRunner fails a random share of jobs after a random delay and records
// whether every upstream run was terminal when a job started.
type randomRunner struct {
	mu       sync.Mutex
	rng      *rand.Rand
	fail     map[string]bool
	executed map[string]bool
	early    []string
}

func (r *randomRunner) run(_ context.Context, req ports.RunRequest) (*domain.Run, error) {
	jobID := req.Job.ID.String()
	if req.Run.Status.IsTerminal() {
		return req.Run, nil
	}

	r.mu.Lock()
	for up, run := range req.Upstream {
		if run == nil || !run.Status.IsTerminal() {
			r.early = append(r.early, jobID+" before "+up)
		}
	}
	r.executed[jobID] = true
	delay := time.Duration(r.rng.IntN(1000)) * time.Millisecond
	r.mu.Unlock()

	time.Sleep(delay)
	if r.fail[jobID] {
		req.Run.AddProblem(domain.NewProblem(domain.ProblemStepExecution, "compile", nil))
	}
	req.Run.Finish(time.Now())
	return req.Run, nil
}

func randomPipeline(t *testing.T, rng *rand.Rand, size int) (*domain.Pipeline, []domain.InternedString) {
	t.Helper()
	actions := []domain.FailureAction{
		domain.ActionIgnore, domain.ActionAddProblem, domain.ActionFailToStart, domain.ActionCancel,
	}
	pick := func() domain.FailureAction { return actions[rng.IntN(len(actions))] }

	names := make([]string, size)
	for i := range names {
		names[i] = fmt.Sprintf("Job_%02d", i)
	}

	// Edges only point at earlier jobs, so the graph is acyclic by construction.
	var edges []domain.Edge
	for dep := 1; dep < size; dep++ {
		for up := range dep {
			if rng.IntN(4) == 0 {
				edges = append(edges, edge(names[dep], names[up], pick(), pick()))
			}
		}
	}

	var targets []domain.InternedString
	for _, name := range names {
		if rng.IntN(3) == 0 {
			targets = append(targets, id(name))
		}
	}
	if len(targets) == 0 {
		targets = append(targets, id(names[size-1]))
	}
	return newPipeline(t, names, edges...), targets
}

func TestScheduler_RandomAcyclicGraphsTerminate(t *testing.T) {
	for seed := range uint64(50) {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
				p, targets := randomPipeline(t, rng, 2+rng.IntN(14))
				p.Parallelism = 1 + rng.IntN(4)

				r := &randomRunner{rng: rng, fail: make(map[string]bool), executed: make(map[string]bool)}
				for job := range p.Graph.Walk() {
					r.fail[job.ID.String()] = rng.IntN(3) == 0
				}

				ctrl := gomock.NewController(t)
				runner := mocks.NewMockJobRunner(ctrl)
				runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(r.run).AnyTimes()

				res, err := scheduler.NewScheduler(runner, telemetry.NewNoOpTracer()).
					Run(t.Context(), scheduler.Request{Pipeline: p, Targets: targets})
				require.NoError(t, err)

				closure, err := p.Graph.Closure(targets, nil)
				require.NoError(t, err)
				require.Len(t, res.Planned, len(closure))

				for _, jobID := range closure {
					run := res.Run(jobID.String())
					require.NotNil(t, run, jobID.String())
					assert.True(t, run.Status.IsTerminal(), "%s ended %s", jobID, run.Status)

					allSucceeded := true
					for _, up := range p.Graph.UpstreamIDs(jobID) {
						allSucceeded = allSucceeded && res.Run(up.String()).Succeeded()
					}
					if allSucceeded {
						assert.True(t, r.executed[jobID.String()], "%s had only successful upstreams but never ran", jobID)
					}
				}
				assert.Empty(t, r.early)
				assert.True(t, res.Status().IsTerminal())
			})
		})
	}
}
