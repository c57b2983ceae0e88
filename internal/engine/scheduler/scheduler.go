// Package scheduler dispatches the jobs of a pipeline in dependency order.
package scheduler

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"time"

	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/zerr"
)

// Request selects the jobs of one invocation.
type Request struct {
	Pipeline *domain.Pipeline
	Targets  []domain.InternedString
	// Completed holds terminal runs that stand in for their jobs. They are
	// never dispatched, and their own upstream jobs are not planned.
	Completed map[string]*domain.Run
	Overrides map[string]domain.Param
	// Parallelism bounds concurrently dispatched jobs. Zero uses the
	// pipeline setting, then the number of CPUs.
	Parallelism int
}

// Result holds the terminal run of every planned job.
type Result struct {
	// Planned lists the dispatched job ids in execution order.
	Planned []string
	Targets []string
	Runs    map[string]*domain.Run
}

// Run returns the run of a job, including completed runs passed in.
func (r *Result) Run(jobID string) *domain.Run {
	return r.Runs[jobID]
}

// Ordered returns the runs of the planned jobs in execution order.
func (r *Result) Ordered() []*domain.Run {
	out := make([]*domain.Run, 0, len(r.Planned))
	for _, id := range r.Planned {
		out = append(out, r.Runs[id])
	}
	return out
}

// TargetRuns returns the runs of the requested targets.
func (r *Result) TargetRuns() []*domain.Run {
	out := make([]*domain.Run, 0, len(r.Targets))
	for _, id := range r.Targets {
		out = append(out, r.Runs[id])
	}
	return out
}

// Status folds the target runs into one status.
func (r *Result) Status() domain.RunStatus {
	return domain.AggregateStatus(r.TargetRuns())
}

// Scheduler runs jobs through a JobRunner once all their upstream runs are terminal.
type Scheduler struct {
	runner ports.JobRunner
	tracer ports.Tracer
	now    func() time.Time
}

// NewScheduler creates a new Scheduler with the given dependencies.
func NewScheduler(runner ports.JobRunner, tracer ports.Tracer) *Scheduler {
	return &Scheduler{
		runner: runner,
		tracer: tracer,
		now:    time.Now,
	}
}

// Run dispatches the transitive closure of the targets and blocks until every
// planned job has a terminal run. A canceled ctx stops new dispatches; jobs
// that never started are reported canceled. The returned error only carries
// infrastructure failures; job failures are on the runs.
func (s *Scheduler) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Targets) == 0 {
		return nil, domain.ErrNoTargetsSpecified
	}

	graph := req.Pipeline.Graph
	if !graph.Validated() {
		if err := graph.Validate(); err != nil {
			return nil, err
		}
	}

	state, err := s.newRunState(ctx, req)
	if err != nil {
		return nil, err
	}

	s.tracer.EmitPlan(ctx, state.plannedStrings(), state.dependencyMap(), state.targetStrings())

	state.runExecutionLoop()
	state.interruptRemaining()

	return &Result{
		Planned: state.plannedStrings(),
		Targets: state.targetStrings(),
		Runs:    state.runs,
	}, state.errs
}

type pending struct {
	job      *domain.Job
	run      *domain.Run
	upstream map[string]*domain.Run
}

type result struct {
	job    domain.InternedString
	queued *domain.Run
	run    *domain.Run
	err    error
}

type schedulerRunState struct {
	s           *Scheduler
	ctx         context.Context
	req         Request
	graph       *domain.Graph
	planned     []domain.InternedString
	inDegree    map[domain.InternedString]int
	ready       []pending
	active      int
	resultsCh   chan result
	runs        map[string]*domain.Run
	errs        error
	parallelism int
}

func (s *Scheduler) newRunState(ctx context.Context, req Request) (*schedulerRunState, error) {
	graph := req.Pipeline.Graph
	// The walk stops at jobs that already have a completed run.
	planned, err := graph.Closure(req.Targets, func(id domain.InternedString) bool {
		return req.Completed[id.String()] != nil
	})
	if err != nil {
		return nil, err
	}
	toRun := make(map[domain.InternedString]bool, len(planned))
	for _, id := range planned {
		toRun[id] = true
	}

	inDegree := make(map[domain.InternedString]int, len(planned))
	for _, id := range planned {
		degree := 0
		for _, up := range graph.UpstreamIDs(id) {
			if toRun[up] {
				degree++
			}
		}
		inDegree[id] = degree
	}

	parallelism := req.Parallelism
	if parallelism <= 0 {
		parallelism = req.Pipeline.Parallelism
	}
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	runs := make(map[string]*domain.Run, len(planned)+len(req.Completed))
	for id, run := range req.Completed {
		runs[id] = run
	}

	state := &schedulerRunState{
		s:           s,
		ctx:         ctx,
		req:         req,
		graph:       graph,
		planned:     planned,
		inDegree:    inDegree,
		resultsCh:   make(chan result, parallelism),
		runs:        runs,
		parallelism: parallelism,
	}
	for _, id := range planned {
		if inDegree[id] == 0 {
			state.prepare(id)
		}
	}
	return state, nil
}

func (state *schedulerRunState) plannedStrings() []string {
	out := make([]string, len(state.planned))
	for i, id := range state.planned {
		out[i] = id.String()
	}
	return out
}

func (state *schedulerRunState) targetStrings() []string {
	out := make([]string, len(state.req.Targets))
	for i, id := range state.req.Targets {
		out[i] = id.String()
	}
	return out
}

func (state *schedulerRunState) dependencyMap() map[string][]string {
	deps := make(map[string][]string, len(state.planned))
	for _, id := range state.planned {
		ups := state.graph.UpstreamIDs(id)
		names := make([]string, len(ups))
		for i, up := range ups {
			names[i] = up.String()
		}
		deps[id.String()] = names
	}
	return deps
}

// prepare queues a job whose upstream runs are all terminal. Edge policies
// decide whether it runs, fails or is canceled.
func (state *schedulerRunState) prepare(id domain.InternedString) {
	job, _ := state.graph.Job(id)
	run := domain.NewRun(job, state.s.now())

	upstream := make(map[string]*domain.Run)
	for _, up := range state.graph.UpstreamIDs(id) {
		upstream[up.String()] = state.runs[up.String()]
	}
	applyEdgePolicies(state.graph.Upstream(id), upstream, run, state.s.now())

	state.ready = append(state.ready, pending{job: job, run: run, upstream: upstream})
}

// applyEdgePolicies evaluates every incoming edge and applies the strongest
// action: cancel, then fail-to-start, then add-problem.
func applyEdgePolicies(edges []domain.Edge, upstream map[string]*domain.Run, run *domain.Run, now time.Time) {
	var (
		strongest = domain.ActionIgnore
		decisive  domain.Problem
		problems  []domain.Problem
	)

	for _, e := range edges {
		action, kind := edgeAction(e, upstream[e.Upstream.String()])
		if action == domain.ActionIgnore {
			continue
		}

		p := domain.NewProblem(kind, e.Upstream.String(), nil)
		if action.Rank() > strongest.Rank() {
			strongest = action
			decisive = p
		}
		if kind == domain.ProblemDependencyCancel {
			run.CanceledUpstream = true
		}
		if !slices.Contains(problems, p) {
			problems = append(problems, p)
		}
	}

	switch strongest {
	case domain.ActionCancel:
		for _, p := range problems {
			if p != decisive {
				run.AddProblem(p)
			}
		}
		run.Cancel(decisive, now)
	case domain.ActionFailToStart:
		for _, p := range problems {
			run.AddProblem(p)
		}
		run.Finish(now)
	default:
		for _, p := range problems {
			run.AddProblem(p)
		}
	}
}

// edgeAction picks the policy of e for the terminal upstream run. A run that
// failed because of a cancellation matches both policies and the cancel
// policy is used unless the failure policy is stronger.
func edgeAction(e domain.Edge, up *domain.Run) (domain.FailureAction, domain.ProblemKind) {
	switch {
	case up == nil || up.Succeeded():
		return domain.ActionIgnore, ""
	case up.Status == domain.RunCanceled:
		return e.OnCancel, domain.ProblemDependencyCancel
	case up.CanceledUpstream && e.OnCancel.Rank() >= e.OnFailure.Rank():
		return e.OnCancel, domain.ProblemDependencyCancel
	default:
		return e.OnFailure, domain.ProblemDependencyFailure
	}
}

func (state *schedulerRunState) runExecutionLoop() {
	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		if state.ctx.Err() != nil {
			if state.active == 0 {
				break
			}
			state.handleResult(<-state.resultsCh)
			continue
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-state.ctx.Done():
		}
	}
}

func (state *schedulerRunState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

func (state *schedulerRunState) schedule() {
	for len(state.ready) > 0 && state.active < state.parallelism && state.ctx.Err() == nil {
		next := state.ready[0]
		state.ready = state.ready[1:]

		state.active++
		go state.executeJob(next)
	}
}

func (state *schedulerRunState) executeJob(p pending) {
	// The span is ended before the result is sent so the renderer sees the
	// job complete before the loop can return.
	res := func() result {
		ctx, span := state.s.tracer.Start(state.ctx, p.job.DisplayName(),
			ports.WithAttribute("job.id", p.job.ID.String()),
			ports.WithAttribute("run.id", p.run.ID),
		)
		defer span.End()

		run, err := state.s.runner.Run(ctx, ports.RunRequest{
			Pipeline:  state.req.Pipeline,
			Job:       p.job,
			Run:       p.run,
			Upstream:  p.upstream,
			Overrides: state.req.Overrides,
			Output:    span,
		})
		if err != nil {
			span.RecordError(err)
			return result{job: p.job.ID, queued: p.run, err: err}
		}

		span.SetAttribute("run.status", string(run.Status))
		if run.BuildNumber != "" {
			span.SetAttribute("build.number", run.BuildNumber)
		}
		if !run.Succeeded() {
			span.RecordError(run.Err())
		}
		return result{job: p.job.ID, queued: p.run, run: run}
	}()

	state.resultsCh <- res
}

func (state *schedulerRunState) handleResult(res result) {
	state.active--

	run := res.run
	if res.err != nil {
		state.errs = errors.Join(state.errs,
			zerr.With(zerr.Wrap(res.err, "job execution failed"), "job_id", res.job.String()))
		run = res.queued
		if !run.Status.IsTerminal() {
			run.AddProblem(domain.NewProblem(domain.ProblemInterrupted, "", res.err))
			run.Finish(state.s.now())
		}
	}
	state.runs[res.job.String()] = run

	for _, dep := range state.graph.Dependents(res.job) {
		if _, ok := state.inDegree[dep]; !ok {
			continue
		}
		state.inDegree[dep]--
		if state.inDegree[dep] == 0 {
			state.prepare(dep)
		}
	}
}

// interruptRemaining cancels the planned jobs that never started.
func (state *schedulerRunState) interruptRemaining() {
	cause := state.ctx.Err()
	for _, id := range state.planned {
		if state.runs[id.String()] != nil {
			continue
		}
		job, _ := state.graph.Job(id)
		run := domain.NewRun(job, state.s.now())
		run.Cancel(domain.NewProblem(domain.ProblemInterrupted, "", cause), state.s.now())
		state.runs[id.String()] = run
	}
}
