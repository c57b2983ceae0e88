// Package runner executes single jobs on leased agents.
package runner

import (
	"context"
	"errors"
	"io"
	"time"

	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/zerr"
)

// Runner implements ports.JobRunner.
type Runner struct {
	pool      ports.AgentPool
	executor  ports.Executor
	counters  ports.CounterStore
	artifacts ports.ArtifactStore
	runs      ports.RunStore
	locks     ports.Locker
	now       func() time.Time
}

// New creates a Runner leasing agents from pool.
func New(
	pool ports.AgentPool,
	executor ports.Executor,
	counters ports.CounterStore,
	artifacts ports.ArtifactStore,
	runs ports.RunStore,
	locks ports.Locker,
) *Runner {
	return &Runner{
		pool:      pool,
		executor:  executor,
		counters:  counters,
		artifacts: artifacts,
		runs:      runs,
		locks:     locks,
		now:       time.Now,
	}
}

// Run executes the request and persists the terminal run.
func (r *Runner) Run(ctx context.Context, req ports.RunRequest) (*domain.Run, error) {
	run := req.Run
	root := req.Pipeline.Root

	if run.Status.IsTerminal() {
		return run, r.record(root, run)
	}

	release, err := r.acquireSlot(ctx, root, req.Job)
	if err != nil {
		run.Cancel(domain.NewProblem(domain.ProblemInterrupted, "", err), r.now())
		return run, r.record(root, run)
	}
	defer release()

	counter, err := r.counters.Next(root, req.Job.ID.String())
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to take build counter"), "job_id", req.Job.ID.String())
	}
	run.Counter = counter

	if req.Job.IsComposite() {
		r.runComposite(req)
	} else {
		r.runRegular(ctx, req)
	}

	run.Finish(r.now())
	return run, r.record(root, run)
}

func (r *Runner) record(root string, run *domain.Run) error {
	if err := r.runs.Put(root, run); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to record run"), "run_id", run.ID)
	}
	return nil
}

// acquireSlot bounds concurrent runs of jobs that declare a concurrency limit.
// The slots are shared with every other invocation on the same checkout.
func (r *Runner) acquireSlot(ctx context.Context, root string, job *domain.Job) (func(), error) {
	if job.MaxConcurrency <= 0 {
		return func() {}, nil
	}
	return r.locks.Lock(ctx, root, "job/"+job.ID.String(), job.MaxConcurrency)
}

func (r *Runner) resolver(req ports.RunRequest) *domain.ParamResolver {
	return domain.NewParamResolver(req.Pipeline.Params, req.Job, req.Run.Counter, req.Upstream).
		WithOverrides(req.Overrides)
}

// runComposite renders the build number and pulls artifacts of its
// dependencies into its own artifact directory.
func (r *Runner) runComposite(req ports.RunRequest) {
	run := req.Run
	run.StartedAt = r.now()
	run.Status = domain.RunRunning

	params := r.resolver(req)
	if !r.resolveParams(run, params) {
		return
	}

	root := req.Pipeline.Root
	for _, edge := range req.Pipeline.Graph.Upstream(req.Job.ID) {
		up := req.Upstream[edge.Upstream.String()]
		if edge.Kind != domain.EdgeKindArtifact || !up.Succeeded() {
			continue
		}
		artifacts, err := r.artifacts.Retrieve(root, up.ID, edge.ArtifactRules, domain.ArtifactsPath(root, run.ID))
		if err != nil {
			run.AddProblem(domain.NewProblem(domain.ProblemArtifact, edge.Upstream.String(), err))
			return
		}
		run.Artifacts = append(run.Artifacts, artifacts...)
	}
}

func (r *Runner) runRegular(ctx context.Context, req ports.RunRequest) {
	run := req.Run
	job := req.Job

	params := r.resolver(req)
	bn, err := params.BuildNumber()
	if err != nil {
		run.AddProblem(domain.NewProblem(domain.ProblemParameter, domain.ParamBuildNumber, err))
		return
	}
	run.BuildNumber = bn

	lease, err := r.pool.Acquire(ctx, job.Requirements)
	if err != nil {
		if errors.Is(err, domain.ErrNoCompatibleAgent) {
			run.AddProblem(domain.NewProblem(domain.ProblemAgentUnavailable, "", err))
			return
		}
		run.AddProblem(domain.NewProblem(domain.ProblemInterrupted, "", err))
		return
	}
	defer lease.Release()

	agent := lease.Agent()
	run.Agent = agent.Name
	run.Status = domain.RunRunning
	run.StartedAt = r.now()

	params.WithFallback(func(name string) (string, bool) {
		v, ok := agent.Params[name]
		return v, ok
	})
	if !r.resolveParams(run, params) {
		return
	}
	env, err := params.Environment()
	if err != nil {
		run.AddProblem(domain.NewProblem(domain.ProblemParameter, "", err))
		return
	}

	root := req.Pipeline.Root
	if !r.retrieve(req) {
		return
	}

	timeout := req.Pipeline.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultExecutionTimeout
	}
	// Cancellation only stops jobs that have not started; started steps run
	// to completion or to the execution timeout.
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	out := req.Output
	if out == nil {
		out = io.Discard
	}
	if p := r.runSteps(stepCtx, job, params, env, out); p != nil {
		run.AddProblem(*p)
		return
	}

	if len(job.ArtifactRules) == 0 {
		return
	}
	artifacts, err := r.artifacts.Publish(root, run.ID, root, job.ArtifactRules)
	if err != nil {
		run.AddProblem(domain.NewProblem(domain.ProblemArtifact, "", err))
		return
	}
	run.Artifacts = artifacts
}

// resolveParams records the resolved non-secret parameters on the run.
func (r *Runner) resolveParams(run *domain.Run, params *domain.ParamResolver) bool {
	if run.BuildNumber == "" {
		bn, err := params.BuildNumber()
		if err != nil {
			run.AddProblem(domain.NewProblem(domain.ProblemParameter, domain.ParamBuildNumber, err))
			return false
		}
		run.BuildNumber = bn
	}

	resolved, err := params.ResolveAll()
	if err != nil {
		run.AddProblem(domain.NewProblem(domain.ProblemParameter, "", err))
		return false
	}
	run.Params = resolved
	return true
}

// retrieve copies the files of upstream runs reached through artifact edges
// into the checkout.
func (r *Runner) retrieve(req ports.RunRequest) bool {
	root := req.Pipeline.Root
	for _, edge := range req.Pipeline.Graph.Upstream(req.Job.ID) {
		up := req.Upstream[edge.Upstream.String()]
		if edge.Kind != domain.EdgeKindArtifact || !up.Succeeded() {
			continue
		}
		if _, err := r.artifacts.Retrieve(root, up.ID, edge.ArtifactRules, root); err != nil {
			req.Run.AddProblem(domain.NewProblem(domain.ProblemArtifact, edge.Upstream.String(), err))
			return false
		}
	}
	return true
}

// runSteps executes the steps in order and returns the problem of the first
// failing step.
func (r *Runner) runSteps(
	stepCtx context.Context,
	job *domain.Job,
	params *domain.ParamResolver,
	env []string,
	out io.Writer,
) *domain.Problem {
	for i := range job.Steps {
		step, err := expandStep(&job.Steps[i], params)
		if err != nil {
			p := domain.NewProblem(domain.ProblemParameter, job.Steps[i].Name, err)
			return &p
		}

		res, err := r.executor.Execute(stepCtx, step, env, out, out)
		if err != nil {
			kind := domain.ProblemStepExecution
			if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
				kind = domain.ProblemTimeoutExceeded
			}
			p := domain.NewProblem(kind, step.Name, err)
			return &p
		}

		if reason := res.FailureReason(job.FailureConditions); reason != "" {
			return &domain.Problem{Kind: domain.ProblemStepExecution, Source: step.Name, Message: reason}
		}
	}
	return nil
}

// expandStep substitutes parameter references in the command, working
// directory and environment of a step.
func expandStep(step *domain.Step, params *domain.ParamResolver) (*domain.Step, error) {
	out := &domain.Step{
		Name:        step.Name,
		Command:     make([]string, len(step.Command)),
		Environment: make(map[string]string, len(step.Environment)),
	}

	for i, arg := range step.Command {
		v, err := params.Expand(arg)
		if err != nil {
			return nil, err
		}
		out.Command[i] = v
	}

	dir, err := params.Expand(step.WorkingDir)
	if err != nil {
		return nil, err
	}
	out.WorkingDir = dir

	for k, v := range step.Environment {
		expanded, err := params.Expand(v)
		if err != nil {
			return nil, err
		}
		out.Environment[k] = expanded
	}
	return out, nil
}
