// Package release drives the two-phase release gate: configure binds a
// version, an explicit deploy ships it to every platform.
package release

import (
	"context"
	"errors"
	"maps"
	"time"

	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/trellis/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// Dispatcher runs the closure of a set of target jobs.
type Dispatcher interface {
	Run(ctx context.Context, req scheduler.Request) (*scheduler.Result, error)
}

// Gate moves the persisted release record through its states.
type Gate struct {
	dispatcher Dispatcher
	releases   ports.ReleaseStore
	runs       ports.RunStore
	locks      ports.Locker
	now        func() time.Time
}

// releaseLockKey names the lock held while an invocation drives the record.
const releaseLockKey = "release"

// NewGate creates a Gate that runs release jobs through dispatcher.
func NewGate(dispatcher Dispatcher, releases ports.ReleaseStore, runs ports.RunStore, locks ports.Locker) *Gate {
	return &Gate{
		dispatcher: dispatcher,
		releases:   releases,
		runs:       runs,
		locks:      locks,
		now:        time.Now,
	}
}

// Status returns the persisted record.
func (g *Gate) Status(p *domain.Pipeline) (*domain.ReleaseRecord, error) {
	if p.Release == nil {
		return nil, domain.ErrReleaseNotDeclared
	}
	return g.releases.GetRelease(p.Root)
}

// Configure starts a fresh attempt and runs the configure job. On success the
// version parameter is bound and the gate waits in the configured state.
// A record left in flight by a dead invocation is failed first.
func (g *Gate) Configure(
	ctx context.Context,
	p *domain.Pipeline,
	overrides map[string]domain.Param,
) (*domain.ReleaseRecord, *scheduler.Result, error) {
	cfg := p.Release
	if cfg == nil {
		return nil, nil, domain.ErrReleaseNotDeclared
	}

	unlock, err := g.locks.Lock(ctx, p.Root, releaseLockKey, 1)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	record, err := g.releases.GetRelease(p.Root)
	if err != nil {
		return nil, nil, err
	}
	if record.State.InFlight() {
		if err = record.Abandon(g.now()); err != nil {
			return record, nil, err
		}
		if err = g.releases.PutRelease(p.Root, record); err != nil {
			return record, nil, err
		}
	}
	if err = record.Restart(cfg.VersionParameter, g.now()); err != nil {
		return record, nil, err
	}
	if err = g.releases.PutRelease(p.Root, record); err != nil {
		return record, nil, err
	}

	res, err := g.dispatcher.Run(ctx, scheduler.Request{
		Pipeline:  p,
		Targets:   []domain.InternedString{cfg.Configure},
		Overrides: overrides,
	})
	if err != nil {
		return record, res, g.fail(p.Root, record, nil, err)
	}

	run := res.Run(cfg.Configure.String())
	record.ConfigureRunID = run.ID
	if !run.Succeeded() {
		return record, res, g.fail(p.Root, record, []domain.Problem{constituentProblem(cfg.Configure, run)}, nil)
	}

	version := domain.NewVersionParameter(cfg.VersionParameter)
	value, ok := run.Param(cfg.VersionParameter)
	if !ok || value == "" {
		value = run.BuildNumber
	}
	if err = version.Bind(value); err != nil {
		return record, res, g.fail(p.Root, record, nil, err)
	}
	record.Version, _ = version.Value()

	if err = record.Transition(domain.ReleaseConfigured, g.now()); err != nil {
		return record, res, err
	}
	return record, res, g.releases.PutRelease(p.Root, record)
}

// Deploy runs every deploy job and the publish job with the bound version.
// The configure run stands in as their completed upstream. The gate reaches
// published only when every one of those runs succeeded.
func (g *Gate) Deploy(
	ctx context.Context,
	p *domain.Pipeline,
	overrides map[string]domain.Param,
) (*domain.ReleaseRecord, *scheduler.Result, error) {
	cfg := p.Release
	if cfg == nil {
		return nil, nil, domain.ErrReleaseNotDeclared
	}

	unlock, err := g.locks.Lock(ctx, p.Root, releaseLockKey, 1)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	record, err := g.releases.GetRelease(p.Root)
	if err != nil {
		return nil, nil, err
	}
	if err = record.Transition(domain.ReleaseDeploying, g.now()); err != nil {
		return record, nil, err
	}
	if err = g.releases.PutRelease(p.Root, record); err != nil {
		return record, nil, err
	}

	configure, err := g.runs.Get(p.Root, record.ConfigureRunID)
	if err == nil && configure == nil {
		err = zerr.With(domain.ErrStoreReadFailed, "run_id", record.ConfigureRunID)
	}
	if err != nil {
		return record, nil, g.fail(p.Root, record, nil, err)
	}

	version := domain.NewVersionParameter(record.VersionParam)
	if err = version.Bind(record.Version); err != nil {
		return record, nil, g.fail(p.Root, record, nil, err)
	}
	value, _ := version.Value()

	params := make(map[string]domain.Param, len(overrides)+1)
	maps.Copy(params, overrides)
	params[version.Name()] = domain.Param{Value: value}

	targets := append(append([]domain.InternedString{}, cfg.Deploys...), cfg.Publish)
	res, err := g.dispatcher.Run(ctx, scheduler.Request{
		Pipeline:  p,
		Targets:   targets,
		Completed: map[string]*domain.Run{cfg.Configure.String(): configure},
		Overrides: params,
	})
	if err != nil {
		return record, res, g.fail(p.Root, record, nil, err)
	}

	var problems []domain.Problem
	record.DeployRunIDs = make(map[string]string, len(cfg.Deploys))
	for _, id := range cfg.Deploys {
		run := res.Run(id.String())
		record.DeployRunIDs[id.String()] = run.ID
		if !run.Succeeded() {
			problems = append(problems, constituentProblem(id, run))
		}
	}
	publish := res.Run(cfg.Publish.String())
	record.PublishRunID = publish.ID
	if !publish.Succeeded() {
		problems = append(problems, constituentProblem(cfg.Publish, publish))
	}

	if len(problems) > 0 {
		return record, res, g.fail(p.Root, record, problems, nil)
	}
	if err = record.Transition(domain.ReleasePublished, g.now()); err != nil {
		return record, res, err
	}
	return record, res, g.releases.PutRelease(p.Root, record)
}

// fail ends the attempt and persists the record. Only a fresh configure
// leaves the failed state.
func (g *Gate) fail(root string, record *domain.ReleaseRecord, problems []domain.Problem, cause error) error {
	record.Problems = append(record.Problems, problems...)
	if cause != nil {
		record.Problems = append(record.Problems, domain.NewProblem(domain.ProblemInterrupted, "", cause))
	}
	if err := record.Transition(domain.ReleaseFailed, g.now()); err != nil {
		return err
	}
	if err := g.releases.PutRelease(root, record); err != nil {
		return err
	}

	if cause != nil {
		return errors.Join(domain.ErrReleaseFailed, cause)
	}
	return domain.ErrReleaseFailed
}

func constituentProblem(id domain.InternedString, run *domain.Run) domain.Problem {
	kind := domain.ProblemDependencyFailure
	if run.Status == domain.RunCanceled {
		kind = domain.ProblemDependencyCancel
	}
	return domain.Problem{Kind: kind, Source: id.String(), Message: "run " + string(run.Status)}
}
