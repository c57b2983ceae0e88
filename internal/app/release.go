package app

import (
	"context"

	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/engine/release"
	"go.trai.ch/trellis/internal/engine/scheduler"
	"go.trai.ch/trellis/internal/ui/report"
)

type dispatchFunc func(ctx context.Context, req scheduler.Request) (*scheduler.Result, error)

func (f dispatchFunc) Run(ctx context.Context, req scheduler.Request) (*scheduler.Result, error) {
	return f(ctx, req)
}

func (a *App) gate() *release.Gate {
	return release.NewGate(dispatchFunc(a.dispatch), a.releases, a.runs, a.locks)
}

// ReleaseConfigure starts a release attempt and binds its version.
func (a *App) ReleaseConfigure(ctx context.Context, opts RunOptions) error {
	p, err := a.load()
	if err != nil {
		return err
	}

	record, res, err := a.gate().Configure(ctx, p, opts.overrides())
	a.printRelease(record, res)
	return err
}

// ReleaseDeploy ships the configured version to every platform and publishes it.
func (a *App) ReleaseDeploy(ctx context.Context, opts RunOptions) error {
	p, err := a.load()
	if err != nil {
		return err
	}

	record, res, err := a.gate().Deploy(ctx, p, opts.overrides())
	a.printRelease(record, res)
	return err
}

// ReleaseStatus prints the persisted release record.
func (a *App) ReleaseStatus(_ context.Context) error {
	p, err := a.load()
	if err != nil {
		return err
	}

	record, err := a.gate().Status(p)
	if err != nil {
		return err
	}
	report.New(a.stdout).Release(record)
	return nil
}

func (a *App) printRelease(record *domain.ReleaseRecord, res *scheduler.Result) {
	printer := report.New(a.stdout)
	if res != nil {
		printer.Runs(res.Ordered(), res.Status())
	}
	if record != nil {
		printer.Release(record)
	}
}
