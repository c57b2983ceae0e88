package app

import (
	"context"

	"go.trai.ch/trellis/internal/ui/report"
)

// Status prints the latest run of every job in pipeline order.
func (a *App) Status(_ context.Context) error {
	p, err := a.load()
	if err != nil {
		return err
	}

	rows := make([]report.JobStatus, 0, p.Graph.JobCount())
	for job := range p.Graph.Walk() {
		run, err := a.runs.Latest(p.Root, job.ID.String())
		if err != nil {
			return err
		}
		rows = append(rows, report.JobStatus{Job: job, Run: run})
	}

	report.New(a.stdout).Jobs(rows)
	return nil
}

// ServeOptions configuration for the Serve method.
type ServeOptions struct {
	Addr string
}

// Serve exposes run and release state over HTTP until ctx is done.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	p, err := a.load()
	if err != nil {
		return err
	}
	return a.api.Server(p).ListenAndServe(ctx, opts.Addr)
}
