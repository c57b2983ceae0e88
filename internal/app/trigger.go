package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"go.trai.ch/trellis/internal/adapters/watcher"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/zerr"
)

const defaultDebounce = watcher.DefaultDebounceWindow

// TriggerOptions configuration for the Trigger method.
type TriggerOptions struct {
	RunOptions
	// Paths are the changed files, absolute or relative to the working directory.
	Paths []string
}

// Trigger runs every job whose trigger rules accept the change-set. A
// change-set that triggers nothing is not an error.
func (a *App) Trigger(ctx context.Context, opts TriggerOptions) error {
	p, err := a.load()
	if err != nil {
		return err
	}

	abs := make([]string, 0, len(opts.Paths))
	for _, changed := range opts.Paths {
		absPath, err := filepath.Abs(changed)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "failed to resolve changed path"), "path", changed)
		}
		abs = append(abs, absPath)
	}

	return a.trigger(ctx, p, watcher.ChangeSet(p.Root, abs), opts.RunOptions)
}

func (a *App) trigger(ctx context.Context, p *domain.Pipeline, changed []string, opts RunOptions) error {
	targets := p.ChangeTriggered(changed)
	if len(targets) == 0 {
		a.logger.Info(fmt.Sprintf("no job triggered by %d changed path(s)", len(changed)))
		return nil
	}

	names := make([]string, 0, len(targets))
	for _, id := range targets {
		names = append(names, id.String())
	}
	a.logger.Info(fmt.Sprintf("%d changed path(s) triggered %v", len(changed), names))

	return a.build(ctx, p, targets, opts)
}

// WatchOptions configuration for the Watch method.
type WatchOptions struct {
	RunOptions
	// Debounce is the quiet period before a change-set is dispatched.
	Debounce time.Duration
}

// Watch dispatches triggered jobs for every debounced change-set until ctx is
// done. Failed builds are reported and watching continues. A change to the
// pipeline file reloads it before the next dispatch.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	p, err := a.load()
	if err != nil {
		return err
	}

	window := opts.Debounce
	if window <= 0 {
		window = a.debounce
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.watcher.Start(ctx, p.Root); err != nil {
		return err
	}
	defer func() {
		_ = a.watcher.Stop()
	}()

	changes := make(chan []string)
	debouncer := watcher.NewDebouncer(window, func(paths []string) {
		select {
		case changes <- paths:
		case <-ctx.Done():
		}
	})

	go func() {
		for event := range a.watcher.Events() {
			debouncer.Add(event.Path)
		}
	}()

	a.logger.Info("watching " + p.Root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case paths := <-changes:
			changed := watcher.ChangeSet(p.Root, paths)
			if slices.ContainsFunc(changed, isPipelineFile) {
				reloaded, err := a.load()
				if err != nil {
					a.logger.Error(err)
					continue
				}
				p = reloaded
				a.logger.Info("reloaded pipeline revision " + p.Revision)
			}

			if err := a.trigger(ctx, p, changed, opts.RunOptions); err != nil {
				if !errors.Is(err, domain.ErrBuildExecutionFailed) {
					a.logger.Error(err)
				}
			}
		}
	}
}

func isPipelineFile(rel string) bool {
	return rel == domain.PipelineFileName
}
