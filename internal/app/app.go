// Package app implements the application layer for trellis.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/trellis/internal/adapters/agent"
	"go.trai.ch/trellis/internal/adapters/httpapi"
	"go.trai.ch/trellis/internal/adapters/linear"
	"go.trai.ch/trellis/internal/adapters/telemetry"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/trellis/internal/engine/runner"
	"go.trai.ch/trellis/internal/engine/scheduler"
	"go.trai.ch/trellis/internal/ui/report"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	executor     ports.Executor
	logger       ports.Logger
	runs         ports.RunStore
	counters     ports.CounterStore
	artifacts    ports.ArtifactStore
	releases     ports.ReleaseStore
	locks        ports.Locker
	watcher      ports.Watcher
	api          *httpapi.Factory

	stdout   io.Writer
	stderr   io.Writer
	debounce time.Duration
}

// Stores groups the persisted state the app reads and writes.
type Stores struct {
	Runs      ports.RunStore
	Counters  ports.CounterStore
	Artifacts ports.ArtifactStore
	Releases  ports.ReleaseStore
	Locks     ports.Locker
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	executor ports.Executor,
	log ports.Logger,
	stores Stores,
	watcher ports.Watcher,
	api *httpapi.Factory,
) *App {
	return &App{
		configLoader: loader,
		executor:     executor,
		logger:       log,
		runs:         stores.Runs,
		counters:     stores.Counters,
		artifacts:    stores.Artifacts,
		releases:     stores.Releases,
		locks:        stores.Locks,
		watcher:      watcher,
		api:          api,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		debounce:     defaultDebounce,
	}
}

// WithOutput redirects the summary and the job logs.
// This is primarily used for testing.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	return a
}

// SetLogJSON switches the logger to JSON output when it supports it.
func (a *App) SetLogJSON(enable bool) {
	if l, ok := a.logger.(interface{ SetJSON(enable bool) }); ok {
		l.SetJSON(enable)
	}
}

// RunOptions configuration for the Run method.
type RunOptions struct {
	// Params override pipeline and job parameters by name.
	Params map[string]string
	// Parallelism bounds concurrently dispatched jobs. Zero uses the pipeline setting.
	Parallelism int
}

func (o RunOptions) overrides() map[string]domain.Param {
	if len(o.Params) == 0 {
		return nil
	}
	params := make(map[string]domain.Param, len(o.Params))
	for name, value := range o.Params {
		params[name] = domain.Param{Value: value}
	}
	return params
}

// Run executes the closure of the specified targets.
func (a *App) Run(ctx context.Context, targetNames []string, opts RunOptions) error {
	// 1. Load the pipeline
	p, err := a.load()
	if err != nil {
		return err
	}

	// 2. Validate targets
	if len(targetNames) == 0 {
		return domain.ErrNoTargetsSpecified
	}

	return a.build(ctx, p, domain.NewInternedStrings(targetNames), opts)
}

func (a *App) build(ctx context.Context, p *domain.Pipeline, targets []domain.InternedString, opts RunOptions) error {
	res, err := a.dispatch(ctx, scheduler.Request{
		Pipeline:    p,
		Targets:     targets,
		Overrides:   opts.overrides(),
		Parallelism: opts.Parallelism,
	})
	if res != nil {
		report.New(a.stdout).Runs(res.Ordered(), res.Status())
	}
	if err != nil {
		return err
	}
	if res.Status() != domain.RunSucceeded {
		return domain.ErrBuildExecutionFailed
	}
	return nil
}

// dispatch runs req on a fresh scheduler while the renderer streams job output.
func (a *App) dispatch(ctx context.Context, req scheduler.Request) (*scheduler.Result, error) {
	// 1. Initialize Renderer
	renderer := linear.NewRenderer(a.stdout, a.stderr)

	// 2. Initialize Telemetry
	// Spans started by the tracer reach the renderer through the bridge.
	setupOTel(telemetry.NewBridge(renderer))
	tracer := telemetry.NewOTelTracer(telemetry.InstrumentationName).WithRenderer(renderer)
	defer func() {
		_ = tracer.Shutdown(ctx)
	}()

	// 3. Initialize Scheduler
	// Agent leases live for one invocation. Concurrency slots are lock files
	// shared with other invocations.
	jobRunner := runner.New(agent.NewPool(req.Pipeline.Agents), a.executor, a.counters, a.artifacts, a.runs, a.locks)
	sched := scheduler.NewScheduler(jobRunner, tracer)

	// 4. Run Renderer and Scheduler concurrently
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := renderer.Start(gctx); err != nil {
			return err
		}
		return renderer.Wait()
	})

	var res *scheduler.Result
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = zerr.With(zerr.New("scheduler panic"), "panic", fmt.Sprint(r))
			}
			// Deliver buffered output before the renderer flushes.
			_ = tracer.Shutdown(ctx)
			_ = renderer.Stop()
		}()

		res, err = sched.Run(gctx, req)
		return err
	})

	return res, g.Wait()
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	Runs      bool
	Artifacts bool
}

// Clean removes stored runs and published artifacts. Build counters and the
// release record are kept so versions keep increasing.
func (a *App) Clean(_ context.Context, options CleanOptions) error {
	root, err := a.configLoader.DiscoverRoot(".")
	if err != nil {
		return err
	}

	var errs error

	remove := func(path string, name string) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := os.RemoveAll(path); err != nil {
			errs = errors.Join(errs, zerr.Wrap(err, fmt.Sprintf("failed to remove %s", name)))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	if options.Runs {
		remove(domain.RunsPath(root), "run records")
	}

	if options.Artifacts {
		remove(filepath.Join(domain.StatePath(root), domain.ArtifactsDirName), "artifact store")
	}

	return errs
}

func (a *App) load() (*domain.Pipeline, error) {
	p, err := a.configLoader.Load(".")
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return p, nil
}

// setupOTel configures the OpenTelemetry SDK with the renderer bridge.
func setupOTel(bridge *telemetry.Bridge) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(bridge),
	)
	otel.SetTracerProvider(tp)
}
