package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/trellis/internal/adapters/cas"
	"go.trai.ch/trellis/internal/adapters/httpapi"
	"go.trai.ch/trellis/internal/app"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

type harness struct {
	loader   *mocks.MockConfigLoader
	executor *mocks.MockExecutor
	logger   *mocks.MockLogger
	provider ComponentProvider
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	h := &harness{
		loader:   mocks.NewMockConfigLoader(ctrl),
		executor: mocks.NewMockExecutor(ctrl),
		logger:   mocks.NewMockLogger(ctrl),
	}
	store := cas.NewStore()
	stores := app.Stores{Runs: store, Counters: store, Artifacts: store, Releases: store, Locks: store}
	application := app.New(h.loader, h.executor, h.logger, stores, mocks.NewMockWatcher(ctrl),
		httpapi.NewFactory(store, store, h.logger))

	h.provider = func(_ context.Context) (*app.Components, func(), error) {
		return &app.Components{App: application, Logger: h.logger, ConfigLoader: h.loader}, func() {}, nil
	}
	return h
}

func quiet(a *app.App) {
	a.WithOutput(io.Discard, io.Discard)
}

// TestRun_Success verifies that the run function returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	h := newHarness(t)

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, h.provider)
	assert.Equal(t, 0, exitCode)
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

// TestRun_ExecutionError verifies that infrastructure errors are logged.
func TestRun_ExecutionError(t *testing.T) {
	h := newHarness(t)
	h.loader.EXPECT().Load(".").Return(nil, errors.New("load failed"))
	h.logger.EXPECT().Error(gomock.Any()).Times(1)

	exitCode := run(context.Background(), []string{"run", "Build_Linux"}, io.Discard, h.provider, quiet)
	assert.Equal(t, 1, exitCode)
}

// TestRun_BuildFailure verifies that failed jobs exit 1 without logging the summary again.
func TestRun_BuildFailure(t *testing.T) {
	h := newHarness(t)

	g := domain.NewGraph()
	job := &domain.Job{
		ID:                domain.NewInternedString("Build_Linux"),
		Kind:              domain.JobKindRegular,
		Steps:             []domain.Step{{Name: "check", Command: []string{"./gradlew", "check"}}},
		FailureConditions: domain.DefaultFailureConditions(),
	}
	if err := g.AddJob(job); err != nil {
		t.Fatalf("failed to add job: %v", err)
	}
	h.loader.EXPECT().Load(".").Return(&domain.Pipeline{Project: "kotlinx-io", Root: t.TempDir(), Graph: g}, nil)
	h.executor.EXPECT().Execute(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.StepResult{ExitCode: 1}, nil)
	h.logger.EXPECT().Error(gomock.Any()).Times(0)

	exitCode := run(context.Background(), []string{"run", "Build_Linux"}, io.Discard, h.provider, quiet)
	assert.Equal(t, 1, exitCode)
}
