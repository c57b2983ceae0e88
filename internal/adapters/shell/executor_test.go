package shell_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/trellis/internal/adapters/secrets"
	"go.trai.ch/trellis/internal/adapters/shell"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newExecutor() *shell.Executor {
	return shell.NewExecutor(secrets.NewResolver())
}

func TestExecutor_Execute_MultiLineOutput(t *testing.T) {
	step := &domain.Step{
		Name:       "echo",
		Command:    []string{"sh", "-c", "echo line1; echo line2"},
		WorkingDir: t.TempDir(),
	}

	var stdout bytes.Buffer
	res, err := newExecutor().Execute(context.Background(), step, nil, &stdout, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, domain.StepResult{}, res)
	assert.Equal(t, "line1\nline2\n", stdout.String())
}

func TestExecutor_Execute_EnvironmentPriority(t *testing.T) {
	step := &domain.Step{
		Name:        "env",
		Command:     []string{"sh", "-c", "echo $JOB_VAR $STEP_VAR"},
		Environment: map[string]string{"STEP_VAR": "from-step"},
		WorkingDir:  t.TempDir(),
	}

	var stdout bytes.Buffer
	_, err := newExecutor().Execute(context.Background(), step, []string{"JOB_VAR=from-job", "STEP_VAR=lost"}, &stdout, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "from-job from-step\n", stdout.String())
}

func TestExecutor_Execute_NonZeroExit(t *testing.T) {
	step := &domain.Step{Name: "fail", Command: []string{"sh", "-c", "exit 42"}, WorkingDir: t.TempDir()}

	res, err := newExecutor().Execute(context.Background(), step, nil, io.Discard, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 42, res.ExitCode)
	assert.False(t, res.ErrorOutput)
	assert.Equal(t, "exited with code 42", res.FailureReason(domain.DefaultFailureConditions()))
}

func TestExecutor_Execute_ErrorStream(t *testing.T) {
	step := &domain.Step{Name: "warn", Command: []string{"sh", "-c", "echo oops >&2"}, WorkingDir: t.TempDir()}

	var stderr bytes.Buffer
	res, err := newExecutor().Execute(context.Background(), step, nil, io.Discard, &stderr)
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	assert.True(t, res.ErrorOutput)
	assert.Equal(t, "oops\n", stderr.String())
	assert.Empty(t, res.FailureReason(domain.FailureConditions{NonZeroExitCode: true}))
}

func TestExecutor_Execute_InvalidCommand(t *testing.T) {
	step := &domain.Step{Name: "missing", Command: []string{"nonexistent-command-xyz123"}, WorkingDir: t.TempDir()}

	_, err := newExecutor().Execute(context.Background(), step, nil, io.Discard, io.Discard)
	require.ErrorContains(t, err, "failed to start step")
}

func TestExecutor_Execute_EmptyCommand(t *testing.T) {
	res, err := newExecutor().Execute(context.Background(), &domain.Step{Name: "noop"}, nil, io.Discard, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, domain.StepResult{}, res)
}

func TestExecutor_Execute_Interrupted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	step := &domain.Step{Name: "sleep", Command: []string{"sleep", "10"}, WorkingDir: t.TempDir()}
	_, err := newExecutor().Execute(ctx, step, nil, io.Discard, io.Discard)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_Execute_RevealsAndMasksSecrets(t *testing.T) {
	t.Setenv("TRELLIS_CREDENTIAL_BINTRAY", "p4ssw0rd")

	step := &domain.Step{
		Name:       "publish",
		Command:    []string{"sh", "-c", "echo key=$API_KEY; echo arg=$0", "credentialsJSON:bintray"},
		WorkingDir: t.TempDir(),
	}

	var stdout bytes.Buffer
	_, err := newExecutor().Execute(context.Background(), step, []string{"API_KEY=credentialsJSON:bintray"}, &stdout, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "key=*******\narg=*******\n", stdout.String())
}

func TestExecutor_Execute_UnknownSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockSecretResolver(ctrl)
	resolver.EXPECT().Reveal("credentialsJSON:nope").Return("", nil, domain.ErrSecretNotFound)
	resolver.EXPECT().Reveal(gomock.Any()).Return("sh", nil, nil).AnyTimes()

	step := &domain.Step{Name: "publish", Command: []string{"sh", "credentialsJSON:nope"}}
	_, err := shell.NewExecutor(resolver).Execute(context.Background(), step, nil, io.Discard, io.Discard)
	require.ErrorContains(t, err, "credential reference has no value")
}
