// Package shell provides the shell executor adapter.
package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/core/ports"
	"go.trai.ch/zerr"
)

// waitDelay bounds how long output pipes are drained after a canceled step is killed.
const waitDelay = 5 * time.Second

// Executor implements ports.Executor using os/exec.
type Executor struct {
	secrets ports.SecretResolver
}

// NewExecutor creates a new Executor. Credential references are revealed through secrets.
func NewExecutor(secrets ports.SecretResolver) *Executor {
	return &Executor{secrets: secrets}
}

// Execute runs the step's command with the specified environment.
// It merges environments with the following priority (low to high):
// 1. os.Environ() (agent base)
// 2. env (resolved job parameters)
// 3. step.Environment (step-level overrides)
func (e *Executor) Execute(
	ctx context.Context,
	step *domain.Step,
	env []string,
	stdout, stderr io.Writer,
) (domain.StepResult, error) {
	if len(step.Command) == 0 {
		return domain.StepResult{}, nil
	}

	args, cmdEnv, revealed, err := e.reveal(step.Command, resolveEnvironment(os.Environ(), env, step.Environment))
	if err != nil {
		return domain.StepResult{}, zerr.With(err, "step", step.Name)
	}

	outMask := e.secrets.Mask(stdout, revealed)
	errTrack := &trackingWriter{w: e.secrets.Mask(stderr, revealed)}
	defer func() {
		_ = outMask.Close()
		_ = errTrack.w.Close()
	}()

	name := args[0]
	executable := name
	if !filepath.IsAbs(name) {
		if lp, lookErr := lookPath(name, cmdEnv); lookErr == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, args[1:]...) //nolint:gosec // user provided command
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}
	if step.WorkingDir != "" {
		cmd.Dir = step.WorkingDir
	}
	cmd.Env = cmdEnv
	cmd.Stdout = outMask
	cmd.Stderr = errTrack
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.StepResult{ExitCode: -1}, zerr.With(zerr.Wrap(ctxErr, "step interrupted"), "step", step.Name)
	}

	result := domain.StepResult{ErrorOutput: errTrack.wrote.Load()}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return domain.StepResult{ExitCode: -1}, zerr.With(zerr.Wrap(runErr, "failed to start step"), "step", step.Name)
		}
		result.ExitCode = exitErr.ExitCode()
	}
	return result, nil
}

// reveal resolves credential references in the command and the environment values.
func (e *Executor) reveal(command, env []string) (args, cmdEnv, revealed []string, err error) {
	args = make([]string, len(command))
	for i, arg := range command {
		v, values, revealErr := e.secrets.Reveal(arg)
		if revealErr != nil {
			return nil, nil, nil, revealErr
		}
		args[i] = v
		revealed = append(revealed, values...)
	}

	cmdEnv = make([]string, len(env))
	for i, entry := range env {
		v, values, revealErr := e.secrets.Reveal(entry)
		if revealErr != nil {
			return nil, nil, nil, revealErr
		}
		cmdEnv[i] = v
		revealed = append(revealed, values...)
	}
	return args, cmdEnv, revealed, nil
}

// trackingWriter records whether anything was written to the error stream.
type trackingWriter struct {
	w     io.WriteCloser
	wrote atomic.Bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		t.wrote.Store(true)
	}
	return t.w.Write(p)
}

// resolveEnvironment merges environment variables with the defined priority.
// The result is sorted for reproducible process environments.
func resolveEnvironment(sysEnv, jobEnv []string, stepEnv map[string]string) []string {
	envMap := make(map[string]string, len(sysEnv)+len(jobEnv)+len(stepEnv))
	for _, layer := range [][]string{sysEnv, jobEnv} {
		for _, entry := range layer {
			if k, v, ok := strings.Cut(entry, "="); ok {
				envMap[k] = v
			}
		}
	}
	for k, v := range stepEnv {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// lookPath searches for an executable in the directories named by the PATH environment variable.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if p, ok := strings.CutPrefix(e, "PATH="); ok {
			path = p
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
