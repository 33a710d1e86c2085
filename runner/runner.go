// Package runner executes the test command against the prepared
// environment.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Result captures the outcome of a test command invocation.
type Result struct {
	// ExitCode is the child process's exit code. A non-zero code is
	// data, not an error; deciding whether it is fatal belongs to the
	// orchestrator.
	ExitCode int
	Duration time.Duration
	// OutputTail holds the last portion of the command's combined
	// output for summary reporting.
	OutputTail string
}

// Executor runs the test command as a child process with the dotenv
// file's values layered under the live process environment.
type Executor struct {
	envFile      string
	log          *zap.Logger
	stdout       io.Writer
	stderr       io.Writer
	buildCommand func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())
}

// Config contains test executor configuration
type Config struct {
	// EnvFile is the dotenv file supplying the base environment. It may
	// be absent; the live environment is used on its own in that case.
	EnvFile string
	Log     *zap.Logger
	// Stdout and Stderr receive the child's streams. Default to the
	// orchestrator's own standard streams for visibility.
	Stdout io.Writer
	Stderr io.Writer
	// CommandBuilder overrides how the child process is constructed,
	// primarily for tests.
	CommandBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())
}

// NewExecutor creates a test executor.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.CommandBuilder == nil {
		cfg.CommandBuilder = func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
			return exec.CommandContext(ctx, name, arg...), func() {}
		}
	}

	return &Executor{
		envFile:      cfg.EnvFile,
		log:          cfg.Log,
		stdout:       cfg.Stdout,
		stderr:       cfg.Stderr,
		buildCommand: cfg.CommandBuilder,
	}, nil
}

// Run executes the command synchronously, streaming its output through
// the executor's writers, and returns its exit code without treating a
// non-zero code as an error. A command that cannot be started at all
// (e.g. the binary does not exist) is an error, kept distinguishable
// from a test failure.
func (e *Executor) Run(ctx context.Context, command []string) (*Result, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("test command is required")
	}

	env, err := e.buildEnv()
	if err != nil {
		return nil, err
	}

	cmd, cleanup := e.buildCommand(ctx, command[0], command[1:]...)
	defer cleanup()

	tail := newTailBuffer(defaultOutputTailBytes)
	cmd.Env = env
	cmd.Stdout = io.MultiWriter(e.stdout, tail)
	cmd.Stderr = io.MultiWriter(e.stderr, tail)

	e.log.Info("running test command", zap.Strings("command", command))
	start := time.Now()
	runErr := cmd.Run()
	result := &Result{Duration: time.Since(start)}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("failed to run test command: %w", runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	result.OutputTail = tail.String()
	e.log.Info("test command finished",
		zap.Int("exitCode", result.ExitCode),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// buildEnv layers the dotenv file's values under the live process
// environment. exec resolves duplicate keys in favor of later entries,
// so the live environment is appended last and file-based defaults can
// never shadow a real environment variable.
func (e *Executor) buildEnv() ([]string, error) {
	fileEnv, err := e.readEnvFile()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(fileEnv))
	for key := range fileEnv {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(fileEnv)+len(os.Environ()))
	for _, key := range keys {
		env = append(env, fmt.Sprintf("%s=%s", key, fileEnv[key]))
	}
	return append(env, os.Environ()...), nil
}

func (e *Executor) readEnvFile() (map[string]string, error) {
	if e.envFile == "" {
		return nil, nil
	}
	values, err := godotenv.Read(e.envFile)
	if errors.Is(err, fs.ErrNotExist) {
		e.log.Info("env file not found, using the live environment only",
			zap.String("envFile", e.envFile))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", e.envFile, err)
	}
	return values, nil
}
