// Package stack manages the declarative multi-container dependency
// environment (LocalStack and friends) that integration tests run
// against, and watches its log stream for readiness.
package stack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CommandBuilder constructs the command for a container engine
// invocation and returns a cleanup function releasing any resources
// tied to it. Injectable so tests can substitute fake processes.
type CommandBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// DefaultCommandBuilder runs the command directly with the inherited
// environment.
func DefaultCommandBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	return exec.CommandContext(ctx, name, arg...), func() {}
}

// Stack is the docker compose dependency stack. Every bring-up begins
// from a clean slate, so the stack definition plus the fixture set
// fully determine the environment's state for a run.
type Stack struct {
	composeFile  string
	log          *zap.Logger
	buildCommand CommandBuilder
}

// Config contains dependency stack configuration
type Config struct {
	// ComposeFile is the declarative stack definition. Its name and
	// location are configuration; the orchestrator never generates it.
	ComposeFile string
	Log         *zap.Logger
	// CommandBuilder overrides how engine commands are constructed.
	// Defaults to DefaultCommandBuilder.
	CommandBuilder CommandBuilder
}

// New creates a dependency stack handle. No containers are touched
// until BringUp or TearDown is called.
func New(cfg Config) (*Stack, error) {
	if cfg.ComposeFile == "" {
		return nil, fmt.Errorf("compose file is required")
	}
	if cfg.Log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.CommandBuilder == nil {
		cfg.CommandBuilder = DefaultCommandBuilder
	}

	return &Stack{
		composeFile:  cfg.ComposeFile,
		log:          cfg.Log,
		buildCommand: cfg.CommandBuilder,
	}, nil
}

// BringUp starts the stack in detached mode. Any previous instance is
// unconditionally torn down first; a stale instance could mask a
// missing readiness signal or carry contaminated fixture state, so the
// pre-clean is a correctness requirement rather than an optimization.
func (s *Stack) BringUp(ctx context.Context) error {
	s.log.Info("tearing down previous instances of the dependency stack",
		zap.String("composeFile", s.composeFile))
	if err := s.TearDown(ctx); err != nil {
		return err
	}

	s.log.Info("bringing up the dependency stack")
	return s.run(ctx, "up", "-d")
}

// TearDown stops the stack's containers and removes them together with
// their volumes. Calling it when nothing is running succeeds silently,
// so it is safe to invoke from every exit path.
func (s *Stack) TearDown(ctx context.Context) error {
	if err := s.run(ctx, "stop"); err != nil {
		return err
	}
	return s.run(ctx, "rm", "-v", "-f")
}

func (s *Stack) run(ctx context.Context, args ...string) error {
	argv := append([]string{"compose", "-f", s.composeFile}, args...)

	cmd, cleanup := s.buildCommand(ctx, "docker", argv...)
	defer cleanup()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("docker %s exited with code %d: %s",
				strings.Join(argv, " "), exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		// The engine binary itself could not be run; keep this
		// distinguishable from a non-zero exit.
		return fmt.Errorf("failed to run docker %s: %w", strings.Join(argv, " "), err)
	}
	return nil
}
