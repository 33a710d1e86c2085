package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	testtools "github.com/newstack-cloud/celerity-test-tools"
	"github.com/newstack-cloud/celerity-test-tools/exitcodes"
	"github.com/newstack-cloud/celerity-test-tools/flags"
	"github.com/newstack-cloud/celerity-test-tools/logging"
	"github.com/newstack-cloud/celerity-test-tools/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "test-tools"
	app.Usage = "Celerity Runtime Test Environment Orchestrator"
	app.Description = "test-tools provisions the containerized test dependencies, seeds fixtures and runs the test suite against them"
	app.ArgsUsage = "-- <test command>"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			var testErr *testtools.TestFailureError
			if errors.As(err, &testErr) {
				// Propagate the test command's own exit code
				cli.HandleExitCoder(cli.Exit(err.Error(), testErr.ExitCode))
			} else {
				// Infrastructure failures, readiness timeouts and bad
				// fixtures all exit with the runtime error code
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			}
		}
	}

	// An interrupt must be observable by the orchestrator so it can
	// still tear the dependency stack down before finishing.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(c *cli.Context) error {
	logger, err := logging.New(c.String(flags.LogLevel.Name))
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(c.App.Name),
		otelconfig.WithServiceVersion(c.App.Version),
	)
	if err != nil {
		logger.Warn("failed to set up open telemetry, continuing without it", zap.Error(err))
	} else {
		defer otelShutdown()
	}

	// Start the healthz/metrics servers
	svc := service.New(logger)
	svc.Start(c.Context)
	defer svc.Shutdown()

	cfg, err := testtools.NewConfig(c, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	logger.Debug("config loaded",
		zap.Bool("localdeps", cfg.LocalDeps),
		zap.String("context", string(cfg.Context)),
		zap.String("composeFile", cfg.ComposeFile),
		zap.String("envFile", cfg.EnvFile))

	orchestrator, err := testtools.New(c.Context, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}

	return orchestrator.Run(c.Context)
}
