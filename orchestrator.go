package testtools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/newstack-cloud/celerity-test-tools/fixtures"
	"github.com/newstack-cloud/celerity-test-tools/metrics"
	"github.com/newstack-cloud/celerity-test-tools/runner"
	"github.com/newstack-cloud/celerity-test-tools/stack"
)

// teardownTimeout bounds the teardown that runs after an interrupt or
// timeout, on a context detached from the one that was canceled.
const teardownTimeout = 2 * time.Minute

// State identifies where the orchestrator is in its lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateDepsStarting State = "deps-starting"
	StateDepsReady    State = "deps-ready"
	StateProvisioning State = "provisioning"
	StateTestRunning  State = "test-running"
	StateTornDown     State = "torn-down"
)

// DependencyStack is the subset of the stack the orchestrator drives.
type DependencyStack interface {
	BringUp(ctx context.Context) error
	TearDown(ctx context.Context) error
}

// ReadinessWatcher resolves whether the stack became ready in time.
type ReadinessWatcher interface {
	WaitForReady(ctx context.Context, container string, marker string, deadline time.Duration) (stack.Signal, error)
}

// FixtureProvisioner seeds the emulated services before tests run.
type FixtureProvisioner interface {
	Provision(ctx context.Context) error
}

// TestExecutor runs the test command against the prepared environment.
type TestExecutor interface {
	Run(ctx context.Context, command []string) (*runner.Result, error)
}

// Orchestrator composes the dependency stack, readiness watcher,
// fixture provisioner and test executor into the full test environment
// lifecycle. It exclusively owns the lifetime of the stack and of any
// log-tailing process started on its behalf; when local dependency
// management is requested, teardown runs exactly once on every
// terminating path, including readiness timeouts and interrupts.
type Orchestrator struct {
	cfg         *Config
	log         *zap.Logger
	stack       DependencyStack
	watcher     ReadinessWatcher
	provisioner FixtureProvisioner
	executor    TestExecutor
	tracer      trace.Tracer

	runID  string
	state  State
	phases []phaseResult
}

// New creates an orchestrator wired to the real container engine, AWS
// clients and process executor.
func New(ctx context.Context, cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	depStack, err := stack.New(stack.Config{
		ComposeFile: cfg.ComposeFile,
		Log:         cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency stack: %w", err)
	}

	watcher, err := stack.NewWatcher(cfg.Log, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create readiness watcher: %w", err)
	}

	store, err := fixtures.NewStore(cfg.FixtureBaseDir, cfg.Context, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture store: %w", err)
	}

	provisioner, err := fixtures.NewProvisioner(ctx, fixtures.ProvisionerConfig{
		Store:    store,
		SecretID: os.Getenv(cfg.SecretIDEnvVar),
		Region:   cfg.AWSRegion,
		Endpoint: cfg.AWSEndpoint,
		Log:      cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture provisioner: %w", err)
	}

	executor, err := runner.NewExecutor(runner.Config{
		EnvFile: cfg.EnvFile,
		Log:     cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create test executor: %w", err)
	}

	return NewWithComponents(cfg, depStack, watcher, provisioner, executor), nil
}

// NewWithComponents wires explicit collaborators, primarily for tests.
func NewWithComponents(cfg *Config, depStack DependencyStack, watcher ReadinessWatcher,
	provisioner FixtureProvisioner, executor TestExecutor) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		log:         cfg.Log,
		stack:       depStack,
		watcher:     watcher,
		provisioner: provisioner,
		executor:    executor,
		tracer:      otel.Tracer("test environment orchestrator"),
		state:       StateIdle,
	}
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	return o.state
}

// Run drives a single orchestration from bring-up through teardown and
// returns the first error from the taxonomy in errors.go, or nil when
// the environment came up and the test command exited zero.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.runID = uuid.New().String()
	o.phases = nil
	o.log = o.cfg.Log.With(zap.String("runId", o.runID))

	o.log.Info("starting test environment run",
		zap.Bool("localDeps", o.cfg.LocalDeps),
		zap.String("context", string(o.cfg.Context)))

	start := time.Now()
	var err error
	if o.cfg.LocalDeps {
		err = o.runWithDeps(ctx)
	} else {
		// The dependency stack is externally managed (e.g. by the CI
		// environment); run the tests directly against it.
		err = o.runTests(ctx)
	}

	result := "pass"
	if err != nil {
		result = "fail"
	}
	metrics.RecordRun(o.runID, result)
	o.printSummary(time.Since(start), err)
	return err
}

// runWithDeps executes the managed lifecycle: bring-up, readiness wait,
// provisioning, test execution and teardown. The deferred teardown is
// the release half of the scoped acquisition of the stack; it fires on
// every exit path and is a no-op once the explicit post-test teardown
// has run.
func (o *Orchestrator) runWithDeps(ctx context.Context) (err error) {
	tornDown := false
	teardown := func() {
		if tornDown {
			return
		}
		tornDown = true
		o.setState(StateTornDown)

		// Teardown must complete even when the surrounding run was
		// interrupted or timed out, so it runs on a context detached
		// from the canceled one.
		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()

		teardownStart := time.Now()
		terr := o.stack.TearDown(teardownCtx)
		o.recordPhase("teardown", teardownStart, terr)
		metrics.RecordTeardown()
		if terr != nil {
			o.log.Error("failed to tear down the dependency stack", zap.Error(terr))
			metrics.RecordErrorDetails("teardown failed", terr)
			if err == nil {
				err = NewInfrastructureError(terr)
			}
		}
	}
	defer teardown()

	o.setState(StateDepsStarting)
	bringUpCtx, span := o.tracer.Start(ctx, "bring up dependency stack")
	bringUpStart := time.Now()
	berr := o.stack.BringUp(bringUpCtx)
	span.End()
	o.recordPhase("bring-up", bringUpStart, berr)
	if berr != nil {
		return NewInfrastructureError(berr)
	}

	waitCtx, span := o.tracer.Start(ctx, "wait for readiness")
	waitStart := time.Now()
	signal, werr := o.watcher.WaitForReady(waitCtx, o.cfg.ReadyContainer, o.cfg.ReadyMarker, o.cfg.ReadyDeadline)
	span.End()
	if werr != nil {
		o.recordPhase("readiness", waitStart, werr)
		if errors.Is(werr, context.Canceled) {
			// User interrupt; teardown is still owed via the defer.
			return werr
		}
		return NewInfrastructureError(werr)
	}
	metrics.RecordReadiness(o.runID, time.Since(waitStart))
	if signal == stack.SignalTimedOut {
		terr := NewReadinessTimeoutError(o.cfg.ReadyDeadline)
		o.recordPhase("readiness", waitStart, terr)
		return terr
	}
	o.recordPhase("readiness", waitStart, nil)
	o.setState(StateDepsReady)

	o.setState(StateProvisioning)
	provisionCtx, span := o.tracer.Start(ctx, "provision fixtures")
	provisionStart := time.Now()
	perr := o.provisioner.Provision(provisionCtx)
	span.End()
	o.recordPhase("provisioning", provisionStart, perr)
	if perr != nil {
		if errors.Is(perr, context.Canceled) {
			return perr
		}
		return NewFixtureError(perr)
	}

	rerr := o.runTests(ctx)

	// Teardown runs before a test failure is surfaced; reporting the
	// failure is owed to the caller, a clean environment is owed first.
	teardown()
	if rerr != nil {
		return rerr
	}
	// A failed teardown on an otherwise clean run is reported through
	// the named return, set inside teardown.
	return err
}

func (o *Orchestrator) runTests(ctx context.Context) error {
	o.setState(StateTestRunning)
	testCtx, span := o.tracer.Start(ctx, "run test command")
	defer span.End()

	testStart := time.Now()
	result, err := o.executor.Run(testCtx, o.cfg.Command)
	if err != nil {
		o.recordPhase("tests", testStart, err)
		return NewInfrastructureError(err)
	}

	metrics.RecordTestExitCode(o.runID, result.ExitCode)
	if result.ExitCode != 0 {
		ferr := NewTestFailureError(result.ExitCode)
		o.recordPhase("tests", testStart, ferr)
		return ferr
	}
	o.recordPhase("tests", testStart, nil)
	return nil
}

func (o *Orchestrator) setState(state State) {
	o.state = state
	o.log.Debug("orchestrator state changed", zap.String("state", string(state)))
}
