package testtools

import (
	"errors"
	"fmt"
	"time"
)

// InfrastructureError represents a process-level failure of the
// dependency stack or the test command itself (e.g. the container
// engine could not start the stack, or the test binary was not found).
// These lead to exit code 2 and are never retried.
type InfrastructureError struct {
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure failure: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// NewInfrastructureError creates a new InfrastructureError
func NewInfrastructureError(err error) *InfrastructureError {
	return &InfrastructureError{Err: err}
}

// IsInfrastructureError checks if the error is or wraps an InfrastructureError
func IsInfrastructureError(err error) bool {
	var infraErr *InfrastructureError
	return err != nil && errors.As(err, &infraErr)
}

// ReadinessTimeoutError indicates the readiness marker did not appear
// on the watched container's log stream within the deadline. The stack
// is torn down before this surfaces and no provisioning or tests run.
type ReadinessTimeoutError struct {
	Deadline time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for the dependency stack to be ready after %s", e.Deadline)
}

// NewReadinessTimeoutError creates a new ReadinessTimeoutError
func NewReadinessTimeoutError(deadline time.Duration) *ReadinessTimeoutError {
	return &ReadinessTimeoutError{Deadline: deadline}
}

// IsReadinessTimeoutError checks if the error is or wraps a ReadinessTimeoutError
func IsReadinessTimeoutError(err error) bool {
	var timeoutErr *ReadinessTimeoutError
	return err != nil && errors.As(err, &timeoutErr)
}

// FixtureError represents a fixture that exists but could not be parsed
// or submitted to its target service. A partially provisioned
// environment is unsafe to run tests against, so this aborts the run.
// Absent fixtures are not errors and never produce a FixtureError.
type FixtureError struct {
	Err error
}

func (e *FixtureError) Error() string {
	return fmt.Sprintf("fixture provisioning failed: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *FixtureError) Unwrap() error {
	return e.Err
}

// NewFixtureError creates a new FixtureError
func NewFixtureError(err error) *FixtureError {
	return &FixtureError{Err: err}
}

// IsFixtureError checks if the error is or wraps a FixtureError
func IsFixtureError(err error) bool {
	var fixtureErr *FixtureError
	return err != nil && errors.As(err, &fixtureErr)
}

// TestFailureError represents a test command that ran to completion but
// exited non-zero. It carries the child's exit code so the process can
// propagate it. Reported only after teardown has completed.
type TestFailureError struct {
	ExitCode int
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("tests or the test runner failed with code %d", e.ExitCode)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(exitCode int) *TestFailureError {
	return &TestFailureError{ExitCode: exitCode}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
