// Package exitcodes defines the standard exit codes used by test-tools.
package exitcodes

// Exit code constants used by test-tools
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when the dependency stack came up, fixtures were provisioned
//   and the test command exited with code 0
// * TestFailure (1): Used when the test command exits non-zero; where the child's
//   own exit code is known, that code is propagated instead of this default
// * RuntimeErr (2): Used for infrastructure failures, readiness timeouts and
//   malformed fixtures
const (
	Success     = 0 // Environment provisioned and all tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Infrastructure failures, readiness timeouts, bad fixtures
)
