package runner

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestExecutor(t *testing.T, cfg Config) (*Executor, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg.Log = zaptest.NewLogger(t)
	cfg.Stdout = &out
	cfg.Stderr = &out
	executor, err := NewExecutor(cfg)
	require.NoError(t, err)
	return executor, &out
}

func TestRunReturnsZeroExitCodeOnSuccess(t *testing.T) {
	executor, out := newTestExecutor(t, Config{})

	result, err := executor.Run(context.Background(), []string{"sh", "-c", "echo all tests passed"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, out.String(), "all tests passed")
	assert.Contains(t, result.OutputTail, "all tests passed")
}

func TestRunTreatsNonZeroExitAsDataNotError(t *testing.T) {
	executor, _ := newTestExecutor(t, Config{})

	result, err := executor.Run(context.Background(), []string{"sh", "-c", "exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestRunFailsWhenCommandCannotStart(t *testing.T) {
	executor, _ := newTestExecutor(t, Config{})

	_, err := executor.Run(context.Background(), []string{"a-binary-that-does-not-exist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run test command")
}

func TestRunRequiresACommand(t *testing.T) {
	executor, _ := newTestExecutor(t, Config{})

	_, err := executor.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestRunLayersEnvFileUnderLiveEnvironment(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env.test")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"CELERITY_LOG_LEVEL=debug\nCELERITY_API_PORT=9000\n"), 0o644))

	// The live environment must win over the file for duplicate keys.
	t.Setenv("CELERITY_API_PORT", "9443")

	executor, out := newTestExecutor(t, Config{EnvFile: envFile})

	result, err := executor.Run(context.Background(),
		[]string{"sh", "-c", `echo "port=$CELERITY_API_PORT level=$CELERITY_LOG_LEVEL"`})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, out.String(), "port=9443")
	assert.Contains(t, out.String(), "level=debug")
}

func TestRunToleratesMissingEnvFile(t *testing.T) {
	executor, _ := newTestExecutor(t, Config{
		EnvFile: filepath.Join(t.TempDir(), ".env.test"),
	})

	result, err := executor.Run(context.Background(), []string{"sh", "-c", "exit 0"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
}

func TestRunCapturesStderrInOutputTail(t *testing.T) {
	executor, _ := newTestExecutor(t, Config{})

	result, err := executor.Run(context.Background(),
		[]string{"sh", "-c", "echo 'FAIL: TestSomething' 1>&2; exit 1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
	assert.True(t, strings.Contains(result.OutputTail, "FAIL: TestSomething"))
}
