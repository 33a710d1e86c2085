package stack

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptBuilder substitutes the engine log tail with a shell script so
// the watcher can be exercised against a controlled log stream.
func scriptBuilder(script string) CommandBuilder {
	return func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
		return exec.CommandContext(ctx, "sh", "-c", script), func() {}
	}
}

func TestWaitForReadyResolvesWhenMarkerAppears(t *testing.T) {
	w, err := NewWatcher(zaptest.NewLogger(t),
		scriptBuilder(`echo "starting up"; echo "Ready."; sleep 30`))
	require.NoError(t, err)

	start := time.Now()
	signal, err := w.WaitForReady(context.Background(), "localstack_celerity_runtime_tests", "Ready.", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, SignalReady, signal)
	// The tailing process must be reaped, not waited out.
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitForReadyMatchesTrimmedLinesOnly(t *testing.T) {
	w, err := NewWatcher(zaptest.NewLogger(t),
		scriptBuilder(`echo "Ready. Almost."; echo "   Ready.   "; sleep 30`))
	require.NoError(t, err)

	signal, err := w.WaitForReady(context.Background(), "localstack_celerity_runtime_tests", "Ready.", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, SignalReady, signal)
}

func TestWaitForReadyTimesOutOnQuietStream(t *testing.T) {
	// The container announces nothing at all; the deadline alone must
	// resolve the watch.
	w, err := NewWatcher(zaptest.NewLogger(t), scriptBuilder(`sleep 30`))
	require.NoError(t, err)

	start := time.Now()
	signal, err := w.WaitForReady(context.Background(), "localstack_celerity_runtime_tests", "Ready.", 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, SignalTimedOut, signal)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitForReadyTimesOutWhenMarkerNeverAppears(t *testing.T) {
	w, err := NewWatcher(zaptest.NewLogger(t),
		scriptBuilder(`echo "still initializing"; sleep 30`))
	require.NoError(t, err)

	signal, err := w.WaitForReady(context.Background(), "localstack_celerity_runtime_tests", "Ready.", 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, SignalTimedOut, signal)
}

func TestWaitForReadyFailsWhenStreamEndsEarly(t *testing.T) {
	// The log stream closing before the marker (e.g. the container
	// crashed) is an error, not a timeout.
	w, err := NewWatcher(zaptest.NewLogger(t), scriptBuilder(`echo "boot failed"`))
	require.NoError(t, err)

	_, err = w.WaitForReady(context.Background(), "localstack_celerity_runtime_tests", "Ready.", 10*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ended before the readiness marker appeared")
}

func TestWaitForReadyPropagatesInterrupt(t *testing.T) {
	w, err := NewWatcher(zaptest.NewLogger(t), scriptBuilder(`sleep 30`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err = w.WaitForReady(ctx, "localstack_celerity_runtime_tests", "Ready.", 10*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewWatcherRequiresLogger(t *testing.T) {
	_, err := NewWatcher(nil, nil)
	require.Error(t, err)
}
