package stack

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Signal is the terminal outcome of watching the stack for readiness.
// Exactly one signal is produced per bring-up attempt.
type Signal int

const (
	// SignalReady indicates the readiness marker appeared on the log
	// stream before the deadline elapsed.
	SignalReady Signal = iota
	// SignalTimedOut indicates the deadline elapsed before the marker
	// appeared.
	SignalTimedOut
)

func (s Signal) String() string {
	switch s {
	case SignalReady:
		return "ready"
	case SignalTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Watcher resolves whether a container's live log stream announces
// readiness within a bounded deadline.
type Watcher struct {
	log          *zap.Logger
	buildCommand CommandBuilder
}

// NewWatcher creates a readiness watcher. A nil builder falls back to
// DefaultCommandBuilder.
func NewWatcher(log *zap.Logger, builder CommandBuilder) (*Watcher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if builder == nil {
		builder = DefaultCommandBuilder
	}
	return &Watcher{log: log, buildCommand: builder}, nil
}

// WaitForReady attaches to the container's live log stream and returns
// SignalReady as soon as a line, trimmed of surrounding whitespace,
// exactly matches marker. Elapsed wall-clock time is checked before
// each line is processed; the deadline additionally bounds the tailing
// process itself through its context, so a container that produces no
// output at all still resolves to SignalTimedOut at the deadline
// instead of blocking until a line arrives. The tailing process is
// killed before returning on every path. The returned Signal is only
// meaningful when the error is nil.
func (w *Watcher) WaitForReady(ctx context.Context, container string, marker string, deadline time.Duration) (Signal, error) {
	start := time.Now()

	watchCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd, cleanup := w.buildCommand(watchCtx, "docker", "logs", "-f", container)
	defer cleanup()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return SignalTimedOut, fmt.Errorf("failed to open log stream for %s: %w", container, err)
	}
	if err := cmd.Start(); err != nil {
		return SignalTimedOut, fmt.Errorf("failed to start log tail for %s: %w", container, err)
	}
	defer func() {
		// Leaking a tailing process is a resource leak, not an
		// acceptable outcome; kill it on every exit path.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	w.log.Info("waiting for the dependency stack to be ready",
		zap.String("container", container),
		zap.String("marker", marker),
		zap.Duration("deadline", deadline))

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if time.Since(start) >= deadline {
			w.log.Warn("deadline elapsed before the readiness marker appeared",
				zap.String("container", container),
				zap.Duration("deadline", deadline))
			return SignalTimedOut, nil
		}
		if strings.TrimSpace(scanner.Text()) == marker {
			w.log.Info("dependency stack is ready",
				zap.Duration("elapsed", time.Since(start)))
			return SignalReady, nil
		}
	}

	// The stream ended without the marker: the caller was interrupted,
	// the deadline killed the tailing process, or the stream broke.
	if err := ctx.Err(); err != nil {
		return SignalTimedOut, err
	}
	if watchCtx.Err() != nil {
		w.log.Warn("deadline elapsed with no readiness marker on a quiet log stream",
			zap.String("container", container),
			zap.Duration("deadline", deadline))
		return SignalTimedOut, nil
	}
	if err := scanner.Err(); err != nil {
		return SignalTimedOut, fmt.Errorf("log stream for %s failed: %w", container, err)
	}
	return SignalTimedOut, fmt.Errorf("log stream for %s ended before the readiness marker appeared", container)
}
