// Package telemetry provides optional run instrumentation. The runner takes
// an Observer explicitly; the default is a no-op, so the pipeline stays
// independently testable with no hidden global state.
package telemetry

import (
	"context"
	"time"
)

// RunInfo identifies a single script execution.
type RunInfo struct {
	RunID     string
	Tool      string
	Capture   bool
	StartedAt time.Time
}

// StreamLine is one line of child-process output.
type StreamLine struct {
	Stream string // "stdout" or "stderr"
	Text   string
}

// Outcome summarizes a finished run.
type Outcome struct {
	Ok            bool
	ExitCode      int
	Duration      time.Duration
	ArtifactBytes int64
	Err           error
}

// Observer receives run lifecycle notifications. Implementations must be
// safe for concurrent use; RunLine may be called from multiple goroutines.
type Observer interface {
	// RunStarted is called before the child process spawns. The returned
	// context is threaded through the run so tracing observers can attach
	// span state.
	RunStarted(ctx context.Context, info RunInfo) context.Context

	// RunLine is called for each forwarded output line in streaming mode.
	RunLine(ctx context.Context, info RunInfo, line StreamLine)

	// RunFinished is called exactly once after the run completes or aborts.
	RunFinished(ctx context.Context, info RunInfo, outcome Outcome)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) RunStarted(ctx context.Context, _ RunInfo) context.Context { return ctx }
func (NopObserver) RunLine(context.Context, RunInfo, StreamLine)              {}
func (NopObserver) RunFinished(context.Context, RunInfo, Outcome)             {}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) RunStarted(ctx context.Context, info RunInfo) context.Context {
	for _, o := range m {
		ctx = o.RunStarted(ctx, info)
	}
	return ctx
}

func (m MultiObserver) RunLine(ctx context.Context, info RunInfo, line StreamLine) {
	for _, o := range m {
		o.RunLine(ctx, info, line)
	}
}

func (m MultiObserver) RunFinished(ctx context.Context, info RunInfo, outcome Outcome) {
	for _, o := range m {
		o.RunFinished(ctx, info, outcome)
	}
}
