package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	started  int
	lines    []StreamLine
	finished []Outcome
}

func (r *recordingObserver) RunStarted(ctx context.Context, _ RunInfo) context.Context {
	r.started++
	return context.WithValue(ctx, ctxKey{}, r.started)
}

func (r *recordingObserver) RunLine(_ context.Context, _ RunInfo, line StreamLine) {
	r.lines = append(r.lines, line)
}

func (r *recordingObserver) RunFinished(_ context.Context, _ RunInfo, outcome Outcome) {
	r.finished = append(r.finished, outcome)
}

type ctxKey struct{}

func TestNopObserverPassesContextThrough(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, NopObserver{}.RunStarted(ctx, RunInfo{}))
}

func TestMultiObserverFansOut(t *testing.T) {
	a := &recordingObserver{}
	b := &recordingObserver{}
	multi := MultiObserver{a, b}

	info := RunInfo{RunID: "01J", Tool: "demo", StartedAt: time.Now()}
	ctx := multi.RunStarted(context.Background(), info)
	multi.RunLine(ctx, info, StreamLine{Stream: "stdout", Text: "hi"})
	multi.RunFinished(ctx, info, Outcome{Ok: true})

	assert.Equal(t, 1, a.started)
	assert.Equal(t, 1, b.started)
	assert.Len(t, a.lines, 1)
	assert.Len(t, b.finished, 1)
	assert.True(t, a.finished[0].Ok)
}

func TestMultiObserverThreadsContext(t *testing.T) {
	a := &recordingObserver{}
	ctx := MultiObserver{a}.RunStarted(context.Background(), RunInfo{})
	assert.Equal(t, 1, ctx.Value(ctxKey{}))
}

func TestTracingObserverLifecycle(t *testing.T) {
	obs := NewTracingObserver()
	info := RunInfo{RunID: "run-1", Tool: "demo"}

	ctx := obs.RunStarted(context.Background(), info)
	obs.RunFinished(ctx, info, Outcome{Ok: false, ExitCode: 3})

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Empty(t, obs.spans, "finished runs must not leak span state")
}

func TestTracingObserverUnknownRunIgnored(t *testing.T) {
	obs := NewTracingObserver()
	assert.NotPanics(t, func() {
		obs.RunFinished(context.Background(), RunInfo{RunID: "never-started"}, Outcome{})
	})
}

func TestMetricsObserverDoesNotPanic(t *testing.T) {
	obs := NewMetricsObserver()
	info := RunInfo{RunID: "run-2"}

	ctx := obs.RunStarted(context.Background(), info)
	obs.RunLine(ctx, info, StreamLine{Stream: "stderr", Text: "x"})
	obs.RunFinished(ctx, info, Outcome{Ok: true, Duration: time.Second, ArtifactBytes: 2048})
	obs.RunFinished(ctx, info, Outcome{Ok: false, ExitCode: 3})
}
