package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "browtool/pkg/telemetry"

// Span attribute keys for run tracing.
var (
	AttrRunID         = attribute.Key("browtool.run.id")
	AttrTool          = attribute.Key("browtool.run.tool")
	AttrCapture       = attribute.Key("browtool.run.capture")
	AttrExitCode      = attribute.Key("browtool.run.exit_code")
	AttrArtifactBytes = attribute.Key("browtool.run.artifact_bytes")
)

// TracerProvider wraps the OpenTelemetry SDK provider with a stdout exporter.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider creates an OpenTelemetry tracer provider exporting
// pretty-printed spans to stdout and installs it globally.
func NewTracerProvider(serviceName, serviceVersion string) (*TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider}, nil
}

// Shutdown flushes pending spans and stops the provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// TracingObserver records a span per run. It implements Observer.
type TracingObserver struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTracingObserver creates a TracingObserver using the global provider.
func NewTracingObserver() *TracingObserver {
	return &TracingObserver{
		tracer: otel.Tracer(tracerName),
		spans:  make(map[string]trace.Span),
	}
}

func (t *TracingObserver) RunStarted(ctx context.Context, info RunInfo) context.Context {
	ctx, span := t.tracer.Start(ctx, "browtool.run",
		trace.WithAttributes(
			AttrRunID.String(info.RunID),
			AttrTool.String(info.Tool),
			AttrCapture.Bool(info.Capture),
		),
	)
	t.mu.Lock()
	t.spans[info.RunID] = span
	t.mu.Unlock()
	return ctx
}

func (t *TracingObserver) RunLine(ctx context.Context, info RunInfo, line StreamLine) {
	// Individual output lines are too chatty for span events.
}

func (t *TracingObserver) RunFinished(ctx context.Context, info RunInfo, outcome Outcome) {
	t.mu.Lock()
	span, ok := t.spans[info.RunID]
	delete(t.spans, info.RunID)
	t.mu.Unlock()
	if !ok {
		return
	}

	span.SetAttributes(
		AttrExitCode.Int(outcome.ExitCode),
		AttrArtifactBytes.Int64(outcome.ArtifactBytes),
	)
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	} else if !outcome.Ok {
		span.SetStatus(codes.Error, fmt.Sprintf("script exited %d", outcome.ExitCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
