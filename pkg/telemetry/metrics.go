package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browtool",
		Name:      "runs_total",
		Help:      "Completed script runs by outcome.",
	}, []string{"outcome"})

	metricRunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browtool",
		Name:      "runs_in_flight",
		Help:      "Script runs currently executing.",
	})

	metricRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "browtool",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of script runs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	metricArtifactBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "browtool",
		Name:      "artifact_bytes",
		Help:      "Size of captured HTML artifacts.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
	})

	metricOutputLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "browtool",
		Name:      "run_output_lines_total",
		Help:      "Streamed output lines by stream.",
	}, []string{"stream"})

	// MetricWSClients counts connected streaming clients; incremented by the
	// API layer rather than the runner.
	MetricWSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "browtool",
		Name:      "ws_clients",
		Help:      "Connected WebSocket streaming clients.",
	})
)

// MetricsObserver records Prometheus metrics for each run. It implements
// Observer.
type MetricsObserver struct{}

// NewMetricsObserver creates a MetricsObserver.
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

func (m *MetricsObserver) RunStarted(ctx context.Context, _ RunInfo) context.Context {
	metricRunsInFlight.Inc()
	return ctx
}

func (m *MetricsObserver) RunLine(_ context.Context, _ RunInfo, line StreamLine) {
	metricOutputLines.WithLabelValues(line.Stream).Inc()
}

func (m *MetricsObserver) RunFinished(_ context.Context, _ RunInfo, outcome Outcome) {
	metricRunsInFlight.Dec()
	metricRunDuration.Observe(outcome.Duration.Seconds())
	metricRunsTotal.WithLabelValues(outcomeLabel(outcome)).Inc()
	if outcome.ArtifactBytes > 0 {
		metricArtifactBytes.Observe(float64(outcome.ArtifactBytes))
	}
}

func outcomeLabel(outcome Outcome) string {
	switch {
	case outcome.Err != nil:
		return "error"
	case outcome.Ok:
		return "ok"
	default:
		return "failed"
	}
}
