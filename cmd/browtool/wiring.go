package main

import (
	"context"
	"time"

	"browtool/pkg/config"
	"browtool/pkg/runner"
	"browtool/pkg/script"
	"browtool/pkg/storage"
	"browtool/pkg/telemetry"
)

// buildRunner constructs a runner from the effective configuration. The
// returned shutdown func flushes tracing when it was enabled; it is safe to
// call either way.
func buildRunner(cfg *config.Config) (*runner.Runner, func(context.Context) error, error) {
	shutdown := func(context.Context) error { return nil }

	observers := telemetry.MultiObserver{telemetry.NewMetricsObserver()}
	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider("browtool", version)
		if err != nil {
			return nil, nil, err
		}
		shutdown = tp.Shutdown
		observers = append(observers, telemetry.NewTracingObserver())
	}

	r := runner.New(runner.Options{
		PythonBin:        cfg.Runner.PythonBin,
		Headless:         cfg.Runner.Headless,
		SlowMoMillis:     cfg.Runner.SlowMoMillis,
		MaxArtifactBytes: cfg.Runner.Capture.MaxArtifactBytes,
		ExcerptBytes:     cfg.Runner.Capture.ExcerptBytes,
		Waits: script.CaptureWaits{
			LoadTimeoutMillis: cfg.Runner.Capture.LoadTimeoutSecs * 1000,
			IdleTimeoutMillis: cfg.Runner.Capture.IdleTimeoutSecs * 1000,
			SettleMillis:      cfg.Runner.Capture.SettleSecs * 1000,
		},
		Timeout:  time.Duration(cfg.Runner.TimeoutSecs) * time.Second,
		Observer: observers,
	})
	return r, shutdown, nil
}

// openStore opens the tool database, letting a --db flag win over the
// configured path.
func openStore(cfg *config.Config, dbFlag string) (*storage.Store, error) {
	path := cfg.Storage.DBPath
	if dbFlag != "" {
		path = dbFlag
	}
	store, err := storage.New(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}
