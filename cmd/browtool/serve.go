package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"browtool/pkg/api"
	"browtool/pkg/bus"
	"browtool/pkg/toolset"
)

func runServeCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	bind := fs.String("bind", "", "Listen address (defaults to server.bind)")
	dbPath := fs.String("db", "", "Tool database path (defaults to storage.db_path)")
	authToken := fs.String("auth-token", "", "Static bearer token for API access")
	allowOrigin := fs.String("allow-origin", "", "Comma-separated allowed CORS/WebSocket origins")
	publicMetrics := fs.Bool("public-metrics", false, "Serve /metrics without authentication")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *bind != "" {
		cfg.Server.Bind = *bind
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}
	if *authToken != "" {
		cfg.Server.AuthToken = *authToken
	}
	if *allowOrigin != "" {
		cfg.Server.AllowedOrigins = splitOrigins(*allowOrigin)
	}
	if *publicMetrics {
		cfg.Server.PublicMetrics = true
	}
	if err := cfg.Validate(); err != nil {
		return withExitCode(err, 2)
	}

	logger := newLogger(cfg)
	if logger != nil {
		defer logger.Close()
	}

	store, err := openStore(cfg, "")
	if err != nil {
		return err
	}
	defer store.Close()

	run, shutdownTracing, err := buildRunner(cfg)
	if err != nil {
		return err
	}

	eventBus, err := bus.New(bus.Config{
		Driver: cfg.Bus.Driver,
		URL:    cfg.Bus.NATS.URL,
		Name:   cfg.Bus.NATS.Name,
	})
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer eventBus.Close()

	api.Version = version
	srv := api.NewServer(cfg, store, toolset.New(store, run), eventBus, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = shutdownTracing(ctx) }()

	fmt.Printf("browtool serving on %s\n", cfg.Server.Bind)
	return srv.Start(ctx)
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
