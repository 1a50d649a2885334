// Package bus carries run lifecycle events between the pipeline and API
// stream subscribers. Subjects are dot-separated with NATS-style wildcards.
// The in-memory implementation is the default; the NATS implementation
// serves multi-process deployments.
package bus

import (
	"context"
	"errors"
	"time"
)

// Run lifecycle subjects published by the API layer.
const (
	SubjectRunStarted  = "runs.started"
	SubjectRunLine     = "runs.line"
	SubjectRunFinished = "runs.finished"
)

// ErrClosed is returned when operating on a closed bus or subscription.
var ErrClosed = errors.New("bus or subscription closed")

// Bus is the event transport. Implementations must be safe for concurrent
// use. Delivery is best-effort: a slow subscriber drops messages rather
// than blocking publishers.
type Bus interface {
	// Publish sends data to all subscribers matching subject. It returns
	// immediately and never blocks on slow subscribers.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for subjects matching pattern.
	// Wildcards: "*" matches exactly one token, ">" matches the rest.
	// The handler runs on the subscription's own goroutine.
	Subscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Handler processes received messages.
type Handler func(msg *Message)

// Message is one received event.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is an active subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config holds settings for constructing a Bus.
type Config struct {
	// Driver selects the implementation: "memory" (default) or "nats".
	Driver string

	// URL is the NATS server URL. Ignored by the memory driver.
	URL string

	// Name is a client identifier for monitoring. Ignored by the memory
	// driver.
	Name string

	// Timeout bounds NATS connection establishment.
	Timeout time.Duration
}

// DefaultConfig returns the stock bus configuration.
func DefaultConfig() Config {
	return Config{
		Driver:  "memory",
		URL:     "nats://localhost:4222",
		Name:    "browtool",
		Timeout: 30 * time.Second,
	}
}

// New constructs a Bus from config.
func New(cfg Config) (Bus, error) {
	if cfg.Driver == "nats" {
		return NewNATSBus(cfg)
	}
	return NewMemoryBus(), nil
}
