package logging

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	if err := logger.Info(CategoryRunner, "run_started", "starting tool", map[string]any{"tool": "weather"}); err != nil {
		t.Fatalf("Info: %v", err)
	}
	if err := logger.Error(CategoryStorage, "open_failed", "db unreachable", nil); err != nil {
		t.Fatalf("Error: %v", err)
	}

	events, err := ReadRecentEvents(filepath.Join(dir, "browtool.jsonl"), 10)
	if err != nil {
		t.Fatalf("ReadRecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != "run_started" || events[0].Category != CategoryRunner {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[0].Details["tool"] != "weather" {
		t.Errorf("details not preserved: %+v", events[0].Details)
	}

	errEvents, err := ReadRecentEvents(filepath.Join(dir, "errors.jsonl"), 10)
	if err != nil {
		t.Fatalf("ReadRecentEvents(errors): %v", err)
	}
	if len(errEvents) != 1 {
		t.Fatalf("got %d error events, want 1", len(errEvents))
	}
	if errEvents[0].Message != "db unreachable" {
		t.Errorf("error event message = %q", errEvents[0].Message)
	}
}

func TestLoggerMinLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	// Info is the default floor; debug must be dropped.
	if err := logger.Debug(CategoryAPI, "request", "noisy", nil); err != nil {
		t.Fatalf("Debug: %v", err)
	}

	logger.SetMinLevel(LevelDebug)
	if err := logger.Debug(CategoryAPI, "request", "kept", nil); err != nil {
		t.Fatalf("Debug: %v", err)
	}

	events, err := ReadRecentEvents(filepath.Join(dir, "browtool.jsonl"), 10)
	if err != nil {
		t.Fatalf("ReadRecentEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Message != "kept" {
		t.Errorf("wrong event survived the filter: %+v", events[0])
	}
}

func TestLoggerEcho(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	var buf bytes.Buffer
	logger.SetEcho(&buf)

	if err := logger.Warn(CategoryRecorder, "empty_capture", "codegen produced nothing", nil); err != nil {
		t.Fatalf("Warn: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "codegen produced nothing") || !strings.Contains(out, "recorder") {
		t.Errorf("echo output missing fields: %q", out)
	}
}

func TestReadRecentEventsTail(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer logger.Close()

	for i := 0; i < 5; i++ {
		if err := logger.Info(CategoryBus, "published", "event", map[string]any{"i": i}); err != nil {
			t.Fatalf("Info: %v", err)
		}
	}

	events, err := ReadRecentEvents(filepath.Join(dir, "browtool.jsonl"), 2)
	if err != nil {
		t.Fatalf("ReadRecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// JSON numbers decode as float64 into map[string]any.
	if events[1].Details["i"] != float64(4) {
		t.Errorf("tail should end at the newest event, got %+v", events[1].Details)
	}
}
