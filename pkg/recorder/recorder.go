// Package recorder captures new browser-automation scripts by shelling out
// to Playwright's codegen and storing the result as a named tool.
package recorder

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"browtool/pkg/errors"
	"browtool/pkg/script"
	"browtool/pkg/storage"
)

// Options configures a recording session.
type Options struct {
	// PythonBin runs `python -m playwright codegen`.
	PythonBin string

	// Headless and SlowMoMillis are applied to the captured script before
	// it is stored, so replays inherit the launch policy immediately.
	Headless     bool
	SlowMoMillis int
}

// Recorder records scripts into the tool store.
type Recorder struct {
	store *storage.Store
	opts  Options
}

// New creates a Recorder.
func New(store *storage.Store, opts Options) *Recorder {
	if opts.PythonBin == "" {
		opts.PythonBin = "python3"
	}
	if opts.SlowMoMillis <= 0 {
		opts.SlowMoMillis = 1000
	}
	return &Recorder{store: store, opts: opts}
}

// Record launches the interactive codegen browser, waits for the user to
// close it, and upserts the captured script under name. The url, when
// non-empty, is the starting page. An empty capture (user closed the
// window without doing anything) is rejected.
func (r *Recorder) Record(ctx context.Context, name, description, url string) (*storage.Tool, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "tool name cannot be empty")
	}

	captureDir, err := os.MkdirTemp("", "browtool-record-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRecorder, "failed to create capture directory")
	}
	defer os.RemoveAll(captureDir)

	capturePath := filepath.Join(captureDir, "capture.py")

	args := []string{"-m", "playwright", "codegen", "--target", "python", "-o", capturePath}
	if strings.TrimSpace(url) != "" {
		args = append(args, url)
	}

	cmd := exec.CommandContext(ctx, r.opts.PythonBin, args...)
	// Codegen is interactive: the user drives the browser window, so the
	// child inherits our stdio.
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRecorder, "playwright codegen failed")
	}

	captured, err := os.ReadFile(capturePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRecorder, "failed to read captured script")
	}
	text := string(captured)
	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.ErrCodeRecorder, "codegen produced an empty script")
	}

	coerced := script.CoerceLaunchOptions(text, r.opts.Headless, r.opts.SlowMoMillis)

	return r.store.UpsertTool(name, description, coerced)
}
