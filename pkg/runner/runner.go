// Package runner executes transformed Playwright scripts as isolated child
// processes. Each run owns a private scoped workspace that is created before
// the spawn and removed unconditionally afterward, so concurrent runs never
// interfere via the filesystem.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"browtool/pkg/errors"
	"browtool/pkg/script"
	"browtool/pkg/telemetry"
	"browtool/pkg/template"
)

const (
	// ExitMissingArgument is the reserved exit code reported when a
	// template placeholder has no value. No process is spawned.
	ExitMissingArgument = 2

	scriptFileName   = "tool.py"
	artifactFileName = "artifact.html"

	// ArtifactPathEnv carries the artifact path to the child. The injected
	// capture block is the primary writer; the variable lets scripts that
	// manage their own capture find the same location.
	ArtifactPathEnv = "BROWTOOL_ARTIFACT_PATH"
)

// Options configures a Runner. The zero value is completed by New.
type Options struct {
	// PythonBin is the interpreter spawned against the materialized script.
	PythonBin string

	// Headless and SlowMoMillis form the launch policy forced onto every
	// run. Coercion itself is unconditional; only the values vary.
	Headless     bool
	SlowMoMillis int

	// MaxArtifactBytes bounds how much of the captured artifact is read
	// back. ExcerptBytes bounds the short excerpt.
	MaxArtifactBytes int64
	ExcerptBytes     int

	// Waits bounds the injected capture block's internal waits.
	Waits script.CaptureWaits

	// Timeout is an optional wall-clock budget for the child process.
	// Zero means no budget: a hung script blocks indefinitely.
	Timeout time.Duration

	// Observer receives run lifecycle notifications. Nil means no-op.
	Observer telemetry.Observer
}

// DefaultOptions returns the stock runner configuration: headful with a
// 1000ms inter-action throttle, python3, 2MB artifact cap, 2000-byte excerpt.
func DefaultOptions() Options {
	return Options{
		PythonBin:        "python3",
		Headless:         false,
		SlowMoMillis:     1000,
		MaxArtifactBytes: 2_000_000,
		ExcerptBytes:     2000,
		Waits:            script.DefaultCaptureWaits(),
	}
}

// Result is the outcome of one script execution.
type Result struct {
	Ok       bool   `json:"ok"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`

	// Artifact fields are populated only when capture was requested and
	// the script actually produced the artifact file.
	HTMLSizeBytes int64  `json:"html_size_bytes,omitempty"`
	HTMLExcerpt   string `json:"html_excerpt,omitempty"`
	HTMLText      string `json:"html_text,omitempty"`
}

// Runner runs scripts through the full transformation pipeline.
type Runner struct {
	opts     Options
	observer telemetry.Observer
}

// New creates a Runner, filling unset options from DefaultOptions.
func New(opts Options) *Runner {
	def := DefaultOptions()
	if opts.PythonBin == "" {
		opts.PythonBin = def.PythonBin
	}
	if opts.MaxArtifactBytes <= 0 {
		opts.MaxArtifactBytes = def.MaxArtifactBytes
	}
	if opts.ExcerptBytes <= 0 {
		opts.ExcerptBytes = def.ExcerptBytes
	}
	if opts.SlowMoMillis <= 0 {
		opts.SlowMoMillis = def.SlowMoMillis
	}
	if opts.Waits == (script.CaptureWaits{}) {
		opts.Waits = def.Waits
	}
	observer := opts.Observer
	if observer == nil {
		observer = telemetry.NopObserver{}
	}
	return &Runner{opts: opts, observer: observer}
}

// Run renders, coerces, optionally injects capture, and executes the script,
// blocking until the child exits. A missing template argument returns a
// failed Result without spawning anything. Workspace faults are returned as
// errors, never encoded in a Result. The scoped workspace is removed before
// Run returns, success or failure.
func (r *Runner) Run(ctx context.Context, scriptText string, args map[string]any, capture bool) (*Result, error) {
	return r.run(ctx, scriptText, args, capture, nil)
}

func (r *Runner) run(ctx context.Context, scriptText string, args map[string]any, capture bool, sink Sink) (result *Result, err error) {
	info := telemetry.RunInfo{
		RunID:     ulid.Make().String(),
		Capture:   capture,
		StartedAt: time.Now(),
	}
	ctx = r.observer.RunStarted(ctx, info)
	defer func() {
		outcome := telemetry.Outcome{Duration: time.Since(info.StartedAt), Err: err}
		if result != nil {
			outcome.Ok = result.Ok
			outcome.ExitCode = result.ExitCode
			outcome.ArtifactBytes = result.HTMLSizeBytes
		}
		r.observer.RunFinished(ctx, info, outcome)
	}()

	rendered, err := template.Render(scriptText, args)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeMissingArgument) {
			message := fmt.Sprintf("Missing required arg: %s", errors.Param(err))
			if sink != nil {
				// Nothing was spawned, so the sink has seen no output yet;
				// deliver the explanation the way a failed script would.
				sink.Line(StreamStderr, message)
				sink.Done(ExitMissingArgument)
			}
			return &Result{
				Ok:       false,
				ExitCode: ExitMissingArgument,
				Stderr:   message + "\n",
			}, nil
		}
		return nil, err
	}

	transformed := script.CoerceLaunchOptions(rendered, r.opts.Headless, r.opts.SlowMoMillis)

	workspace, err := os.MkdirTemp("", "browtool-run-")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWorkspace, "failed to create scoped workspace")
	}
	defer func() {
		if rmErr := os.RemoveAll(workspace); rmErr != nil && err == nil {
			err = errors.Wrap(rmErr, errors.ErrCodeWorkspace, "failed to remove scoped workspace")
			result = nil
		}
	}()

	artifactPath := filepath.Join(workspace, artifactFileName)
	if capture {
		transformed = script.InjectHTMLCaptureWaits(transformed, artifactPath, r.opts.Waits)
	}

	scriptPath := filepath.Join(workspace, scriptFileName)
	if writeErr := os.WriteFile(scriptPath, []byte(transformed), 0o600); writeErr != nil {
		return nil, errors.Wrap(writeErr, errors.ErrCodeWorkspace, "failed to materialize script")
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.opts.PythonBin, scriptPath)
	cmd.Dir = workspace
	cmd.Env = append(os.Environ(), ArtifactPathEnv+"="+artifactPath)

	if sink != nil {
		result, err = r.runStreaming(ctx, cmd, info, sink)
	} else {
		result, err = r.runBlocking(cmd)
	}
	if err != nil {
		return nil, err
	}

	if capture {
		// Artifact absence or unreadability is a capture failure: swallowed,
		// never reflected in Ok or the exit code.
		if art, artErr := readArtifact(artifactPath, r.opts.MaxArtifactBytes, r.opts.ExcerptBytes); artErr == nil {
			result.HTMLSizeBytes = art.size
			result.HTMLExcerpt = art.excerpt
			result.HTMLText = art.text
		}
	}
	return result, nil
}

func (r *Runner) runBlocking(cmd *exec.Cmd) (*Result, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode, err := waitExitCode(cmd.Run())
	if err != nil {
		return nil, err
	}

	return &Result{
		Ok:       exitCode == 0,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// waitExitCode maps a cmd.Run/Wait error to the child's exit code. Errors
// that do not carry an exit status (spawn failures) are surfaced as
// process errors.
func waitExitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return 0, errors.Wrap(err, errors.ErrCodeProcessFailed, "failed to run script interpreter")
}
