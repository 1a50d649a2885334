package runner

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"browtool/pkg/errors"
	"browtool/pkg/telemetry"
)

// Stream names used to tag forwarded output lines.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// maxLineBytes bounds how much of a single output line is buffered before it
// is forwarded. A line longer than this arrives at the sink in maxLineBytes
// chunks; the pipe itself is always drained to EOF.
const maxLineBytes = 1024 * 1024

// Sink receives incremental output from a streaming run. Line may be called
// concurrently from the stdout and stderr drains; Done is called exactly
// once, after both streams reach EOF and the process has exited.
type Sink interface {
	Line(stream, text string)
	Done(exitCode int)
}

// SinkFuncs adapts plain functions to the Sink interface. Nil funcs are
// skipped.
type SinkFuncs struct {
	OnLine func(stream, text string)
	OnDone func(exitCode int)
}

func (s SinkFuncs) Line(stream, text string) {
	if s.OnLine != nil {
		s.OnLine(stream, text)
	}
}

func (s SinkFuncs) Done(exitCode int) {
	if s.OnDone != nil {
		s.OnDone(exitCode)
	}
}

// RunStreaming is Run with incremental output delivery: stdout and stderr
// lines are forwarded to sink as they are produced, each tagged by stream.
// The two streams drain on independent goroutines, so one stream's volume
// or silence never starves the other. The returned Result still carries the
// complete accumulated output.
func (r *Runner) RunStreaming(ctx context.Context, scriptText string, args map[string]any, capture bool, sink Sink) (*Result, error) {
	return r.run(ctx, scriptText, args, capture, sink)
}

func (r *Runner) runStreaming(ctx context.Context, cmd *exec.Cmd, info telemetry.RunInfo, sink Sink) (*Result, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProcessFailed, "failed to open stdout pipe")
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProcessFailed, "failed to open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProcessFailed, "failed to start script interpreter")
	}

	var stdout, stderr strings.Builder
	var mu sync.Mutex

	forward := func(stream, text string, acc *strings.Builder) {
		mu.Lock()
		acc.WriteString(text)
		acc.WriteByte('\n')
		mu.Unlock()
		sink.Line(stream, text)
		r.observer.RunLine(ctx, info, telemetry.StreamLine{Stream: stream, Text: text})
	}

	// Both drains must hit EOF before Wait; a silent stream just blocks its
	// own goroutine until the pipe closes.
	var eg errgroup.Group
	eg.Go(func() error { return drainLines(stdoutPipe, StreamStdout, &stdout, forward) })
	eg.Go(func() error { return drainLines(stderrPipe, StreamStderr, &stderr, forward) })
	drainErr := eg.Wait()

	exitCode, err := waitExitCode(cmd.Wait())
	if err != nil {
		return nil, err
	}
	if drainErr != nil {
		return nil, errors.Wrap(drainErr, errors.ErrCodeProcessFailed, "failed to drain process output")
	}

	sink.Done(exitCode)

	return &Result{
		Ok:       exitCode == 0,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func drainLines(r io.Reader, stream string, acc *strings.Builder, forward func(string, string, *strings.Builder)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var partial []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		partial = append(partial, chunk...)
		if isPrefix && err == nil {
			if len(partial) >= maxLineBytes {
				forward(stream, string(partial), acc)
				partial = partial[:0]
			}
			continue
		}
		if err == nil {
			forward(stream, string(partial), acc)
			partial = partial[:0]
			continue
		}
		if len(partial) > 0 {
			forward(stream, string(partial), acc)
		}
		if err == io.EOF {
			return nil
		}
		return err
	}
}
