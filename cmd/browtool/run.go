package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"browtool/pkg/api"
	"browtool/pkg/digest"
	"browtool/pkg/runner"
	"browtool/pkg/toolset"
)

// argList collects repeated --arg key=value flags.
type argList map[string]any

func (a argList) String() string { return "" }

func (a argList) Set(value string) error {
	key, val, found := strings.Cut(value, "=")
	if !found || strings.TrimSpace(key) == "" {
		return fmt.Errorf("--arg wants key=value, got %q", value)
	}
	a[key] = val
	return nil
}

func runRunCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	toolArgs := argList{}
	fs.Var(toolArgs, "arg", "Tool argument as key=value (repeatable)")
	argsJSON := fs.String("args-json", "", "Tool arguments as a JSON object (merged over --arg)")
	capture := fs.Bool("capture", false, "Capture the final page HTML")
	digestFlag := fs.Bool("digest", false, "Capture and print a structured page digest (implies --capture)")
	stream := fs.Bool("stream", false, "Print output lines as they are produced")
	remote := fs.String("remote", "", "Run against a serve instance, e.g. ws://127.0.0.1:8077")
	token := fs.String("token", "", "Auth token for --remote (defaults to server.auth_token)")
	dbPath := fs.String("db", "", "Tool database path (defaults to storage.db_path)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return withExitCode(fmt.Errorf("usage: browtool run <name> [--arg k=v ...] [flags]"), 2)
	}
	name := fs.Arg(0)

	if *argsJSON != "" {
		extra := map[string]any{}
		if err := json.Unmarshal([]byte(*argsJSON), &extra); err != nil {
			return withExitCode(fmt.Errorf("--args-json must be a JSON object: %w", err), 2)
		}
		for k, v := range extra {
			toolArgs[k] = v
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *remote != "" {
		authToken := *token
		if authToken == "" {
			authToken = cfg.Server.AuthToken
		}
		return runRemote(ctx, *remote, authToken, name, toolArgs, *capture || *digestFlag)
	}

	store, err := openStore(cfg, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	run, shutdownTracing, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	ts := toolset.New(store, run)
	wantCapture := *capture || *digestFlag

	var result *runner.Result
	if *stream {
		sink := runner.SinkFuncs{
			OnLine: func(stream, text string) {
				if stream == runner.StreamStderr {
					fmt.Fprintln(os.Stderr, text)
				} else {
					fmt.Println(text)
				}
			},
		}
		result, err = ts.InvokeStreaming(ctx, name, toolArgs, wantCapture, sink)
	} else {
		result, err = ts.Invoke(ctx, name, toolArgs, wantCapture)
	}
	if err != nil {
		return err
	}

	if !*stream {
		fmt.Print(result.Stdout)
		fmt.Fprint(os.Stderr, result.Stderr)
	}

	if *digestFlag && result.HTMLText != "" {
		d := digest.ExtractWithOptions(result.HTMLText, digest.Options{
			MaxTextChars:     cfg.Digest.MaxTextChars,
			MaxLinks:         cfg.Digest.MaxLinks,
			MaxLinkTextChars: cfg.Digest.MaxLinkTextChars,
		})
		if err := printJSON(d); err != nil {
			return err
		}
	} else if *capture && result.HTMLSizeBytes > 0 {
		fmt.Fprintf(os.Stderr, "Captured %d bytes of HTML\n", result.HTMLSizeBytes)
	}

	if !result.Ok {
		// Output already went to stdout/stderr; only the code matters.
		return exitError{code: result.ExitCode}
	}
	return nil
}

// runRemote dials the streaming run socket on a serve instance and mirrors
// its frames: stdout lines to stdout, stderr lines to stderr, and the final
// exit code becomes ours.
func runRemote(ctx context.Context, base, authToken, name string, args map[string]any, capture bool) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return err
	}

	u, err := url.Parse(base)
	if err != nil {
		return withExitCode(fmt.Errorf("invalid --remote URL: %w", err), 2)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return withExitCode(fmt.Errorf("--remote must be a ws:// or wss:// URL"), 2)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/run/" + url.PathEscape(name)
	q := u.Query()
	q.Set("args", string(argsJSON))
	if capture {
		q.Set("capture", "true")
	}
	if authToken != "" {
		q.Set("token", authToken)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Host, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var msg api.StreamMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			// A normal close after "done" already ended the run.
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("stream: %w", err)
		}
		switch msg.Type {
		case "stdout":
			fmt.Println(msg.Message)
		case "stderr":
			fmt.Fprintln(os.Stderr, msg.Message)
		case "info":
			if !quietMode {
				fmt.Fprintln(os.Stderr, msg.Message)
			}
		case "error":
			return fmt.Errorf("remote run failed: %s", msg.Message)
		case "done":
			code := 0
			if msg.ExitCode != nil {
				code = *msg.ExitCode
			}
			if code != 0 {
				return withExitCode(fmt.Errorf("script exited with code %d", code), code)
			}
			return nil
		}
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
