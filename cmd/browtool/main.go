// Command browtool records, stores, and replays parameterized Playwright
// scripts, locally or through a server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"browtool/pkg/config"
	"browtool/pkg/logging"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configPath string
var quietMode bool

func main() {
	args := parseGlobalFlags(os.Args[1:])
	handled, exitCode := dispatchSubcommand(args)
	if handled {
		os.Exit(exitCode)
	}
	printHelp()
	os.Exit(2)
}

// parseGlobalFlags peels leading global flags off the argument list so
// subcommand flag sets never see them.
func parseGlobalFlags(args []string) []string {
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config", "-c":
			if i+1 < len(args) {
				i++
				configPath = args[i]
			}
		case "--quiet", "-q":
			quietMode = true
		default:
			rest = append(rest, args[i])
		}
	}
	return rest
}

func dispatchSubcommand(args []string) (bool, int) {
	if len(args) == 0 {
		return false, 0
	}
	switch args[0] {
	case "--version", "-v", "version":
		printVersion()
		return true, 0
	case "--help", "-h", "help":
		printHelp()
		return true, 0
	case "serve":
		return true, runCommand(runServeCommand, args[1:])
	case "record":
		return true, runCommand(runRecordCommand, args[1:])
	case "run":
		return true, runCommand(runRunCommand, args[1:])
	case "tools":
		return true, runCommand(runToolsCommand, args[1:])
	case "digest":
		return true, runCommand(runDigestCommand, args[1:])
	case "db":
		return true, runCommand(runDBCommand, args[1:])
	default:
		if args[0] != "" && args[0][0] == '-' {
			fmt.Fprintf(os.Stderr, "Error: unknown flag: %s\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", args[0])
		}
		fmt.Fprintln(os.Stderr, "Run 'browtool --help' for usage.")
		return true, 2
	}
}

func runCommand(handler func([]string) error, args []string) int {
	if err := handler(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if err.Error() != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return exitCodeForError(err)
	}
	return 0
}

// loadConfig builds the effective configuration, honoring --config.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, withExitCode(err, 2)
	}
	return cfg, nil
}

// newLogger opens the JSONL event log. Interactive sessions also echo to
// stderr unless --quiet was given. A logging failure never blocks the
// command; the caller gets a nil logger.
func newLogger(cfg *config.Config) *logging.Logger {
	logger, err := logging.NewLogger(cfg.Telemetry.LogPath)
	if err != nil {
		if !quietMode {
			fmt.Fprintf(os.Stderr, "Warning: event log unavailable: %v\n", err)
		}
		return nil
	}
	if isInteractiveTerminal() && !quietMode {
		logger.SetEcho(os.Stderr)
	}
	return logger
}

func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func printVersion() {
	fmt.Printf("browtool %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printHelp() {
	fmt.Print(`browtool - record and replay parameterized Playwright scripts

Usage:
  browtool [--config <path>] [--quiet] <command> [flags]

Commands:
  serve       Start the HTTP/WebSocket API server
  record      Record a new tool via playwright codegen
  run         Run a stored tool locally or against a remote server
  tools       List, inspect, rename, and remove stored tools
  digest      Extract a structured digest from a local HTML file
  db          Database maintenance (path, vacuum)
  version     Print version information
  help        Show this help

Run 'browtool <command> --help' for command-specific flags.
`)
}
