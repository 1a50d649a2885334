package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"browtool/pkg/recorder"
	"browtool/pkg/template"
)

func runRecordCommand(args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	description := fs.String("description", "", "Human-readable tool description")
	url := fs.String("url", "", "Starting page for the codegen browser")
	dbPath := fs.String("db", "", "Tool database path (defaults to storage.db_path)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return withExitCode(fmt.Errorf("usage: browtool record <name> [--description ...] [--url ...]"), 2)
	}
	name := fs.Arg(0)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := recorder.New(store, recorder.Options{
		PythonBin:    cfg.Runner.PythonBin,
		Headless:     cfg.Runner.Headless,
		SlowMoMillis: cfg.Runner.SlowMoMillis,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Recording: drive the browser window, then close it to finish.")
	tool, err := rec.Record(ctx, name, *description, *url)
	if err != nil {
		return err
	}

	fmt.Printf("Stored tool %q (%d bytes)\n", tool.Name, len(tool.Script))
	if params := template.ExtractParams(tool.Script); len(params) > 0 {
		fmt.Printf("Required parameters: %v\n", params)
	} else {
		fmt.Println("Tip: edit the script to add {{placeholders}} for values that should vary per run.")
	}
	return nil
}
