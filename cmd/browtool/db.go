package main

import (
	"flag"
	"fmt"
	"strings"

	"browtool/pkg/storage"
)

func runDBCommand(args []string) error {
	sub := ""
	if len(args) > 0 {
		sub = strings.TrimSpace(args[0])
	}
	switch sub {
	case "path":
		return runDBPath(args[1:])
	case "vacuum":
		return runDBVacuum(args[1:])
	default:
		return withExitCode(fmt.Errorf("usage: browtool db <path|vacuum> [flags]"), 2)
	}
}

func runDBPath(args []string) error {
	fs := flag.NewFlagSet("db path", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Tool database path override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Storage.DBPath
	if *dbPath != "" {
		path = *dbPath
	}
	fmt.Println(storage.Path(path))
	return nil
}

func runDBVacuum(args []string) error {
	fs := flag.NewFlagSet("db vacuum", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Tool database path override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Vacuum(); err != nil {
		return err
	}
	fmt.Println("Vacuum complete.")
	return nil
}
