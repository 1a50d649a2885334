package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"browtool/pkg/template"
)

func runToolsCommand(args []string) error {
	sub := ""
	if len(args) > 0 {
		sub = strings.TrimSpace(args[0])
	}
	switch sub {
	case "list", "":
		return runToolsList(args)
	case "show":
		return runToolsShow(args[1:])
	case "rm":
		return runToolsRemove(args[1:])
	case "rename":
		return runToolsRename(args[1:])
	default:
		return withExitCode(fmt.Errorf("usage: browtool tools <list|show|rm|rename> [flags]"), 2)
	}
}

func runToolsList(args []string) error {
	fs := flag.NewFlagSet("tools list", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Tool database path")
	if len(args) > 0 && args[0] == "list" {
		args = args[1:]
	}
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

	tools, err := store.ListTools()
	if err != nil {
		return err
	}
	if len(tools) == 0 {
		fmt.Println("No tools stored. Record one with 'browtool record <name>'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARAMS\tUPDATED\tDESCRIPTION")
	for _, tool := range tools {
		params := strings.Join(template.ExtractParams(tool.Script), ",")
		if params == "" {
			params = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			tool.Name, params, tool.UpdatedAt.Format("2006-01-02 15:04"), tool.Description)
	}
	return w.Flush()
}

func runToolsShow(args []string) error {
	fs := flag.NewFlagSet("tools show", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Tool database path")
	scriptOnly := fs.Bool("script", false, "Print only the script text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return withExitCode(fmt.Errorf("usage: browtool tools show <name> [--script]"), 2)
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

	tool, err := store.GetTool(fs.Arg(0))
	if err != nil {
		return err
	}

	if *scriptOnly {
		fmt.Print(tool.Script)
		if !strings.HasSuffix(tool.Script, "\n") {
			fmt.Println()
		}
		return nil
	}

	fmt.Printf("Name:        %s\n", tool.Name)
	fmt.Printf("Description: %s\n", tool.Description)
	if params := template.ExtractParams(tool.Script); len(params) > 0 {
		fmt.Printf("Params:      %s\n", strings.Join(params, ", "))
	}
	fmt.Printf("Updated:     %s\n", tool.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println()
	fmt.Print(tool.Script)
	if !strings.HasSuffix(tool.Script, "\n") {
		fmt.Println()
	}
	return nil
}

func runToolsRemove(args []string) error {
	fs := flag.NewFlagSet("tools rm", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Tool database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return withExitCode(fmt.Errorf("usage: browtool tools rm <name>"), 2)
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

	if err := store.DeleteTool(fs.Arg(0)); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", fs.Arg(0))
	return nil
}

func runToolsRename(args []string) error {
	fs := flag.NewFlagSet("tools rename", flag.ContinueOnError)
	dbPath := fs.String("db", "", "Tool database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return withExitCode(fmt.Errorf("usage: browtool tools rename <old> <new>"), 2)
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

	if err := store.RenameTool(fs.Arg(0), fs.Arg(1)); err != nil {
		return err
	}
	fmt.Printf("Renamed %s -> %s\n", fs.Arg(0), fs.Arg(1))
	return nil
}
