package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattjoyce/bxt-launcher/internal/history"
)

func runHistoryNoun(args []string) int {
	if len(args) < 1 {
		printHistoryNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printHistoryNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	if hasHelpFlag(actionArgs) {
		printHistoryNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "list", "ls":
		return runHistoryList(actionArgs)
	case "show":
		return runHistoryShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		return 1
	}
}

func printHistoryNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: bxt-launcher history <action> [flags]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list [--limit N] [--json]   Show recent launches, newest first")
	fmt.Fprintln(w, "  show ID [--json]            Show one launch with module fingerprints")
	fmt.Fprintln(w, "All actions accept --config PATH.")
}

// openHistoryForTool opens the store for read-only commands.
func openHistoryForTool(ctx context.Context, configPath string) (*history.Store, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil, errors.New("history is disabled (history.enabled=false)")
	}
	return openHistory(ctx, cfg)
}

func runHistoryList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", history.DefaultListLimit, "Maximum number of launches")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 || *limit <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher history list [--limit N] [--json]")
		return 1
	}

	ctx := context.Background()
	store, closeStore, err := openHistoryForTool(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeStore()

	entries, err := store.List(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No launches recorded.")
		return 0
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %-9s %-16s %s\n", e.ID, e.StartedAt.Local().Format(time.DateTime),
			e.Status, e.Profile, summarize(e))
	}
	return 0
}

func runHistoryShow(args []string) int {
	flagArgs, positionals := splitFlagsAndPositionals(args, configFlagTakesValue)

	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher history show ID [--json]")
		return 1
	}

	ctx := context.Background()
	store, closeStore, err := openHistoryForTool(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeStore()

	e, err := store.Get(ctx, positionals[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(e)
	}

	fmt.Printf("Launch:       %s\n", e.ID)
	fmt.Printf("Profile:      %s\n", e.Profile)
	fmt.Printf("Status:       %s\n", e.Status)
	fmt.Printf("Executable:   %s\n", e.Executable)
	fmt.Printf("Command line: %s\n", e.CommandLine)
	fmt.Printf("Started:      %s\n", e.StartedAt.Local().Format(time.DateTime))
	if e.CompletedAt != nil {
		fmt.Printf("Duration:     %s\n", e.CompletedAt.Sub(e.StartedAt).Round(time.Millisecond))
	}
	if e.PID != 0 {
		fmt.Printf("PID:          %d\n", e.PID)
	}
	if e.Error != "" {
		fmt.Printf("Error:        [%s] %s\n", e.ErrorKind, e.Error)
	}
	if len(e.Modules) > 0 {
		fmt.Println("Modules:")
		for _, m := range e.Modules {
			state := "disabled"
			if m.Enabled {
				state = valueOrDash(m.Blake3)
			}
			fmt.Printf("  %-16s %s  %s\n", m.Role, m.Path, state)
		}
	}
	return 0
}

// summarize renders the trailing column of history list.
func summarize(e history.Entry) string {
	switch e.Status {
	case history.StatusSucceeded:
		return fmt.Sprintf("pid %d", e.PID)
	case history.StatusFailed:
		msg := e.Error
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		return e.ErrorKind + ": " + msg
	default:
		return ""
	}
}
