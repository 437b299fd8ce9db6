package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/events"
	"github.com/mattjoyce/bxt-launcher/internal/history"
	"github.com/mattjoyce/bxt-launcher/internal/launch"
	"github.com/mattjoyce/bxt-launcher/internal/log"
	"github.com/mattjoyce/bxt-launcher/internal/platform"
	"github.com/mattjoyce/bxt-launcher/internal/runner"
	"github.com/mattjoyce/bxt-launcher/internal/storage"
	"github.com/mattjoyce/bxt-launcher/internal/tui"
)

// newPlatform is swapped in tests.
var newPlatform = platform.Native

func printRunHelp() {
	fmt.Println("Usage: bxt-launcher run [PROFILE] [--profile P] [--config PATH] [--tui] [--dry-run] [--no-lock]")
	fmt.Println("Spawn hl.exe suspended, inject bxt-rs then BunnymodXT, wait for each to")
	fmt.Println("signal readiness and resume the game. PROFILE is a name or index;")
	fmt.Println("the current profile is used when omitted.")
	fmt.Println("")
	fmt.Println("Flags:")
	fmt.Println("  --tui       Show launch progress in a terminal UI")
	fmt.Println("  --dry-run   Print the resolved launch plan without starting anything")
	fmt.Println("  --no-lock   Do not take the single-instance lock")
}

func runLaunch(args []string) int {
	flagArgs, positionals := splitFlagsAndPositionals(args, map[string]bool{
		"--config": true, "-config": true, "--profile": true, "-profile": true,
	})

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	profileRef := fs.String("profile", "", "Profile name or index")
	useTUI := fs.Bool("tui", false, "Show launch progress in a terminal UI")
	dryRun := fs.Bool("dry-run", false, "Print the launch plan only")
	noLock := fs.Bool("no-lock", false, "Skip the single-instance lock")
	if err := fs.Parse(flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if len(positionals) > 1 || (len(positionals) == 1 && *profileRef != "") {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher run [PROFILE] [--profile P] [--config PATH] [--tui] [--dry-run] [--no-lock]")
		return 1
	}
	if len(positionals) == 1 {
		*profileRef = positionals[0]
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Launcher.LogLevel, cfg.Launcher.LogFormat)

	if *dryRun {
		return printPlan(cfg, *profileRef)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openHistory(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeStore()

	hub := events.NewHub(0)
	r := runner.New(cfg, runner.Options{
		Platform:  newPlatform(),
		History:   store,
		Hub:       hub,
		Observers: []launch.Observer{events.NewObserver(hub)},
		UseLock:   !*noLock,
	})

	if *useTUI {
		return runWithProgress(ctx, r, hub, *profileRef)
	}

	res, err := r.Run(ctx, *profileRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("Launched pid %d in %s (launch %s)\n", res.PID, events.FormatDuration(res.Duration), res.LaunchID)
	for _, m := range res.Injected {
		fmt.Printf("  injected %s\n", m.Path)
	}
	return 0
}

// runWithProgress subscribes before starting so the TUI sees every transition.
func runWithProgress(ctx context.Context, r *runner.Runner, hub *events.Hub, profileRef string) int {
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	launchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l, err := r.Start(launchCtx, profileRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	m := tui.NewProgress(l.ID, l.Profile, ch, cancel)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		cancel()
	}

	<-l.Settled()
	if _, err := l.Outcome(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printPlan(cfg *config.Config, profileRef string) int {
	name, req, targets, err := runner.New(cfg, runner.Options{}).Plan(profileRef)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Profile:      %s\n", name)
	fmt.Printf("Executable:   %s\n", req.Executable)
	fmt.Printf("Command line: %s\n", req.CommandLine())
	if len(targets) == 0 {
		fmt.Println("Modules:      none (the game is resumed immediately)")
	} else {
		fmt.Println("Modules:")
		for i, t := range targets {
			fmt.Printf("  %d. %-16s %s\n", i+1, t.Role, t.Path)
		}
	}
	fmt.Printf("Event:        %s\n", eventName(cfg))
	return 0
}

func eventName(cfg *config.Config) string {
	if cfg.Launcher.EventName == "" {
		return launch.DefaultEventName
	}
	return cfg.Launcher.EventName
}

// openHistory returns a nil store when history is disabled. Old entries are
// pruned on open.
func openHistory(ctx context.Context, cfg *config.Config) (*history.Store, func(), error) {
	if !cfg.History.Enabled {
		return nil, func() {}, nil
	}

	path := cfg.HistoryPath()
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("open history %s: %w", path, err)
	}
	store := history.NewStore(db)

	logger := log.WithComponent("history")
	if n, err := store.Prune(ctx, cfg.History.Retention); err != nil {
		logger.Warn("failed to prune launch history", "error", err)
	} else if n > 0 {
		logger.Info("pruned launch history", "removed", n, "retention", cfg.History.Retention)
	}
	return store, func() { _ = db.Close() }, nil
}
