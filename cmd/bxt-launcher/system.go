package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/bxt-launcher/internal/api"
	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/events"
	"github.com/mattjoyce/bxt-launcher/internal/launch"
	"github.com/mattjoyce/bxt-launcher/internal/lock"
	"github.com/mattjoyce/bxt-launcher/internal/log"
	"github.com/mattjoyce/bxt-launcher/internal/metrics"
	"github.com/mattjoyce/bxt-launcher/internal/runner"
	"github.com/mattjoyce/bxt-launcher/internal/storage"
	"github.com/mattjoyce/bxt-launcher/internal/tui"
)

// EnvAPIKey supplies the bearer key for system watch.
const EnvAPIKey = "BXT_LAUNCHER_API_KEY"

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "serve":
		if hasHelpFlag(actionArgs) {
			printSystemServeHelp()
			return 0
		}
		return runServe(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: bxt-launcher system <action>")
	fmt.Fprintln(w, "Actions: serve, status, watch")
}

func printSystemServeHelp() {
	fmt.Println("Usage: bxt-launcher system serve [--config PATH] [--listen ADDR]")
	fmt.Println("Run the HTTP control API in the foreground until interrupted.")
	fmt.Println("Requires api.enabled=true unless --listen is given.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: bxt-launcher system status [--config PATH] [--json]")
	fmt.Println("Report config, history database and launch lock state.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: bxt-launcher system watch [flags]")
	fmt.Println()
	fmt.Println("Follow launches of a running 'system serve' in a terminal UI.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Control API URL (default: http://<api.listen>)")
	fmt.Println("  --api-key KEY    Bearer key (default: $" + EnvAPIKey + " or api.api_key)")
	fmt.Println("  --config PATH    Configuration file")
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "Listen address (overrides api.listen)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.API.Enabled && *listen == "" {
		fmt.Fprintln(os.Stderr, "Error: the control API is disabled; set api.enabled=true or pass --listen")
		return 1
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	log.Setup(cfg.Launcher.LogLevel, cfg.Launcher.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("bxt-launcher serving", "version", version, "config", cfg.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openHistory(ctx, cfg)
	if err != nil {
		logger.Error("failed to open history", "error", err)
		return 1
	}
	defer closeStore()

	hub := events.NewHub(0)
	collector := metrics.NewCollector()
	r := runner.New(cfg, runner.Options{
		Platform:  newPlatform(),
		History:   store,
		Hub:       hub,
		Observers: []launch.Observer{events.NewObserver(hub), collector},
		UseLock:   true,
	})

	deps := api.Deps{
		Launcher: r,
		Profiles: cfg,
		Hub:      hub,
		Metrics:  collector.Handler(),
	}
	if store != nil {
		deps.History = store
	}
	if cfg.API.APIKey == "" {
		logger.Warn("api.api_key is empty; the control API accepts unauthenticated requests")
	}

	server := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey}, deps, log.WithComponent("api"))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("API server failed", "error", err)
		return 1
	}

	logger.Info("bxt-launcher stopped")
	return 0
}

type statusCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type statusReport struct {
	Healthy bool          `json:"healthy"`
	Config  string        `json:"config,omitempty"`
	Checks  []statusCheck `json:"checks"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := buildStatusReport(config.Discover(*configPath))

	if *jsonOut {
		if printJSON(report) != 0 {
			return 1
		}
	} else {
		if report.Config != "" {
			fmt.Printf("config: %s\n", report.Config)
		}
		for _, c := range report.Checks {
			state := "OK"
			if !c.OK {
				state = "FAIL"
			}
			if c.Detail != "" {
				fmt.Printf("%s: %s (%s)\n", c.Name, state, c.Detail)
			} else {
				fmt.Printf("%s: %s\n", c.Name, state)
			}
		}
	}

	if !report.Healthy {
		return 1
	}
	return 0
}

func buildStatusReport(configPath string) statusReport {
	var report statusReport

	cfg, err := config.Load(configPath)
	switch {
	case err != nil:
		report.Checks = append(report.Checks,
			statusCheck{Name: "config_load", Detail: err.Error()},
			statusCheck{Name: "history_db", Detail: "config unavailable"},
			statusCheck{Name: "launch_lock", Detail: "config unavailable"},
		)
		return report
	case cfg.BackupPath != "":
		report.Checks = append(report.Checks, statusCheck{Name: "config_load", Detail: "unreadable, moved to " + cfg.BackupPath})
	default:
		report.Checks = append(report.Checks, statusCheck{Name: "config_load", OK: true})
	}
	report.Config = cfg.Path

	report.Checks = append(report.Checks, checkHistory(cfg), checkLock(cfg))

	report.Healthy = true
	for _, c := range report.Checks {
		report.Healthy = report.Healthy && c.OK
	}
	return report
}

func checkHistory(cfg *config.Config) statusCheck {
	if !cfg.History.Enabled {
		return statusCheck{Name: "history_db", OK: true, Detail: "disabled"}
	}
	db, err := storage.OpenSQLite(context.Background(), cfg.HistoryPath())
	if err != nil {
		return statusCheck{Name: "history_db", Detail: err.Error()}
	}
	_ = db.Close()
	return statusCheck{Name: "history_db", OK: true, Detail: cfg.HistoryPath()}
}

func checkLock(cfg *config.Config) statusCheck {
	l, err := lock.AcquirePIDLock(cfg.LockPath())
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			detail := "a launch is in progress"
			if pid, perr := lock.ReadHolder(cfg.LockPath()); perr == nil {
				detail = fmt.Sprintf("held by pid %d", pid)
			}
			return statusCheck{Name: "launch_lock", Detail: detail}
		}
		return statusCheck{Name: "launch_lock", Detail: err.Error()}
	}
	_ = l.Release()
	return statusCheck{Name: "launch_lock", OK: true, Detail: "free"}
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	apiURL := fs.String("api-url", "", "Control API URL")
	apiKey := fs.String("api-key", os.Getenv(EnvAPIKey), "API bearer key")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiURL == "" || *apiKey == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		if *apiURL == "" {
			*apiURL = "http://" + cfg.API.Listen
		}
		if *apiKey == "" {
			*apiKey = cfg.API.APIKey
		}
	}

	m := tui.NewWatch(*apiURL, *apiKey)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
