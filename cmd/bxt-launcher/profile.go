package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/tui"
	"gopkg.in/yaml.v3"
)

var configFlagTakesValue = map[string]bool{"--config": true, "-config": true}

func runProfileNoun(args []string) int {
	if len(args) < 1 {
		printProfileNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printProfileNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	if hasHelpFlag(actionArgs) {
		printProfileNounHelp(os.Stdout)
		return 0
	}

	switch action {
	case "list", "ls":
		return runProfileList(actionArgs)
	case "show":
		return runProfileShow(actionArgs)
	case "use":
		return runProfileUse(actionArgs)
	case "pick":
		return runProfilePick(actionArgs)
	case "set":
		return runProfileSet(actionArgs)
	case "add-file":
		return runProfileAddFile(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown profile action: %s\n", action)
		return 1
	}
}

func printProfileNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: bxt-launcher profile <action> [flags]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  list [--json]                      Show saved profiles (* marks the current one)")
	fmt.Fprintln(w, "  show [PROFILE] [--json]            Show one profile (default: current)")
	fmt.Fprintln(w, "  use PROFILE                        Make PROFILE current")
	fmt.Fprintln(w, "  pick                               Choose the current profile interactively")
	fmt.Fprintln(w, "  set PROFILE FIELD=VALUE            Set a profile field (e.g. enable_bxt=false)")
	fmt.Fprintln(w, "  add-file PROFILE PATH...           Assign hl.exe, BunnymodXT.dll or bxt_rs.dll")
	fmt.Fprintln(w, "All actions accept --config PATH. PROFILE is a name or zero-based index.")
}

// parseProfileArgs parses --config plus extra flags and returns the positionals.
func parseProfileArgs(name string, args []string, setup func(fs *flag.FlagSet)) (string, []string, bool) {
	flagArgs, positionals := splitFlagsAndPositionals(args, configFlagTakesValue)

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if setup != nil {
		setup(fs)
	}
	if err := fs.Parse(flagArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return "", nil, false
	}
	return *configPath, positionals, true
}

func runProfileList(args []string) int {
	var jsonOut bool
	configPath, positionals, ok := parseProfileArgs("list", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&jsonOut, "json", false, "Output in structured JSON format")
	})
	if !ok {
		return 1
	}
	if len(positionals) > 0 {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher profile list [--json]")
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if jsonOut {
		return printJSON(cfg.Profiles)
	}

	for i, p := range cfg.Profiles {
		marker := " "
		if i == cfg.CurrentProfile {
			marker = "*"
		}
		fmt.Printf("%s %d  %-16s bxt=%s bxt-rs=%s  %s\n", marker, i, p.Name,
			onOff(p.EnableBXT), onOff(p.EnableBXTRS), valueOrDash(p.HLExe))
	}
	return 0
}

func runProfileShow(args []string) int {
	var jsonOut bool
	configPath, positionals, ok := parseProfileArgs("show", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&jsonOut, "json", false, "Output in structured JSON format")
	})
	if !ok {
		return 1
	}
	if len(positionals) > 1 {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher profile show [PROFILE] [--json]")
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	ref := ""
	if len(positionals) == 1 {
		ref = positionals[0]
	}
	_, p, err := cfg.Resolve(ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOut {
		return printJSON(p)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func runProfileUse(args []string) int {
	configPath, positionals, ok := parseProfileArgs("use", args, nil)
	if !ok {
		return 1
	}
	if len(positionals) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher profile use PROFILE")
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if err := cfg.UseProfile(positionals[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
		return 1
	}
	fmt.Printf("Current profile: %s\n", cfg.Profiles[cfg.CurrentProfile].Name)
	return 0
}

func runProfilePick(args []string) int {
	configPath, positionals, ok := parseProfileArgs("pick", args, nil)
	if !ok {
		return 1
	}
	if len(positionals) > 0 {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher profile pick [--config PATH]")
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	m := tui.NewPicker(cfg)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	idx, chosen := m.Chosen()
	if !chosen {
		return 0
	}

	cfg.CurrentProfile = idx
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
		return 1
	}
	fmt.Printf("Current profile: %s\n", cfg.Profiles[idx].Name)
	return 0
}

func runProfileSet(args []string) int {
	configPath, positionals, ok := parseProfileArgs("set", args, nil)
	if !ok {
		return 1
	}
	if len(positionals) != 2 || !strings.Contains(positionals[1], "=") {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher profile set PROFILE FIELD=VALUE")
		return 1
	}
	field, value, _ := strings.Cut(positionals[1], "=")

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	idx, _, err := cfg.FindProfile(positionals[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	path := fmt.Sprintf("profiles.%d.%s", idx, field)
	if err := cfg.SetPath(path, value, true); err != nil {
		fmt.Fprintf(os.Stderr, "Apply failed: %v\n", err)
		return 1
	}
	fmt.Printf("Set %s.%s to %q\n", cfg.Profiles[idx].Name, field, value)
	return 0
}

func runProfileAddFile(args []string) int {
	configPath, positionals, ok := parseProfileArgs("add-file", args, nil)
	if !ok {
		return 1
	}
	if len(positionals) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: bxt-launcher profile add-file PROFILE PATH...")
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	_, p, err := cfg.FindProfile(positionals[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for _, path := range positionals[1:] {
		field, err := p.AssignFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("%s.%s = %s\n", p.Name, field, profileField(p, field))
	}
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
		return 1
	}
	return 0
}

func profileField(p *config.Profile, field string) string {
	switch field {
	case "hl_exe":
		return p.HLExe
	case "bxt":
		return p.BXT
	case "bxt_rs":
		return p.BXTRS
	}
	return ""
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
