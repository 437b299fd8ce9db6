// Package doctor validates bxt-launcher configuration before a launch.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg   *config.Config
	probe func(string) (storage.Volume, error)
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, probe: storage.ProbeVolume}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateLauncher(r)
	d.validateHistory(r)
	d.validateAPIConfig(r)
	d.validateCurrentProfile(r)
	d.warnDuplicateProfiles(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateLauncher(r *Result) {
	l := d.cfg.Launcher
	if strings.TrimSpace(l.EventName) == "" {
		d.addError(r, "launcher", "launcher.event_name", "event_name is required")
	}
	if l.ReadinessTimeout < 0 {
		d.addError(r, "launcher", "launcher.readiness_timeout", "readiness_timeout must not be negative")
	}
	if l.PollInterval < 0 {
		d.addError(r, "launcher", "launcher.poll_interval", "poll_interval must not be negative")
	}
	if l.ReadinessTimeout > 0 && l.PollInterval > l.ReadinessTimeout {
		d.addWarning(r, "launcher", "launcher.poll_interval",
			fmt.Sprintf("poll_interval %s exceeds readiness_timeout %s", l.PollInterval, l.ReadinessTimeout))
	}
	if !l.TerminateOnFailure {
		d.addWarning(r, "launcher", "launcher.terminate_on_failure",
			"failed launches will leave a suspended hl.exe behind")
	}
}

func (d *Doctor) validateHistory(r *Result) {
	if !d.cfg.History.Enabled {
		return
	}
	if d.cfg.History.Retention < 0 {
		d.addError(r, "history", "history.retention", "retention must not be negative")
	}

	path := d.cfg.HistoryPath()
	vol, err := d.probe(path)
	switch {
	case err != nil:
		d.addWarning(r, "history", "history.path", fmt.Sprintf("cannot inspect volume of %s: %v", path, err))
	case vol.Remote():
		d.addError(r, "history", "history.path", (&storage.RemoteVolumeError{Path: path, Kind: vol.Kind}).Error())
	case vol.Removable():
		d.addWarning(r, "history", "history.path",
			fmt.Sprintf("%s is on a removable drive; history is lost if the drive letter changes", path))
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.APIKey == "" {
		d.addWarning(r, "api", "api.api_key", "API enabled but no authentication configured")
	}
}

// validateCurrentProfile checks everything a launch of the current profile needs.
func (d *Doctor) validateCurrentProfile(r *Result) {
	p, err := d.cfg.Current()
	if err != nil {
		d.addError(r, "profile", "current_profile", err.Error())
		return
	}
	prefix := fmt.Sprintf("profiles.%d", d.cfg.CurrentProfile)

	if p.HLExe == "" {
		d.addError(r, "profile", prefix+".hl_exe", fmt.Sprintf("profile %q has no Half-Life executable", p.Name))
	} else {
		if !strings.EqualFold(filepath.Base(p.HLExe), "hl.exe") {
			d.addWarning(r, "profile", prefix+".hl_exe",
				fmt.Sprintf("executable %q is not named hl.exe", filepath.Base(p.HLExe)))
		}
		if !isRegularFile(p.HLExe) {
			d.addWarning(r, "profile", prefix+".hl_exe",
				fmt.Sprintf("executable %s not found on disk", p.HLExe))
		}
	}

	if !p.EnableBXT && !p.EnableBXTRS {
		d.addWarning(r, "modules", prefix, "both modules are disabled; the game will start without injection")
	}

	modules := []struct {
		field, name, path, pin string
		enabled                bool
	}{
		{"bxt_rs", "bxt-rs", p.BXTRS, p.BXTRSHash, p.EnableBXTRS},
		{"bxt", "BunnymodXT", p.BXT, p.BXTHash, p.EnableBXT},
	}
	for _, m := range modules {
		if !m.enabled {
			continue
		}
		field := prefix + "." + m.field
		if m.path == "" {
			d.addError(r, "modules", field, fmt.Sprintf("%s is enabled but has no path", m.name))
			continue
		}
		if !isRegularFile(m.path) {
			d.addError(r, "modules", field, fmt.Sprintf("%s module %s does not exist", m.name, m.path))
			continue
		}
		if !strings.EqualFold(filepath.Ext(m.path), ".dll") {
			d.addWarning(r, "modules", field, fmt.Sprintf("%s module %s has no .dll extension", m.name, m.path))
		}
		if m.pin != "" {
			if err := config.CheckPin(m.path, m.pin); err != nil {
				d.addError(r, "modules", field+"_blake3", err.Error())
			}
		}
	}
}

func (d *Doctor) warnDuplicateProfiles(r *Result) {
	seen := make(map[string]int, len(d.cfg.Profiles))
	for i, p := range d.cfg.Profiles {
		if j, dup := seen[p.Name]; dup {
			d.addWarning(r, "profile", fmt.Sprintf("profiles.%d.name", i),
				fmt.Sprintf("profile name %q also used by profiles.%d; name lookups pick the first", p.Name, j))
			continue
		}
		seen[p.Name] = i
	}
}

// warnMissingEnvVars warns about ${VAR} references left in profile paths.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	envVarRe := regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

	for i, p := range d.cfg.Profiles {
		fields := map[string]string{"hl_exe": p.HLExe, "bxt": p.BXT, "bxt_rs": p.BXTRS}
		for _, key := range []string{"hl_exe", "bxt", "bxt_rs"} {
			for _, m := range envVarRe.FindAllStringSubmatch(fields[key], -1) {
				if os.Getenv(m[1]) == "" {
					d.addWarning(r, "env_vars", fmt.Sprintf("profiles.%d.%s", i, key),
						fmt.Sprintf("environment variable ${%s} not set", m[1]))
				}
			}
		}
	}
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
