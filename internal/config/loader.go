package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mattjoyce/bxt-launcher/internal/log"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// backupPrefixLen is the number of hash characters prefixed to a backup name.
const backupPrefixLen = 16

// Load reads and parses configuration from a file.
//
// A missing file yields Defaults bound to configPath. A file that is not
// valid YAML is renamed to <hash>_bxt_launcher.yaml so it is not lost when
// the defaults are saved over it; the new name is recorded in BackupPath.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Defaults()
			cfg.Path = absPath
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, parseErr := parse(data)
	if parseErr != nil {
		backup, err := backupUnreadable(absPath)
		if err != nil {
			return nil, fmt.Errorf("config %s is unreadable (%v) and could not be backed up: %w", absPath, parseErr, err)
		}
		log.WithComponent("config").Warn("config unreadable, moved aside and using defaults",
			"path", absPath, "backup", backup, "error", parseErr)

		cfg = Defaults()
		cfg.Path = absPath
		cfg.BackupPath = backup
		return cfg, nil
	}
	cfg.Path = absPath

	applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

func backupUnreadable(path string) (string, error) {
	hash, err := Fingerprint(path)
	if err != nil {
		return "", err
	}
	backup := filepath.Join(filepath.Dir(path), hash[:backupPrefixLen]+"_"+filepath.Base(path))
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("rename to backup: %w", err)
	}
	return backup, nil
}

// applyConfigDefaults fills values a document may legitimately leave empty.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Launcher.LogLevel == "" {
		cfg.Launcher.LogLevel = defaults.Launcher.LogLevel
	}
	if cfg.Launcher.LogFormat == "" {
		cfg.Launcher.LogFormat = defaults.Launcher.LogFormat
	}
	if cfg.Launcher.PollInterval == 0 {
		cfg.Launcher.PollInterval = defaults.Launcher.PollInterval
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = defaults.Profiles
	}
	for i := range cfg.Profiles {
		if cfg.Profiles[i].Name == "" {
			cfg.Profiles[i].Name = profileName(i + 1)
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate rejects values that would make the process misbehave at startup.
// Launch readiness problems are reported by the doctor instead.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Launcher.LogLevel)] {
		return fmt.Errorf("launcher.log_level must be one of: debug, info, warn, error (got %q)", cfg.Launcher.LogLevel)
	}
	if f := cfg.Launcher.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("launcher.log_format must be json or text (got %q)", f)
	}
	if cfg.API.Enabled && envVarPattern.MatchString(cfg.API.APIKey) {
		matches := envVarPattern.FindStringSubmatch(cfg.API.APIKey)
		return fmt.Errorf("api.api_key: environment variable ${%s} is not set", matches[1])
	}
	return nil
}

// Save writes the config to its Path atomically.
func (c *Config) Save() error {
	if c.Path == "" {
		return fmt.Errorf("config has no path")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFileAtomic(c.Path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	if c.Launcher.LockPath != "" {
		return c.Launcher.LockPath
	}
	return filepath.Join(c.dir(), "bxt_launcher.lock")
}

// HistoryPath returns the launch history database location.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.dir(), "bxt_launcher.db")
}

func (c *Config) dir() string {
	if c.Path == "" {
		return "."
	}
	return filepath.Dir(c.Path)
}
