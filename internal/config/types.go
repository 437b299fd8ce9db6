package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/mattjoyce/bxt-launcher/internal/launch"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up next to the executable.
const FileName = "bxt_launcher.yaml"

// DefaultProfileCount matches the four profile slots of the launcher window.
const DefaultProfileCount = 4

// Config represents the complete bxt-launcher configuration.
type Config struct {
	Launcher       LauncherConfig `yaml:"launcher"`
	History        HistoryConfig  `yaml:"history"`
	API            APIConfig      `yaml:"api"`
	CurrentProfile int            `yaml:"current_profile"`
	Profiles       []Profile      `yaml:"profiles"`

	// Path is the file this config was loaded from and is saved to.
	Path string `yaml:"-"`
	// BackupPath is set when Load moved an unreadable file aside.
	BackupPath string `yaml:"-"`
}

// LauncherConfig holds orchestrator and process-wide settings.
type LauncherConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	EventName string `yaml:"event_name"`
	// ReadinessTimeout bounds each module's readiness wait. 0 waits forever.
	ReadinessTimeout   time.Duration `yaml:"readiness_timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	TerminateOnFailure bool          `yaml:"terminate_on_failure"`
	// LockPath defaults to bxt_launcher.lock next to the config file.
	LockPath string `yaml:"lock_path"`
}

// HistoryConfig defines launch history storage settings.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path defaults to bxt_launcher.db next to the config file.
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP control API settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// Profile is one saved launch setup.
type Profile struct {
	Name        string `yaml:"name"`
	HLExe       string `yaml:"hl_exe"`
	BXT         string `yaml:"bxt"`
	EnableBXT   bool   `yaml:"enable_bxt"`
	BXTRS       string `yaml:"bxt_rs"`
	EnableBXTRS bool   `yaml:"enable_bxt_rs"`
	GameMod     string `yaml:"gamemod"`
	Extras      string `yaml:"extras"`

	// Optional BLAKE3 pins checked before launch.
	BXTHash   string `yaml:"bxt_blake3,omitempty"`
	BXTRSHash string `yaml:"bxt_rs_blake3,omitempty"`
}

// profileKeys holds the yaml keys a profile may carry.
var profileKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Profile{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

// UnmarshalYAML fills fields missing from the document with profile defaults.
func (p *Profile) UnmarshalYAML(value *yaml.Node) error {
	type plain Profile
	out := plain(DefaultProfile(""))
	if err := value.Decode(&out); err != nil {
		return err
	}
	*p = Profile(out)
	return nil
}

// Request converts the profile into a launch request. bxt-rs is the
// runtime-support target and BunnymodXT the instrumentation target.
func (p Profile) Request() launch.Request {
	return launch.Request{
		Executable: p.HLExe,
		GameMod:    p.GameMod,
		ExtraArgs:  p.Extras,
		Targets: []launch.Target{
			{Role: launch.RoleRuntimeSupport, Path: p.BXTRS, Enabled: p.EnableBXTRS},
			{Role: launch.RoleInstrumentation, Path: p.BXT, Enabled: p.EnableBXT},
		},
	}
}

// DefaultProfile returns an empty profile with both modules enabled.
func DefaultProfile(name string) Profile {
	return Profile{
		Name:        name,
		EnableBXT:   true,
		EnableBXTRS: true,
		GameMod:     launch.DefaultGameMod,
	}
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	profiles := make([]Profile, 0, DefaultProfileCount)
	profiles = append(profiles, DefaultProfile("default"))
	for i := 2; i <= DefaultProfileCount; i++ {
		profiles = append(profiles, DefaultProfile(profileName(i)))
	}

	return &Config{
		Launcher: LauncherConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			EventName:          launch.DefaultEventName,
			ReadinessTimeout:   0,
			PollInterval:       250 * time.Millisecond,
			TerminateOnFailure: true,
		},
		History: HistoryConfig{
			Enabled:   true,
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:17760",
		},
		CurrentProfile: 0,
		Profiles:       profiles,
	}
}
