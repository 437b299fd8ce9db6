package doctor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/bxt-launcher/internal/config"
	"github.com/mattjoyce/bxt-launcher/internal/storage"
)

// validConfig returns a config whose current profile points at real files.
func validConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"hl.exe":         "MZ",
		"BunnymodXT.dll": "MZ bxt",
		"bxt_rs.dll":     "MZ rs",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Defaults()
	cfg.Profiles[0].HLExe = filepath.Join(dir, "hl.exe")
	cfg.Profiles[0].BXT = filepath.Join(dir, "BunnymodXT.dll")
	cfg.Profiles[0].BXTRS = filepath.Join(dir, "bxt_rs.dll")
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingExecutable(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[0].HLExe = ""
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "profile", "no Half-Life executable")
}

func TestValidate_ExecutableWarnings(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[0].HLExe = filepath.Join(t.TempDir(), "game.exe")
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("executable problems are warnings only, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "profile", "not named hl.exe")
	assertHasWarning(t, r, "profile", "not found on disk")
}

func TestValidate_EnabledModuleMissing(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[0].BXT = filepath.Join(t.TempDir(), "BunnymodXT.dll")
	r := New(cfg).Validate()
	assertHasError(t, r, "modules", "BunnymodXT module")
}

func TestValidate_DisabledModuleMissingIsFine(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[0].BXTRS = ""
	cfg.Profiles[0].EnableBXTRS = false
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestValidate_EnabledModuleWithoutPath(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[0].BXTRS = ""
	assertHasError(t, New(cfg).Validate(), "modules", "has no path")
}

func TestValidate_BothModulesDisabled(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[0].EnableBXT = false
	cfg.Profiles[0].EnableBXTRS = false
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "modules", "both modules are disabled")
}

func TestValidate_ModuleWithoutDLLExtension(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	so := filepath.Join(t.TempDir(), "libBunnymodXT.so")
	if err := os.WriteFile(so, []byte("ELF"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Profiles[0].BXT = so
	assertHasWarning(t, New(cfg).Validate(), "modules", "no .dll extension")
}

func TestValidate_PinMismatch(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[0].BXTHash = strings.Repeat("0", 64)
	assertHasError(t, New(cfg).Validate(), "modules", "hash mismatch")

	good, err := config.Fingerprint(cfg.Profiles[0].BXT)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Profiles[0].BXTHash = good
	if r := New(cfg).Validate(); !r.Valid {
		t.Fatalf("expected valid with matching pin, got: %v", r.Errors)
	}
}

func TestValidate_CurrentProfileOutOfRange(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.CurrentProfile = 9
	assertHasError(t, New(cfg).Validate(), "profile", "out of range")
}

func TestValidate_LauncherSettings(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Launcher.EventName = " "
	cfg.Launcher.ReadinessTimeout = -time.Second
	cfg.Launcher.TerminateOnFailure = false
	r := New(cfg).Validate()
	assertHasError(t, r, "launcher", "event_name is required")
	assertHasError(t, r, "launcher", "readiness_timeout must not be negative")
	assertHasWarning(t, r, "launcher", "suspended hl.exe")
}

func TestValidate_PollLongerThanTimeout(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Launcher.ReadinessTimeout = 100 * time.Millisecond
	cfg.Launcher.PollInterval = time.Second
	assertHasWarning(t, New(cfg).Validate(), "launcher", "exceeds readiness_timeout")
}

func TestValidate_APIConfig(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Enabled = true
	cfg.API.Listen = ""
	r := New(cfg).Validate()
	assertHasError(t, r, "api", "api.listen is required")
	assertHasWarning(t, r, "api", "no authentication")
}

func TestValidate_DuplicateProfileNames(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[2].Name = cfg.Profiles[1].Name
	assertHasWarning(t, New(cfg).Validate(), "profile", "also used by profiles.1")
}

func TestValidate_UnresolvedEnvVar(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Profiles[3].HLExe = "${BXT_DOCTOR_UNSET_VAR}/hl.exe"
	assertHasWarning(t, New(cfg).Validate(), "env_vars", "BXT_DOCTOR_UNSET_VAR")
}

func TestValidate_HistoryVolume(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		vol     storage.Volume
		err     error
		wantErr string
		wantWrn string
	}{
		{name: "local", vol: storage.Volume{Kind: storage.KindLocal}},
		{name: "network share", vol: storage.Volume{Kind: "cifs"}, wantErr: "cifs network volume"},
		{name: "usb stick", vol: storage.Volume{Kind: storage.KindRemovable}, wantWrn: "removable drive"},
		{name: "probe failure", err: errors.New("access denied"), wantWrn: "access denied"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := New(validConfig(t))
			var probed string
			d.probe = func(p string) (storage.Volume, error) {
				probed = p
				return tc.vol, tc.err
			}
			r := d.Validate()
			if probed != d.cfg.HistoryPath() {
				t.Fatalf("probed %q, want %q", probed, d.cfg.HistoryPath())
			}
			switch {
			case tc.wantErr != "":
				assertHasError(t, r, "history", tc.wantErr)
			case tc.wantWrn != "":
				assertHasWarning(t, r, "history", tc.wantWrn)
				if !r.Valid {
					t.Fatalf("warning-only result marked invalid: %v", r.Errors)
				}
			default:
				if !r.Valid || len(r.Warnings) != 0 {
					t.Fatalf("expected clean result, got %+v", r)
				}
			}
		})
	}
}

func TestValidate_HistoryDisabledSkipsVolume(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.History.Enabled = false
	d := New(cfg)
	d.probe = func(string) (storage.Volume, error) {
		t.Fatal("volume probed with history disabled")
		return storage.Volume{}, nil
	}
	if r := d.Validate(); !r.Valid {
		t.Fatalf("unexpected errors: %v", r.Errors)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Message: "bad thing"}},
	}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bad thing") {
		t.Fatalf("expected JSON to contain error message, got: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if !strings.Contains(out, "valid") {
		t.Fatalf("expected 'valid' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
		Warnings: []Issue{{Category: "test", Message: "odd"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "broken") {
		t.Fatalf("expected error in output, got: %s", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Fatalf("expected warning in output, got: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
