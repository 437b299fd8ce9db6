package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrProfileNotFound is returned when a profile reference matches nothing.
var ErrProfileNotFound = errors.New("profile not found")

// Well-known file names recognised by Profile.AssignFile.
var knownFiles = map[string]string{
	"hl.exe":           "hl_exe",
	"hl_linux":         "hl_exe",
	"bunnymodxt.dll":   "bxt",
	"libbunnymodxt.so": "bxt",
	"bxt_rs.dll":       "bxt_rs",
	"libbxt_rs.so":     "bxt_rs",
}

func profileName(n int) string {
	return fmt.Sprintf("profile-%d", n)
}

// Current returns the selected profile.
func (c *Config) Current() (*Profile, error) {
	if c.CurrentProfile < 0 || c.CurrentProfile >= len(c.Profiles) {
		return nil, fmt.Errorf("current_profile %d out of range (have %d profiles)", c.CurrentProfile, len(c.Profiles))
	}
	return &c.Profiles[c.CurrentProfile], nil
}

// FindProfile resolves ref as an exact profile name first and then as a
// zero-based index.
func (c *Config) FindProfile(ref string) (int, *Profile, error) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == ref {
			return i, &c.Profiles[i], nil
		}
	}
	if idx, err := strconv.Atoi(ref); err == nil && idx >= 0 && idx < len(c.Profiles) {
		return idx, &c.Profiles[idx], nil
	}
	return -1, nil, fmt.Errorf("%w: %q", ErrProfileNotFound, ref)
}

// Resolve returns the profile named by ref, or the current profile when ref is empty.
func (c *Config) Resolve(ref string) (int, *Profile, error) {
	if ref == "" {
		p, err := c.Current()
		if err != nil {
			return -1, nil, err
		}
		return c.CurrentProfile, p, nil
	}
	return c.FindProfile(ref)
}

// UseProfile makes ref the current profile.
func (c *Config) UseProfile(ref string) error {
	idx, _, err := c.FindProfile(ref)
	if err != nil {
		return err
	}
	c.CurrentProfile = idx
	return nil
}

// AssignFile stores path in the profile field identified by its file name
// (hl.exe, BunnymodXT.dll or bxt_rs.dll) and returns that field's key.
func (p *Profile) AssignFile(path string) (string, error) {
	field, ok := knownFiles[strings.ToLower(filepath.Base(path))]
	if !ok {
		return "", fmt.Errorf("unrecognised file %q (expected hl.exe, BunnymodXT.dll or bxt_rs.dll)", filepath.Base(path))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	switch field {
	case "hl_exe":
		p.HLExe = abs
	case "bxt":
		p.BXT = abs
	case "bxt_rs":
		p.BXTRS = abs
	}
	return field, nil
}
