package config

import (
	"os"
	"path/filepath"
)

// EnvConfigPath overrides config discovery when set.
const EnvConfigPath = "BXT_LAUNCHER_CONFIG"

// executable is swapped in tests.
var executable = os.Executable

// Discover returns the config file to use.
// Priority order: flagPath, $BXT_LAUNCHER_CONFIG, <exe dir>/bxt_launcher.yaml,
// ./bxt_launcher.yaml. When no file exists yet the executable directory is
// chosen, so a first save lands next to the launcher.
func Discover(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}

	var exeCandidate string
	if exe, err := executable(); err == nil {
		exeCandidate = filepath.Join(filepath.Dir(exe), FileName)
		if fileExists(exeCandidate) {
			return exeCandidate
		}
	}

	if fileExists(FileName) {
		return FileName
	}
	if exeCandidate != "" {
		return exeCandidate
	}
	return FileName
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
