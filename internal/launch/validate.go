package launch

import (
	"os"
	"sort"
)

// Validate checks the request before any OS resource is allocated.
//
// The executable itself is not checked on disk; process creation is the
// source of truth for that. Each enabled target must be an existing regular
// file. Disabled targets are skipped without inspection. Targets are checked
// in injection order, so the first missing module by rank is the one reported.
//
// On success it returns the enabled targets in injection order.
func Validate(req Request) ([]Target, error) {
	if req.Executable == "" {
		return nil, ErrMissingExecutable
	}

	enabled := make([]Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Role.Rank() < enabled[j].Role.Rank()
	})

	for _, t := range enabled {
		info, err := os.Stat(t.Path)
		if err != nil || !info.Mode().IsRegular() {
			return nil, &ModuleNotFoundError{Path: t.Path}
		}
	}
	return enabled, nil
}
