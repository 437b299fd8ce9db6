//go:build windows

package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

func volumeKind(path string) (string, error) {
	root := filepath.VolumeName(path)
	if root == "" {
		return "", fmt.Errorf("no volume in %q", path)
	}
	if !strings.HasSuffix(root, `\`) {
		root += `\`
	}
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return "", err
	}

	switch windows.GetDriveType(p) {
	case windows.DRIVE_REMOTE:
		return KindRemote, nil
	case windows.DRIVE_REMOVABLE:
		return KindRemovable, nil
	case windows.DRIVE_FIXED, windows.DRIVE_RAMDISK:
		return KindLocal, nil
	default:
		return KindUnknown, nil
	}
}
