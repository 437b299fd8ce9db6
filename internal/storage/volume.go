package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Volume kinds reported by ProbeVolume besides raw filesystem names.
const (
	KindLocal     = "local"
	KindRemote    = "remote"
	KindRemovable = "removable"
	KindUnknown   = "unknown"
)

var remoteKinds = map[string]bool{
	"afpfs":    true,
	"afs":      true,
	"ceph":     true,
	"cifs":     true,
	"nfs":      true,
	"smbfs":    true,
	"smb2":     true,
	"webdav":   true,
	KindRemote: true,
}

// Volume describes the filesystem a history database would live on.
type Volume struct {
	// Probed is the nearest existing ancestor of the requested path.
	Probed string
	Kind   string
}

// Remote reports whether SQLite locking on this volume is unreliable.
func (v Volume) Remote() bool {
	return remoteKinds[strings.ToLower(strings.TrimSpace(v.Kind))]
}

// Removable reports a USB stick or similar, where the launcher often lives.
func (v Volume) Removable() bool { return v.Kind == KindRemovable }

// RemoteVolumeError rejects a history database on a network share.
type RemoteVolumeError struct {
	Path string
	Kind string
}

func (e *RemoteVolumeError) Error() string {
	return fmt.Sprintf("history database %s is on a %s network volume; SQLite needs a local disk for locking. Set history.path to a local file or disable history",
		e.Path, e.Kind)
}

// ProbeVolume identifies the volume holding path. The file and its parent
// directories need not exist yet.
func ProbeVolume(path string) (Volume, error) {
	return probeVolume(path, volumeKind)
}

// CheckLocal returns a *RemoteVolumeError when path is on a network volume.
func CheckLocal(path string) error {
	v, err := ProbeVolume(path)
	if err != nil {
		return err
	}
	if v.Remote() {
		return &RemoteVolumeError{Path: path, Kind: v.Kind}
	}
	return nil
}

func probeVolume(path string, kindOf func(string) (string, error)) (Volume, error) {
	if path == "" {
		return Volume{}, errors.New("sqlite path is empty")
	}
	probed, err := existingAncestor(path)
	if err != nil {
		return Volume{}, err
	}
	kind, err := kindOf(probed)
	if err != nil {
		return Volume{}, fmt.Errorf("detect volume for %q: %w", probed, err)
	}
	if kind == "" {
		kind = KindUnknown
	}
	return Volume{Probed: probed, Kind: kind}, nil
}

func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	for dir := abs; ; {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		dir = parent
	}
}
