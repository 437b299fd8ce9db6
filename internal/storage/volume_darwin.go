//go:build darwin

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func volumeKind(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	name := unix.ByteSliceToString(st.Fstypename[:])
	if st.Flags&unix.MNT_LOCAL == 0 && !remoteKinds[name] {
		return KindRemote, nil
	}
	return name, nil
}
