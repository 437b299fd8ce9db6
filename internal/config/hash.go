package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Fingerprint returns the hex BLAKE3 digest of the file at path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PinMismatchError reports a module whose contents no longer match its pin.
type PinMismatchError struct {
	// Field is the profile key holding the pin, e.g. bxt_rs_blake3.
	Field string
	Path  string
	Want  string
	Got   string
}

func (e *PinMismatchError) Error() string {
	prefix := "module"
	if e.Field != "" {
		prefix = e.Field
	}
	return fmt.Sprintf("%s pin check failed: hash mismatch for %s: pinned %s, found %s", prefix, e.Path, e.Want, e.Got)
}

// CheckPin compares the file at path with a pinned digest. Case and
// surrounding whitespace in want are ignored.
func CheckPin(path, want string) error {
	got, err := Fingerprint(path)
	if err != nil {
		return err
	}
	want = strings.ToLower(strings.TrimSpace(want))
	if got != want {
		return &PinMismatchError{Path: path, Want: want, Got: got}
	}
	return nil
}

// VerifyPins checks every enabled module that carries a pin.
func (p Profile) VerifyPins() error {
	for _, m := range []struct {
		on    bool
		field string
		path  string
		pin   string
	}{
		{p.EnableBXTRS, "bxt_rs_blake3", p.BXTRS, p.BXTRSHash},
		{p.EnableBXT, "bxt_blake3", p.BXT, p.BXTHash},
	} {
		if !m.on || m.pin == "" {
			continue
		}
		if err := CheckPin(m.path, m.pin); err != nil {
			if pe, ok := err.(*PinMismatchError); ok {
				pe.Field = m.field
			}
			return err
		}
	}
	return nil
}
