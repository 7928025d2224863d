// Package fsx implements the filesystem primitives used as an opaque
// external collaborator: atomic read/write/mkdir. Grounded on
// distri's direct use of renameio.TempFile in internal/build/build.go for
// squashfs images and package metadata.
package fsx

import (
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// WriteAtomic writes data to path such that a concurrent reader never
// observes a partial write: it writes to a sibling temp file, then renames
// it into place.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if _, err := t.Write(data); err != nil {
		return err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return os.Chmod(path, perm)
}

// ReadFile reads path, returning (nil, os.ErrNotExist)-wrapped errors
// unmodified so callers can branch with os.IsNotExist.
func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// MkdirAll ensures dir exists, recursively.
func MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
