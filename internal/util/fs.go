package util

import (
	"fmt"
	"os"
	"path/filepath"
)

func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// SafeJoin joins name under root, stripping any directory components a
// client may have smuggled into an uploaded filename.
func SafeJoin(root, name string) string {
	return filepath.Join(root, filepath.Base(name))
}
