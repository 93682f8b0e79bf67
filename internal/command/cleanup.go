package command

import (
	"os"
	"path/filepath"
)

// removeRuntimeDir recursively removes dir. If permission errors stop a
// first pass, every remaining entry is chmod'ed to 0700 and removal is
// retried once.
func removeRuntimeDir(dir string) error {
	err := os.RemoveAll(dir)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	if !os.IsPermission(err) {
		return err
	}

	_ = filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		_ = os.Chmod(path, 0o700)
		return nil
	})
	return os.RemoveAll(dir)
}
