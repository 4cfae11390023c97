// Package filex holds small filesystem helpers used by the operator tool.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureSubDir creates dirName under the current working directory if
// it does not exist yet and returns its absolute path. Fetched record
// documents land here, so the directory is kept private to the owner.
func EnsureSubDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
