package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// FindProjectRoot walks up the directory tree from the current file to find go.mod
func FindProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// Testdata returns the absolute path of a file under the repository's
// testdata directory
func Testdata(name string) (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, "testdata", name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("testdata %s: %w", name, err)
	}
	return path, nil
}
