package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Epoch is the default pinned modification time for fixture files
var Epoch = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

// File describes a fixture file. A zero ModTime uses Epoch.
type File struct {
	Content string
	ModTime time.Time
}

// WriteTree creates the files under root, keyed by slash-separated
// relative path, with their modification times pinned
func WriteTree(t testing.TB, root string, files map[string]File) {
	t.Helper()
	for rel, f := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(rel)), f)
	}
}

// WriteFile creates a single fixture file with a pinned modification time
func WriteFile(t testing.TB, path string, f File) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(f.Content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	mtime := f.ModTime
	if mtime.IsZero() {
		mtime = Epoch
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to set times on %s: %v", path, err)
	}
}

// ReadTree returns every regular file under root keyed by slash-separated
// relative path
func ReadTree(t testing.TB, root string) map[string]File {
	t.Helper()
	out := make(map[string]File)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = File{Content: string(data), ModTime: info.ModTime()}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to read tree %s: %v", root, err)
	}
	return out
}

// ModTime returns the modification time of path
func ModTime(t testing.TB, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to stat %s: %v", path, err)
	}
	return info.ModTime()
}

// ReadString returns the contents of path
func ReadString(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
