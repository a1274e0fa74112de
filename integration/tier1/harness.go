//go:build integration

package tier1

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/cadsync/internal/testutil"
)

const (
	binaryName     = "cadsync"
	defaultTimeout = 5 * time.Minute
)

// Harness builds the cadsync binary once and runs it against a scratch
// workspace holding the central, common and user trees
type Harness struct {
	t      *testing.T
	binary string
	root   string
	keep   bool
}

// NewHarness creates a new test harness rooted in a fresh temp directory
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	root, err := os.MkdirTemp("", "cadsync-tier1-*")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return &Harness{
		t:    t,
		root: root,
		keep: os.Getenv("INTEGRATION_KEEP_WORKSPACE") == "1",
	}
}

// BuildBinary compiles the command under test into the workspace
func (h *Harness) BuildBinary(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.binary = filepath.Join(h.root, "bin", binaryName)
	h.t.Logf("Building %s", h.binary)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/cadsync")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// Cleanup removes the workspace
func (h *Harness) Cleanup() {
	h.t.Helper()
	if h.keep && h.t.Failed() {
		h.t.Logf("Test failed and INTEGRATION_KEEP_WORKSPACE=1, keeping %s", h.root)
		return
	}
	if err := os.RemoveAll(h.root); err != nil {
		h.t.Logf("Warning: failed to remove workspace: %v", err)
	}
}

// Path resolves a slash-separated path inside the workspace
func (h *Harness) Path(rel string) string {
	return filepath.Join(h.root, filepath.FromSlash(rel))
}

// Exec runs the binary with args and returns stdout, stderr and exit code
func (h *Harness) Exec(ctx context.Context, args ...string) (string, string, int, error) {
	h.t.Helper()
	if h.binary == "" {
		return "", "", 0, fmt.Errorf("binary not built")
	}

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Dir = h.root
	cmd.Env = append(os.Environ(), "HOME="+h.root)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}

	return stdout.String(), stderr.String(), exitCode, nil
}

// MustExec runs the binary and fails the test on a non-zero exit
func (h *Harness) MustExec(ctx context.Context, args ...string) (string, string) {
	h.t.Helper()
	stdout, stderr, exitCode, err := h.Exec(ctx, args...)
	if err != nil {
		h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		h.t.Fatalf("command failed with exit code %d\nstdout: %s\nstderr: %s\nargs: %v",
			exitCode, stdout, stderr, args)
	}
	return stdout, stderr
}

// WriteFile writes a workspace file with a pinned modification time
func (h *Harness) WriteFile(rel, content string, modTime time.Time) {
	h.t.Helper()
	testutil.WriteFile(h.t, h.Path(rel), testutil.File{Content: content, ModTime: modTime})
}

// ReadFile reads a workspace file
func (h *Harness) ReadFile(rel string) (string, error) {
	data, err := os.ReadFile(h.Path(rel))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FileExists checks if a workspace file exists
func (h *Harness) FileExists(rel string) bool {
	info, err := os.Stat(h.Path(rel))
	return err == nil && !info.IsDir()
}

// RemoveAll deletes a workspace subtree
func (h *Harness) RemoveAll(rel string) {
	h.t.Helper()
	if err := os.RemoveAll(h.Path(rel)); err != nil {
		h.t.Fatalf("remove %s: %v", rel, err)
	}
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
