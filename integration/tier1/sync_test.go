//go:build integration

package tier1

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/cadsync/internal/testutil"
)

const (
	// Workspace-relative paths
	testConfigPath = "config/config.yaml"
	testCentral    = "share/_TechSTND"
	testCommon     = "programdata/cadsync"
	testUser       = "appdata/cadsync"
)

var (
	t0 = testutil.Epoch
	t1 = testutil.Epoch.Add(48 * time.Hour)
)

func TestTier1Sync(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t)
	defer h.Cleanup()

	if err := h.BuildBinary(ctx); err != nil {
		t.Fatalf("build binary: %v", err)
	}

	setupTrees(t, h)
	writeConfig(t, h, testCentral)

	// Run all scenarios as subtests
	t.Run("A_FirstRun", func(t *testing.T) {
		testFirstRun(t, h, ctx)
	})

	t.Run("B_InitialUpdate", func(t *testing.T) {
		testInitialUpdate(t, h, ctx)
	})

	t.Run("C_UpdateChanged", func(t *testing.T) {
		testUpdateChanged(t, h, ctx)
	})

	t.Run("D_NoOpUpdate", func(t *testing.T) {
		testNoOpUpdate(t, h, ctx)
	})

	t.Run("E_LocalNewerKept", func(t *testing.T) {
		testLocalNewerKept(t, h, ctx)
	})

	t.Run("F_PublishClean", func(t *testing.T) {
		testPublishClean(t, h, ctx)
	})

	t.Run("G_FallbackToLocalCommon", func(t *testing.T) {
		// Point at a share that does not exist
		writeConfig(t, h, "share/offline")
		testFallbackToLocalCommon(t, h, ctx)
	})
}

// setupTrees lays out a central share and a local common snapshot
func setupTrees(t *testing.T, h *Harness) {
	t.Helper()
	files := map[string]time.Time{
		testCentral + "/Settings/Profile.arg":                  t0,
		testCentral + "/Packages/Tools.bundle/PackageContents": t0,
		testCentral + "/Fonts/romans.shx":                      t0,
		testCentral + "/PlotStyles/_Common/mono.ctb":           t0,
		testCentral + "/PlotStyles/AUS/Denver/mono.ctb":        t0,
		testCentral + "/PlotStyles/AGB/London/london.ctb":      t0,
		testCommon + "/Settings/Profile.arg":                   t0,
		testCommon + "/Cache/Fonts/romans.shx":                 t0,
	}
	for rel, mtime := range files {
		h.WriteFile(rel, "v1:"+rel, mtime)
	}
}

// writeConfig writes a cadsync config file
func writeConfig(t *testing.T, h *Harness, central string) {
	t.Helper()

	config := fmt.Sprintf(`paths:
  central: %q
  local_common: %q
  local_user: %q

office:
  region: AUS
  directory: Denver

sync:
  directory_access_timeout: 2
  exclude: ["**/Thumbs.db"]
`, h.Path(central), h.Path(testCommon), h.Path(testUser))

	h.WriteFile(testConfigPath, config, time.Now())
}

func run(t *testing.T, h *Harness, ctx context.Context, args ...string) string {
	t.Helper()
	stdout, stderr := h.MustExec(ctx, append([]string{"--config", h.Path(testConfigPath)}, args...)...)
	t.Logf("stdout: %s", stdout)
	t.Logf("stderr: %s", stderr)
	return stdout
}

// testFirstRun seeds the user tree from the local common snapshot
func testFirstRun(t *testing.T, h *Harness, ctx context.Context) {
	stdout := run(t, h, ctx, "first-run")

	if !strings.Contains(stdout, "Seeded") {
		t.Errorf("expected seeding, got: %s", stdout)
	}
	if !h.FileExists(testUser + "/Settings/Profile.arg") {
		t.Error("settings not seeded")
	}
	if !h.FileExists(testUser + "/Cache/Fonts/romans.shx") {
		t.Error("cache not seeded")
	}

	// second run only validates
	stdout = run(t, h, ctx, "first-run")
	if strings.Contains(stdout, "Seeded") {
		t.Error("second first-run should not seed again")
	}
}

// testInitialUpdate copies everything missing from the central share
func testInitialUpdate(t *testing.T, h *Harness, ctx context.Context) {
	stdout := run(t, h, ctx, "update")

	// Profile.arg and romans.shx were seeded with matching mtimes
	if !strings.Contains(stdout, "Copied 3 files") {
		t.Errorf("unexpected summary: %s", stdout)
	}
	for _, rel := range []string{
		"/Cache/Packages/Tools.bundle/PackageContents",
		"/Cache/PlotStyles/_Common/mono.ctb",
		"/Cache/PlotStyles/AUS/Denver/mono.ctb",
	} {
		if !h.FileExists(testUser + rel) {
			t.Errorf("%s not copied", rel)
		}
	}
	if h.FileExists(testUser + "/Cache/PlotStyles/AGB/London/london.ctb") {
		t.Error("another office's plot styles were copied")
	}
}

// testUpdateChanged copies only the file that changed on the share
func testUpdateChanged(t *testing.T, h *Harness, ctx context.Context) {
	h.WriteFile(testCentral+"/Fonts/romans.shx", "v2", t1)

	stdout := run(t, h, ctx, "update", "--background")
	if !strings.Contains(stdout, "Copied 1 files") {
		t.Errorf("unexpected summary: %s", stdout)
	}

	content, err := h.ReadFile(testUser + "/Cache/Fonts/romans.shx")
	if err != nil {
		t.Fatalf("read font: %v", err)
	}
	if content != "v2" {
		t.Errorf("font content = %q, want v2", content)
	}
}

// testNoOpUpdate verifies a second update has nothing to do
func testNoOpUpdate(t *testing.T, h *Harness, ctx context.Context) {
	stdout := run(t, h, ctx, "compare")
	if !strings.Contains(stdout, "0 / ") {
		t.Errorf("expected nothing pending: %s", stdout)
	}

	stdout = run(t, h, ctx, "update")
	if !strings.Contains(stdout, "Copied 0 files") {
		t.Errorf("unexpected summary: %s", stdout)
	}
}

// testLocalNewerKept verifies locally newer files are never overwritten
func testLocalNewerKept(t *testing.T, h *Harness, ctx context.Context) {
	h.WriteFile(testUser+"/Settings/Profile.arg", "edited locally", t1)

	run(t, h, ctx, "update")

	content, err := h.ReadFile(testUser + "/Settings/Profile.arg")
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if content != "edited locally" {
		t.Errorf("local edit overwritten: %q", content)
	}
}

// testPublishClean lays the cache into the application folders
func testPublishClean(t *testing.T, h *Harness, ctx context.Context) {
	h.WriteFile(testUser+"/PlotStyles/stale.ctb", "old office", t0)

	run(t, h, ctx, "publish", "--clean")

	content, err := h.ReadFile(testUser + "/PlotStyles/mono.ctb")
	if err != nil {
		t.Fatalf("read published plot style: %v", err)
	}
	if !strings.Contains(content, "AUS/Denver") {
		t.Errorf("office plot style should win over the common one, got %q", content)
	}
	if h.FileExists(testUser + "/PlotStyles/stale.ctb") {
		t.Error("stale plot style survived a clean publish")
	}
	if !h.FileExists(testUser + "/Packages/Tools.bundle/PackageContents") {
		t.Error("package not published")
	}
}

// testFallbackToLocalCommon compares against the snapshot when the share is
// unreachable
func testFallbackToLocalCommon(t *testing.T, h *Harness, ctx context.Context) {
	h.RemoveAll(testUser + "/Cache/Fonts")

	stdout := run(t, h, ctx, "update")
	if !strings.Contains(stdout, "Successfully updated from") && !strings.Contains(stdout, "Copied") {
		t.Errorf("unexpected output: %s", stdout)
	}

	content, err := h.ReadFile(testUser + "/Cache/Fonts/romans.shx")
	if err != nil {
		t.Fatalf("font not restored from the local snapshot: %v", err)
	}
	if !strings.Contains(content, testCommon) {
		t.Errorf("font should come from the local snapshot, got %q", content)
	}
}
