package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/schaermu/cadsync/internal/catalog"
	"github.com/schaermu/cadsync/internal/eventlog"
	"github.com/schaermu/cadsync/internal/fsutil"
	"github.com/schaermu/cadsync/internal/index"
)

// HandleFirstRun seeds the local user root from the local common root when
// the user root does not exist yet. It reports whether seeding happened.
func (e *Engine) HandleFirstRun(ctx context.Context) (bool, error) {
	user := e.sc.Roots.LocalUser
	if _, err := os.Stat(user); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat local user root: %w", err)
	}

	e.logger.Info("first run, seeding local user root", "source", e.sc.Roots.LocalCommon, "target", user)
	stats, err := fsutil.DirectoryCopy(ctx, e.logger, e.sc.Roots.LocalCommon, user, true)
	if err != nil {
		return true, fmt.Errorf("failed to seed local user root: %w", err)
	}
	e.events.Log(fmt.Sprintf("First run: copied %d files to %s", stats.Copied, user), eventlog.Info)
	return true, nil
}

// ValidateCriticalFiles restores the user Settings from the local common
// root when any of its files are missing
func (e *Engine) ValidateCriticalFiles(ctx context.Context) error {
	src := filepath.Join(e.sc.Roots.LocalCommon, "Settings")
	dst := filepath.Join(e.sc.Roots.LocalUser, "Settings")

	if !fsutil.AnyFolderDifferenceQuick(src, dst, false, false) {
		return nil
	}

	e.logger.Warn("critical settings files missing, restoring", "source", src, "target", dst)
	stats, err := fsutil.DirectoryCopy(ctx, e.logger, src, dst, true)
	if err != nil {
		return fmt.Errorf("failed to restore settings: %w", err)
	}
	e.events.Log(fmt.Sprintf("Restored %d settings files from %s", stats.Copied, src), eventlog.Warning)
	return nil
}

// CacheFromLocalCommon copies the office standards from the local common
// snapshot into the user cache without comparing against the central root
func (e *Engine) CacheFromLocalCommon(ctx context.Context) error {
	mappings, err := catalog.Subpaths(catalog.Standards(), e.sc.Office)
	if err != nil {
		return fmt.Errorf("failed to resolve standards paths: %w", err)
	}

	src := filepath.Join(e.sc.Roots.LocalCommon, "Cache")
	dst := filepath.Join(e.sc.Roots.LocalUser, "Cache")

	var total fsutil.CopyStats
	for _, m := range mappings {
		stats, err := fsutil.DirectoryCopy(ctx, e.logger, filepath.Join(src, m.Source), filepath.Join(dst, m.Source), true)
		if err != nil {
			return fmt.Errorf("failed to cache %s: %w", m.Source, err)
		}
		total.Copied += stats.Copied
		total.Unchanged += stats.Unchanged
		total.Failed += stats.Failed
	}

	e.logger.Info("cached standards from local common root",
		"office", e.sc.Office.ID,
		"copied", total.Copied,
		"unchanged", total.Unchanged,
		"failed", total.Failed)
	return nil
}

// Publish lays the cached office standards into the application folders
// under the local user root. Later mappings override earlier ones on the same
// target file. With clean, every target folder is emptied first so files from
// a previously selected office do not remain.
func (e *Engine) Publish(ctx context.Context, clean bool) (*Report, error) {
	if !e.guard.TryAcquire(1) {
		e.rejectBusy()
		return nil, ErrBusy
	}
	defer e.guard.Release(1)

	mappings, err := catalog.Subpaths(catalog.Standards(), e.sc.Office)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve standards paths: %w", err)
	}

	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)
	user := e.sc.Roots.LocalUser
	cache := filepath.Join(user, "Cache")

	if clean {
		seen := make(map[string]bool)
		for _, m := range mappings {
			target := filepath.Join(user, m.Target)
			if seen[target] {
				continue
			}
			seen[target] = true

			logger.Debug("clearing target folder", "target", target)
			if err := fsutil.DirectoryDelete(target); err != nil {
				return nil, fmt.Errorf("failed to clear %s: %w", target, err)
			}
		}
	}

	e.state.Store(int32(Comparing))
	e.rec.ResetStats()
	idx := index.New()
	for i, m := range mappings {
		if err := ctx.Err(); err != nil {
			e.state.Store(int32(Idle))
			return nil, err
		}
		if err := e.reconcileTree(logger, filepath.Join(cache, m.Source), filepath.Join(user, m.Target), index.Support, i, idx); err != nil {
			e.state.Store(int32(Idle))
			return nil, fmt.Errorf("failed to reconcile %s: %w", m.Source, err)
		}
	}
	logger.Info("publishing standards", "office", e.sc.Office.ID, "pending", idx.PendingCount(nil), "shadowed", idx.Shadowed())

	return e.runUpdate(ctx, idx, runID), nil
}
