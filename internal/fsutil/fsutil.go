package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// CopyFile copies src to dst atomically: the data is written to a temporary
// file next to dst, which gets the source permissions and modification time
// before being renamed into place. The parent of dst must exist.
func CopyFile(src, dst string, mode fs.FileMode, modTime time.Time) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer func() {
		_ = in.Close()
	}()

	dstDir := filepath.Dir(dst)
	out, err := os.CreateTemp(dstDir, ".cadsync-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dstDir, err)
	}
	tmpPath := out.Name()
	defer func() {
		if tmpPath != "" {
			_ = out.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	// the user must keep write access or the next pass cannot replace it
	if err := out.Chmod(mode.Perm() | 0200); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", tmpPath, err)
	}

	// after Close, which may touch the mtime
	if err := os.Chtimes(tmpPath, modTime, modTime); err != nil {
		return fmt.Errorf("failed to set timestamps on %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	tmpPath = ""
	return nil
}

// CopyStats counts the outcome of a DirectoryCopy
type CopyStats struct {
	Copied    int
	Unchanged int
	Failed    int
}

// DirectoryCopy copies files that are missing or differ by modification time
// from src into dst. Extra files in dst are left alone. A missing src is not
// an error; it is logged and nothing is copied.
func DirectoryCopy(ctx context.Context, logger *slog.Logger, src, dst string, recursive bool) (CopyStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats CopyStats

	info, err := os.Stat(src)
	if err != nil || !info.IsDir() {
		logger.Warn("source directory does not exist, nothing to copy", "source", src)
		return stats, nil
	}

	err = directoryCopy(ctx, logger, src, dst, recursive, &stats)
	return stats, err
}

func directoryCopy(ctx context.Context, logger *slog.Logger, src, dst string, recursive bool, stats *CopyStats) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dst, err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", src, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.Type().IsRegular() {
			continue
		}
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())

		srcInfo, err := e.Info()
		if err != nil {
			stats.Failed++
			logger.Warn("failed to stat source file", "path", srcPath, "error", err)
			continue
		}
		if !FileDiffers(srcInfo, dstPath, true) {
			stats.Unchanged++
			continue
		}
		if err := CopyFile(srcPath, dstPath, srcInfo.Mode(), srcInfo.ModTime()); err != nil {
			stats.Failed++
			logger.Warn("failed to copy file", "source", srcPath, "error", err)
			continue
		}
		stats.Copied++
	}

	if !recursive {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(src, e.Name())
		if err := directoryCopy(ctx, logger, sub, filepath.Join(dst, e.Name()), true, stats); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logger.Error("failed to copy subdirectory", "source", sub, "error", err)
		}
	}
	return nil
}

// DirectoryDelete removes dir and everything in it. A missing dir is fine.
func DirectoryDelete(dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete directory %s: %w", dir, err)
	}
	return nil
}

// FileDiffers reports whether the target is missing or, with checkDates,
// has a different modification time than the source
func FileDiffers(src fs.FileInfo, targetPath string, checkDates bool) bool {
	trg, err := os.Stat(targetPath)
	if err != nil {
		return true
	}
	if !checkDates {
		return false
	}
	return !trg.ModTime().Equal(src.ModTime())
}

// AnyFolderDifferenceQuick reports whether any file in src is missing from
// dst or, with checkDates, differs in modification time. It returns on the
// first difference. An unreadable src reports no difference.
func AnyFolderDifferenceQuick(src, dst string, recursive, checkDates bool) bool {
	entries, err := os.ReadDir(src)
	if err != nil {
		return false
	}

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if FileDiffers(info, filepath.Join(dst, e.Name()), checkDates) {
			return true
		}
	}

	if recursive {
		for _, e := range entries {
			if e.IsDir() && AnyFolderDifferenceQuick(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name()), true, checkDates) {
				return true
			}
		}
	}
	return false
}
