package reconcile

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/schaermu/cadsync/internal/compare"
	"github.com/schaermu/cadsync/internal/eventlog"
	"github.com/schaermu/cadsync/internal/index"
)

// ListError reports a directory that could not be listed
type ListError struct {
	Dir string
	Err error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("failed to list directory %s: %v", e.Dir, e.Err)
}

func (e *ListError) Unwrap() error {
	return e.Err
}

// Stats accumulates walk counters across Reconcile calls
type Stats struct {
	Files      int
	Dirs       int
	FailedDirs int
	Excluded   int
}

// Reconciler walks a source tree against a target tree and records a
// classification for every source file
type Reconciler struct {
	logger   *slog.Logger
	events   eventlog.Sink
	cmp      *compare.Comparator
	excludes []string

	mu    gosync.Mutex
	stats Stats
}

// New creates a reconciler. Exclude patterns use doublestar syntax and are
// matched against slash-separated paths relative to the reconciled root.
func New(logger *slog.Logger, events eventlog.Sink, cmp *compare.Comparator, excludes []string) (*Reconciler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = eventlog.Discard
	}
	if cmp == nil {
		cmp = compare.New(compare.Options{})
	}
	for _, p := range excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern: %q", p)
		}
	}
	return &Reconciler{logger: logger, events: events, cmp: cmp, excludes: excludes}, nil
}

// Stats returns the counters accumulated since the last ResetStats
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ResetStats zeroes the counters
func (r *Reconciler) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = Stats{}
}

// Reconcile classifies every file under sourceDir against the like-named
// path under targetDir and adds the records to idx. targetDir is created if
// missing. Failure to list sourceDir itself returns a *ListError; failures
// deeper in the tree are logged and the walk continues.
func (r *Reconciler) Reconcile(sourceDir, targetDir string, category index.Category, layer int, idx *index.Index) error {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		r.count(func(s *Stats) { s.FailedDirs++ })
		return &ListError{Dir: sourceDir, Err: err}
	}
	r.walk(sourceDir, sourceDir, targetDir, entries, category, layer, idx)
	return nil
}

func (r *Reconciler) walk(root, sourceDir, targetDir string, entries []fs.DirEntry, category index.Category, layer int, idx *index.Index) {
	r.count(func(s *Stats) { s.Dirs++ })

	var subdirs []fs.DirEntry
	for _, e := range entries {
		name := e.Name()
		srcPath := filepath.Join(sourceDir, name)
		if r.excluded(root, srcPath) {
			r.count(func(s *Stats) { s.Excluded++ })
			continue
		}

		switch {
		case e.IsDir():
			subdirs = append(subdirs, e)
		case e.Type()&fs.ModeSymlink != 0:
			r.logger.Debug("skipping symlink", "path", srcPath)
		case e.Type().IsRegular():
			r.classify(srcPath, filepath.Join(targetDir, name), e, category, layer, idx)
		}
	}

	for _, d := range subdirs {
		srcSub := filepath.Join(sourceDir, d.Name())
		trgSub := filepath.Join(targetDir, d.Name())

		if err := os.MkdirAll(trgSub, 0755); err != nil {
			r.fail(srcSub, fmt.Errorf("failed to create target directory: %w", err))
			continue
		}
		subEntries, err := os.ReadDir(srcSub)
		if err != nil {
			r.fail(srcSub, err)
			continue
		}
		r.walk(root, srcSub, trgSub, subEntries, category, layer, idx)
	}
}

func (r *Reconciler) classify(srcPath, trgPath string, e fs.DirEntry, category index.Category, layer int, idx *index.Index) {
	info, err := e.Info()
	if err != nil {
		r.logger.Warn("skipping unreadable source file", "path", srcPath, "error", err)
		return
	}

	status := r.cmp.ClassifyInfo(srcPath, info, trgPath)
	idx.Add(&index.FileRecord{
		SourcePath:    srcPath,
		TargetPath:    trgPath,
		Category:      category,
		Status:        status,
		SourceModTime: info.ModTime(),
		Size:          info.Size(),
		Layer:         layer,
	})
	r.count(func(s *Stats) { s.Files++ })
}

func (r *Reconciler) fail(dir string, err error) {
	r.count(func(s *Stats) { s.FailedDirs++ })
	r.logger.Warn("skipping subtree", "path", dir, "error", err)
	r.events.Log(fmt.Sprintf("Unable to read directory %s: %v", dir, err), eventlog.Warning)
}

func (r *Reconciler) excluded(root, path string) bool {
	if len(r.excludes) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range r.excludes {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (r *Reconciler) count(fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}
