package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/schaermu/cadsync/internal/catalog"
	"github.com/schaermu/cadsync/internal/compare"
	"github.com/schaermu/cadsync/internal/eventlog"
	"github.com/schaermu/cadsync/internal/fsutil"
	"github.com/schaermu/cadsync/internal/index"
	"github.com/schaermu/cadsync/internal/office"
	"github.com/schaermu/cadsync/internal/probe"
	"github.com/schaermu/cadsync/internal/reconcile"
)

const (
	// BusyMessage is reported when a pass is requested while another runs
	BusyMessage = "File update process is already running."

	msgNotFound  = "Update standards folder not found!"
	msgFailed    = "Error updating from: %s"
	msgSucceeded = "Successfully updated from: %s"
	msgDisabled  = "File synchronisation is disabled."
)

// ErrBusy is returned when a pass is already running on the engine
var ErrBusy = errors.New("sync pass already running")

// Roots are the three directory trees the engine works with
type Roots struct {
	// Central lists candidate network roots in preference order
	Central []string
	// LocalCommon is the machine-wide snapshot used when offline
	LocalCommon string
	// LocalUser is the per-user tree the application reads from
	LocalUser string
}

// SyncContext holds everything a pass needs to know about where to sync from
// and to
type SyncContext struct {
	Office                 office.Office
	Roots                  Roots
	DirectoryAccessTimeout time.Duration
	Compare                compare.Options
	Exclude                []string
	// Enabled gates syncing from the central root
	Enabled bool
}

// CopyFunc copies one file, preserving mode and modification time
type CopyFunc func(src, dst string, mode fs.FileMode, modTime time.Time) error

// Engine reconciles the standards trees and copies what is out of date
type Engine struct {
	sc     SyncContext
	logger *slog.Logger
	events eventlog.Sink
	prober *probe.Prober
	rec    *reconcile.Reconciler
	copy   CopyFunc

	guard *semaphore.Weighted
	state atomic.Int32
	idx   *index.Index
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEvents sets the operator event sink
func WithEvents(sink eventlog.Sink) Option {
	return func(e *Engine) {
		e.events = sink
	}
}

// WithProber replaces the directory prober
func WithProber(p *probe.Prober) Option {
	return func(e *Engine) {
		e.prober = p
	}
}

// WithCopyFunc replaces the file copy used by update passes
func WithCopyFunc(fn CopyFunc) Option {
	return func(e *Engine) {
		e.copy = fn
	}
}

// NewEngine creates a new sync engine
func NewEngine(sc SyncContext, opts ...Option) (*Engine, error) {
	e := &Engine{
		sc:     sc,
		events: eventlog.Discard,
		copy:   fsutil.CopyFile,
		guard:  semaphore.NewWeighted(1),
		idx:    index.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.prober == nil {
		e.prober = probe.New(e.logger, sc.DirectoryAccessTimeout)
	}

	rec, err := reconcile.New(e.logger, e.events, compare.New(sc.Compare), sc.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}
	e.rec = rec
	return e, nil
}

// State returns what the engine is currently doing
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Index returns the index of the most recent compare pass
func (e *Engine) Index() *index.Index {
	return e.idx
}

// FilesToUpdate returns the current work-list, optionally for one category
func (e *Engine) FilesToUpdate(cat *index.Category) []*index.FileRecord {
	return e.idx.FilesToUpdate(cat)
}

// FileCount formats "pending / total" for a category
func (e *Engine) FileCount(cat index.Category) string {
	return e.idx.FileCount(cat)
}

// Ratio returns the fraction of a category that is up to date
func (e *Engine) Ratio(cat index.Category) float64 {
	return e.idx.Ratio(cat)
}

// UpdatesAvailable reports whether the work-list is non-empty
func (e *Engine) UpdatesAvailable() bool {
	return e.idx.PendingCount(nil) > 0
}

// CompareAll replaces the index with a fresh classification of the standards
// trees. With preferLocal the local common root is used instead of the
// central locations.
func (e *Engine) CompareAll(ctx context.Context, preferLocal bool) CompareResult {
	if !e.guard.TryAcquire(1) {
		e.rejectBusy()
		return CompareResult{Status: Busy, Message: BusyMessage, Err: ErrBusy}
	}
	defer e.guard.Release(1)

	e.state.Store(int32(Comparing))
	defer e.state.Store(int32(Idle))

	runID := uuid.NewString()
	logger := e.logger.With("run_id", runID)

	if !preferLocal && !e.sc.Enabled {
		logger.Info("sync from central location disabled")
		return CompareResult{RunID: runID, Status: Disabled, Message: msgDisabled}
	}

	e.idx.Reset()
	e.rec.ResetStats()

	if err := ctx.Err(); err != nil {
		source := strings.Join(e.sc.Roots.Central, ";")
		if preferLocal {
			source = e.sc.Roots.LocalCommon
		}
		logger.Warn("compare cancelled before start", "error", err)
		return CompareResult{RunID: runID, Status: Failed, Message: fmt.Sprintf(msgFailed, source), Err: err}
	}

	root, fallback := e.resolveRoot(ctx, logger, preferLocal)
	result := CompareResult{RunID: runID, Root: root, Fallback: fallback}

	// a central root has just been probed; only local roots need checking
	local := preferLocal || fallback
	if root == "" || (local && !e.prober.IsAccessible(ctx, root, e.sc.DirectoryAccessTimeout)) {
		logger.Error("standards root not found", "root", root)
		e.events.Log(fmt.Sprintf("Error updating files - source not found: %s", root), eventlog.Error)
		result.Status = NotFound
		result.Message = msgNotFound
		return result
	}

	logger.Info("starting compare", "root", root, "office", e.sc.Office.ID, "fallback", fallback)
	e.events.Log(fmt.Sprintf("Comparing standards from: %s", root), eventlog.Info)

	err := e.compareTrees(ctx, logger, root, local)
	result.Stats = e.rec.Stats()
	if err != nil {
		logger.Error("compare failed", "root", root, "error", err)
		e.events.Log(fmt.Sprintf("Undefined error updating files: %s: %v", root, err), eventlog.Error)
		result.Status = Failed
		result.Message = fmt.Sprintf(msgFailed, root)
		result.Err = err
		return result
	}

	logger.Info("compare completed",
		"files", result.Stats.Files,
		"pending", e.idx.PendingCount(nil),
		"failed_dirs", result.Stats.FailedDirs,
		"shadowed", e.idx.Shadowed())
	e.events.Log(fmt.Sprintf(msgSucceeded, root), eventlog.Info)
	result.Status = Succeeded
	result.Message = fmt.Sprintf(msgSucceeded, root)
	return result
}

// resolveRoot picks the standards root. The bool is true when the central
// locations were all unreachable and the local common root was substituted.
func (e *Engine) resolveRoot(ctx context.Context, logger *slog.Logger, preferLocal bool) (string, bool) {
	if preferLocal {
		return e.sc.Roots.LocalCommon, false
	}

	root, unreachable, ok := e.prober.FirstAccessible(ctx, e.sc.Roots.Central)
	for _, c := range unreachable {
		e.events.Log(fmt.Sprintf("Central location not accessible: %s", c), eventlog.Warning)
	}
	if ok {
		return root, false
	}

	logger.Warn("no central location accessible, falling back to local common root",
		"candidates", e.sc.Roots.Central,
		"local_common", e.sc.Roots.LocalCommon)
	e.events.Log(fmt.Sprintf("Central standards not accessible, falling back to: %s", e.sc.Roots.LocalCommon), eventlog.Warning)
	return e.sc.Roots.LocalCommon, true
}

// compareTrees is the single failure boundary of a compare pass
func (e *Engine) compareTrees(ctx context.Context, logger *slog.Logger, root string, local bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during compare: %v", r)
		}
	}()

	user := e.sc.Roots.LocalUser

	if err := e.reconcileTree(logger, filepath.Join(root, "Settings"), filepath.Join(user, "Settings"), index.Setting, 0, e.idx); err != nil {
		return err
	}

	// the local snapshot keeps its standards under Cache
	src := root
	if local {
		src = filepath.Join(root, "Cache")
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.reconcileTree(logger, filepath.Join(src, "Packages"), filepath.Join(user, "Cache", "Packages"), index.Package, 0, e.idx); err != nil {
		return err
	}

	mappings, err := catalog.Subpaths(catalog.Standards(), e.sc.Office)
	if err != nil {
		return fmt.Errorf("failed to resolve standards paths: %w", err)
	}
	for i, m := range mappings {
		if m.Category == catalog.Packages {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.reconcileTree(logger, filepath.Join(src, m.Source), filepath.Join(user, "Cache", m.Source), index.Support, i, e.idx); err != nil {
			return err
		}
	}
	return nil
}

// reconcileTree runs one mapping. A source root that cannot be listed only
// drops that mapping from the pass.
func (e *Engine) reconcileTree(logger *slog.Logger, src, trg string, cat index.Category, layer int, idx *index.Index) error {
	err := e.rec.Reconcile(src, trg, cat, layer, idx)
	if err == nil {
		return nil
	}

	var listErr *reconcile.ListError
	if !errors.As(err, &listErr) {
		return err
	}
	if errors.Is(listErr.Err, fs.ErrNotExist) {
		logger.Debug("source directory missing, skipping", "source", src)
		return nil
	}
	logger.Warn("source directory unreadable, skipping", "source", src, "error", listErr.Err)
	e.events.Log(fmt.Sprintf("Unable to read directory %s: %v", src, listErr.Err), eventlog.Warning)
	return nil
}

// Update copies every file on the current work-list. It returns ErrBusy
// without doing anything if another pass is running.
func (e *Engine) Update(ctx context.Context) (*Report, error) {
	if !e.guard.TryAcquire(1) {
		e.rejectBusy()
		return nil, ErrBusy
	}
	defer e.guard.Release(1)

	return e.runUpdate(ctx, e.idx, uuid.NewString()), nil
}

// BackgroundUpdate starts Update on its own goroutine. Busy is reported
// synchronously.
func (e *Engine) BackgroundUpdate(ctx context.Context) (*Job, error) {
	if !e.guard.TryAcquire(1) {
		e.rejectBusy()
		return nil, ErrBusy
	}

	job := &Job{RunID: uuid.NewString(), done: make(chan struct{})}
	go func() {
		defer close(job.done)
		defer e.guard.Release(1)
		job.report = e.runUpdate(ctx, e.idx, job.RunID)
	}()
	return job, nil
}

func (e *Engine) rejectBusy() {
	e.logger.Warn("sync pass rejected, another pass is running", "state", e.State().String())
	e.events.Log(BusyMessage, eventlog.Warning)
}

// runUpdate copies the work-list of idx. The caller must hold the guard.
func (e *Engine) runUpdate(ctx context.Context, idx *index.Index, runID string) *Report {
	e.state.Store(int32(Updating))
	defer e.state.Store(int32(Idle))

	logger := e.logger.With("run_id", runID)
	work := idx.FilesToUpdate(nil)
	report := &Report{RunID: runID, Started: time.Now(), Outcomes: make([]CopyOutcome, 0, len(work))}

	logger.Info("starting update", "files", len(work))
	e.events.Log(fmt.Sprintf("Updating %d files", len(work)), eventlog.Info)

	for _, r := range work {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			report.Outcomes = append(report.Outcomes, CopyOutcome{Record: r, Result: Skipped, Reason: err})
			continue
		}

		if err := e.copyRecord(r); err != nil {
			logger.Warn("copy skipped", "source", r.SourcePath, "target", r.TargetPath, "error", err)
			e.events.Log(fmt.Sprintf("Failed to copy %s: %v", r.SourcePath, err), eventlog.Warning)
			report.Outcomes = append(report.Outcomes, CopyOutcome{Record: r, Result: Skipped, Reason: err})
			continue
		}

		idx.MarkMatches(r)
		logger.Debug("file copied", "target", r.TargetPath)
		report.Outcomes = append(report.Outcomes, CopyOutcome{Record: r, Result: Ok})
	}

	report.Finished = time.Now()
	logger.Info("update completed",
		"copied", report.Copied(),
		"skipped", report.Skipped(),
		"canceled", report.Canceled,
		"duration", report.Finished.Sub(report.Started))
	if report.Skipped() > 0 {
		e.events.Log(fmt.Sprintf("Update finished with %d skipped files", report.Skipped()), eventlog.Warning)
	} else {
		e.events.Log(fmt.Sprintf("Updated %d files", report.Copied()), eventlog.Info)
	}
	return report
}

func (e *Engine) copyRecord(r *index.FileRecord) error {
	info, err := os.Stat(r.SourcePath)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.TargetPath), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}
	return e.copy(r.SourcePath, r.TargetPath, info.Mode(), info.ModTime())
}
