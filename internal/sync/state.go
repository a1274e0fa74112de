package sync

import (
	"fmt"
	"time"

	"github.com/schaermu/cadsync/internal/index"
	"github.com/schaermu/cadsync/internal/reconcile"
)

// State is the engine's current activity
type State int32

const (
	Idle State = iota
	Comparing
	Updating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Comparing:
		return "comparing"
	case Updating:
		return "updating"
	default:
		return fmt.Sprintf("unknown_state(%d)", int32(s))
	}
}

// CompareStatus is the outcome of a compare pass
type CompareStatus int

const (
	Succeeded CompareStatus = iota
	NotFound
	Failed
	Busy
	Disabled
)

func (s CompareStatus) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	case Busy:
		return "busy"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("unknown_status(%d)", int(s))
	}
}

// CompareResult describes a finished compare pass
type CompareResult struct {
	RunID   string
	Status  CompareStatus
	Message string
	// Root is the standards root the pass read from
	Root string
	// Fallback is set when no central location was reachable and the local
	// common root was used instead
	Fallback bool
	Stats    reconcile.Stats
	Err      error
}

// CopyResult is the outcome of copying one file
type CopyResult int

const (
	Ok CopyResult = iota
	Skipped
)

func (r CopyResult) String() string {
	if r == Ok {
		return "ok"
	}
	return "skipped"
}

// CopyOutcome records what happened to one work-list entry
type CopyOutcome struct {
	Record *index.FileRecord
	Result CopyResult
	Reason error
}

// Report summarizes a copy pass
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Outcomes []CopyOutcome
	Canceled bool
}

// Copied returns the number of files copied
func (r *Report) Copied() int {
	return r.count(Ok)
}

// Skipped returns the number of files that were not copied
func (r *Report) Skipped() int {
	return r.count(Skipped)
}

func (r *Report) count(result CopyResult) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Result == result {
			n++
		}
	}
	return n
}

// Job is a copy pass running in the background
type Job struct {
	RunID  string
	done   chan struct{}
	report *Report
}

// Done is closed when the pass has finished
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the pass has finished and returns its report
func (j *Job) Wait() *Report {
	<-j.done
	return j.report
}
