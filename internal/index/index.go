package index

import (
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/schaermu/cadsync/internal/compare"
)

// Category groups records for progress reporting
type Category int

const (
	Package Category = iota
	Setting
	Support
)

// String returns the name of the category
func (c Category) String() string {
	switch c {
	case Package:
		return "Package"
	case Setting:
		return "Setting"
	case Support:
		return "Support"
	default:
		return fmt.Sprintf("unknown_category(%d)", int(c))
	}
}

// ParseCategory parses the name produced by String, ignoring case
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if strings.EqualFold(c.String(), s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid file category: %q", s)
}

// Categories returns every category in display order
func Categories() []Category {
	return []Category{Package, Setting, Support}
}

// FileRecord is one classified source/target pair from a pass
type FileRecord struct {
	SourcePath    string
	TargetPath    string
	Category      Category
	Status        compare.Status
	SourceModTime time.Time
	Size          int64
	// Layer is the overlay position of the mapping that produced the record
	Layer int
}

// Index is the ordered set of records for one pass. Safe for concurrent use.
type Index struct {
	mu       gosync.RWMutex
	records  []*FileRecord
	byTarget map[string]int
	shadowed int
}

// New creates an empty index
func New() *Index {
	return &Index{byTarget: make(map[string]int)}
}

// Add appends a record. A record whose target is already indexed replaces
// the earlier one in place, so the later overlay layer wins.
func (x *Index) Add(r *FileRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if i, ok := x.byTarget[r.TargetPath]; ok {
		x.records[i] = r
		x.shadowed++
		return
	}
	x.byTarget[r.TargetPath] = len(x.records)
	x.records = append(x.records, r)
}

// Records returns a snapshot of every record in insertion order
func (x *Index) Records() []*FileRecord {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*FileRecord, len(x.records))
	copy(out, x.records)
	return out
}

// FilesToUpdate returns the work-list: records that are Outdated or
// DoesNotExist, optionally restricted to one category
func (x *Index) FilesToUpdate(cat *Category) []*FileRecord {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []*FileRecord
	for _, r := range x.records {
		if cat != nil && r.Category != *cat {
			continue
		}
		if r.Status.NeedsUpdate() {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of records, optionally for one category
func (x *Index) Count(cat *Category) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if cat == nil {
		return len(x.records)
	}
	n := 0
	for _, r := range x.records {
		if r.Category == *cat {
			n++
		}
	}
	return n
}

// PendingCount returns the size of the work-list, optionally for one category
func (x *Index) PendingCount(cat *Category) int {
	return len(x.FilesToUpdate(cat))
}

// FileCount formats "pending / total" for a category
func (x *Index) FileCount(cat Category) string {
	return fmt.Sprintf("%d / %d", x.PendingCount(&cat), x.Count(&cat))
}

// Ratio is the fraction of a category's records that are up to date.
// An empty category is fully up to date.
func (x *Index) Ratio(cat Category) float64 {
	total := x.Count(&cat)
	if total == 0 {
		return 1
	}
	return float64(total-x.PendingCount(&cat)) / float64(total)
}

// Shadowed returns how many records were replaced by a later overlay layer
func (x *Index) Shadowed() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.shadowed
}

// Reset drops every record
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.records = nil
	x.byTarget = make(map[string]int)
	x.shadowed = 0
}

// MarkMatches records a successful copy without re-reading the disk
func (x *Index) MarkMatches(r *FileRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()
	r.Status = compare.Matches
}

// Status reads a record's status under the index lock
func (x *Index) Status(r *FileRecord) compare.Status {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return r.Status
}
