package compare

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Status is the classification of a source/target file pair
type Status int

const (
	Matches Status = iota
	Outdated
	Newer
	DoesNotExist
)

// String returns the name of the status
func (s Status) String() string {
	switch s {
	case Matches:
		return "Matches"
	case Outdated:
		return "Outdated"
	case Newer:
		return "Newer"
	case DoesNotExist:
		return "DoesNotExist"
	default:
		return fmt.Sprintf("unknown_status(%d)", int(s))
	}
}

// ParseStatus parses the name produced by String, ignoring case
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{Matches, Outdated, Newer, DoesNotExist} {
		if strings.EqualFold(st.String(), s) {
			return st, nil
		}
	}
	return 0, fmt.Errorf("invalid status: %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// NeedsUpdate reports whether the copy pass acts on this status
func (s Status) NeedsUpdate() bool {
	return s == Outdated || s == DoesNotExist
}

// Mode selects how modification times are compared
type Mode string

const (
	// ModeExact requires identical modification times
	ModeExact Mode = "exact"
	// ModeWindow truncates both times to Options.Window first
	ModeWindow Mode = "window"
	// ModeContent treats equal-sized files with equal hashes as matching
	ModeContent Mode = "content"
)

// ParseMode validates a mode name. An empty name is ModeExact.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeExact:
		return ModeExact, nil
	case ModeWindow:
		return ModeWindow, nil
	case ModeContent:
		return ModeContent, nil
	default:
		return "", fmt.Errorf("invalid compare mode: %q (must be exact, window or content)", s)
	}
}

// Options configures a Comparator
type Options struct {
	Mode   Mode
	Window time.Duration
}

// Comparator classifies file pairs by modification time
type Comparator struct {
	opts Options
}

// New creates a comparator
func New(opts Options) *Comparator {
	if opts.Mode == "" {
		opts.Mode = ModeExact
	}
	return &Comparator{opts: opts}
}

// Classify compares sourcePath against targetPath. ok is false when the
// source cannot be read, in which case the pair should be skipped.
func (c *Comparator) Classify(sourcePath, targetPath string) (Status, bool) {
	info, err := os.Stat(sourcePath)
	if err != nil || info.IsDir() {
		return 0, false
	}
	return c.ClassifyInfo(sourcePath, info, targetPath), true
}

// ClassifyInfo classifies using source metadata the caller already holds
func (c *Comparator) ClassifyInfo(sourcePath string, src fs.FileInfo, targetPath string) Status {
	trg, err := os.Stat(targetPath)
	if err != nil || trg.IsDir() {
		return DoesNotExist
	}

	srcTime, trgTime := src.ModTime(), trg.ModTime()
	if c.opts.Mode == ModeWindow && c.opts.Window > 0 {
		srcTime = srcTime.Truncate(c.opts.Window)
		trgTime = trgTime.Truncate(c.opts.Window)
	}

	status := byTime(srcTime, trgTime)
	if status != Matches && c.opts.Mode == ModeContent && src.Size() == trg.Size() {
		if sameContent(sourcePath, targetPath) {
			return Matches
		}
	}
	return status
}

func byTime(src, trg time.Time) Status {
	switch {
	case trg.Equal(src):
		return Matches
	case trg.Before(src):
		return Outdated
	default:
		return Newer
	}
}

func sameContent(a, b string) bool {
	ha, err := hashFile(a)
	if err != nil {
		return false
	}
	hb, err := hashFile(b)
	if err != nil {
		return false
	}
	return ha == hb
}

func hashFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
