package probe

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout is how long a directory check may block before the
// directory is treated as unreachable
const DefaultTimeout = 20 * time.Second

// StatFunc returns file info for a path
type StatFunc func(path string) (fs.FileInfo, error)

// Prober checks directory reachability without hanging on dead network shares
type Prober struct {
	logger  *slog.Logger
	timeout time.Duration
	stat    StatFunc
}

// Option configures a Prober
type Option func(*Prober)

// WithStat replaces the stat function
func WithStat(fn StatFunc) Option {
	return func(p *Prober) {
		p.stat = fn
	}
}

// New creates a prober. A non-positive timeout uses DefaultTimeout.
func New(logger *slog.Logger, timeout time.Duration, opts ...Option) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Prober{logger: logger, timeout: timeout, stat: os.Stat}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsAccessible reports whether path is an existing directory. The stat runs
// on its own goroutine and the caller waits at most timeout; a stat that
// completes later is discarded.
func (p *Prober) IsAccessible(ctx context.Context, path string, timeout time.Duration) bool {
	if path == "" {
		return false
	}
	if timeout <= 0 {
		timeout = p.timeout
	}

	done := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- false
			}
		}()
		info, err := p.stat(path)
		done <- err == nil && info.IsDir()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ok := <-done:
		return ok
	case <-timer.C:
		p.logger.Debug("directory probe timed out", "path", path, "timeout", timeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// FirstAccessible probes every candidate concurrently and returns the first
// accessible one in the given order, along with the candidates ahead of it
// that were unreachable. It returns as soon as the winner and every
// candidate before it have resolved; probes still running are cancelled.
func (p *Prober) FirstAccessible(ctx context.Context, candidates []string) (string, []string, bool) {
	ctx, cancel := context.WithCancel(ctx)
	var g errgroup.Group
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	results := make([]chan bool, len(candidates))
	for i, c := range candidates {
		i, c := i, c
		results[i] = make(chan bool, 1)
		g.Go(func() error {
			results[i] <- p.IsAccessible(ctx, c, p.timeout)
			return nil
		})
	}

	var unreachable []string
	for i, c := range candidates {
		if <-results[i] {
			return c, unreachable, true
		}
		p.logger.Warn("central path not accessible", "path", c)
		unreachable = append(unreachable, c)
	}
	return "", unreachable, false
}
