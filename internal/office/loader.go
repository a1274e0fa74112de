package office

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Origin records which source produced a loaded office list
type Origin string

const (
	OriginAPI       Origin = "api"
	OriginUser      Origin = "user"
	OriginInstalled Origin = "installed"
)

// ErrNoOffices is returned when no source yields a usable office list
var ErrNoOffices = errors.New("no office data could be loaded")

// Loader resolves the office list from the API, then the user's cached
// copy, then the copy shipped with the installation.
type Loader struct {
	API           Source
	UserFile      string
	InstalledFile string
	Logger        *slog.Logger
}

// Load returns the sorted office list and where it came from
func (l *Loader) Load(ctx context.Context) (List, Origin, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if l.API != nil {
		data, err := l.API.Fetch(ctx)
		if err == nil {
			list, perr := Parse(data, logger)
			if perr == nil && len(list) > 0 {
				if l.UserFile != "" {
					if werr := writeFile(l.UserFile, data); werr != nil {
						logger.Warn("failed to save office list copy", "path", l.UserFile, "error", werr)
					}
				}
				logger.Info("offices loaded from api", "count", len(list))
				list.Sort()
				return list, OriginAPI, nil
			}
			err = perr
			if err == nil {
				err = ErrNoOffices
			}
		}
		logger.Warn("office api unavailable, falling back to local data file", "error", err)
	}

	if l.InstalledFile != "" && l.UserFile != "" {
		if err := refreshCopy(l.InstalledFile, l.UserFile, true); err != nil {
			logger.Debug("failed to refresh user office file", "error", err)
		}
	}

	if list, err := loadFile(l.UserFile, logger); err == nil {
		logger.Info("offices loaded from user data", "path", l.UserFile, "count", len(list))
		list.Sort()
		return list, OriginUser, nil
	} else if l.UserFile != "" {
		logger.Warn("user office file unusable", "path", l.UserFile, "error", err)
	}

	list, err := loadFile(l.InstalledFile, logger)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNoOffices, err)
	}
	if l.UserFile != "" {
		// the user copy failed to load, replace it unconditionally
		if err := refreshCopy(l.InstalledFile, l.UserFile, false); err != nil {
			logger.Warn("failed to restore user office file", "path", l.UserFile, "error", err)
		}
	}
	logger.Info("offices loaded from installed data", "path", l.InstalledFile, "count", len(list))
	list.Sort()
	return list, OriginInstalled, nil
}

func loadFile(path string, logger *slog.Logger) (List, error) {
	if path == "" {
		return nil, errors.New("path not configured")
	}
	data, err := FileSource{Path: path}.Fetch(context.Background())
	if err != nil {
		return nil, err
	}
	list, err := Parse(data, logger)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoOffices
	}
	return list, nil
}

// refreshCopy copies src over dst. With checkNewer the copy is skipped when
// dst is newer than src.
func refreshCopy(src, dst string, checkNewer bool) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if dstInfo, err := os.Stat(dst); err == nil {
		if checkNewer && srcInfo.ModTime().Before(dstInfo.ModTime()) {
			return nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return writeFile(dst, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
