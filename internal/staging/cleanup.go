package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ferry/internal/logging"
)

// SweepResult contains the outcome of a stale file sweep.
type SweepResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Sweep removes staged entries older than maxAge from both directories.
// A maxAge of zero removes everything.
func (a Area) Sweep(ctx context.Context, maxAge time.Duration, logger *slog.Logger) SweepResult {
	result := SweepResult{}
	cutoff := time.Now().Add(-maxAge)
	for _, dir := range []string{a.RawDir, a.OutDir} {
		if ctx.Err() != nil {
			break
		}
		sweepDir(dir, maxAge, cutoff, logger, &result)
	}
	return result
}

func sweepDir(dir string, maxAge time.Duration, cutoff time.Time, logger *slog.Logger, result *SweepResult) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if maxAge > 0 && !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale staging file", "staging_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Info("removed stale staging file",
				logging.String("path", path),
				logging.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}
}

// Entry describes one staged file.
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// List returns the staged entries in both directories.
func (a Area) List() ([]Entry, error) {
	var out []Entry
	for _, dir := range []string{a.RawDir, a.OutDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			size := info.Size()
			if info.IsDir() {
				size, _ = dirSize(path)
			}
			out = append(out, Entry{Name: entry.Name(), Path: path, ModTime: info.ModTime(), Size: size})
		}
	}
	return out, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
