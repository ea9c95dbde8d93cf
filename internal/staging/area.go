package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Area is the pair of directories a run stages files in.
type Area struct {
	RawDir string
	OutDir string
}

// New returns an Area rooted at the given directories.
func New(rawDir, outDir string) Area {
	return Area{RawDir: rawDir, OutDir: outDir}
}

// Ensure creates both directories.
func (a Area) Ensure() error {
	for _, dir := range []string{a.RawDir, a.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create staging directory %q: %w", dir, err)
		}
	}
	return nil
}

// RawPath returns the download path for id with extension ext.
func (a Area) RawPath(id, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	return filepath.Join(a.RawDir, id+"."+ext)
}

// OutPath returns the transform output path for id.
func (a Area) OutPath(id string) string {
	return filepath.Join(a.OutDir, id+"_final.mp4")
}

// RemoveItem deletes every staged file that belongs to id in both
// directories and returns the removed paths. A file belongs to id when its
// name is id followed by "." or "_". Missing files are not errors.
func (a Area) RemoveItem(id string) ([]string, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	var removed []string
	var firstErr error
	for _, dir := range []string{a.RawDir, a.OutDir} {
		if dir == "" {
			continue
		}
		var matches []string
		for _, sep := range []string{".", "_"} {
			found, err := filepath.Glob(filepath.Join(dir, globEscape(id)+sep+"*"))
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			matches = append(matches, found...)
		}
		for _, path := range matches {
			if err := os.RemoveAll(path); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("remove %s: %w", path, err)
				}
				continue
			}
			removed = append(removed, path)
		}
	}
	return removed, firstErr
}

// globEscape escapes glob metacharacters so ids match literally.
func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
