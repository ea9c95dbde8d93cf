package progress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"ferry/internal/logging"
)

const lockRetryDelay = 50 * time.Millisecond

// maxLedgerLine bounds a single ledger entry; longer lines are skipped.
const maxLedgerLine = 64 * 1024

// LedgerStore keeps one id per line in a flat file. The file is opened
// per operation and never held across a run; appends are serialized by a
// sidecar flock so external tooling can inspect or append safely.
type LedgerStore struct {
	path   string
	logger *slog.Logger
}

// NewLedgerStore returns a store backed by path.
func NewLedgerStore(path string) *LedgerStore {
	return &LedgerStore{path: path}
}

// WithLogger sets the logger used to report skipped lines.
func (s *LedgerStore) WithLogger(logger *slog.Logger) *LedgerStore {
	s.logger = logging.NewComponentLogger(logger, "progress")
	return s
}

// Path returns the ledger file location.
func (s *LedgerStore) Path() string { return s.path }

func (s *LedgerStore) Close() error { return nil }

// Load reads the ledger as a set. A missing file is an empty set. Blank
// lines and lines starting with '#' are ignored.
func (s *LedgerStore) Load(ctx context.Context) (Set, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	set := make(Set, len(records))
	for _, r := range records {
		set.Add(r.ItemID)
	}
	return set, nil
}

// List returns ledger entries in file order, duplicates included. Lines
// longer than maxLedgerLine are skipped with a warning.
func (s *LedgerStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var records []Record
	reader := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		raw, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		line := strings.TrimSpace(raw)
		switch {
		case len(line) > maxLedgerLine:
			logging.WarnWithContext(s.logger, "skipping oversized ledger line", "ledger_line_skipped",
				logging.String("path", s.path),
				logging.Int("line", lineNo),
				logging.Int("bytes", len(line)),
				logging.String(logging.FieldErrorHint, "remove the line from the ledger file"),
			)
		case line == "" || strings.HasPrefix(line, "#"):
		default:
			records = append(records, Record{ItemID: line, Source: SourceLocalLedger})
		}
		if err != nil {
			return records, nil
		}
	}
}

// Commit appends id and fsyncs before returning.
func (s *LedgerStore) Commit(ctx context.Context, id string) error {
	return s.CommitMany(ctx, []string{id}, SourceLocalLedger)
}

// CommitMany appends ids in one locked write. The ledger does not record
// the source.
func (s *LedgerStore) CommitMany(ctx context.Context, ids []string, _ Source) error {
	var b strings.Builder
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if strings.ContainsAny(id, "\r\n") {
			return fmt.Errorf("invalid item id %q", id)
		}
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	if !locked {
		return errors.New("lock ledger: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	payload := b.String()
	if needsNewline(f) {
		payload = "\n" + payload
	}
	if _, err := f.WriteString(payload); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

// needsNewline reports whether the file ends in a torn line that the next
// append must not extend.
func needsNewline(f *os.File) bool {
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return false
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return last[0] != '\n'
}
