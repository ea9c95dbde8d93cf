package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mp4Header is enough of an ISO-BMFF box for tools that sniff the file type.
var mp4Header = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}

// WriteMedia writes a placeholder media file of exactly size bytes.
// A size below the header length writes the header alone.
func WriteMedia(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := append([]byte(nil), mp4Header...)
	if pad := size - int64(len(data)); pad > 0 {
		data = append(data, bytes.Repeat([]byte{0x42}, int(pad))...)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Age backdates path's modification time by d.
func Age(t testing.TB, path string, d time.Duration) {
	t.Helper()

	ts := time.Now().Add(-d)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}
