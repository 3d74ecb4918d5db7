package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 2, 9, 59, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "audit").WithClock(func() time.Time { return now })

	if _, err := w.Write([]byte(`{"n":1}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := w.Write([]byte("{\"n\":2}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := w.Write([]byte(`{"n":3}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := readLines(t, filepath.Join(dir, "audit-2026-05-02-09.jsonl.zst"))
	if len(first) != 2 || first[0] != `{"n":1}` || first[1] != `{"n":2}` {
		t.Fatalf("first hour = %q", first)
	}
	second := readLines(t, filepath.Join(dir, "audit-2026-05-02-10.jsonl.zst"))
	if len(second) != 1 || second[0] != `{"n":3}` {
		t.Fatalf("second hour = %q", second)
	}
}

func TestJSONLZstdWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC) }
	for i := 0; i < 2; i++ {
		w := NewJSONLZstdWriter(dir, "audit").WithClock(clock)
		if _, err := w.Write([]byte(`{}`)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	if got := readLines(t, filepath.Join(dir, "audit-2026-05-02-09.jsonl.zst")); len(got) != 2 {
		t.Fatalf("expected both records, got %q", got)
	}
}

func TestAuditLogger_ZapCore(t *testing.T) {
	dir := t.TempDir()
	al := NewAuditLogger(dir)
	logger := zap.New(al.Core(zap.InfoLevel))
	logger.Debug("not audited")
	logger.Info("combat started", zap.String("actor", "a"))
	if err := al.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := al.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "audit", "audit-*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one audit file, got %v (%v)", matches, err)
	}
	lines := readLines(t, matches[0])
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["msg"] != "combat started" || rec["actor"] != "a" || rec["level"] != "info" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
