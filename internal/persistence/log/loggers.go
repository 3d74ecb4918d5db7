package log

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// JSONLZstdWriter appends newline-delimited records to hourly zstd files
// named <prefix>-YYYY-MM-DD-HH.jsonl.zst. It implements zapcore.WriteSyncer,
// so a zap JSON core can write to it directly.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// WithClock replaces the clock used to pick the hourly file.
func (w *JSONLZstdWriter) WithClock(now func() time.Time) *JSONLZstdWriter {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
	return w
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends p, which must hold whole records. A trailing newline is
// added when missing.
func (w *JSONLZstdWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return 0, err
		}
	}
	if _, err := w.w.Write(p); err != nil {
		return 0, err
	}
	if len(p) == 0 || p[len(p)-1] != '\n' {
		if err := w.w.WriteByte('\n'); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Sync pushes buffered records into the compressor and flushes the current
// zstd block to disk.
func (w *JSONLZstdWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	if err := w.enc.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AuditLogger keeps a compressed copy of state-changing log lines (combat,
// trust, zones, punishments) under <dataDir>/audit.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit")}
}

// Core returns a JSON zap core writing entries at or above level. Tee it
// with the console core so every audited line also reaches stderr.
func (l *AuditLogger) Core(level zapcore.LevelEnabler) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(cfg), l.w, level)
}

func (l *AuditLogger) Writer() *JSONLZstdWriter { return l.w }
func (l *AuditLogger) Sync() error              { return l.w.Sync() }
func (l *AuditLogger) Close() error             { return l.w.Close() }
