package docstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, DocTrust); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, DocTrust, []byte(`{"a":["b"]}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, DocTrust, []byte(`{"a":["c"]}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err := s.Get(ctx, DocTrust)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"a":["c"]}` {
		t.Fatalf("unexpected document: %s", got)
	}
	if _, err := s.Get(ctx, DocSafeZones); !errors.Is(err, ErrNotFound) {
		t.Fatalf("documents should be independent, got %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())

	m := NewMemory()
	m.FailPuts = true
	if err := m.Put(context.Background(), DocTrust, nil); err == nil {
		t.Fatalf("expected configured failure")
	}
}

func TestFile(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "docs"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	exerciseStore(t, f)
	if _, err := NewFile(" "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	exerciseStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		raw     string
		updated string
	)
	row := db.QueryRow(`SELECT json, updated_at FROM documents WHERE name = ?`, DocTrust)
	if err := row.Scan(&raw, &updated); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if raw != `{"a":["c"]}` || updated == "" {
		t.Fatalf("row mismatch: json=%q updated_at=%q", raw, updated)
	}
}

func TestRedisPrefix(t *testing.T) {
	cases := map[string]string{
		"":          "truce:doc:",
		"prod":      "prod:doc:",
		"prod:":     "prod:doc:",
		"  staging": "staging:doc:",
	}
	for in, want := range cases {
		if got := redisPrefix(in); got != want {
			t.Fatalf("redisPrefix(%q)=%q want %q", in, got, want)
		}
	}
}
