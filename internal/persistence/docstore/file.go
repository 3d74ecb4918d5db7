package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File keeps each document as <dir>/<name>.json, replaced atomically on Put.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("empty document dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &File{dir: dir}, nil
}

func (f *File) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

func (f *File) Get(_ context.Context, name string) ([]byte, error) {
	b, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (f *File) Put(_ context.Context, name string, data []byte) error {
	return writeFileAtomic(f.path(name), data)
}

func (f *File) Close() error { return nil }

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
