// Package docstore persists small named JSON documents (the trust graph and
// the safe-zone set). Each Put replaces the whole document.
package docstore

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("docstore: document not found")

// Well-known document names.
const (
	DocTrust     = "trust"
	DocSafeZones = "safezones"
)

type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Close() error
}

// Memory is an in-process Store for tests and -store=memory runs.
type Memory struct {
	mu   sync.Mutex
	docs map[string][]byte
	// FailPuts makes every Put return an error; used to exercise the
	// "persistence failure is never fatal" path.
	FailPuts bool
}

func NewMemory() *Memory { return &Memory{docs: map[string][]byte{}} }

func (m *Memory) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.docs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts {
		return errors.New("docstore: memory store configured to fail")
	}
	m.docs[name] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Close() error { return nil }
