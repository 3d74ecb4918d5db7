package docstore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Saver accepts whole-document replacements. Implementations never return
// errors to the caller; failures are logged and the next Save retries with
// fresher content.
type Saver interface {
	Save(name string, data []byte)
}

// Direct writes synchronously. Useful in tests and tools.
type Direct struct {
	Store Store
	Log   *zap.Logger
}

func (d Direct) Save(name string, data []byte) {
	if d.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Store.Put(ctx, name, data); err != nil && d.Log != nil {
		d.Log.Error("persist document failed", zap.String("doc", name), zap.Error(err))
	}
}

// Writer persists documents from a background goroutine so the simulation
// loop never waits on storage. Saves for the same document coalesce: only the
// newest pending content is written.
type Writer struct {
	store Store
	log   *zap.Logger

	mu       sync.Mutex
	pending  map[string][]byte
	inflight int
	idle     *sync.Cond
	wake     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewWriter(store Store, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		store:   store,
		log:     logger.Named("docstore"),
		pending: map[string][]byte{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.idle = sync.NewCond(&w.mu)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
	return w
}

func (w *Writer) Save(name string, data []byte) {
	w.mu.Lock()
	w.pending[name] = append([]byte(nil), data...)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every document saved so far has been attempted.
func (w *Writer) Flush() {
	w.mu.Lock()
	for len(w.pending) > 0 || w.inflight > 0 {
		w.idle.Wait()
	}
	w.mu.Unlock()
}

// Close writes what is pending and stops the background goroutine.
func (w *Writer) Close() error {
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
	return nil
}

func (w *Writer) loop() {
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.idle.Broadcast()
			w.mu.Unlock()
			return
		}
		batch := w.pending
		w.pending = map[string][]byte{}
		w.inflight = len(batch)
		w.mu.Unlock()

		for name, data := range batch {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := w.store.Put(ctx, name, data); err != nil {
				w.log.Error("persist document failed", zap.String("doc", name), zap.Int("bytes", len(data)), zap.Error(err))
			}
			cancel()
		}

		w.mu.Lock()
		w.inflight = 0
		w.mu.Unlock()
	}
}
