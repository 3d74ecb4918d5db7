package arena

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/tuning"
)

// Run processes events in arrival order until ctx is done or Stop is called.
// Scheduled tasks that have come due run before the next event is handled,
// and on every tick.
func (a *Arena) Run(ctx context.Context) error {
	defer close(a.done)
	interval := a.tuning.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.stop:
			return nil
		case req := <-a.join:
			a.runDue()
			a.handleJoin(req)
		case env := <-a.inbox:
			a.runDue()
			a.handleEnvelope(env)
		case c := <-a.calls:
			a.runDue()
			c.fn()
			close(c.done)
		case t := <-a.retune:
			a.applyTuning(t)
		case <-ticker.C:
			start := time.Now()
			a.runDue()
			a.tick.Add(1)
			a.publishMetrics(time.Since(start))
		}
	}
}

func (a *Arena) Stop() { a.stopOnce.Do(func() { close(a.stop) }) }

// Done is closed once Run has returned.
func (a *Arena) Done() <-chan struct{} { return a.done }

func (a *Arena) runDue() int {
	return a.q.RunDue(a.now())
}

// Do runs fn on the loop goroutine and waits for it. It is safe to call from
// other goroutines (e.g. admin HTTP handlers). ctx only bounds queueing: once
// the call is queued Do waits until fn has run or the loop has stopped, so fn
// never runs after Do returned.
func (a *Arena) Do(ctx context.Context, fn func()) error {
	c := call{fn: fn, done: make(chan struct{})}
	select {
	case a.calls <- c:
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-a.done:
		return ErrStopped
	}
}

// Retune hands new tuning to the loop. Only the latest pending value is kept.
func (a *Arena) Retune(t tuning.Tuning) { sendLatest(a.retune, t) }

func (a *Arena) send(id actors.ID, v any) {
	s := a.sessions[id]
	if s == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		a.log.Error("encode session message", zap.Stringer("actor", id), zap.Error(err))
		return
	}
	if !trySend(s.out, b) {
		a.droppedNotices.Add(1)
		a.log.Warn("session queue full, message dropped", zap.Stringer("actor", id))
	}
}

func trySend(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}

func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
