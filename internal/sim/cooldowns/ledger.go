// Package cooldowns tracks per-actor, per-capability lockouts. State is
// ephemeral and is not persisted.
package cooldowns

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"truce.ai/internal/sim/actors"
)

type key struct {
	actor actors.ID
	cap   string
}

// Ledger is owned by the runtime loop; it is not safe for concurrent use.
type Ledger struct {
	entries map[key]time.Time
	now     func() time.Time
	log     *zap.Logger
}

func New(now func() time.Time, logger *zap.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{entries: map[key]time.Time{}, now: now, log: logger.Named("cooldowns")}
}

// Trigger starts (or restarts) capability's cooldown for actor.
func (l *Ledger) Trigger(actor actors.ID, capability string, d time.Duration) {
	if d <= 0 {
		delete(l.entries, key{actor, capability})
		return
	}
	l.entries[key{actor, capability}] = l.now().Add(d)
}

// IsActive reports whether the cooldown is still running. An expired entry
// it finds is removed.
func (l *Ledger) IsActive(actor actors.ID, capability string) bool {
	k := key{actor, capability}
	exp, ok := l.entries[k]
	if !ok {
		return false
	}
	if l.now().Before(exp) {
		return true
	}
	delete(l.entries, k)
	return false
}

// Remaining is zero when the cooldown is not active.
func (l *Ledger) Remaining(actor actors.ID, capability string) time.Duration {
	if !l.IsActive(actor, capability) {
		return 0
	}
	return l.entries[key{actor, capability}].Sub(l.now())
}

func (l *Ledger) Clear(actor actors.ID, capability string) bool {
	k := key{actor, capability}
	if _, ok := l.entries[k]; !ok {
		return false
	}
	delete(l.entries, k)
	return true
}

func (l *Ledger) ClearAll(actor actors.ID) int {
	n := 0
	for k := range l.entries {
		if k.actor == actor {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Sweep drops every expired entry and returns how many it removed.
func (l *Ledger) Sweep() int {
	now := l.now()
	n := 0
	for k, exp := range l.entries {
		if !now.Before(exp) {
			delete(l.entries, k)
			n++
		}
	}
	if n > 0 {
		l.log.Debug("cooldown sweep", zap.Int("removed", n), zap.Int("remaining", len(l.entries)))
	}
	return n
}

func (l *Ledger) Len() int { return len(l.entries) }

type Entry struct {
	Capability  string `json:"capability"`
	RemainingMS int64  `json:"remaining_ms"`
}

// Active lists actor's running cooldowns by capability key.
func (l *Ledger) Active(actor actors.ID) []Entry {
	now := l.now()
	var out []Entry
	for k, exp := range l.entries {
		if k.actor == actor && now.Before(exp) {
			out = append(out, Entry{Capability: k.cap, RemainingMS: exp.Sub(now).Milliseconds()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Capability < out[j].Capability })
	return out
}
