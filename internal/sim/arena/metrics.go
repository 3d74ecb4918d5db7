package arena

import (
	"time"

	"truce.ai/internal/sim/combat"
)

// Metrics is a thread-safe read-only view of key runtime signals.
// It is updated from the loop goroutine and read from HTTP handlers/tests.
type Metrics struct {
	Tick uint64 `json:"tick"`

	Online          int `json:"online"`
	InCombat        int `json:"in_combat"`
	TrustEdges      int `json:"trust_edges"`
	PendingRequests int `json:"pending_requests"`
	Cooldowns       int `json:"cooldowns"`
	Zones           int `json:"zones"`
	ScheduledTasks  int `json:"scheduled_tasks"`

	HitsAllowed    uint64            `json:"hits_allowed"`
	Vetoes         map[string]uint64 `json:"vetoes"`
	Punished       uint64            `json:"punished"`
	DroppedNotices uint64            `json:"dropped_notices"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Calls int `json:"calls"`
}

func (a *Arena) publishMetrics(step time.Duration) {
	st := a.combat.Stats()
	vetoes := map[string]uint64{
		string(combat.VetoSafeZone): st.Vetoes[combat.VetoSafeZone],
		string(combat.VetoTrusted):  st.Vetoes[combat.VetoTrusted],
	}
	a.metrics.Store(Metrics{
		Tick:            a.tick.Load(),
		Online:          a.dir.Len(),
		InCombat:        len(a.combat.List()),
		TrustEdges:      a.trust.EdgeCount(),
		PendingRequests: a.trust.PendingCount(),
		Cooldowns:       a.cooldowns.Len(),
		Zones:           a.zones.Len(),
		ScheduledTasks:  a.q.Len(),
		HitsAllowed:     st.Allowed,
		Vetoes:          vetoes,
		Punished:        st.Punished,
		DroppedNotices:  a.droppedNotices.Load(),
		QueueDepths: QueueDepths{
			Inbox: len(a.inbox),
			Join:  len(a.join),
			Calls: len(a.calls),
		},
		StepMS: float64(step.Microseconds()) / 1000,
	})
}

func (a *Arena) Metrics() Metrics {
	if a == nil {
		return Metrics{}
	}
	m, ok := a.metrics.Load().(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}
