package arena

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports Metrics snapshots to Prometheus.
type Collector struct {
	a *Arena

	tick, online, inCombat, trustEdges, pending, cooldowns, zones, tasks *prometheus.Desc
	allowed, vetoes, punished, dropped                                   *prometheus.Desc
	queue, step                                                          *prometheus.Desc
}

func NewCollector(a *Arena) *Collector {
	d := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("truce_"+name, help, labels, nil)
	}
	return &Collector{
		a:          a,
		tick:       d("tick", "Loop ticks since start."),
		online:     d("online_actors", "Actors with an open session."),
		inCombat:   d("in_combat_actors", "Actors currently tagged in combat."),
		trustEdges: d("trust_edges", "Directed trust edges."),
		pending:    d("trust_pending_requests", "Pending trust requests."),
		cooldowns:  d("cooldown_entries", "Stored cooldown entries, including expired ones not yet swept."),
		zones:      d("safe_zones", "Registered safe zones."),
		tasks:      d("scheduled_tasks", "Tasks waiting in the scheduler."),
		allowed:    d("hits_allowed_total", "Hostile interactions that started or refreshed combat."),
		vetoes:     d("hits_vetoed_total", "Hostile interactions vetoed, by reason.", "reason"),
		punished:   d("combat_logging_punished_total", "Actors punished for leaving while in combat."),
		dropped:    d("dropped_notices_total", "Session messages dropped because the queue was full."),
		queue:      d("queue_depth", "Pending items per loop input channel.", "queue"),
		step:       d("step_ms", "Duration of the last tick in milliseconds."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.tick, c.online, c.inCombat, c.trustEdges, c.pending, c.cooldowns, c.zones, c.tasks,
		c.allowed, c.vetoes, c.punished, c.dropped, c.queue, c.step,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.a.Metrics()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.tick, m.Tick)
	gauge(c.online, float64(m.Online))
	gauge(c.inCombat, float64(m.InCombat))
	gauge(c.trustEdges, float64(m.TrustEdges))
	gauge(c.pending, float64(m.PendingRequests))
	gauge(c.cooldowns, float64(m.Cooldowns))
	gauge(c.zones, float64(m.Zones))
	gauge(c.tasks, float64(m.ScheduledTasks))
	counter(c.allowed, m.HitsAllowed)
	for reason, n := range m.Vetoes {
		counter(c.vetoes, n, reason)
	}
	counter(c.punished, m.Punished)
	counter(c.dropped, m.DroppedNotices)
	gauge(c.queue, float64(m.QueueDepths.Inbox), "inbox")
	gauge(c.queue, float64(m.QueueDepths.Join), "join")
	gauge(c.queue, float64(m.QueueDepths.Calls), "calls")
	gauge(c.step, m.StepMS)
}
