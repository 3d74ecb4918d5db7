// Package arena runs the core on a single goroutine. Sessions, admin HTTP
// handlers and the tuning watcher talk to it through channels; every
// component it owns is touched only from Run.
package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"truce.ai/internal/persistence/docstore"
	"truce.ai/internal/protocol"
	"truce.ai/internal/sim/abilities"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/combat"
	"truce.ai/internal/sim/commands"
	"truce.ai/internal/sim/cooldowns"
	"truce.ai/internal/sim/sched"
	"truce.ai/internal/sim/trust"
	"truce.ai/internal/sim/tuning"
	"truce.ai/internal/sim/zones"
)

var ErrStopped = errors.New("arena stopped")

type Config struct {
	Tuning tuning.Tuning
	// Saver receives every trust and safe-zone document change.
	Saver docstore.Saver
	// Admins may run admin commands over their session.
	Admins []actors.ID
	Log    *zap.Logger
	Now    func() time.Time
}

type JoinRequest struct {
	ActorID actors.ID
	Name    string
	Loc     actors.Location
	Out     chan []byte
	Resp    chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Code    string
	Message string
}

// LeaveRequest disconnects the envelope's actor. It travels through the inbox
// so it is handled after everything the session sent before it.
type LeaveRequest struct {
	// Resp is optional.
	Resp chan LeaveResponse
}

type LeaveResponse struct {
	Punished bool
}

// Envelope carries one decoded session message (a *protocol.XxxMsg value or
// a LeaveRequest).
type Envelope struct {
	ActorID actors.ID
	Msg     any
}

type session struct {
	out chan []byte
}

type call struct {
	fn   func()
	done chan struct{}
}

// Arena owns the core components. All state must be accessed only from the
// loop goroutine.
type Arena struct {
	tuning tuning.Tuning
	admins map[actors.ID]bool
	log    *zap.Logger
	now    func() time.Time

	q         *sched.Queue
	dir       *actors.Directory
	zones     *zones.Index
	trust     *trust.Graph
	cooldowns *cooldowns.Ledger
	combat    *combat.Registry
	gate      *abilities.Gate
	cmds      *commands.Dispatcher

	sessions map[actors.ID]*session
	periodic []*sched.Handle

	inbox  chan Envelope
	join   chan JoinRequest
	calls  chan call
	retune chan tuning.Tuning

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	tick           atomic.Uint64
	droppedNotices atomic.Uint64
	metrics        atomic.Value
}

func New(cfg Config) (*Arena, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("arena: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := cfg.Tuning
	a := &Arena{
		tuning:   t,
		admins:   map[actors.ID]bool{},
		log:      cfg.Log.Named("arena"),
		now:      cfg.Now,
		q:        sched.New(cfg.Now),
		dir:      actors.NewDirectory(),
		sessions: map[actors.ID]*session{},
		inbox:    make(chan Envelope, 1024),
		join:     make(chan JoinRequest, 64),
		calls:    make(chan call, 64),
		retune:   make(chan tuning.Tuning, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, id := range cfg.Admins {
		a.admins[id] = true
	}
	notifier := actors.NotifyFunc(a.notify)

	a.zones = zones.NewIndex(zones.Config{
		CoordLimit: t.Zones.CoordLimit,
		LegacyMinY: t.Zones.LegacyMinY,
		LegacyMaxY: t.Zones.LegacyMaxY,
	}, cfg.Saver, cfg.Log, cfg.Now)
	a.trust = trust.New(trust.Config{RequestTTL: t.TrustRequestTTL()}, trust.Deps{
		Sched:    a.q,
		Actors:   a.dir,
		Notifier: notifier,
		Saver:    cfg.Saver,
		Log:      cfg.Log,
	})
	a.cooldowns = cooldowns.New(cfg.Now, cfg.Log)
	a.combat = combat.New(combat.Config{TagDuration: t.CombatTag()}, combat.Deps{
		Actors:   a.dir,
		Zones:    a.zones,
		Trust:    a.trust,
		Punisher: punisherFunc(a.punish),
		Notifier: notifier,
		Log:      cfg.Log,
		Now:      cfg.Now,
	})
	a.gate = abilities.New(abilities.FromTuning(t.Abilities), abilities.Deps{
		Cooldowns: a.cooldowns,
		Trust:     a.trust,
		Combat:    a.combat,
		Actors:    a.dir,
		Log:       cfg.Log,
	})
	a.gate.DefaultEffect(a.announceAbility)
	a.cmds = commands.New(commands.Deps{
		Actors:    a.dir,
		Zones:     a.zones,
		Trust:     a.trust,
		Combat:    a.combat,
		Cooldowns: a.cooldowns,
		Gate:      a.gate,
	})
	a.schedulePeriodic()
	a.publishMetrics(0)
	return a, nil
}

// Load restores trust and safe zones from store and reconciles the trust
// graph. It must be called before Run.
func (a *Arena) Load(ctx context.Context, store docstore.Store) error {
	n, migrated, err := a.zones.Load(ctx, store)
	if err != nil {
		return fmt.Errorf("load safe zones: %w", err)
	}
	edges, skipped, err := a.trust.Load(ctx, store)
	if err != nil {
		return fmt.Errorf("load trust: %w", err)
	}
	repaired := a.trust.Reconcile()
	a.log.Info("state loaded",
		zap.Int("zones", n), zap.Int("zones_migrated", migrated),
		zap.Int("trust_edges", edges), zap.Int("trust_skipped", skipped),
		zap.Int("trust_repaired", repaired))
	a.publishMetrics(0)
	return nil
}

func (a *Arena) Inbox() chan<- Envelope   { return a.inbox }
func (a *Arena) Join() chan<- JoinRequest { return a.join }
func (a *Arena) CurrentTick() uint64      { return a.tick.Load() }
func (a *Arena) TickRateHz() int          { return a.tuning.TickRateHz }

type punisherFunc func(id actors.ID, reason string)

func (f punisherFunc) Punish(id actors.ID, reason string) { f(id, reason) }

func (a *Arena) schedulePeriodic() {
	for _, h := range a.periodic {
		h.Cancel()
	}
	t := a.tuning
	a.periodic = []*sched.Handle{
		a.q.Every(t.CombatSweep(), func() { a.combat.Sweep() }),
		a.q.Every(t.CooldownSweep(), func() { a.cooldowns.Sweep() }),
		a.q.Every(t.ReconcileInterval(), func() { a.trust.Reconcile() }),
	}
}

func (a *Arena) applyTuning(t tuning.Tuning) {
	if err := t.Validate(); err != nil {
		a.log.Warn("ignoring invalid tuning", zap.Error(err))
		return
	}
	a.tuning.CombatTagSeconds = t.CombatTagSeconds
	a.tuning.TrustRequestSeconds = t.TrustRequestSeconds
	a.tuning.CombatSweepMs = t.CombatSweepMs
	a.tuning.CooldownSweepSeconds = t.CooldownSweepSeconds
	a.tuning.ReconcileIntervalSeconds = t.ReconcileIntervalSeconds
	a.tuning.Abilities = t.Abilities
	a.combat.SetTagDuration(t.CombatTag())
	a.trust.SetRequestTTL(t.TrustRequestTTL())
	a.gate.SetCatalog(abilities.FromTuning(t.Abilities))
	a.schedulePeriodic()
	a.log.Info("tuning applied",
		zap.Duration("combat_tag", t.CombatTag()),
		zap.Duration("trust_request_ttl", t.TrustRequestTTL()),
		zap.Int("abilities", len(t.Abilities)))
}
