// Package combat tags actors who have recently exchanged hostile actions.
//
// A hostile interaction is checked against safe zones first and mutual trust
// second. Only when both allow it are attacker and victim tagged, each with
// the other as cause. Tags expire lazily on query and proactively via Sweep.
package combat

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"truce.ai/internal/sim/actors"
)

var (
	ErrInSafeZone   = errors.New("actor is inside a safe zone")
	ErrUnknownActor = errors.New("actor is not online")
	ErrNotInCombat  = errors.New("actor is not in combat")
)

type Verdict string

const (
	Allow        Verdict = "ALLOW"
	VetoSafeZone Verdict = "VETO_SAFE_ZONE"
	VetoTrusted  Verdict = "VETO_TRUSTED"
	Ignored      Verdict = "IGNORED"
)

// Why a tag ended.
const (
	EndExpired    = "expired"
	EndDeath      = "death"
	EndCascade    = "cause_died"
	EndDisconnect = "disconnect"
	EndCauseLeft  = "cause_disconnected"
	EndAdmin      = "admin"
)

type ZoneChecker interface {
	Contains(loc actors.Location) bool
}

type TrustChecker interface {
	IsTrusted(a, b actors.ID) bool
}

// Punisher applies the combat-logging penalty to an actor who left while tagged.
type Punisher interface {
	Punish(id actors.ID, reason string)
}

type Config struct {
	TagDuration time.Duration
}

func (c *Config) applyDefaults() {
	if c.TagDuration <= 0 {
		c.TagDuration = 15 * time.Second
	}
}

type Deps struct {
	Actors   actors.Resolver
	Zones    ZoneChecker
	Trust    TrustChecker
	Punisher Punisher
	Notifier actors.Notifier
	Log      *zap.Logger
	Now      func() time.Time
}

// Record is one actor's combat tag. Cause is uuid.Nil when unattributed.
type Record struct {
	Actor     actors.ID `json:"actor"`
	Since     time.Time `json:"since"`
	ExpiresAt time.Time `json:"expires_at"`
	Cause     actors.ID `json:"cause"`
	Forced    bool      `json:"forced,omitempty"`
}

func (r Record) HasCause() bool { return r.Cause != uuid.Nil }

type Stats struct {
	Tagged   int                `json:"tagged"`
	Vetoes   map[Verdict]uint64 `json:"vetoes"`
	Allowed  uint64             `json:"allowed"`
	Punished uint64             `json:"punished"`
}

// Registry is owned by the runtime loop; it is not safe for concurrent use.
type Registry struct {
	cfg     Config
	records map[actors.ID]*Record

	actors actors.Resolver
	zones  ZoneChecker
	trust  TrustChecker
	punish Punisher
	notify actors.Notifier
	log    *zap.Logger
	now    func() time.Time

	vetoes   map[Verdict]uint64
	allowed  uint64
	punished uint64
}

func New(cfg Config, deps Deps) *Registry {
	cfg.applyDefaults()
	if deps.Notifier == nil {
		deps.Notifier = actors.Discard
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		cfg:     cfg,
		records: map[actors.ID]*Record{},
		actors:  deps.Actors,
		zones:   deps.Zones,
		trust:   deps.Trust,
		punish:  deps.Punisher,
		notify:  deps.Notifier,
		log:     deps.Log.Named("combat"),
		now:     deps.Now,
		vetoes:  map[Verdict]uint64{},
	}
}

// SetTagDuration affects tags started or refreshed from now on.
func (r *Registry) SetTagDuration(d time.Duration) {
	if d > 0 {
		r.cfg.TagDuration = d
	}
}

func (r *Registry) TagDuration() time.Duration { return r.cfg.TagDuration }

// Check returns the verdict Hit would reach for attacker and victim without
// tagging anyone or counting the outcome.
func (r *Registry) Check(attacker, victim actors.ID) Verdict {
	if attacker == victim {
		return Ignored
	}
	a, okA := r.lookup(attacker)
	b, okB := r.lookup(victim)
	if !okA || !okB {
		return Ignored
	}
	if r.zones != nil && (r.zones.Contains(a.Loc) || r.zones.Contains(b.Loc)) {
		return VetoSafeZone
	}
	if r.trust != nil && r.trust.IsTrusted(attacker, victim) {
		return VetoTrusted
	}
	return Allow
}

// Hit evaluates a hostile interaction from attacker to victim. Only an Allow
// verdict changes state; vetoes leave no trace beyond counters.
func (r *Registry) Hit(attacker, victim actors.ID) Verdict {
	v := r.Check(attacker, victim)
	switch v {
	case Allow:
		r.allowed++
		r.tag(victim, attacker, false)
		r.tag(attacker, victim, false)
	case VetoSafeZone, VetoTrusted:
		r.vetoes[v]++
		r.log.Debug("hostile interaction vetoed", zap.Stringer("actor", attacker), zap.Stringer("victim", victim),
			zap.String("verdict", string(v)))
	}
	return v
}

func (r *Registry) tag(id, cause actors.ID, forced bool) {
	now := r.now()
	rec := r.live(id)
	if rec == nil {
		rec = &Record{Actor: id, Since: now}
		r.records[id] = rec
		r.log.Info("combat started", zap.Stringer("actor", id), zap.Stringer("cause", cause), zap.Bool("forced", forced))
		r.notify.Notify(id, actors.NoticeCombat,
			fmt.Sprintf("You are in combat with %s. Logging out now will be punished.", r.name(cause)))
	} else {
		r.log.Debug("combat refreshed", zap.Stringer("actor", id), zap.Stringer("cause", cause))
	}
	rec.ExpiresAt = now.Add(r.cfg.TagDuration)
	rec.Cause = cause
	rec.Forced = forced
}

// live returns id's record if it has not expired. An expired record is ended
// on the way.
func (r *Registry) live(id actors.ID) *Record {
	rec := r.records[id]
	if rec == nil {
		return nil
	}
	if r.now().Before(rec.ExpiresAt) {
		return rec
	}
	r.end(id, EndExpired)
	return nil
}

func (r *Registry) end(id actors.ID, reason string) {
	rec := r.records[id]
	if rec == nil {
		return
	}
	delete(r.records, id)
	r.log.Info("combat ended", zap.Stringer("actor", id), zap.Stringer("cause", rec.Cause), zap.String("reason", reason),
		zap.Duration("duration", r.now().Sub(rec.Since)))
	switch reason {
	case EndExpired:
		r.notify.Notify(id, actors.NoticeCombat, "You are no longer in combat.")
	case EndCascade, EndCauseLeft:
		r.notify.Notify(id, actors.NoticeCombat, fmt.Sprintf("%s is gone. You are no longer in combat.", r.name(rec.Cause)))
	case EndAdmin:
		r.notify.Notify(id, actors.NoticeCombat, "An administrator released you from combat.")
	}
}

func (r *Registry) IsInCombat(id actors.ID) bool {
	return r.live(id) != nil
}

// Remaining is zero when id is not in combat.
func (r *Registry) Remaining(id actors.ID) time.Duration {
	rec := r.live(id)
	if rec == nil {
		return 0
	}
	return rec.ExpiresAt.Sub(r.now())
}

// Cause returns the actor recorded as responsible for id's tag. The cause
// may no longer be online.
func (r *Registry) Cause(id actors.ID) (actors.ID, bool) {
	rec := r.live(id)
	if rec == nil || !rec.HasCause() {
		return uuid.Nil, false
	}
	return rec.Cause, true
}

func (r *Registry) Get(id actors.ID) (Record, bool) {
	rec := r.live(id)
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// HandleDeath releases id, its opponent when the tag was mutual, and every
// actor whose tag is attributed to id. It returns the released actors other
// than id.
func (r *Registry) HandleDeath(id actors.ID) []actors.ID {
	var released []actors.ID
	if rec := r.live(id); rec != nil {
		cause := rec.Cause
		r.end(id, EndDeath)
		if rec.HasCause() {
			if _, online := r.lookup(cause); online {
				if other := r.live(cause); other != nil && other.Cause == id {
					r.end(cause, EndCascade)
					released = append(released, cause)
				}
			}
		}
	}
	released = append(released, r.releaseCausedBy(id, EndCascade)...)
	return released
}

// releaseCausedBy ends every tag attributed to cause.
func (r *Registry) releaseCausedBy(cause actors.ID, reason string) []actors.ID {
	var ids []actors.ID
	for id, rec := range r.records {
		if rec.Cause == cause && id != cause {
			ids = append(ids, id)
		}
	}
	actors.SortIDs(ids)
	var out []actors.ID
	for _, id := range ids {
		if r.live(id) == nil {
			continue
		}
		r.end(id, reason)
		out = append(out, id)
	}
	return out
}

// HandleDisconnect ends id's tag and every tag attributed to id. An actor who
// leaves while tagged is punished unless its cause is online and mutually
// trusted with it. Call it before the actor leaves the directory.
func (r *Registry) HandleDisconnect(id actors.ID) (punished bool) {
	if rec := r.live(id); rec != nil {
		allied := false
		if rec.HasCause() {
			if _, online := r.lookup(rec.Cause); online && r.trust != nil {
				allied = r.trust.IsTrusted(id, rec.Cause)
			}
		}
		if !allied {
			punished = true
			r.punished++
			r.log.Warn("combat logging punished", zap.Stringer("actor", id), zap.Stringer("cause", rec.Cause),
				zap.Duration("remaining", rec.ExpiresAt.Sub(r.now())))
			if r.punish != nil {
				r.punish.Punish(id, "disconnected while in combat")
			}
		}
		r.end(id, EndDisconnect)
	}
	r.releaseCausedBy(id, EndCauseLeft)
	return punished
}

// ForceInCombat tags id as if it had been hit. cause may be uuid.Nil. The
// safe-zone guard still applies.
func (r *Registry) ForceInCombat(id, cause actors.ID, reason string) error {
	a, ok := r.lookup(id)
	if !ok {
		return ErrUnknownActor
	}
	if r.zones != nil && r.zones.Contains(a.Loc) {
		r.log.Warn("refused forced combat inside safe zone", zap.Stringer("actor", id), zap.String("world", a.Loc.World),
			zap.String("reason", reason))
		return ErrInSafeZone
	}
	r.log.Info("combat forced", zap.Stringer("actor", id), zap.Stringer("cause", cause), zap.String("reason", reason))
	r.tag(id, cause, true)
	return nil
}

// RemoveFromCombat releases id regardless of its expiry.
func (r *Registry) RemoveFromCombat(id actors.ID) error {
	if r.live(id) == nil {
		return ErrNotInCombat
	}
	r.end(id, EndAdmin)
	return nil
}

// IsCausedByAlly reports whether id's current cause is online and mutually
// trusted with id.
func (r *Registry) IsCausedByAlly(id actors.ID) bool {
	cause, ok := r.Cause(id)
	if !ok || r.trust == nil {
		return false
	}
	if _, online := r.lookup(cause); !online {
		return false
	}
	return r.trust.IsTrusted(id, cause)
}

// Sweep ends every expired tag, exactly as a query would, and returns how
// many it ended.
func (r *Registry) Sweep() int {
	now := r.now()
	var due []actors.ID
	for id, rec := range r.records {
		if !now.Before(rec.ExpiresAt) {
			due = append(due, id)
		}
	}
	actors.SortIDs(due)
	for _, id := range due {
		r.end(id, EndExpired)
	}
	return len(due)
}

// List returns live tags ordered by expiry.
func (r *Registry) List() []Record {
	now := r.now()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if now.Before(rec.ExpiresAt) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].Actor.String() < out[j].Actor.String()
	})
	return out
}

// Len counts stored records, including expired ones not yet swept.
func (r *Registry) Len() int { return len(r.records) }

func (r *Registry) Stats() Stats {
	v := make(map[Verdict]uint64, len(r.vetoes))
	for k, n := range r.vetoes {
		v[k] = n
	}
	return Stats{Tagged: len(r.records), Vetoes: v, Allowed: r.allowed, Punished: r.punished}
}

func (r *Registry) lookup(id actors.ID) (actors.Actor, bool) {
	if r.actors == nil {
		return actors.Actor{ID: id}, true
	}
	return r.actors.Lookup(id)
}

func (r *Registry) name(id actors.ID) string {
	if id == uuid.Nil {
		return "an administrator"
	}
	if a, ok := r.lookup(id); ok && a.Name != "" {
		return a.Name
	}
	return id.String()
}
