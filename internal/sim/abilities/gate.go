// Package abilities is the contract every gated capability goes through:
// cooldown first, then trust for anything aimed at another actor, then the
// effect, and only after a successful effect the cooldown is started.
package abilities

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/combat"
	"truce.ai/internal/sim/tuning"
)

var (
	ErrUnknownCapability = errors.New("unknown capability")
	ErrNoTarget          = errors.New("capability needs a target")
	ErrSelfTarget        = errors.New("cannot use a hostile capability on yourself")
	ErrTargetOffline     = errors.New("target is not online")
	ErrTargetTrusted     = errors.New("target is a trusted ally")
	ErrTargetNotTrusted  = errors.New("target is not a trusted ally")
)

// CooldownError reports how long the caller has to wait.
type CooldownError struct {
	Capability string
	Remaining  time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s is on cooldown for %.1fs", e.Capability, e.Remaining.Seconds())
}

// VetoError is returned when a hostile use was stopped by the combat rules.
type VetoError struct {
	Verdict combat.Verdict
}

func (e *VetoError) Error() string { return "hostile use vetoed: " + string(e.Verdict) }

type Capability struct {
	Key         string        `json:"key"`
	Cooldown    time.Duration `json:"-"`
	CooldownMs  int64         `json:"cooldown_ms"`
	Targeted    bool          `json:"targeted"`
	Hostile     bool          `json:"hostile"`
	Description string        `json:"description,omitempty"`
}

// FromTuning converts the tuning catalog.
func FromTuning(list []tuning.Ability) []Capability {
	out := make([]Capability, 0, len(list))
	for _, a := range list {
		out = append(out, Capability{
			Key:         strings.TrimSpace(a.Key),
			Cooldown:    a.Cooldown(),
			CooldownMs:  int64(a.CooldownMs),
			Targeted:    a.Targeted,
			Hostile:     a.Hostile,
			Description: a.Description,
		})
	}
	return out
}

type Cooldowns interface {
	Remaining(actor actors.ID, capability string) time.Duration
	Trigger(actor actors.ID, capability string, d time.Duration)
}

type TrustChecker interface {
	IsTrusted(a, b actors.ID) bool
}

// HostileSink decides whether a hostile interaction may happen. Check has no
// side effects; Hit records the interaction.
type HostileSink interface {
	Check(attacker, victim actors.ID) combat.Verdict
	Hit(attacker, victim actors.ID) combat.Verdict
}

// Effect is what a capability does once the gate has let it through.
// target is uuid.Nil for untargeted capabilities.
type Effect func(user, target actors.ID, c Capability) error

type Deps struct {
	Cooldowns Cooldowns
	Trust     TrustChecker
	Combat    HostileSink
	Actors    actors.Resolver
	Log       *zap.Logger
}

// Gate is owned by the runtime loop; it is not safe for concurrent use.
type Gate struct {
	caps    map[string]Capability
	effects map[string]Effect
	deflt   Effect

	cooldowns Cooldowns
	trust     TrustChecker
	combat    HostileSink
	actors    actors.Resolver
	log       *zap.Logger
}

func New(caps []Capability, deps Deps) *Gate {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	g := &Gate{
		effects:   map[string]Effect{},
		cooldowns: deps.Cooldowns,
		trust:     deps.Trust,
		combat:    deps.Combat,
		actors:    deps.Actors,
		log:       deps.Log.Named("abilities"),
	}
	g.SetCatalog(caps)
	return g
}

// SetCatalog replaces the capability catalog. Running cooldowns are kept.
func (g *Gate) SetCatalog(caps []Capability) {
	m := make(map[string]Capability, len(caps))
	for _, c := range caps {
		if c.Key == "" {
			continue
		}
		m[c.Key] = c
	}
	g.caps = m
}

// Handle registers the effect for key. DefaultEffect covers keys without one.
func (g *Gate) Handle(key string, fn Effect) { g.effects[key] = fn }

func (g *Gate) DefaultEffect(fn Effect) { g.deflt = fn }

func (g *Gate) Capability(key string) (Capability, bool) {
	c, ok := g.caps[key]
	return c, ok
}

func (g *Gate) Catalog() []Capability {
	out := make([]Capability, 0, len(g.caps))
	for _, c := range g.caps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Use runs capability key for user. A failed check or effect leaves the
// cooldown untouched.
func (g *Gate) Use(user actors.ID, key string, target actors.ID) error {
	c, ok := g.caps[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, key)
	}
	if rem := g.cooldowns.Remaining(user, key); rem > 0 {
		return &CooldownError{Capability: key, Remaining: rem}
	}

	if !c.Targeted {
		target = uuid.Nil
	} else if err := g.checkTarget(user, target, c); err != nil {
		g.log.Debug("ability refused", zap.Stringer("actor", user), zap.String("capability", key),
			zap.Stringer("target", target), zap.Error(err))
		return err
	}

	fn := g.effects[key]
	if fn == nil {
		fn = g.deflt
	}
	if fn != nil {
		if err := fn(user, target, c); err != nil {
			return err
		}
	}
	if c.Hostile && target != uuid.Nil && target != user && g.combat != nil {
		g.combat.Hit(user, target)
	}
	g.cooldowns.Trigger(user, key, c.Cooldown)
	g.log.Debug("ability used", zap.Stringer("actor", user), zap.String("capability", key), zap.Stringer("target", target))
	return nil
}

func (g *Gate) checkTarget(user, target actors.ID, c Capability) error {
	if target == uuid.Nil {
		return ErrNoTarget
	}
	if target == user {
		if c.Hostile {
			return ErrSelfTarget
		}
		return nil
	}
	if g.actors != nil {
		if _, ok := g.actors.Lookup(target); !ok {
			return ErrTargetOffline
		}
	}
	trusted := g.trust != nil && g.trust.IsTrusted(user, target)
	if !c.Hostile {
		if !trusted {
			return ErrTargetNotTrusted
		}
		return nil
	}
	if trusted {
		return ErrTargetTrusted
	}
	if g.combat != nil {
		if v := g.combat.Check(user, target); v != combat.Allow {
			g.combat.Hit(user, target)
			return &VetoError{Verdict: v}
		}
	}
	return nil
}

// Allies keeps the candidates user mutually trusts, for area effects that
// only touch allies.
func (g *Gate) Allies(user actors.ID, candidates []actors.ID) []actors.ID {
	var out []actors.ID
	for _, id := range candidates {
		if id != user && g.trust != nil && g.trust.IsTrusted(user, id) {
			out = append(out, id)
		}
	}
	return out
}
