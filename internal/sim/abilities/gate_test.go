package abilities

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/combat"
	"truce.ai/internal/sim/cooldowns"
	"truce.ai/internal/sim/sched"
	"truce.ai/internal/sim/trust"
	"truce.ai/internal/sim/tuning"
	"truce.ai/internal/sim/zones"
)

type fixture struct {
	clk   *sched.ManualClock
	dir   *actors.Directory
	cd    *cooldowns.Ledger
	trust *trust.Graph
	zones *zones.Index
	reg   *combat.Registry
	gate  *Gate
	ran   []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clk: sched.NewManualClock(time.Unix(1_000, 0)), dir: actors.NewDirectory()}
	q := sched.New(f.clk.Now)
	f.cd = cooldowns.New(f.clk.Now, nil)
	f.trust = trust.New(trust.Config{}, trust.Deps{Sched: q, Actors: f.dir})
	f.zones = zones.NewIndex(zones.Config{}, nil, nil, f.clk.Now)
	f.reg = combat.New(combat.Config{}, combat.Deps{Actors: f.dir, Zones: f.zones, Trust: f.trust, Now: f.clk.Now})
	caps := FromTuning([]tuning.Ability{
		{Key: "lance", CooldownMs: 8000, Targeted: true, Hostile: true},
		{Key: "mend", CooldownMs: 12000, Targeted: true},
		{Key: "blink", CooldownMs: 5000},
	})
	f.gate = New(caps, Deps{Cooldowns: f.cd, Trust: f.trust, Combat: f.reg, Actors: f.dir})
	f.gate.DefaultEffect(func(_, _ actors.ID, c Capability) error {
		f.ran = append(f.ran, c.Key)
		return nil
	})
	return f
}

func (f *fixture) join(x float64) actors.ID {
	id := uuid.New()
	f.dir.Join(id, "", actors.Location{World: "w", Pos: actors.Vec3{X: x}})
	return id
}

func (f *fixture) befriend(t *testing.T, a, b actors.ID) {
	t.Helper()
	if _, err := f.trust.RequestTrust(a, b); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := f.trust.AcceptTrust(b); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func TestUse_CooldownGate(t *testing.T) {
	f := newFixture(t)
	u := f.join(0)

	if err := f.gate.Use(u, "blink", uuid.Nil); err != nil {
		t.Fatalf("first use: %v", err)
	}
	err := f.gate.Use(u, "blink", uuid.Nil)
	var cdErr *CooldownError
	if !errors.As(err, &cdErr) || cdErr.Remaining != 5*time.Second {
		t.Fatalf("second use: %v", err)
	}
	f.clk.Advance(5 * time.Second)
	if err := f.gate.Use(u, "blink", uuid.Nil); err != nil {
		t.Fatalf("use after cooldown: %v", err)
	}
	if len(f.ran) != 2 {
		t.Fatalf("effect ran %d times, want 2", len(f.ran))
	}
}

func TestUse_HostileTargeting(t *testing.T) {
	f := newFixture(t)
	u, ally, foe := f.join(0), f.join(1), f.join(2)
	f.befriend(t, u, ally)

	if err := f.gate.Use(u, "lance", ally); !errors.Is(err, ErrTargetTrusted) {
		t.Fatalf("lance on ally: %v", err)
	}
	if f.cd.Len() != 0 || len(f.ran) != 0 {
		t.Fatalf("refused use must not run the effect or start the cooldown")
	}
	if err := f.gate.Use(u, "lance", u); !errors.Is(err, ErrSelfTarget) {
		t.Fatalf("lance on self: %v", err)
	}
	if err := f.gate.Use(u, "lance", uuid.Nil); !errors.Is(err, ErrNoTarget) {
		t.Fatalf("lance without target: %v", err)
	}
	if err := f.gate.Use(u, "lance", uuid.New()); !errors.Is(err, ErrTargetOffline) {
		t.Fatalf("lance on offline actor: %v", err)
	}
	if err := f.gate.Use(u, "lance", foe); err != nil {
		t.Fatalf("lance on foe: %v", err)
	}
	if !f.reg.IsInCombat(u) || !f.reg.IsInCombat(foe) {
		t.Fatalf("hostile use should tag both sides")
	}
	if !f.cd.IsActive(u, "lance") {
		t.Fatalf("cooldown should start after a successful use")
	}
}

func TestUse_SafeZoneVeto(t *testing.T) {
	f := newFixture(t)
	_, _ = f.zones.Register("w", actors.Vec3{X: -1, Y: -1, Z: -1}, actors.Vec3{X: 1, Y: 1, Z: 1}, "", "op")
	u, foe := f.join(0), f.join(50)

	err := f.gate.Use(u, "lance", foe)
	var veto *VetoError
	if !errors.As(err, &veto) || veto.Verdict != combat.VetoSafeZone {
		t.Fatalf("expected safe zone veto, got %v", err)
	}
	if f.cd.Len() != 0 {
		t.Fatalf("vetoed use must not consume the cooldown")
	}
}

func TestUse_BeneficialNeedsTrust(t *testing.T) {
	f := newFixture(t)
	u, ally, stranger := f.join(0), f.join(1), f.join(2)
	f.befriend(t, u, ally)

	if err := f.gate.Use(u, "mend", stranger); !errors.Is(err, ErrTargetNotTrusted) {
		t.Fatalf("mend stranger: %v", err)
	}
	if err := f.gate.Use(u, "mend", ally); err != nil {
		t.Fatalf("mend ally: %v", err)
	}
	if f.reg.IsInCombat(u) {
		t.Fatalf("beneficial use must not tag combat")
	}
	if got := f.gate.Allies(u, []actors.ID{u, ally, stranger}); len(got) != 1 || got[0] != ally {
		t.Fatalf("Allies = %v", got)
	}
}

func TestUse_EffectFailureKeepsCooldownFree(t *testing.T) {
	f := newFixture(t)
	u := f.join(0)
	boom := errors.New("no room to blink")
	f.gate.Handle("blink", func(_, _ actors.ID, _ Capability) error { return boom })

	if err := f.gate.Use(u, "blink", uuid.Nil); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if f.cd.IsActive(u, "blink") {
		t.Fatalf("failed effect must not start the cooldown")
	}
	if err := f.gate.Use(u, "nope", uuid.Nil); !errors.Is(err, ErrUnknownCapability) {
		t.Fatalf("unknown: %v", err)
	}
}

func TestUse_HostileEffectFailureLeavesNoTags(t *testing.T) {
	f := newFixture(t)
	u, foe := f.join(0), f.join(2)
	boom := errors.New("out of reach")
	f.gate.Handle("lance", func(_, _ actors.ID, _ Capability) error { return boom })

	if err := f.gate.Use(u, "lance", foe); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if f.cd.IsActive(u, "lance") {
		t.Fatalf("failed effect must not start the cooldown")
	}
	if f.reg.IsInCombat(u) || f.reg.IsInCombat(foe) {
		t.Fatalf("failed hostile effect must not tag either side")
	}
	if st := f.reg.Stats(); st.Allowed != 0 {
		t.Fatalf("failed use counted as an allowed hit: %+v", st)
	}

	f.gate.Handle("lance", func(_, _ actors.ID, _ Capability) error { return nil })
	if err := f.gate.Use(u, "lance", foe); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !f.reg.IsInCombat(u) || !f.reg.IsInCombat(foe) {
		t.Fatalf("successful hostile use should tag both sides")
	}
}
