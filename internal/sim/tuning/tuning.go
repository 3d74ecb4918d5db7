package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	CombatTagSeconds         int `yaml:"combat_tag_seconds"`
	TrustRequestSeconds      int `yaml:"trust_request_seconds"`
	CombatSweepMs            int `yaml:"combat_sweep_ms"`
	CooldownSweepSeconds     int `yaml:"cooldown_sweep_seconds"`
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`

	Zones     Zones     `yaml:"zones"`
	Abilities []Ability `yaml:"abilities"`
}

type Zones struct {
	CoordLimit float64 `yaml:"coord_limit"`
	LegacyMinY float64 `yaml:"legacy_min_y"`
	LegacyMaxY float64 `yaml:"legacy_max_y"`
}

// Ability declares one gated capability.
type Ability struct {
	Key         string `yaml:"key"`
	CooldownMs  int    `yaml:"cooldown_ms"`
	Targeted    bool   `yaml:"targeted"`
	Hostile     bool   `yaml:"hostile"`
	Description string `yaml:"description"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:          "1.0",
		TickRateHz:               20,
		CombatTagSeconds:         15,
		TrustRequestSeconds:      60,
		CombatSweepMs:            1000,
		CooldownSweepSeconds:     30,
		ReconcileIntervalSeconds: 0,
		Zones: Zones{
			CoordLimit: 30_000_000,
			LegacyMinY: -64,
			LegacyMaxY: 320,
		},
	}
}

// Load reads path over Defaults(): keys absent from the file keep their
// default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Defaults(), fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Defaults(), fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.TickRateHz <= 0 || t.TickRateHz > 1000:
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	case t.CombatTagSeconds <= 0:
		return fmt.Errorf("combat_tag_seconds must be positive")
	case t.TrustRequestSeconds <= 0:
		return fmt.Errorf("trust_request_seconds must be positive")
	case t.CombatSweepMs <= 0:
		return fmt.Errorf("combat_sweep_ms must be positive")
	case t.CooldownSweepSeconds <= 0:
		return fmt.Errorf("cooldown_sweep_seconds must be positive")
	case t.ReconcileIntervalSeconds < 0:
		return fmt.Errorf("reconcile_interval_seconds must not be negative")
	case t.Zones.CoordLimit <= 0:
		return fmt.Errorf("zones.coord_limit must be positive")
	case t.Zones.LegacyMinY >= t.Zones.LegacyMaxY:
		return fmt.Errorf("zones.legacy_min_y must be below legacy_max_y")
	}
	seen := map[string]bool{}
	for i, a := range t.Abilities {
		key := strings.TrimSpace(a.Key)
		if key == "" {
			return fmt.Errorf("abilities[%d]: missing key", i)
		}
		if seen[key] {
			return fmt.Errorf("abilities[%d]: duplicate key %q", i, key)
		}
		seen[key] = true
		if a.CooldownMs < 0 {
			return fmt.Errorf("abilities[%d]: negative cooldown_ms", i)
		}
		if a.Hostile && !a.Targeted {
			return fmt.Errorf("abilities[%d]: hostile abilities must be targeted", i)
		}
	}
	return nil
}

func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) CombatTag() time.Duration { return time.Duration(t.CombatTagSeconds) * time.Second }

func (t Tuning) TrustRequestTTL() time.Duration {
	return time.Duration(t.TrustRequestSeconds) * time.Second
}

func (t Tuning) CombatSweep() time.Duration { return time.Duration(t.CombatSweepMs) * time.Millisecond }

func (t Tuning) CooldownSweep() time.Duration {
	return time.Duration(t.CooldownSweepSeconds) * time.Second
}

// ReconcileInterval is zero when reconciliation only runs at startup.
func (t Tuning) ReconcileInterval() time.Duration {
	return time.Duration(t.ReconcileIntervalSeconds) * time.Second
}

func (a Ability) Cooldown() time.Duration { return time.Duration(a.CooldownMs) * time.Millisecond }
