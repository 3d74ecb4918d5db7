package commands

import (
	"strings"

	"github.com/google/uuid"

	"truce.ai/internal/sim/abilities"
	"truce.ai/internal/sim/actors"
)

func (d *Dispatcher) abilityCmd(c Caller, args []string) Result {
	op, rest := sub(args)
	switch op {
	case "list", "":
		cat := d.Gate.Catalog()
		keys := make([]string, 0, len(cat))
		for _, a := range cat {
			keys = append(keys, a.Key)
		}
		return ok(cat, "Abilities: %s", strings.Join(keys, ", "))

	case "use":
		me, err := d.self(c)
		if err != nil {
			return fail(err)
		}
		if len(rest) < 1 || len(rest) > 2 {
			return usage("ability use <capability> [target]")
		}
		target := uuid.Nil
		if len(rest) == 2 {
			t, err := d.resolve(rest[1])
			if err != nil {
				return fail(err)
			}
			target = t.ID
		}
		if err := d.Gate.Use(me.ID, rest[0], target); err != nil {
			return fail(err)
		}
		return ok(nil, "Used %s.", rest[0])

	case "cooldowns":
		id := c.ID
		if len(rest) == 1 {
			if !c.Admin {
				return fail(ErrNoPermission)
			}
			a, err := d.resolve(rest[0])
			if err != nil {
				return fail(err)
			}
			id = a.ID
		} else if _, err := d.self(c); err != nil {
			return fail(err)
		}
		active := d.Cooldowns.Active(id)
		if len(active) == 0 {
			return ok(active, "No active cooldowns.")
		}
		return ok(active, "%d active cooldowns.", len(active))

	case "clear":
		if !c.Admin {
			return fail(ErrNoPermission)
		}
		if len(rest) < 1 || len(rest) > 2 {
			return usage("ability clear <actor> [capability]")
		}
		a, err := d.resolve(rest[0])
		if err != nil {
			return fail(err)
		}
		return d.clearCooldowns(a, rest[1:])
	}
	return usage("ability list|use|cooldowns|clear")
}

func (d *Dispatcher) clearCooldowns(a actors.Actor, rest []string) Result {
	if len(rest) == 1 {
		if _, known := d.Gate.Capability(rest[0]); !known {
			return fail(abilities.ErrUnknownCapability)
		}
		d.Cooldowns.Clear(a.ID, rest[0])
		return ok(nil, "Cleared %s cooldown for %s.", rest[0], a.Name)
	}
	n := d.Cooldowns.ClearAll(a.ID)
	return ok(nil, "Cleared %d cooldowns for %s.", n, a.Name)
}
