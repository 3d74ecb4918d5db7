package arena

import (
	"context"

	"truce.ai/internal/sim/combat"
	"truce.ai/internal/sim/commands"
	"truce.ai/internal/sim/trust"
	"truce.ai/internal/sim/zones"
)

// Reconcile runs trust reconciliation on demand and returns the number of
// edges it removed.
func (a *Arena) Reconcile(ctx context.Context) (repaired int, err error) {
	err = a.Do(ctx, func() { repaired = a.trust.Reconcile() })
	return repaired, err
}

// Asymmetries lists one-sided trust edges without repairing them.
func (a *Arena) Asymmetries(ctx context.Context) (edges []trust.Edge, err error) {
	err = a.Do(ctx, func() { edges = a.trust.Asymmetries() })
	return edges, err
}

func (a *Arena) CombatList(ctx context.Context) (recs []combat.Record, err error) {
	err = a.Do(ctx, func() { recs = a.combat.List() })
	return recs, err
}

func (a *Arena) Zones(ctx context.Context) (list []zones.Zone, err error) {
	err = a.Do(ctx, func() { list = a.zones.List() })
	return list, err
}

// Command runs a command on the loop as caller.
func (a *Arena) Command(ctx context.Context, caller commands.Caller, name string, args []string) (res commands.Result, err error) {
	err = a.Do(ctx, func() { res = a.cmds.Run(caller, name, args) })
	return res, err
}
