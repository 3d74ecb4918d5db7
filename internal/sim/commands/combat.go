package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"truce.ai/internal/sim/actors"
)

type combatView struct {
	Actor        actors.ID `json:"actor"`
	Name         string    `json:"name"`
	InCombat     bool      `json:"in_combat"`
	RemainingMs  int64     `json:"remaining_ms,omitempty"`
	Cause        string    `json:"cause,omitempty"`
	CausedByAlly bool      `json:"caused_by_ally,omitempty"`
	Forced       bool      `json:"forced,omitempty"`
}

func (d *Dispatcher) combatCmd(c Caller, args []string) Result {
	op, rest := sub(args)
	switch op {
	case "status", "":
		if len(rest) == 0 {
			me, err := d.self(c)
			if err != nil {
				return fail(err)
			}
			return d.combatStatus(me.ID)
		}
		if !c.Admin {
			return fail(ErrNoPermission)
		}
		a, err := d.resolve(rest[0])
		if err != nil {
			return fail(err)
		}
		return d.combatStatus(a.ID)

	case "list":
		if !c.Admin {
			return fail(ErrNoPermission)
		}
		recs := d.Combat.List()
		views := make([]combatView, 0, len(recs))
		lines := make([]string, 0, len(recs))
		for _, r := range recs {
			v := d.view(r.Actor)
			views = append(views, v)
			lines = append(lines, fmt.Sprintf("%s (%s, cause %s)", v.Name,
				time.Duration(v.RemainingMs)*time.Millisecond, v.Cause))
		}
		if len(views) == 0 {
			return ok(views, "Nobody is in combat.")
		}
		return ok(views, "%d in combat: %s", len(views), strings.Join(lines, "; "))

	case "remove":
		if !c.Admin {
			return fail(ErrNoPermission)
		}
		if len(rest) != 1 {
			return usage("combat remove <actor>")
		}
		a, err := d.resolve(rest[0])
		if err != nil {
			return fail(err)
		}
		if err := d.Combat.RemoveFromCombat(a.ID); err != nil {
			return fail(err)
		}
		return ok(nil, "Released %s from combat.", a.Name)

	case "force":
		if !c.Admin {
			return fail(ErrNoPermission)
		}
		if len(rest) < 1 {
			return usage("combat force <actor> [reason...]")
		}
		a, err := d.resolve(rest[0])
		if err != nil {
			return fail(err)
		}
		reason := strings.Join(rest[1:], " ")
		if reason == "" {
			reason = "admin"
		}
		if err := d.Combat.ForceInCombat(a.ID, uuid.Nil, reason); err != nil {
			return fail(err)
		}
		return ok(d.view(a.ID), "Forced %s into combat for %s.", a.Name, d.Combat.TagDuration())
	}
	return usage("combat status|list|remove|force")
}

func (d *Dispatcher) view(id actors.ID) combatView {
	v := combatView{Actor: id, Name: d.displayName(id)}
	rec, in := d.Combat.Get(id)
	if !in {
		return v
	}
	v.InCombat = true
	v.RemainingMs = d.Combat.Remaining(id).Milliseconds()
	v.Forced = rec.Forced
	if rec.HasCause() {
		v.Cause = d.displayName(rec.Cause)
		v.CausedByAlly = d.Combat.IsCausedByAlly(id)
	}
	return v
}

func (d *Dispatcher) combatStatus(id actors.ID) Result {
	v := d.view(id)
	if !v.InCombat {
		return ok(v, "%s is not in combat.", v.Name)
	}
	cause := v.Cause
	if cause == "" {
		cause = "an administrator"
	}
	return ok(v, "%s is in combat with %s for %.1fs.", v.Name, cause, float64(v.RemainingMs)/1000)
}
