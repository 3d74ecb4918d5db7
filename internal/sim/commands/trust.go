package commands

import (
	"strings"

	"github.com/google/uuid"

	"truce.ai/internal/sim/actors"
)

type trustView struct {
	Peers   []actors.ID `json:"peers"`
	Names   []string    `json:"names"`
	Pending string      `json:"pending_from,omitempty"`
}

func (d *Dispatcher) trustCmd(c Caller, args []string) Result {
	op, rest := sub(args)
	if op == "status" && c.Admin {
		return d.trustStatus(c, rest)
	}
	me, err := d.self(c)
	if err != nil {
		return fail(err)
	}
	switch op {
	case "request", "add":
		if len(rest) != 1 {
			return usage("trust request <actor>")
		}
		target, err := d.resolve(rest[0])
		if err != nil {
			return fail(err)
		}
		mutual, err := d.Trust.RequestTrust(me.ID, target.ID)
		if err != nil {
			return fail(err)
		}
		if mutual {
			return ok(nil, "You and %s now trust each other.", target.Name)
		}
		return ok(nil, "Trust request sent to %s.", target.Name)

	case "accept":
		requester, err := d.Trust.AcceptTrust(me.ID)
		if err != nil {
			return fail(err)
		}
		return ok(nil, "You now trust %s.", d.displayName(requester))

	case "deny":
		requester, err := d.Trust.DenyTrust(me.ID)
		if err != nil {
			return fail(err)
		}
		return ok(nil, "Denied the trust request from %s.", d.displayName(requester))

	case "remove":
		if len(rest) != 1 {
			return usage("trust remove <actor>")
		}
		other, err := d.resolvePeer(rest[0])
		if err != nil {
			return fail(err)
		}
		if err := d.Trust.RemoveTrust(me.ID, other); err != nil {
			return fail(err)
		}
		return ok(nil, "You no longer trust %s.", d.displayName(other))

	case "list", "":
		peers := d.Trust.TrustedPeers(me.ID)
		view := trustView{Peers: peers, Names: d.names(peers)}
		if p, has := d.Trust.PendingFor(me.ID); has {
			view.Pending = d.displayName(p.Requester)
		}
		if len(peers) == 0 {
			return ok(view, "You trust no one.")
		}
		return ok(view, "Trusted: %s", strings.Join(view.Names, ", "))

	case "status":
		st := d.Trust.Status(me.ID)
		return ok(st, "%d outbound, %d inbound, %d mutual, %d one-sided.",
			len(st.Outbound), len(st.Inbound), len(st.Mutual), len(st.OneSided))
	}
	return usage("trust request|accept|deny|remove|list|status")
}

// resolvePeer accepts a trusted peer who is offline by ID, since breaking
// trust with someone who left is normal.
func (d *Dispatcher) resolvePeer(name string) (actors.ID, error) {
	a, err := d.resolve(name)
	if err == nil {
		return a.ID, nil
	}
	if id, perr := uuid.Parse(strings.TrimSpace(name)); perr == nil {
		return id, nil
	}
	return actors.ID{}, err
}

func (d *Dispatcher) trustStatus(c Caller, args []string) Result {
	var id actors.ID
	switch {
	case len(args) == 1:
		a, err := d.resolve(args[0])
		if err != nil {
			return fail(err)
		}
		id = a.ID
	case !c.Console:
		id = c.ID
	default:
		asym := d.Trust.Asymmetries()
		return ok(asym, "%d directed edges, %d pending requests, %d one-sided.",
			d.Trust.EdgeCount(), d.Trust.PendingCount(), len(asym))
	}
	st := d.Trust.Status(id)
	return ok(st, "%s: %d outbound, %d inbound, %d mutual, %d one-sided.",
		d.displayName(id), len(st.Outbound), len(st.Inbound), len(st.Mutual), len(st.OneSided))
}
