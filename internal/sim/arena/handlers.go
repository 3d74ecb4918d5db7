package arena

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"truce.ai/internal/protocol"
	"truce.ai/internal/sim/abilities"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/combat"
	"truce.ai/internal/sim/commands"
)

// allyRadius bounds who an untargeted ability announces itself to.
const allyRadius = 32.0

func (a *Arena) handleJoin(req JoinRequest) {
	reply := func(r JoinResponse) {
		if req.Resp == nil {
			return
		}
		select {
		case req.Resp <- r:
		default:
			// Client timed out; don't block the loop.
		}
	}
	if req.ActorID == uuid.Nil || req.Out == nil {
		reply(JoinResponse{Code: protocol.ErrProtoBadRequest, Message: "missing actor id"})
		return
	}
	if _, online := a.sessions[req.ActorID]; online {
		reply(JoinResponse{Code: protocol.ErrBadRequest, Message: "actor already connected"})
		return
	}
	if !req.Loc.Pos.IsFinite() || strings.TrimSpace(req.Loc.World) == "" {
		reply(JoinResponse{Code: protocol.ErrProtoBadRequest, Message: "bad location"})
		return
	}
	actor := a.dir.Join(req.ActorID, req.Name, req.Loc)
	a.sessions[req.ActorID] = &session{out: req.Out}
	a.log.Info("actor joined", zap.Stringer("actor", actor.ID), zap.String("name", actor.Name),
		zap.String("world", actor.Loc.World), zap.Stringer("pos", actor.Loc.Pos))

	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         actor.ID.String(),
		Name:            actor.Name,
		CombatTagMs:     a.combat.TagDuration().Milliseconds(),
	}
	for _, c := range a.gate.Catalog() {
		w.Abilities = append(w.Abilities, protocol.AbilitySummary{
			Key: c.Key, CooldownMs: c.Cooldown.Milliseconds(), Targeted: c.Targeted, Hostile: c.Hostile,
		})
	}
	reply(JoinResponse{Welcome: w})
	if p, ok := a.trust.PendingFor(actor.ID); ok {
		a.notify(actor.ID, actors.NoticeTrust,
			fmt.Sprintf("You have a pending trust request from %s.", a.displayName(p.Requester)))
	}
}

// handleLeave is the disconnect path: combat consequences first, then the
// actor's pending trust requests, then the directory entry.
func (a *Arena) handleLeave(id actors.ID, req LeaveRequest) {
	var resp LeaveResponse
	if _, online := a.sessions[id]; online {
		resp.Punished = a.combat.HandleDisconnect(id)
		dropped := a.trust.DropPendingFor(id)
		a.dir.Leave(id)
		delete(a.sessions, id)
		a.log.Info("actor left", zap.Stringer("actor", id),
			zap.Bool("punished", resp.Punished), zap.Int("trust_requests_dropped", dropped))
	}
	if req.Resp != nil {
		select {
		case req.Resp <- resp:
		default:
		}
	}
}

func (a *Arena) handleEnvelope(env Envelope) {
	if req, ok := env.Msg.(LeaveRequest); ok {
		a.handleLeave(env.ActorID, req)
		return
	}
	if _, online := a.sessions[env.ActorID]; !online {
		return
	}
	switch m := env.Msg.(type) {
	case *protocol.MoveMsg:
		loc := actors.Location{World: m.World, Pos: actors.Vec3{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]}}
		if !loc.Pos.IsFinite() {
			return
		}
		if loc.World == "" {
			if cur, ok := a.dir.Lookup(env.ActorID); ok {
				loc.World = cur.Loc.World
			}
		}
		a.dir.Move(env.ActorID, loc)

	case *protocol.HitMsg:
		victim, err := uuid.Parse(m.Victim)
		if err != nil {
			a.result(env.ActorID, m.ID, commands.Result{Code: protocol.ErrProtoBadRequest, Message: "bad victim id"}, "")
			return
		}
		v := a.combat.Hit(env.ActorID, victim)
		r := commands.Result{OK: v == combat.Allow}
		switch v {
		case combat.VetoSafeZone:
			r.Code, r.Message = protocol.ErrVetoed, "safe zone"
		case combat.VetoTrusted:
			r.Code, r.Message = protocol.ErrVetoed, "trusted ally"
		}
		a.result(env.ActorID, m.ID, r, string(v))

	case *protocol.DiedMsg:
		released := a.combat.HandleDeath(env.ActorID)
		a.log.Info("actor died", zap.Stringer("actor", env.ActorID), zap.Int("released", len(released)))

	case *protocol.CmdMsg:
		caller := commands.Caller{ID: env.ActorID, Admin: a.admins[env.ActorID]}
		a.result(env.ActorID, m.ID, a.cmds.Run(caller, m.Name, m.Args), "")

	case *protocol.UseMsg:
		target := uuid.Nil
		if m.Target != "" {
			t, ok := a.dir.ResolveName(m.Target)
			if !ok {
				a.result(env.ActorID, m.ID, commands.Result{Code: protocol.ErrTargetOffline, Message: "target is not online"}, "")
				return
			}
			target = t.ID
		}
		r := commands.Result{OK: true, Message: "used " + m.Capability}
		var veto *abilities.VetoError
		verdict := ""
		if err := a.gate.Use(env.ActorID, m.Capability, target); err != nil {
			r = commands.Result{Code: protocol.CodeFor(err), Message: err.Error()}
			if errors.As(err, &veto) {
				verdict = string(veto.Verdict)
			}
		}
		a.result(env.ActorID, m.ID, r, verdict)

	default:
		a.log.Debug("ignoring message", zap.Stringer("actor", env.ActorID), zap.String("type", fmt.Sprintf("%T", env.Msg)))
	}
}

func (a *Arena) result(id actors.ID, ref string, r commands.Result, verdict string) {
	a.send(id, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             ref,
		OK:              r.OK,
		Code:            r.Code,
		Message:         r.Message,
		Verdict:         verdict,
		Data:            r.Data,
	})
}

func (a *Arena) notify(id actors.ID, kind, text string) {
	a.send(id, protocol.NoticeMsg{Type: protocol.TypeNotice, Kind: kind, Text: text})
}

func (a *Arena) punish(id actors.ID, reason string) {
	a.send(id, protocol.PunishMsg{Type: protocol.TypePunish, Reason: reason})
}

// announceAbility is the effect for capabilities without a dedicated one:
// the target, or nearby allies for untargeted capabilities, are told.
func (a *Arena) announceAbility(user, target actors.ID, c abilities.Capability) error {
	name := a.displayName(user)
	if target != uuid.Nil {
		if target != user {
			a.notify(target, actors.NoticeAbility, fmt.Sprintf("%s used %s on you.", name, c.Key))
		}
		return nil
	}
	me, ok := a.dir.Lookup(user)
	if !ok {
		return nil
	}
	var near []actors.ID
	for _, other := range a.dir.Online() {
		if other.Loc.World == me.Loc.World && dist(other.Loc.Pos, me.Loc.Pos) <= allyRadius {
			near = append(near, other.ID)
		}
	}
	for _, id := range a.gate.Allies(user, near) {
		a.notify(id, actors.NoticeAbility, fmt.Sprintf("%s used %s nearby.", name, c.Key))
	}
	return nil
}

func dist(p, q actors.Vec3) float64 {
	dx, dy, dz := p.X-q.X, p.Y-q.Y, p.Z-q.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (a *Arena) displayName(id actors.ID) string {
	if act, ok := a.dir.Lookup(id); ok {
		return act.Name
	}
	return id.String()
}
