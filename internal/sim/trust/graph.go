// Package trust keeps the pairwise consent graph. Two actors are mutually
// trusted only while both directed edges exist; one-sided edges are treated
// as corruption and removed by Reconcile.
package trust

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"truce.ai/internal/persistence/docstore"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/sched"
)

var (
	ErrSelfTrust        = errors.New("cannot trust yourself")
	ErrAlreadyTrusted   = errors.New("already mutually trusted")
	ErrDuplicatePending = errors.New("request already pending")
	ErrTargetBusy       = errors.New("target already has a pending request")
	ErrNoPendingRequest = errors.New("no pending trust request")
	ErrRequesterGone    = errors.New("requester is no longer online")
	ErrNotTrusted       = errors.New("not mutually trusted")
)

type Config struct {
	RequestTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.RequestTTL <= 0 {
		c.RequestTTL = 60 * time.Second
	}
}

// Deps are the collaborators a Graph needs. Only Sched is required.
type Deps struct {
	Sched    *sched.Queue
	Actors   actors.Resolver
	Notifier actors.Notifier
	Saver    docstore.Saver
	Log      *zap.Logger
}

type Request struct {
	Requester actors.ID `json:"requester"`
	Target    actors.ID `json:"target"`
	ExpiresAt time.Time `json:"expires_at"`

	task *sched.Handle
}

// Edge is a directed trust edge From -> To.
type Edge struct {
	From actors.ID `json:"from"`
	To   actors.ID `json:"to"`
}

// Graph is owned by the runtime loop; it is not safe for concurrent use.
type Graph struct {
	cfg     Config
	edges   map[actors.ID]map[actors.ID]struct{}
	pending map[actors.ID]*Request // keyed by target

	q      *sched.Queue
	actors actors.Resolver
	notify actors.Notifier
	saver  docstore.Saver
	log    *zap.Logger
}

func New(cfg Config, deps Deps) *Graph {
	cfg.applyDefaults()
	if deps.Sched == nil {
		deps.Sched = sched.New(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = actors.Discard
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Graph{
		cfg:     cfg,
		edges:   map[actors.ID]map[actors.ID]struct{}{},
		pending: map[actors.ID]*Request{},
		q:       deps.Sched,
		actors:  deps.Actors,
		notify:  deps.Notifier,
		saver:   deps.Saver,
		log:     deps.Log.Named("trust"),
	}
}

// SetRequestTTL changes the lifetime of requests made from now on.
func (g *Graph) SetRequestTTL(d time.Duration) {
	if d > 0 {
		g.cfg.RequestTTL = d
	}
}

func (g *Graph) has(from, to actors.ID) bool {
	_, ok := g.edges[from][to]
	return ok
}

func (g *Graph) addEdge(from, to actors.ID) {
	set := g.edges[from]
	if set == nil {
		set = map[actors.ID]struct{}{}
		g.edges[from] = set
	}
	set[to] = struct{}{}
}

func (g *Graph) deleteEdge(from, to actors.ID) bool {
	set := g.edges[from]
	if _, ok := set[to]; !ok {
		return false
	}
	delete(set, to)
	if len(set) == 0 {
		delete(g.edges, from)
	}
	return true
}

func (g *Graph) mutual(a, b actors.ID) bool {
	return a != b && g.has(a, b) && g.has(b, a)
}

// IsTrusted reports whether both directed edges between a and b exist.
// A one-sided pair is logged and reported as untrusted.
func (g *Graph) IsTrusted(a, b actors.ID) bool {
	if a == b {
		return false
	}
	ab, ba := g.has(a, b), g.has(b, a)
	if ab != ba {
		from, to := a, b
		if ba {
			from, to = b, a
		}
		g.log.Warn("asymmetric trust edge", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	return ab && ba
}

// RequestTrust records a pending request from requester to target. If target
// already has a pending request out to requester, both sides have consented
// and mutual trust is formed at once; mutual is true in that case.
func (g *Graph) RequestTrust(requester, target actors.ID) (mutual bool, err error) {
	if requester == target {
		return false, ErrSelfTrust
	}
	if g.mutual(requester, target) {
		return false, ErrAlreadyTrusted
	}
	if crossed := g.pending[requester]; crossed != nil && crossed.Requester == target && g.live(crossed) {
		g.dropRequest(crossed)
		g.log.Info("crossed trust requests resolved",
			zap.Stringer("actor", requester), zap.Stringer("peer", target))
		g.form(target, requester)
		return true, nil
	}
	if p := g.pending[target]; p != nil && g.live(p) {
		if p.Requester == requester {
			return false, ErrDuplicatePending
		}
		return false, ErrTargetBusy
	}

	req := &Request{
		Requester: requester,
		Target:    target,
		ExpiresAt: g.q.Now().Add(g.cfg.RequestTTL),
	}
	req.task = g.q.After(g.cfg.RequestTTL, func() { g.expire(req) })
	g.pending[target] = req
	g.log.Info("trust requested",
		zap.Stringer("actor", requester), zap.Stringer("target", target), zap.Time("expires_at", req.ExpiresAt))
	g.notify.Notify(target, actors.NoticeTrust,
		fmt.Sprintf("%s wants to trust you. Accept or deny within %s.", g.name(requester), g.cfg.RequestTTL))
	return false, nil
}

// live reports whether p has not yet reached its expiry. A request whose
// expiry task has not run yet is expired here instead.
func (g *Graph) live(p *Request) bool {
	if g.q.Now().Before(p.ExpiresAt) {
		return true
	}
	g.expire(p)
	return false
}

func (g *Graph) expire(req *Request) {
	if g.pending[req.Target] != req {
		return
	}
	g.dropRequest(req)
	g.log.Info("trust request expired", zap.Stringer("actor", req.Requester), zap.Stringer("target", req.Target))
	g.notify.Notify(req.Requester, actors.NoticeTrust,
		fmt.Sprintf("Your trust request to %s expired.", g.name(req.Target)))
	g.notify.Notify(req.Target, actors.NoticeTrust,
		fmt.Sprintf("The trust request from %s expired.", g.name(req.Requester)))
}

func (g *Graph) dropRequest(req *Request) {
	if g.pending[req.Target] == req {
		delete(g.pending, req.Target)
	}
	req.task.Cancel()
}

// AcceptTrust accepts the pending request addressed to target and returns the
// requester.
func (g *Graph) AcceptTrust(target actors.ID) (actors.ID, error) {
	p := g.pending[target]
	if p == nil || !g.live(p) {
		return actors.ID{}, ErrNoPendingRequest
	}
	g.dropRequest(p)
	if !g.resolvable(p.Requester) {
		g.log.Info("trust request discarded, requester gone",
			zap.Stringer("actor", p.Requester), zap.Stringer("target", target))
		return p.Requester, ErrRequesterGone
	}
	g.form(p.Requester, target)
	return p.Requester, nil
}

func (g *Graph) form(a, b actors.ID) {
	g.addEdge(a, b)
	g.addEdge(b, a)
	if !g.mutual(a, b) {
		g.log.Error("trust not mutual after accept", zap.Stringer("actor", a), zap.Stringer("peer", b))
	}
	g.log.Info("trust formed", zap.Stringer("actor", a), zap.Stringer("peer", b))
	g.notify.Notify(a, actors.NoticeTrust, fmt.Sprintf("You and %s now trust each other.", g.name(b)))
	g.notify.Notify(b, actors.NoticeTrust, fmt.Sprintf("You and %s now trust each other.", g.name(a)))
	g.persist()
}

// DenyTrust discards the pending request addressed to target and returns the
// requester.
func (g *Graph) DenyTrust(target actors.ID) (actors.ID, error) {
	p := g.pending[target]
	if p == nil || !g.live(p) {
		return actors.ID{}, ErrNoPendingRequest
	}
	g.dropRequest(p)
	g.log.Info("trust request denied", zap.Stringer("actor", p.Requester), zap.Stringer("target", target))
	if g.resolvable(p.Requester) {
		g.notify.Notify(p.Requester, actors.NoticeTrust, fmt.Sprintf("%s denied your trust request.", g.name(target)))
	}
	return p.Requester, nil
}

// RemoveTrust breaks an existing mutual trust between initiator and other.
func (g *Graph) RemoveTrust(initiator, other actors.ID) error {
	if !g.mutual(initiator, other) {
		return ErrNotTrusted
	}
	g.deleteEdge(initiator, other)
	g.deleteEdge(other, initiator)
	g.log.Info("trust broken", zap.Stringer("actor", initiator), zap.Stringer("peer", other))
	g.notify.Notify(other, actors.NoticeTrust, fmt.Sprintf("%s no longer trusts you.", g.name(initiator)))
	g.persist()
	return nil
}

// TrustedPeers lists actors mutually trusted with actor, in ID order.
func (g *Graph) TrustedPeers(actor actors.ID) []actors.ID {
	var out []actors.ID
	for peer := range g.edges[actor] {
		if g.has(peer, actor) {
			out = append(out, peer)
		}
	}
	actors.SortIDs(out)
	return out
}

// Asymmetries lists directed edges whose mirror is missing. It does not
// mutate the graph.
func (g *Graph) Asymmetries() []Edge {
	var out []Edge
	for from, set := range g.edges {
		for to := range set {
			if !g.has(to, from) {
				out = append(out, Edge{From: from, To: to})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From.String() < out[j].From.String()
		}
		return out[i].To.String() < out[j].To.String()
	})
	return out
}

// Reconcile deletes every one-sided edge and returns how many it removed.
func (g *Graph) Reconcile() int {
	bad := g.Asymmetries()
	for _, e := range bad {
		g.deleteEdge(e.From, e.To)
		g.log.Warn("removed one-sided trust edge", zap.Stringer("from", e.From), zap.Stringer("to", e.To))
	}
	if len(bad) > 0 {
		g.log.Info("trust reconciliation repaired edges", zap.Int("repaired", len(bad)))
		g.persist()
	}
	return len(bad)
}

// Forget deletes actor's outbound edges only, as a data-removal request
// would. Mirrored inbound edges stay until Reconcile runs.
func (g *Graph) Forget(actor actors.ID) int {
	n := len(g.edges[actor])
	if n == 0 {
		return 0
	}
	delete(g.edges, actor)
	g.log.Info("trust edges forgotten", zap.Stringer("actor", actor), zap.Int("edges", n))
	g.persist()
	return n
}

// DropPendingFor discards requests sent by or addressed to actor.
func (g *Graph) DropPendingFor(actor actors.ID) int {
	var drop []*Request
	for _, p := range g.pending {
		if p.Requester == actor || p.Target == actor {
			drop = append(drop, p)
		}
	}
	for _, p := range drop {
		g.dropRequest(p)
		g.log.Debug("trust request dropped", zap.Stringer("actor", p.Requester), zap.Stringer("target", p.Target))
	}
	return len(drop)
}

// PendingFor returns the request currently addressed to target.
func (g *Graph) PendingFor(target actors.ID) (Request, bool) {
	p := g.pending[target]
	if p == nil || !g.q.Now().Before(p.ExpiresAt) {
		return Request{}, false
	}
	return *p, true
}

// PendingFrom returns requests sent by requester that are still waiting.
func (g *Graph) PendingFrom(requester actors.ID) []Request {
	var out []Request
	now := g.q.Now()
	for _, p := range g.pending {
		if p.Requester == requester && now.Before(p.ExpiresAt) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target.String() < out[j].Target.String() })
	return out
}

// Status is a debugging view of one actor's edges.
type Status struct {
	Actor      actors.ID   `json:"actor"`
	Outbound   []actors.ID `json:"outbound"`
	Inbound    []actors.ID `json:"inbound"`
	Mutual     []actors.ID `json:"mutual"`
	OneSided   []Edge      `json:"one_sided,omitempty"`
	PendingIn  *Request    `json:"pending_in,omitempty"`
	PendingOut []Request   `json:"pending_out,omitempty"`
}

func (g *Graph) Status(actor actors.ID) Status {
	st := Status{Actor: actor}
	for to := range g.edges[actor] {
		st.Outbound = append(st.Outbound, to)
		if !g.has(to, actor) {
			st.OneSided = append(st.OneSided, Edge{From: actor, To: to})
		}
	}
	for from, set := range g.edges {
		if _, ok := set[actor]; ok && from != actor {
			st.Inbound = append(st.Inbound, from)
			if !g.has(actor, from) {
				st.OneSided = append(st.OneSided, Edge{From: from, To: actor})
			}
		}
	}
	actors.SortIDs(st.Outbound)
	actors.SortIDs(st.Inbound)
	st.Mutual = g.TrustedPeers(actor)
	if p, ok := g.PendingFor(actor); ok {
		st.PendingIn = &p
	}
	st.PendingOut = g.PendingFrom(actor)
	return st
}

// EdgeCount is the number of directed edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, set := range g.edges {
		n += len(set)
	}
	return n
}

func (g *Graph) PendingCount() int { return len(g.pending) }

func (g *Graph) resolvable(id actors.ID) bool {
	if g.actors == nil {
		return true
	}
	_, ok := g.actors.Lookup(id)
	return ok
}

func (g *Graph) name(id actors.ID) string {
	if g.actors != nil {
		if a, ok := g.actors.Lookup(id); ok {
			return a.Name
		}
	}
	return id.String()
}
