// Package commands is the text command surface over the core: every command
// returns a Result instead of failing, and presentation is left to callers.
package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"truce.ai/internal/protocol"
	"truce.ai/internal/sim/abilities"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/combat"
	"truce.ai/internal/sim/cooldowns"
	"truce.ai/internal/sim/trust"
	"truce.ai/internal/sim/zones"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrNoPermission   = errors.New("admin only")
	ErrUnknownActor   = errors.New("no such online actor")
	ErrNotAnActor     = errors.New("console has no actor")
)

// Caller is who runs a command. The console is an admin without an actor.
type Caller struct {
	ID      actors.ID
	Admin   bool
	Console bool
}

func Console() Caller { return Caller{Admin: true, Console: true} }

type Result struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any, format string, args ...any) Result {
	return Result{OK: true, Message: fmt.Sprintf(format, args...), Data: data}
}

func fail(err error) Result {
	return Result{OK: false, Code: codeFor(err), Message: err.Error()}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return protocol.ErrUnknownCommand
	case errors.Is(err, ErrUsage), errors.Is(err, ErrNotAnActor):
		return protocol.ErrBadRequest
	case errors.Is(err, ErrNoPermission):
		return protocol.ErrNoPermission
	case errors.Is(err, ErrUnknownActor):
		return protocol.ErrUnknownActor
	}
	return protocol.CodeFor(err)
}

type Deps struct {
	Actors    *actors.Directory
	Zones     *zones.Index
	Trust     *trust.Graph
	Combat    *combat.Registry
	Cooldowns *cooldowns.Ledger
	Gate      *abilities.Gate
}

// Dispatcher must be called from the goroutine that owns the components.
type Dispatcher struct {
	Deps
	handlers map[string]handler
}

type handler func(c Caller, args []string) Result

func New(deps Deps) *Dispatcher {
	d := &Dispatcher{Deps: deps}
	d.handlers = map[string]handler{
		"trust":   d.trustCmd,
		"combat":  d.combatCmd,
		"zone":    d.zoneCmd,
		"ability": d.abilityCmd,
	}
	return d
}

// Names lists the top-level commands.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) Run(c Caller, name string, args []string) Result {
	h := d.handlers[strings.ToLower(strings.TrimSpace(name))]
	if h == nil {
		return fail(fmt.Errorf("%w: %s", ErrUnknownCommand, name))
	}
	return h(c, args)
}

func usage(format string) Result {
	return fail(fmt.Errorf("%w: %s", ErrUsage, format))
}

func (d *Dispatcher) self(c Caller) (actors.Actor, error) {
	if c.Console {
		return actors.Actor{}, ErrNotAnActor
	}
	a, ok := d.Actors.Lookup(c.ID)
	if !ok {
		return actors.Actor{}, ErrUnknownActor
	}
	return a, nil
}

func (d *Dispatcher) resolve(name string) (actors.Actor, error) {
	a, ok := d.Actors.ResolveName(name)
	if !ok {
		return actors.Actor{}, fmt.Errorf("%w: %s", ErrUnknownActor, name)
	}
	return a, nil
}

// displayName prefers the online name and falls back to the ID.
func (d *Dispatcher) displayName(id actors.ID) string {
	if id == uuid.Nil {
		return "-"
	}
	if a, ok := d.Actors.Lookup(id); ok {
		return a.Name
	}
	return id.String()
}

func (d *Dispatcher) names(ids []actors.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.displayName(id))
	}
	return out
}

func sub(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return strings.ToLower(args[0]), args[1:]
}
