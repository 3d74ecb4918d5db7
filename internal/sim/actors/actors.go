// Package actors tracks who is currently online and where they stand.
// Everything else in the core refers to actors by ID and resolves them here,
// treating a failed lookup as a normal outcome.
package actors

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
)

type ID = uuid.UUID

// Vec3 is a point in world coordinates.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}

// Location is a point in a named world.
type Location struct {
	World string `json:"world"`
	Pos   Vec3   `json:"pos"`
}

type Actor struct {
	ID   ID
	Name string
	Loc  Location
}

// Resolver is the lookup step every holder of a dangling actor reference goes through.
type Resolver interface {
	Lookup(id ID) (Actor, bool)
}

// Notifier delivers a short message to an actor. Offline actors are skipped.
type Notifier interface {
	Notify(id ID, kind, text string)
}

// Notice kinds.
const (
	NoticeTrust   = "trust"
	NoticeCombat  = "combat"
	NoticeAbility = "ability"
)

type NotifyFunc func(id ID, kind, text string)

func (f NotifyFunc) Notify(id ID, kind, text string) { f(id, kind, text) }

// Discard drops every notification.
var Discard Notifier = NotifyFunc(func(ID, string, string) {})

// Directory holds online actors. It is owned by the runtime loop and not safe
// for concurrent use.
type Directory struct {
	online map[ID]*Actor
}

func NewDirectory() *Directory {
	return &Directory{online: map[ID]*Actor{}}
}

func (d *Directory) Join(id ID, name string, loc Location) Actor {
	name = strings.TrimSpace(name)
	if name == "" {
		name = id.String()
	}
	a := &Actor{ID: id, Name: name, Loc: loc}
	d.online[id] = a
	return *a
}

// Move updates an online actor's location. Unknown actors are ignored.
func (d *Directory) Move(id ID, loc Location) bool {
	a := d.online[id]
	if a == nil {
		return false
	}
	a.Loc = loc
	return true
}

func (d *Directory) Leave(id ID) bool {
	if _, ok := d.online[id]; !ok {
		return false
	}
	delete(d.online, id)
	return true
}

func (d *Directory) Lookup(id ID) (Actor, bool) {
	a := d.online[id]
	if a == nil {
		return Actor{}, false
	}
	return *a, true
}

// ResolveName finds an online actor by case-insensitive name, or by ID string.
func (d *Directory) ResolveName(name string) (Actor, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Actor{}, false
	}
	if id, err := uuid.Parse(name); err == nil {
		return d.Lookup(id)
	}
	for _, a := range d.online {
		if strings.EqualFold(a.Name, name) {
			return *a, true
		}
	}
	return Actor{}, false
}

// Online lists online actors sorted by name, then ID.
func (d *Directory) Online() []Actor {
	out := make([]Actor, 0, len(d.online))
	for _, a := range d.online {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (d *Directory) Len() int { return len(d.online) }

// SortIDs orders IDs by their canonical string form.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
