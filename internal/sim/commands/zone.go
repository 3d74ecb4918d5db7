package commands

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/zones"
)

type zoneView struct {
	World     string      `json:"world"`
	Name      string      `json:"name"`
	Min       actors.Vec3 `json:"min"`
	Max       actors.Vec3 `json:"max"`
	CreatedBy string      `json:"created_by"`
	CreatedAt int64       `json:"created_at_ms,omitempty"`
}

func viewOf(z zones.Zone) zoneView {
	v := zoneView{World: z.World, Name: z.Name, Min: z.Min, Max: z.Max, CreatedBy: z.CreatedBy}
	if !z.CreatedAt.IsZero() {
		v.CreatedAt = z.CreatedAt.UnixMilli()
	}
	return v
}

type zoneInfo struct {
	Location actors.Location `json:"location"`
	Inside   bool            `json:"inside"`
	Zone     *zoneView       `json:"zone,omitempty"`
	// Distance is -1 inside and omitted when the world has no zone.
	Distance *float64 `json:"distance,omitempty"`
}

func (d *Dispatcher) zoneCmd(c Caller, args []string) Result {
	op, rest := sub(args)
	switch op {
	case "create":
		if !c.Admin {
			return fail(ErrNoPermission)
		}
		if len(rest) < 7 {
			return usage("zone create <world> <x1> <y1> <z1> <x2> <y2> <z2> [name...]")
		}
		coords, err := parseFloats(rest[1:7])
		if err != nil {
			return usage(err.Error())
		}
		a := actors.Vec3{X: coords[0], Y: coords[1], Z: coords[2]}
		b := actors.Vec3{X: coords[3], Y: coords[4], Z: coords[5]}
		z, err := d.Zones.Register(rest[0], a, b, strings.Join(rest[7:], " "), d.creator(c))
		if err != nil {
			return fail(err)
		}
		return ok(viewOf(z), "Safe zone %q created in %s from %s to %s.", z.Name, z.World, z.Min, z.Max)

	case "remove":
		if !c.Admin {
			return fail(ErrNoPermission)
		}
		if len(rest) != 1 {
			return usage("zone remove <world>")
		}
		if !d.Zones.Unregister(rest[0]) {
			return ok(nil, "No safe zone in %s.", rest[0])
		}
		return ok(nil, "Safe zone in %s removed.", rest[0])

	case "list", "":
		list := d.Zones.List()
		views := make([]zoneView, 0, len(list))
		lines := make([]string, 0, len(list))
		for _, z := range list {
			views = append(views, viewOf(z))
			lines = append(lines, fmt.Sprintf("%s: %q %s..%s", z.World, z.Name, z.Min, z.Max))
		}
		if len(views) == 0 {
			return ok(views, "No safe zones.")
		}
		return ok(views, "%d safe zones: %s", len(views), strings.Join(lines, "; "))

	case "info":
		loc, err := d.infoLocation(c, rest)
		if err != nil {
			return fail(err)
		}
		info := zoneInfo{Location: loc, Inside: d.Zones.Contains(loc)}
		z, has := d.Zones.Get(loc.World)
		if !has {
			return ok(info, "No safe zone in %s.", loc.World)
		}
		zv := viewOf(z)
		dist := d.Zones.DistanceToEdge(loc)
		info.Zone, info.Distance = &zv, &dist
		if info.Inside {
			return ok(info, "%s is inside safe zone %q.", loc.Pos, z.Name)
		}
		return ok(info, "%s is %.1f blocks from safe zone %q.", loc.Pos, dist, z.Name)
	}
	return usage("zone create|remove|list|info")
}

func (d *Dispatcher) creator(c Caller) string {
	if c.Console {
		return "console"
	}
	return d.displayName(c.ID)
}

func (d *Dispatcher) infoLocation(c Caller, args []string) (actors.Location, error) {
	switch len(args) {
	case 0:
		me, err := d.self(c)
		if err != nil {
			return actors.Location{}, err
		}
		return me.Loc, nil
	case 4:
		xyz, err := parseFloats(args[1:4])
		if err != nil {
			return actors.Location{}, fmt.Errorf("%w: %v", ErrUsage, err)
		}
		return actors.Location{World: args[0], Pos: actors.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	}
	return actors.Location{}, fmt.Errorf("%w: zone info [<world> <x> <y> <z>]", ErrUsage)
}

func parseFloats(in []string) ([]float64, error) {
	out := make([]float64, len(in))
	for i, s := range in {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("not a coordinate: %q", s)
		}
		out[i] = f
	}
	return out, nil
}
