package zones

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"truce.ai/internal/sim/actors"
)

// entrySchema accepts either the cuboid shape or the legacy center+radius shape.
const entrySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "cuboid": {
      "type": "object",
      "required": ["minX", "minY", "minZ", "maxX", "maxY", "maxZ"],
      "properties": {
        "minX": {"type": "number"}, "minY": {"type": "number"}, "minZ": {"type": "number"},
        "maxX": {"type": "number"}, "maxY": {"type": "number"}, "maxZ": {"type": "number"},
        "name": {"type": "string"},
        "createdBy": {"type": "string"},
        "createdAt": {"type": "integer", "minimum": 0}
      }
    },
    "legacy": {
      "type": "object",
      "required": ["centerX", "centerZ", "radius"],
      "properties": {
        "centerX": {"type": "number"},
        "centerZ": {"type": "number"},
        "radius": {"type": "number", "exclusiveMinimum": 0},
        "name": {"type": "string"},
        "createdBy": {"type": "string"}
      }
    }
  },
  "anyOf": [{"$ref": "#/definitions/cuboid"}, {"$ref": "#/definitions/legacy"}]
}`

var entryValidator = jsonschema.MustCompileString("truce://safezone-entry.schema.json", entrySchema)

type zoneDoc struct {
	MinX      float64 `json:"minX"`
	MinY      float64 `json:"minY"`
	MinZ      float64 `json:"minZ"`
	MaxX      float64 `json:"maxX"`
	MaxY      float64 `json:"maxY"`
	MaxZ      float64 `json:"maxZ"`
	Name      string  `json:"name"`
	CreatedBy string  `json:"createdBy"`
	CreatedAt int64   `json:"createdAt,omitempty"`
}

// Encode renders the zone set as the safe-zone document (world -> cuboid).
func Encode(zs map[string]Zone) ([]byte, error) {
	doc := make(map[string]zoneDoc, len(zs))
	for w, z := range zs {
		d := zoneDoc{
			MinX: z.Min.X, MinY: z.Min.Y, MinZ: z.Min.Z,
			MaxX: z.Max.X, MaxY: z.Max.Y, MaxZ: z.Max.Z,
			Name:      z.Name,
			CreatedBy: z.CreatedBy,
		}
		if !z.CreatedAt.IsZero() {
			d.CreatedAt = z.CreatedAt.UnixMilli()
		}
		doc[w] = d
	}
	return json.Marshal(doc)
}

type Skipped struct {
	World  string
	Reason string
}

type DecodeResult struct {
	Zones    []Zone
	Migrated []string
	Skipped  []Skipped
}

// Decode parses the safe-zone document. Entries that match neither shape are
// reported in Skipped rather than failing the whole document.
func Decode(raw []byte, cfg Config) (DecodeResult, error) {
	cfg.applyDefaults()
	var res DecodeResult
	if !gjson.ValidBytes(raw) {
		return res, errors.New("safe zone document is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return res, errors.New("safe zone document is not an object")
	}

	root.ForEach(func(key, val gjson.Result) bool {
		world := key.String()
		if world == "" {
			res.Skipped = append(res.Skipped, Skipped{World: world, Reason: "empty world name"})
			return true
		}
		var v any
		if err := json.Unmarshal([]byte(val.Raw), &v); err != nil {
			res.Skipped = append(res.Skipped, Skipped{World: world, Reason: err.Error()})
			return true
		}
		if err := entryValidator.Validate(v); err != nil {
			res.Skipped = append(res.Skipped, Skipped{World: world, Reason: err.Error()})
			return true
		}

		z := Zone{
			World:     world,
			Name:      val.Get("name").String(),
			CreatedBy: val.Get("createdBy").String(),
		}
		if z.Name == "" {
			z.Name = world
		}
		if val.Get("minX").Exists() {
			z.Min, z.Max = Normalize(
				actors.Vec3{X: val.Get("minX").Float(), Y: val.Get("minY").Float(), Z: val.Get("minZ").Float()},
				actors.Vec3{X: val.Get("maxX").Float(), Y: val.Get("maxY").Float(), Z: val.Get("maxZ").Float()},
			)
			if ms := val.Get("createdAt").Int(); ms > 0 {
				z.CreatedAt = time.UnixMilli(ms).UTC()
			}
		} else {
			cx, cz, r := val.Get("centerX").Float(), val.Get("centerZ").Float(), val.Get("radius").Float()
			z.Min = actors.Vec3{X: cx - r, Y: cfg.LegacyMinY, Z: cz - r}
			z.Max = actors.Vec3{X: cx + r, Y: cfg.LegacyMaxY, Z: cz + r}
			res.Migrated = append(res.Migrated, world)
		}
		res.Zones = append(res.Zones, z)
		return true
	})

	sort.Slice(res.Zones, func(i, j int) bool { return res.Zones[i].World < res.Zones[j].World })
	sort.Strings(res.Migrated)
	return res, nil
}
