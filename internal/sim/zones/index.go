package zones

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"truce.ai/internal/persistence/docstore"
	"truce.ai/internal/sim/actors"
)

var (
	ErrAlreadyExists = errors.New("safe zone already exists for world")
	ErrInvalidBounds = errors.New("invalid safe zone bounds")
	ErrInvalidWorld  = errors.New("invalid world name")
	ErrNotFound      = errors.New("no safe zone for world")
)

type Config struct {
	// CoordLimit bounds every corner coordinate to [-CoordLimit, CoordLimit].
	CoordLimit float64
	// LegacyMinY/LegacyMaxY give the vertical extent of zones upgraded from
	// the center+radius format.
	LegacyMinY float64
	LegacyMaxY float64
}

func (c *Config) applyDefaults() {
	if c.CoordLimit <= 0 {
		c.CoordLimit = 30_000_000
	}
	if c.LegacyMinY == 0 && c.LegacyMaxY == 0 {
		c.LegacyMinY = -64
		c.LegacyMaxY = 320
	}
}

// Index is owned by the runtime loop; it is not safe for concurrent use.
type Index struct {
	cfg   Config
	zones map[string]Zone
	saver docstore.Saver
	log   *zap.Logger
	now   func() time.Time
}

func NewIndex(cfg Config, saver docstore.Saver, logger *zap.Logger, now func() time.Time) *Index {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Index{
		cfg:   cfg,
		zones: map[string]Zone{},
		saver: saver,
		log:   logger.Named("zones"),
		now:   now,
	}
}

// Register adds the zone for world. Corners may be given in any order.
func (ix *Index) Register(world string, a, b actors.Vec3, name, createdBy string) (Zone, error) {
	world = strings.TrimSpace(world)
	if world == "" {
		return Zone{}, ErrInvalidWorld
	}
	if _, ok := ix.zones[world]; ok {
		return Zone{}, fmt.Errorf("%w: %s", ErrAlreadyExists, world)
	}
	min, max := Normalize(a, b)
	if err := ix.validateBounds(min, max); err != nil {
		return Zone{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = world
	}
	z := Zone{
		World:     world,
		Min:       min,
		Max:       max,
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: ix.now().UTC(),
	}
	ix.zones[world] = z
	ix.log.Info("safe zone created",
		zap.String("world", world),
		zap.String("zone", name),
		zap.String("created_by", createdBy),
		zap.Stringer("min", min),
		zap.Stringer("max", max))
	ix.persist()
	return z, nil
}

func (ix *Index) validateBounds(min, max actors.Vec3) error {
	if !min.IsFinite() || !max.IsFinite() {
		return fmt.Errorf("%w: non-finite coordinate", ErrInvalidBounds)
	}
	lim := ix.cfg.CoordLimit
	for _, c := range [6]float64{min.X, min.Y, min.Z, max.X, max.Y, max.Z} {
		if math.Abs(c) > lim {
			return fmt.Errorf("%w: coordinate %.0f outside +/-%.0f", ErrInvalidBounds, c, lim)
		}
	}
	if min.X == max.X || min.Y == max.Y || min.Z == max.Z {
		return fmt.Errorf("%w: zero extent", ErrInvalidBounds)
	}
	return nil
}

// Unregister removes the zone for world. Absent worlds are a no-op.
func (ix *Index) Unregister(world string) bool {
	world = strings.TrimSpace(world)
	z, ok := ix.zones[world]
	if !ok {
		return false
	}
	delete(ix.zones, world)
	ix.log.Info("safe zone removed", zap.String("world", world), zap.String("zone", z.Name))
	ix.persist()
	return true
}

func (ix *Index) Contains(loc actors.Location) bool {
	z, ok := ix.zones[loc.World]
	return ok && z.Contains(loc.Pos)
}

// DistanceToEdge is -1 inside the world's zone, the distance to it outside,
// and +Inf when the world has no zone.
func (ix *Index) DistanceToEdge(loc actors.Location) float64 {
	z, ok := ix.zones[loc.World]
	if !ok {
		return math.Inf(1)
	}
	return z.DistanceToEdge(loc.Pos)
}

func (ix *Index) Get(world string) (Zone, bool) {
	z, ok := ix.zones[strings.TrimSpace(world)]
	return z, ok
}

// List returns zones sorted by world name.
func (ix *Index) List() []Zone {
	out := make([]Zone, 0, len(ix.zones))
	for _, z := range ix.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].World < out[j].World })
	return out
}

func (ix *Index) Len() int { return len(ix.zones) }

func (ix *Index) persist() {
	if ix.saver == nil {
		return
	}
	b, err := Encode(ix.zones)
	if err != nil {
		ix.log.Error("encode safe zones", zap.Error(err))
		return
	}
	ix.saver.Save(docstore.DocSafeZones, b)
}

// Load replaces the in-memory set with the stored document. Zones stored in
// the legacy center+radius shape are upgraded and the document is rewritten.
func (ix *Index) Load(ctx context.Context, store docstore.Store) (loaded int, migrated int, err error) {
	raw, err := store.Get(ctx, docstore.DocSafeZones)
	if errors.Is(err, docstore.ErrNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	res, err := Decode(raw, ix.cfg)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range res.Skipped {
		ix.log.Warn("skipping malformed safe zone entry", zap.String("world", s.World), zap.String("reason", s.Reason))
	}
	ix.zones = map[string]Zone{}
	for _, z := range res.Zones {
		if err := ix.validateBounds(z.Min, z.Max); err != nil {
			ix.log.Warn("skipping safe zone with invalid bounds", zap.String("world", z.World), zap.Error(err))
			continue
		}
		ix.zones[z.World] = z
	}
	for _, w := range res.Migrated {
		if z, ok := ix.zones[w]; ok {
			ix.log.Info("migrated legacy safe zone", zap.String("world", w), zap.String("zone", z.Name),
				zap.Stringer("min", z.Min), zap.Stringer("max", z.Max))
		}
	}
	if len(res.Migrated) > 0 {
		ix.persist()
	}
	return len(ix.zones), len(res.Migrated), nil
}
