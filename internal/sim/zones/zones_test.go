package zones

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"truce.ai/internal/persistence/docstore"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/sched"
)

func v(x, y, z float64) actors.Vec3 { return actors.Vec3{X: x, Y: y, Z: z} }

func loc(world string, x, y, z float64) actors.Location {
	return actors.Location{World: world, Pos: v(x, y, z)}
}

func newTestIndex(store docstore.Store) *Index {
	clk := sched.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewIndex(Config{}, docstore.Direct{Store: store}, nil, clk.Now)
}

func TestRegister_NormalizesCorners(t *testing.T) {
	a := newTestIndex(docstore.NewMemory())
	b := newTestIndex(docstore.NewMemory())
	if _, err := a.Register("w", v(5, 0, 5), v(-5, 10, -5), "spawn", "admin"); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if _, err := b.Register("w", v(-5, 0, -5), v(5, 10, 5), "spawn", "admin"); err != nil {
		t.Fatalf("register b: %v", err)
	}
	za, _ := a.Get("w")
	zb, _ := b.Get("w")
	if za.Min != zb.Min || za.Max != zb.Max {
		t.Fatalf("zones differ: %+v vs %+v", za, zb)
	}
	for x := -7.0; x <= 7; x += 0.5 {
		for y := -2.0; y <= 12; y += 1 {
			for z := -7.0; z <= 7; z += 1.5 {
				l := loc("w", x, y, z)
				if a.Contains(l) != b.Contains(l) {
					t.Fatalf("contains mismatch at %v", l.Pos)
				}
			}
		}
	}
}

func TestRegister_Rejections(t *testing.T) {
	ix := newTestIndex(docstore.NewMemory())
	if _, err := ix.Register("w", v(0, 0, 0), v(10, 10, 10), "", "admin"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := ix.Register("w", v(20, 0, 20), v(30, 10, 30), "", "admin"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	cases := []struct {
		name string
		a, b actors.Vec3
	}{
		{"zero extent x", v(1, 0, 0), v(1, 10, 10)},
		{"zero extent y", v(0, 5, 0), v(10, 5, 10)},
		{"out of range", v(-40_000_000, 0, 0), v(10, 10, 10)},
		{"nan", v(math.NaN(), 0, 0), v(10, 10, 10)},
	}
	for _, tc := range cases {
		if _, err := ix.Register("other", tc.a, tc.b, "", "admin"); !errors.Is(err, ErrInvalidBounds) {
			t.Fatalf("%s: expected ErrInvalidBounds, got %v", tc.name, err)
		}
	}
	if _, ok := ix.Get("other"); ok {
		t.Fatalf("rejected zone must not be stored")
	}
	if _, err := ix.Register("  ", v(0, 0, 0), v(1, 1, 1), "", "admin"); !errors.Is(err, ErrInvalidWorld) {
		t.Fatalf("expected ErrInvalidWorld, got %v", err)
	}
}

func TestContainsAndDistance(t *testing.T) {
	ix := newTestIndex(docstore.NewMemory())
	if _, err := ix.Register("w", v(0, 0, 0), v(10, 10, 10), "", "admin"); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		l      actors.Location
		inside bool
		dist   float64
	}{
		{loc("w", 0, 0, 0), true, -1},
		{loc("w", 10, 10, 10), true, -1},
		{loc("w", 5, 5, 5), true, -1},
		{loc("w", 13, 5, 5), false, 3},
		{loc("w", 13, 14, 5), false, 5},
		{loc("w", -1, -2, -2), false, 3},
	}
	for _, tc := range cases {
		if got := ix.Contains(tc.l); got != tc.inside {
			t.Fatalf("Contains(%v)=%v want %v", tc.l.Pos, got, tc.inside)
		}
		if got := ix.DistanceToEdge(tc.l); math.Abs(got-tc.dist) > 1e-9 {
			t.Fatalf("DistanceToEdge(%v)=%v want %v", tc.l.Pos, got, tc.dist)
		}
	}
	if ix.Contains(loc("elsewhere", 5, 5, 5)) {
		t.Fatalf("zone must not leak into other worlds")
	}
	if !math.IsInf(ix.DistanceToEdge(loc("elsewhere", 0, 0, 0)), 1) {
		t.Fatalf("expected +Inf for world without zone")
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	ix := newTestIndex(docstore.NewMemory())
	if ix.Unregister("w") {
		t.Fatalf("unregister of absent zone should report false")
	}
	_, _ = ix.Register("w", v(0, 0, 0), v(1, 1, 1), "", "admin")
	if !ix.Unregister("w") || ix.Len() != 0 {
		t.Fatalf("unregister failed")
	}
}

func TestPersistRoundTrip(t *testing.T) {
	store := docstore.NewMemory()
	ix := newTestIndex(store)
	_, _ = ix.Register("overworld", v(-100, -64, -100), v(100, 320, 100), "Spawn", "root")
	_, _ = ix.Register("nether", v(0, 0, 0), v(16, 128, 16), "Hub", "root")

	re := newTestIndex(store)
	n, migrated, err := re.Load(context.Background(), store)
	if err != nil || n != 2 || migrated != 0 {
		t.Fatalf("Load: n=%d migrated=%d err=%v", n, migrated, err)
	}
	got := re.List()
	want := ix.List()
	for i := range want {
		if got[i].World != want[i].World || got[i].Min != want[i].Min || got[i].Max != want[i].Max ||
			got[i].Name != want[i].Name || !got[i].CreatedAt.Equal(want[i].CreatedAt) {
			t.Fatalf("zone %d mismatch: %+v vs %+v", i, got[i], want[i])
		}
	}

	ix.Unregister("nether")
	re = newTestIndex(store)
	if n, _, _ := re.Load(context.Background(), store); n != 1 {
		t.Fatalf("removal not persisted, loaded %d", n)
	}
}

func TestLoad_MigratesLegacyShape(t *testing.T) {
	store := docstore.NewMemory()
	_ = store.Put(context.Background(), docstore.DocSafeZones, []byte(`{
	  "world": {"centerX": 100, "centerZ": -50, "radius": 25, "name": "Old spawn", "createdBy": "op"},
	  "broken": {"radius": "wide"},
	  "world_nether": {"minX": 10, "minY": 0, "minZ": 10, "maxX": -10, "maxY": 64, "maxZ": -10, "name": "Hub", "createdBy": "op"}
	}`))

	ix := newTestIndex(store)
	n, migrated, err := ix.Load(context.Background(), store)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 || migrated != 1 {
		t.Fatalf("expected 2 zones, 1 migrated; got %d, %d", n, migrated)
	}
	z, ok := ix.Get("world")
	if !ok {
		t.Fatalf("legacy zone missing")
	}
	if z.Min != v(75, -64, -75) || z.Max != v(125, 320, -25) || z.Name != "Old spawn" {
		t.Fatalf("unexpected migrated zone: %+v", z)
	}
	if !ix.Contains(loc("world", 100, 300, -50)) {
		t.Fatalf("migrated zone should be full height")
	}
	nz, _ := ix.Get("world_nether")
	if nz.Min != v(-10, 0, -10) || nz.Max != v(10, 64, 10) {
		t.Fatalf("cuboid corners should be normalized on load: %+v", nz)
	}

	// The document was rewritten in cuboid form.
	raw, _ := store.Get(context.Background(), docstore.DocSafeZones)
	var doc map[string]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("rewritten doc: %v", err)
	}
	if _, ok := doc["world"]["minX"]; !ok {
		t.Fatalf("legacy entry not rewritten: %s", raw)
	}
	if _, ok := doc["world"]["radius"]; ok {
		t.Fatalf("legacy fields should be gone: %s", raw)
	}
	if _, ok := doc["broken"]; ok {
		t.Fatalf("malformed entry should be dropped on rewrite: %s", raw)
	}
}

func TestLoad_MissingAndCorrupt(t *testing.T) {
	store := docstore.NewMemory()
	ix := newTestIndex(store)
	if n, _, err := ix.Load(context.Background(), store); err != nil || n != 0 {
		t.Fatalf("missing doc should load empty: n=%d err=%v", n, err)
	}
	_ = store.Put(context.Background(), docstore.DocSafeZones, []byte(`[1,2`))
	if _, _, err := ix.Load(context.Background(), store); err == nil {
		t.Fatalf("expected error for corrupt doc")
	}
}

func TestRegister_PersistFailureIsNotFatal(t *testing.T) {
	store := docstore.NewMemory()
	store.FailPuts = true
	ix := newTestIndex(store)
	if _, err := ix.Register("w", v(0, 0, 0), v(4, 4, 4), "", "admin"); err != nil {
		t.Fatalf("register should succeed despite store failure: %v", err)
	}
	if !ix.Contains(loc("w", 1, 1, 1)) {
		t.Fatalf("zone should be live in memory")
	}
	if _, err := store.Get(context.Background(), docstore.DocSafeZones); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("nothing should have been stored, got %v", err)
	}
}
