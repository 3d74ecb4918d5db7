package actors

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestDirectory_JoinMoveLeave(t *testing.T) {
	d := NewDirectory()
	id := uuid.New()

	if _, ok := d.Lookup(id); ok {
		t.Fatalf("unexpected lookup before join")
	}
	d.Join(id, "  Steve ", Location{World: "overworld"})
	a, ok := d.Lookup(id)
	if !ok || a.Name != "Steve" {
		t.Fatalf("lookup after join: %+v ok=%v", a, ok)
	}

	if !d.Move(id, Location{World: "nether", Pos: Vec3{X: 1, Y: 2, Z: 3}}) {
		t.Fatalf("move failed")
	}
	a, _ = d.Lookup(id)
	if a.Loc.World != "nether" || a.Loc.Pos.Y != 2 {
		t.Fatalf("location not updated: %+v", a.Loc)
	}
	if d.Move(uuid.New(), Location{}) {
		t.Fatalf("move of unknown actor should fail")
	}

	if !d.Leave(id) || d.Leave(id) {
		t.Fatalf("leave should succeed once")
	}
	if _, ok := d.Lookup(id); ok {
		t.Fatalf("lookup after leave should fail")
	}
}

func TestDirectory_ResolveName(t *testing.T) {
	d := NewDirectory()
	id := uuid.New()
	d.Join(id, "Alex", Location{})

	if a, ok := d.ResolveName("alex"); !ok || a.ID != id {
		t.Fatalf("expected case-insensitive name match")
	}
	if a, ok := d.ResolveName(id.String()); !ok || a.ID != id {
		t.Fatalf("expected id match")
	}
	if _, ok := d.ResolveName("nobody"); ok {
		t.Fatalf("unexpected match")
	}
	anon := uuid.New()
	if got := d.Join(anon, "", Location{}); got.Name != anon.String() {
		t.Fatalf("blank name should fall back to id, got %q", got.Name)
	}
}

func TestVec3_IsFinite(t *testing.T) {
	if !(Vec3{X: 1}).IsFinite() {
		t.Fatalf("expected finite")
	}
	if (Vec3{Y: math.NaN()}).IsFinite() || (Vec3{Z: math.Inf(1)}).IsFinite() {
		t.Fatalf("expected non-finite")
	}
}
