// Package zones indexes safe zones: at most one axis-aligned cuboid per world
// inside which hostile interactions are always vetoed.
package zones

import (
	"math"
	"time"

	"truce.ai/internal/sim/actors"
)

type Zone struct {
	World     string
	Min       actors.Vec3
	Max       actors.Vec3
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// Normalize orders two corners component-wise so that min <= max.
func Normalize(a, b actors.Vec3) (min, max actors.Vec3) {
	min = actors.Vec3{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
	max = actors.Vec3{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
	return min, max
}

// Contains is inclusive on all three axes.
func (z Zone) Contains(p actors.Vec3) bool {
	return p.X >= z.Min.X && p.X <= z.Max.X &&
		p.Y >= z.Min.Y && p.Y <= z.Max.Y &&
		p.Z >= z.Min.Z && p.Z <= z.Max.Z
}

// DistanceToEdge is -1 inside, otherwise the Euclidean distance to the
// nearest point of the cuboid.
func (z Zone) DistanceToEdge(p actors.Vec3) float64 {
	if z.Contains(p) {
		return -1
	}
	dx := excess(p.X, z.Min.X, z.Max.X)
	dy := excess(p.Y, z.Min.Y, z.Max.Y)
	dz := excess(p.Z, z.Min.Z, z.Max.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func excess(c, min, max float64) float64 {
	return math.Max(0, math.Max(min-c, c-max))
}

// Size is the edge length along each axis.
func (z Zone) Size() actors.Vec3 {
	return actors.Vec3{X: z.Max.X - z.Min.X, Y: z.Max.Y - z.Min.Y, Z: z.Max.Z - z.Min.Z}
}
