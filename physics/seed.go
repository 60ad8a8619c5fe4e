package physics

import (
	"math/rand"

	"github.com/chewxy/math32"

	"fluidsim/core"
)

// Seeder writes an initial condition into a zeroed host state buffer
// (4 floats per cell, x fastest). Seeders add to what is there, so several
// can be layered with Seeds.
type Seeder func(dims core.Dims, state []float32)

// RestingState leaves velocity and density at zero
func RestingState(core.Dims, []float32) {}

// Seeds applies several seeders in order
func Seeds(seeders ...Seeder) Seeder {
	return func(dims core.Dims, state []float32) {
		for _, s := range seeders {
			s(dims, state)
		}
	}
}

// RandomDensity fills density uniformly in [min, max) with zero velocity.
// The same seed always produces the same field.
func RandomDensity(seed int64, min, max float32) Seeder {
	return func(dims core.Dims, state []float32) {
		rng := rand.New(rand.NewSource(seed))
		for i := 0; i < dims.Cells(); i++ {
			state[4*i+core.Density] += min + (max-min)*rng.Float32()
		}
	}
}

// Vortex adds a swirl around center turning counterclockwise in the xy
// plane for positive strength. Speed falls off as a Gaussian of the
// distance in cells.
func Vortex(center core.Coord, radius, strength float32) Seeder {
	return func(dims core.Dims, state []float32) {
		forEachCell(dims, func(i int, c core.Coord) {
			dx, dy, d2 := offsetFrom(dims, center, c)
			g := strength * math32.Exp(-d2/(radius*radius))
			state[4*i+core.VelX] += -dy * g
			state[4*i+core.VelY] += dx * g
		})
	}
}

func forEachCell(dims core.Dims, fn func(i int, c core.Coord)) {
	for i := 0; i < dims.Cells(); i++ {
		fn(i, dims.CoordOf(i))
	}
}

// offsetFrom returns the xy offset of c from center and the squared
// distance, including z for volumes
func offsetFrom(dims core.Dims, center, c core.Coord) (dx, dy, d2 float32) {
	dx = float32(c.X - center.X)
	dy = float32(c.Y - center.Y)
	d2 = dx*dx + dy*dy
	if !dims.Is2D() {
		dz := float32(c.Z - center.Z)
		d2 += dz * dz
	}
	return dx, dy, d2
}
