package physics

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"fluidsim/core"
)

// Source writes external forcing into a zeroed host buffer (4 floats per
// cell). Velocity channels are accelerations and the density channel is a
// rate; the update kernel scales both by dt.
type Source func(dims core.Dims, source []float32)

// ZeroSource applies no forcing
func ZeroSource(core.Dims, []float32) {}

// Composite sums several sources
func Composite(sources ...Source) Source {
	return func(dims core.Dims, source []float32) {
		for _, s := range sources {
			s(dims, source)
		}
	}
}

// DensityImpulse injects density into a single cell
func DensityImpulse(at core.Coord, amount float32) Source {
	return func(dims core.Dims, source []float32) {
		if !dims.Contains(at) {
			return
		}
		source[4*dims.IndexOf(at)+core.Density] += amount
	}
}

// DensityBlob produces (rate > 0) or consumes (rate < 0) density with a
// Gaussian footprint around center
func DensityBlob(center core.Coord, radius, rate float32) Source {
	return func(dims core.Dims, source []float32) {
		forEachCell(dims, func(i int, c core.Coord) {
			_, _, d2 := offsetFrom(dims, center, c)
			source[4*i+core.Density] += rate * math32.Exp(-d2/(radius*radius))
		})
	}
}

// Gravity accelerates every cell uniformly. The z component is ignored on
// 2D grids.
func Gravity(g mgl32.Vec3) Source {
	return func(dims core.Dims, source []float32) {
		a := g
		if dims.Is2D() {
			a[2] = 0
		}
		for i := 0; i < dims.Cells(); i++ {
			source[4*i+core.VelX] += a[0]
			source[4*i+core.VelY] += a[1]
			source[4*i+core.VelZ] += a[2]
		}
	}
}

// Wind pushes along direction with a Gaussian falloff around origin
func Wind(origin core.Coord, direction mgl32.Vec3, radius float32) Source {
	return func(dims core.Dims, source []float32) {
		dir := direction
		if dims.Is2D() {
			dir[2] = 0
		}
		forEachCell(dims, func(i int, c core.Coord) {
			_, _, d2 := offsetFrom(dims, origin, c)
			w := dir.Mul(math32.Exp(-d2 / (radius * radius)))
			source[4*i+core.VelX] += w[0]
			source[4*i+core.VelY] += w[1]
			source[4*i+core.VelZ] += w[2]
		})
	}
}
