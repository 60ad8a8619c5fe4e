package physics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"fluidsim/core"
)

// Stats summarizes a host copy of the state
type Stats struct {
	TotalDensity  float64 `json:"totalDensity"`
	MaxDensity    float64 `json:"maxDensity"`
	KineticEnergy float64 `json:"kineticEnergy"`
	MaxSpeed      float64 `json:"maxSpeed"`
	// DivergenceL2 is the L2 norm of the velocity divergence over interior
	// cells, measured in cell units
	DivergenceL2 float64 `json:"divergenceL2"`
}

// Measure computes Stats for state (4 floats per cell)
func Measure(dims core.Dims, state []float32) Stats {
	n := dims.Cells()
	if n == 0 || len(state) < 4*n {
		return Stats{}
	}
	density := make([]float64, n)
	speed2 := make([]float64, n)
	for i := 0; i < n; i++ {
		vx, vy, vz := float64(state[4*i]), float64(state[4*i+1]), float64(state[4*i+2])
		density[i] = float64(state[4*i+core.Density])
		speed2[i] = vx*vx + vy*vy + vz*vz
	}

	return Stats{
		TotalDensity:  floats.Sum(density),
		MaxDensity:    floats.Max(density),
		KineticEnergy: 0.5 * floats.Sum(speed2),
		MaxSpeed:      math.Sqrt(floats.Max(speed2)),
		DivergenceL2:  floats.Norm(Divergence(dims, state, true), 2),
	}
}

// Divergence evaluates the central-difference divergence on the host with
// clamped neighbors and unit cell spacing. With interiorOnly set, cells on
// the outer layers are skipped.
func Divergence(dims core.Dims, state []float32, interiorOnly bool) []float64 {
	out := make([]float64, 0, dims.Cells())
	at := func(x, y, z, comp int) float64 {
		i := dims.Index(core.Clamp(x, dims.X), core.Clamp(y, dims.Y), core.Clamp(z, dims.Z))
		return float64(state[4*i+comp])
	}
	for i := 0; i < dims.Cells(); i++ {
		c := dims.CoordOf(i)
		if interiorOnly && dims.OnBoundary(c) {
			continue
		}
		d := 0.5 * (at(c.X+1, c.Y, c.Z, core.VelX) - at(c.X-1, c.Y, c.Z, core.VelX))
		d += 0.5 * (at(c.X, c.Y+1, c.Z, core.VelY) - at(c.X, c.Y-1, c.Z, core.VelY))
		if !dims.Is2D() {
			d += 0.5 * (at(c.X, c.Y, c.Z+1, core.VelZ) - at(c.X, c.Y, c.Z-1, core.VelZ))
		}
		out = append(out, d)
	}
	return out
}
