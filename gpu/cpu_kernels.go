package gpu

import (
	"github.com/chewxy/math32"

	"fluidsim/core"
)

// invocation is the resolved binding set of one dispatch. grids follow the
// kernel's slot order.
type invocation struct {
	grids  []*cpuGrid
	dims   core.Dims
	params *core.Parameters
}

// cpuKernel runs one work item
type cpuKernel func(inv *invocation, c core.Coord)

var cpuKernels = map[string]cpuKernel{
	UpdateState.Name:       updateStateKernel,
	ComputeDivergence.Name: divergenceKernel,
	ZeroScalar.Name:        zeroScalarKernel,
	SolvePoisson.Name:      poissonKernel,
	AdjustVelocity.Name:    adjustVelocityKernel,

	ZeroBoundaryX.Name: zeroBoundaryKernel(0),
	ZeroBoundaryY.Name: zeroBoundaryKernel(1),
	ZeroBoundaryZ.Name: zeroBoundaryKernel(2),

	CopyBoundaryX.Name: copyBoundaryKernel(0),
	CopyBoundaryY.Name: copyBoundaryKernel(1),
	CopyBoundaryZ.Name: copyBoundaryKernel(2),

	WriteBoundaryX.Name: writeBoundaryKernel(0),
	WriteBoundaryY.Name: writeBoundaryKernel(1),
	WriteBoundaryZ.Name: writeBoundaryKernel(2),
}

func hadamard(a, b core.Cell) core.Cell {
	return core.Cell{a[0] * b[0], a[1] * b[1], a[2] * b[2], a[3] * b[3]}
}

// offset returns c moved by d cells along axis
func offset(c core.Coord, axis, d int) core.Coord {
	switch axis {
	case 0:
		c.X += d
	case 1:
		c.Y += d
	default:
		c.Z += d
	}
	return c
}

// along returns c with its axis coordinate replaced by v
func along(c core.Coord, axis, v int) core.Coord {
	switch axis {
	case 0:
		c.X = v
	case 1:
		c.Y = v
	default:
		c.Z = v
	}
	return c
}

func (g *cpuGrid) clampedVec4At(c core.Coord) core.Cell    { return g.clampedVec4(c.X, c.Y, c.Z) }
func (g *cpuGrid) clampedScalarAt(c core.Coord) float32 { return g.clampedScalar(c.X, c.Y, c.Z) }

// sample reads g at a fractional cell position with trilinear filtering.
// The position is clamped to the cell centers of the outer layer, matching
// a clamp-to-edge texture sampler.
func (g *cpuGrid) sample(px, py, pz float32) core.Cell {
	var i0, i1 [3]int
	var f [3]float32
	for a, p := range [3]float32{px, py, pz} {
		n := g.dims.Size(a)
		p = math32.Max(0, math32.Min(p, float32(n-1)))
		fl := math32.Floor(p)
		i0[a] = int(fl)
		i1[a] = core.Clamp(i0[a]+1, n)
		f[a] = p - fl
	}
	lerp := func(a, b core.Cell, t float32) core.Cell {
		return a.Add(b.Sub(a).Mul(t))
	}
	corner := func(ix, iy, iz int) core.Cell {
		c := core.Coord{X: i0[0], Y: i0[1], Z: i0[2]}
		if ix == 1 {
			c.X = i1[0]
		}
		if iy == 1 {
			c.Y = i1[1]
		}
		if iz == 1 {
			c.Z = i1[2]
		}
		return g.vec4(c)
	}
	c00 := lerp(corner(0, 0, 0), corner(1, 0, 0), f[0])
	c10 := lerp(corner(0, 1, 0), corner(1, 1, 0), f[0])
	c01 := lerp(corner(0, 0, 1), corner(1, 0, 1), f[0])
	c11 := lerp(corner(0, 1, 1), corner(1, 1, 1), f[0])
	return lerp(lerp(c00, c10, f[1]), lerp(c01, c11, f[1]), f[2])
}

// updateStateKernel advects stateTm1 along the velocity of stateT, adds the
// viscous diffusion of stateT and the scaled source term.
func updateStateKernel(inv *invocation, c core.Coord) {
	source, stateTm1, stateT, out := inv.grids[0], inv.grids[1], inv.grids[2], inv.grids[3]
	p := inv.params

	center := stateT.vec4(c)
	twice := center.Mul(2)
	laplacian := func(axis int) core.Cell {
		plus := stateT.clampedVec4At(offset(c, axis, 1))
		minus := stateT.clampedVec4At(offset(c, axis, -1))
		return plus.Add(minus).Sub(twice)
	}

	advected := stateTm1.sample(
		float32(c.X)-p.TimeDelta[0]*center[core.VelX],
		float32(c.Y)-p.TimeDelta[1]*center[core.VelY],
		float32(c.Z)-p.TimeDelta[2]*center[core.VelZ],
	)

	next := advected.
		Add(hadamard(p.ViscosityX, laplacian(0))).
		Add(hadamard(p.ViscosityY, laplacian(1))).
		Add(hadamard(p.ViscosityZ, laplacian(2))).
		Add(source.vec4(c).Mul(p.TimeDelta[3]))
	out.setVec4(c, next)
}

func divergenceKernel(inv *invocation, c core.Coord) {
	state, out := inv.grids[0], inv.grids[1]
	h := inv.params.HalfDivDelta
	var div float32
	for axis := 0; axis < 3; axis++ {
		plus := state.clampedVec4At(offset(c, axis, 1))
		minus := state.clampedVec4At(offset(c, axis, -1))
		div += h[axis] * (plus[axis] - minus[axis])
	}
	out.setScalar(c, div)
}

func zeroScalarKernel(inv *invocation, c core.Coord) {
	inv.grids[0].setScalar(c, 0)
}

// poissonKernel performs one Jacobi sweep:
// p = dot(epsilon, (sumX, sumY, sumZ, -divergence))
func poissonKernel(inv *invocation, c core.Coord) {
	divergence, poisson, out := inv.grids[0], inv.grids[1], inv.grids[2]
	var sums core.Cell
	for axis := 0; axis < 3; axis++ {
		sums[axis] = poisson.clampedScalarAt(offset(c, axis, 1)) + poisson.clampedScalarAt(offset(c, axis, -1))
	}
	sums[3] = -divergence.scalar(c)
	out.setScalar(c, inv.params.Epsilon.Dot(sums))
}

func adjustVelocityKernel(inv *invocation, c core.Coord) {
	in, poisson, out := inv.grids[0], inv.grids[1], inv.grids[2]
	h := inv.params.HalfDivDelta
	var gradient core.Cell
	for axis := 0; axis < 3; axis++ {
		gradient[axis] = h[axis] * (poisson.clampedScalarAt(offset(c, axis, 1)) - poisson.clampedScalarAt(offset(c, axis, -1)))
	}
	out.setVec4(c, in.vec4(c).Sub(gradient))
}

// zeroBoundaryKernel clears both outer layers of a scalar grid along axis.
// Work items cover the grid collapsed along axis.
func zeroBoundaryKernel(axis int) cpuKernel {
	return func(inv *invocation, c core.Coord) {
		image := inv.grids[0]
		n := inv.dims.Size(axis)
		image.setScalar(along(c, axis, 0), 0)
		image.setScalar(along(c, axis, n-1), 0)
	}
}

// copyBoundaryKernel captures the layer one cell inside each face along
// axis, with the normal velocity already cleared.
func copyBoundaryKernel(axis int) cpuKernel {
	return func(inv *invocation, c core.Coord) {
		state, lo, hi := inv.grids[0], inv.grids[1], inv.grids[2]
		n := inv.dims.Size(axis)

		inner := state.clampedVec4At(along(c, axis, 1))
		inner[axis] = 0
		lo.setVec4(c, inner)

		inner = state.clampedVec4At(along(c, axis, n-2))
		inner[axis] = 0
		hi.setVec4(c, inner)
	}
}

// writeBoundaryKernel stores the captured values on the outer layers
func writeBoundaryKernel(axis int) cpuKernel {
	return func(inv *invocation, c core.Coord) {
		lo, hi, state := inv.grids[0], inv.grids[1], inv.grids[2]
		n := inv.dims.Size(axis)

		v := lo.vec4(c)
		v[axis] = 0
		state.setVec4(along(c, axis, 0), v)

		v = hi.vec4(c)
		v[axis] = 0
		state.setVec4(along(c, axis, n-1), v)
	}
}
