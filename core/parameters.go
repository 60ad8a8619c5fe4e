package core

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Spacing is the physical size of one cell along each axis. A zero entry
// selects the unit-domain default 1/size for that axis.
type Spacing struct {
	DX, DY, DZ float32
}

// ParameterCount is the number of float32 values in the uploaded block
const ParameterCount = 7 * 4

// Parameters is the uniform block shared by the simulation kernels. It is
// built once per configuration and uploaded with every dispatch that reads it.
// Every vector is laid out (x, y, z, w); z entries are zero for 2D grids.
type Parameters struct {
	SpaceDelta   mgl32.Vec4 // (dx, dy, dz, 0)
	HalfDivDelta mgl32.Vec4 // (0.5/dx, 0.5/dy, 0.5/dz, 0)
	TimeDelta    mgl32.Vec4 // (dt/dx, dt/dy, dt/dz, dt)
	ViscosityX   mgl32.Vec4 // (velocity, velocity, velocity, density) * dt/dx²
	ViscosityY   mgl32.Vec4 // same, scaled by dt/dy²
	ViscosityZ   mgl32.Vec4 // same, scaled by dt/dz²
	Epsilon      mgl32.Vec4 // Jacobi weights (epsX, epsY, epsZ, eps0)
}

// NewParameters derives the kernel parameters from grid spacing, time step
// and viscosities.
//
// The Poisson weights solve the 5-point (7-point in 3D) Laplacian for the
// center value: with r0 = (dx/dy)², r1 = (dx/dz)² and f = 0.5/(1+r0+r1),
// p = f*(pE+pW) + r0*f*(pN+pS) + r1*f*(pU+pD) - dx²*f*div.
func NewParameters(dims Dims, spacing Spacing, dt, velocityViscosity, densityViscosity float32) (Parameters, error) {
	if dt <= 0 {
		return Parameters{}, errors.Wrapf(ErrInvalidTimeStep, "dt=%g", dt)
	}
	if velocityViscosity < 0 || densityViscosity < 0 {
		return Parameters{}, errors.Wrapf(ErrInvalidViscosity, "velocity=%g density=%g", velocityViscosity, densityViscosity)
	}
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return Parameters{}, errors.Wrapf(ErrInvalidDims, "grid %s", dims)
	}

	dx, dy, dz := spacing.DX, spacing.DY, spacing.DZ
	if dx == 0 {
		dx = 1 / float32(dims.X)
	}
	if dy == 0 {
		dy = 1 / float32(dims.Y)
	}
	if dz == 0 {
		dz = 1 / float32(dims.Z)
	}
	if dx < 0 || dy < 0 || dz < 0 {
		return Parameters{}, errors.Wrapf(ErrInvalidSpacing, "dx=%g dy=%g dz=%g", dx, dy, dz)
	}

	var p Parameters
	velVX := velocityViscosity * dt / (dx * dx)
	velVY := velocityViscosity * dt / (dy * dy)
	denVX := densityViscosity * dt / (dx * dx)
	denVY := densityViscosity * dt / (dy * dy)

	if dims.Is2D() {
		r0 := float64(dx/dy) * float64(dx/dy)
		f := 0.5 / (1 + r0)
		p.SpaceDelta = mgl32.Vec4{dx, dy, 0, 0}
		p.HalfDivDelta = mgl32.Vec4{0.5 / dx, 0.5 / dy, 0, 0}
		p.TimeDelta = mgl32.Vec4{dt / dx, dt / dy, 0, dt}
		p.ViscosityX = mgl32.Vec4{velVX, velVX, 0, denVX}
		p.ViscosityY = mgl32.Vec4{velVY, velVY, 0, denVY}
		p.Epsilon = mgl32.Vec4{float32(f), float32(r0 * f), 0, float32(float64(dx) * float64(dx) * f)}
		return p, nil
	}

	velVZ := velocityViscosity * dt / (dz * dz)
	denVZ := densityViscosity * dt / (dz * dz)
	r0 := float64(dx/dy) * float64(dx/dy)
	r1 := float64(dx/dz) * float64(dx/dz)
	f := 0.5 / (1 + r0 + r1)
	p.SpaceDelta = mgl32.Vec4{dx, dy, dz, 0}
	p.HalfDivDelta = mgl32.Vec4{0.5 / dx, 0.5 / dy, 0.5 / dz, 0}
	p.TimeDelta = mgl32.Vec4{dt / dx, dt / dy, dt / dz, dt}
	p.ViscosityX = mgl32.Vec4{velVX, velVX, velVX, denVX}
	p.ViscosityY = mgl32.Vec4{velVY, velVY, velVY, denVY}
	p.ViscosityZ = mgl32.Vec4{velVZ, velVZ, velVZ, denVZ}
	p.Epsilon = mgl32.Vec4{float32(f), float32(r0 * f), float32(r1 * f), float32(float64(dx) * float64(dx) * f)}
	return p, nil
}

// Floats flattens the block in declaration order for upload.
// The layout matches a std140 uniform block of seven vec4 members.
func (p *Parameters) Floats() []float32 {
	out := make([]float32, 0, ParameterCount)
	for _, v := range []mgl32.Vec4{
		p.SpaceDelta, p.HalfDivDelta, p.TimeDelta,
		p.ViscosityX, p.ViscosityY, p.ViscosityZ, p.Epsilon,
	} {
		out = append(out, v[:]...)
	}
	return out
}
