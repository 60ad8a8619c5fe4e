package core

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Cell is the per-cell fluid state: (vx, vy, vz, density).
// In 2D grids the z velocity is unused and stays zero.
type Cell = mgl32.Vec4

// Component indices into a Cell
const (
	VelX    = 0
	VelY    = 1
	VelZ    = 2
	Density = 3
)

// Format describes the element type stored per grid cell
type Format int

const (
	// FormatScalar stores one float32 per cell (divergence, pressure)
	FormatScalar Format = iota
	// FormatVec4 stores four float32 per cell (state, source, boundary scratch)
	FormatVec4
)

// Components returns the number of float32 values per cell
func (f Format) Components() int {
	if f == FormatVec4 {
		return 4
	}
	return 1
}

func (f Format) String() string {
	switch f {
	case FormatScalar:
		return "r32f"
	case FormatVec4:
		return "rgba32f"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Dims is the size of a grid, a compute tile or a dispatch in cells/groups.
// A 2D grid has Z == 1.
type Dims struct {
	X, Y, Z int
}

// NewDims2 returns 2D dimensions
func NewDims2(x, y int) Dims { return Dims{X: x, Y: y, Z: 1} }

// NewDims3 returns 3D dimensions
func NewDims3(x, y, z int) Dims { return Dims{X: x, Y: y, Z: z} }

// Is2D reports whether the z extent is a single slice
func (d Dims) Is2D() bool { return d.Z == 1 }

// Axes returns 2 for planar grids and 3 for volumes
func (d Dims) Axes() int {
	if d.Is2D() {
		return 2
	}
	return 3
}

// Cells returns the total number of cells
func (d Dims) Cells() int { return d.X * d.Y * d.Z }

// Size returns the extent along axis 0, 1 or 2
func (d Dims) Size(axis int) int {
	switch axis {
	case 0:
		return d.X
	case 1:
		return d.Y
	default:
		return d.Z
	}
}

// Groups returns the number of thread groups needed to cover d with tile.
// d must already be validated against tile.
func (d Dims) Groups(tile Dims) Dims {
	return Dims{X: d.X / tile.X, Y: d.Y / tile.Y, Z: d.Z / tile.Z}
}

// Validate checks that every extent is positive and an exact multiple of the
// corresponding tile extent.
func (d Dims) Validate(tile Dims) error {
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return errors.Wrapf(ErrInvalidDims, "grid %s", d)
	}
	if tile.X <= 0 || tile.Y <= 0 || tile.Z <= 0 {
		return errors.Wrapf(ErrInvalidDims, "tile %s", tile)
	}
	if d.X%tile.X != 0 || d.Y%tile.Y != 0 || d.Z%tile.Z != 0 {
		return errors.Wrapf(ErrInvalidDims, "grid %s is not a multiple of tile %s", d, tile)
	}
	return nil
}

func (d Dims) String() string {
	if d.Is2D() {
		return fmt.Sprintf("%dx%d", d.X, d.Y)
	}
	return fmt.Sprintf("%dx%dx%d", d.X, d.Y, d.Z)
}
