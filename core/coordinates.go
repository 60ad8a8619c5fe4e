package core

// Coord is an integer cell position in a grid
type Coord struct {
	X, Y, Z int
}

// Index returns the linear offset of (x, y, z); x varies fastest
func (d Dims) Index(x, y, z int) int {
	return (z*d.Y+y)*d.X + x
}

// IndexOf returns the linear offset of c
func (d Dims) IndexOf(c Coord) int {
	return d.Index(c.X, c.Y, c.Z)
}

// CoordOf converts a linear offset back to a cell position
func (d Dims) CoordOf(i int) Coord {
	x := i % d.X
	i /= d.X
	return Coord{X: x, Y: i % d.Y, Z: i / d.Y}
}

// Contains reports whether c lies inside the grid
func (d Dims) Contains(c Coord) bool {
	return c.X >= 0 && c.X < d.X && c.Y >= 0 && c.Y < d.Y && c.Z >= 0 && c.Z < d.Z
}

// Center returns the cell nearest the grid center
func (d Dims) Center() Coord {
	return Coord{X: d.X / 2, Y: d.Y / 2, Z: d.Z / 2}
}

// OnBoundary reports whether c lies on an outer layer along any active axis.
// The z axis is ignored for 2D grids.
func (d Dims) OnBoundary(c Coord) bool {
	if c.X == 0 || c.X == d.X-1 || c.Y == 0 || c.Y == d.Y-1 {
		return true
	}
	return !d.Is2D() && (c.Z == 0 || c.Z == d.Z-1)
}

// Clamp limits i to [0, n-1]. Neighbor lookups in every kernel use clamped
// addressing, never wraparound.
func Clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
