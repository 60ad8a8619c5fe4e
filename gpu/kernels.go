package gpu

import (
	"sort"

	"fluidsim/core"
)

// Access describes how a kernel touches a bound grid
type Access int

const (
	Read Access = iota
	Write
	// ReadWrite kernels update part of a grid in place (boundary layers)
	ReadWrite
)

// Whole marks a slot that spans the full simulation grid
const Whole = -1

// Slot is one named resource binding of a kernel, in binding order
type Slot struct {
	Name   string
	Format core.Format
	Access Access
	// Face is Whole, or the axis a boundary scratch grid is collapsed along
	Face int
}

// Kernel describes one compute kernel: its bindings and dispatch shape.
// Backends map kernels to code by Name.
type Kernel struct {
	Name  string
	Slots []Slot
	// Uniform kernels read the Parameters block
	Uniform bool
	// Axis is the boundary axis the kernel runs across, or Whole. Boundary
	// kernels dispatch over the grid collapsed to one cell along Axis.
	Axis int
}

// Collapse returns d with the kernel's boundary axis reduced to 1
func (k *Kernel) Collapse(d core.Dims) core.Dims {
	switch k.Axis {
	case 0:
		d.X = 1
	case 1:
		d.Y = 1
	case 2:
		d.Z = 1
	}
	return d
}

// Groups returns the thread groups needed to cover a grid of dims with tile
func (k *Kernel) Groups(dims, tile core.Dims) core.Dims {
	return k.Collapse(dims).Groups(k.Collapse(tile))
}

// Slot returns the index of the named slot or -1
func (k *Kernel) Slot(name string) int {
	for i, s := range k.Slots {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func in(name string, f core.Format) Slot   { return Slot{Name: name, Format: f, Access: Read, Face: Whole} }
func out(name string, f core.Format) Slot  { return Slot{Name: name, Format: f, Access: Write, Face: Whole} }
func edit(name string, f core.Format) Slot { return Slot{Name: name, Format: f, Access: ReadWrite, Face: Whole} }

func face(name string, axis int, a Access) Slot {
	return Slot{Name: name, Format: core.FormatVec4, Access: a, Face: axis}
}

var (
	UpdateState = &Kernel{
		Name: "update_state",
		Slots: []Slot{
			in("source", core.FormatVec4),
			in("stateTm1", core.FormatVec4),
			in("stateT", core.FormatVec4),
			out("updateState", core.FormatVec4),
		},
		Uniform: true,
		Axis:    Whole,
	}

	ComputeDivergence = &Kernel{
		Name: "compute_divergence",
		Slots: []Slot{
			in("state", core.FormatVec4),
			out("divergence", core.FormatScalar),
		},
		Uniform: true,
		Axis:    Whole,
	}

	ZeroScalar = &Kernel{
		Name:  "zero_scalar",
		Slots: []Slot{out("target", core.FormatScalar)},
		Axis:  Whole,
	}

	SolvePoisson = &Kernel{
		Name: "solve_poisson",
		Slots: []Slot{
			in("divergence", core.FormatScalar),
			in("poisson", core.FormatScalar),
			out("outPoisson", core.FormatScalar),
		},
		Uniform: true,
		Axis:    Whole,
	}

	AdjustVelocity = &Kernel{
		Name: "adjust_velocity",
		Slots: []Slot{
			in("inState", core.FormatVec4),
			in("poisson", core.FormatScalar),
			out("outState", core.FormatVec4),
		},
		Uniform: true,
		Axis:    Whole,
	}

	ZeroBoundaryX = zeroBoundary("zero_boundary_x", 0)
	ZeroBoundaryY = zeroBoundary("zero_boundary_y", 1)
	ZeroBoundaryZ = zeroBoundary("zero_boundary_z", 2)

	CopyBoundaryX = copyBoundary("copy_boundary_x", 0, "xMin", "xMax")
	CopyBoundaryY = copyBoundary("copy_boundary_y", 1, "yMin", "yMax")
	CopyBoundaryZ = copyBoundary("copy_boundary_z", 2, "zMin", "zMax")

	WriteBoundaryX = writeBoundary("write_boundary_x", 0, "xMin", "xMax")
	WriteBoundaryY = writeBoundary("write_boundary_y", 1, "yMin", "yMax")
	WriteBoundaryZ = writeBoundary("write_boundary_z", 2, "zMin", "zMax")
)

func zeroBoundary(name string, axis int) *Kernel {
	return &Kernel{
		Name:  name,
		Slots: []Slot{edit("image", core.FormatScalar)},
		Axis:  axis,
	}
}

// copyBoundary kernels capture the layer one cell inside each face
func copyBoundary(name string, axis int, lo, hi string) *Kernel {
	return &Kernel{
		Name: name,
		Slots: []Slot{
			in("state", core.FormatVec4),
			face(lo, axis, Write),
			face(hi, axis, Write),
		},
		Axis: axis,
	}
}

// writeBoundary kernels write captured values onto the outer layer with the
// normal velocity component set to zero
func writeBoundary(name string, axis int, lo, hi string) *Kernel {
	return &Kernel{
		Name: name,
		Slots: []Slot{
			face(lo, axis, Read),
			face(hi, axis, Read),
			edit("state", core.FormatVec4),
		},
		Axis: axis,
	}
}

var catalogue = map[string]*Kernel{}

func init() {
	for _, k := range []*Kernel{
		UpdateState, ComputeDivergence, ZeroScalar, SolvePoisson, AdjustVelocity,
		ZeroBoundaryX, ZeroBoundaryY, ZeroBoundaryZ,
		CopyBoundaryX, CopyBoundaryY, CopyBoundaryZ,
		WriteBoundaryX, WriteBoundaryY, WriteBoundaryZ,
	} {
		catalogue[k.Name] = k
	}
}

// LookupKernel returns the catalogue entry for name
func LookupKernel(name string) (*Kernel, bool) {
	k, ok := catalogue[name]
	return k, ok
}

// KernelNames lists the catalogue in sorted order
func KernelNames() []string {
	names := make([]string, 0, len(catalogue))
	for n := range catalogue {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
