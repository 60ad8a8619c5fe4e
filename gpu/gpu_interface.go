package gpu

import "fluidsim/core"

// Grid is a typed 1D/2D/3D array owned by a backend. Kernels bind grids by
// slot name; the host only touches grid contents through Upload/Readback.
type Grid interface {
	Name() string
	Format() core.Format
	Dims() core.Dims
	// Len returns the number of float32 values stored
	Len() int
}

// Program is a kernel compiled for one tile (thread group) size
type Program interface {
	Kernel() *Kernel
	Tile() core.Dims
}

// Backend is the compute-dispatch service the fluid pipeline runs on.
// Implementations must execute dispatches in submission order on a single
// stream; Barrier makes every prior write visible to subsequent dispatches
// and host readbacks.
type Backend interface {
	Name() string
	NewGrid(name string, format core.Format, dims core.Dims) (Grid, error)
	Compile(kernel *Kernel, tile core.Dims) (Program, error)
	Dispatch(program Program, bindings *Bindings, groups core.Dims) error
	Barrier()
	Upload(grid Grid, data []float32) error
	Readback(grid Grid, dst []float32) error
	// Free releases one grid; Release releases the backend and every grid
	Free(grid Grid)
	Release()
}
