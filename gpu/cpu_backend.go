package gpu

import (
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"fluidsim/core"
)

// cpuGrid is host memory laid out x fastest, then y, then z
type cpuGrid struct {
	name   string
	format core.Format
	dims   core.Dims
	data   []float32
}

func (g *cpuGrid) Name() string        { return g.name }
func (g *cpuGrid) Format() core.Format { return g.format }
func (g *cpuGrid) Dims() core.Dims     { return g.dims }
func (g *cpuGrid) Len() int            { return len(g.data) }

func (g *cpuGrid) vec4(c core.Coord) core.Cell {
	i := 4 * g.dims.IndexOf(c)
	return core.Cell{g.data[i], g.data[i+1], g.data[i+2], g.data[i+3]}
}

func (g *cpuGrid) setVec4(c core.Coord, v core.Cell) {
	i := 4 * g.dims.IndexOf(c)
	copy(g.data[i:i+4], v[:])
}

func (g *cpuGrid) scalar(c core.Coord) float32 { return g.data[g.dims.IndexOf(c)] }

func (g *cpuGrid) setScalar(c core.Coord, v float32) { g.data[g.dims.IndexOf(c)] = v }

// clamped reads with each coordinate clamped into the grid
func (g *cpuGrid) clampedVec4(x, y, z int) core.Cell {
	return g.vec4(core.Coord{X: core.Clamp(x, g.dims.X), Y: core.Clamp(y, g.dims.Y), Z: core.Clamp(z, g.dims.Z)})
}

func (g *cpuGrid) clampedScalar(x, y, z int) float32 {
	return g.scalar(core.Coord{X: core.Clamp(x, g.dims.X), Y: core.Clamp(y, g.dims.Y), Z: core.Clamp(z, g.dims.Z)})
}

type cpuProgram struct {
	kernel *Kernel
	tile   core.Dims
	fn     cpuKernel
}

func (p *cpuProgram) Kernel() *Kernel { return p.kernel }
func (p *cpuProgram) Tile() core.Dims { return p.tile }

// CPUBackend runs kernels as Go functions. Each dispatch splits its thread
// groups into rows handed to a bounded worker pool and returns once every
// group has finished, so Barrier has nothing left to wait for.
type CPUBackend struct {
	workers int

	mu       sync.Mutex
	grids    map[*cpuGrid]struct{}
	released bool
}

// NewCPUBackend creates a backend using up to workers goroutines per
// dispatch. workers <= 0 selects runtime.NumCPU().
func NewCPUBackend(workers int) *CPUBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	core.Logger().Debug("cpu backend created", "workers", workers)
	return &CPUBackend{workers: workers, grids: make(map[*cpuGrid]struct{})}
}

func (b *CPUBackend) Name() string { return "cpu" }

func (b *CPUBackend) Workers() int { return b.workers }

func (b *CPUBackend) NewGrid(name string, format core.Format, dims core.Dims) (Grid, error) {
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidDims, "grid %q %s", name, dims)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrReleased
	}
	g := &cpuGrid{
		name:   name,
		format: format,
		dims:   dims,
		data:   make([]float32, dims.Cells()*format.Components()),
	}
	b.grids[g] = struct{}{}
	core.Logger().Debug("grid allocated", "backend", "cpu", "grid", name, "format", format.String(), "dims", dims.String())
	return g, nil
}

func (b *CPUBackend) Compile(kernel *Kernel, tile core.Dims) (Program, error) {
	if kernel == nil {
		return nil, errors.Wrap(ErrUnknownKernel, "nil kernel")
	}
	fn, ok := cpuKernels[kernel.Name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKernel, "cpu: %s", kernel.Name)
	}
	tile = kernel.Collapse(tile)
	if tile.X <= 0 || tile.Y <= 0 || tile.Z <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidDims, "%s: tile %s", kernel.Name, tile)
	}
	return &cpuProgram{kernel: kernel, tile: tile, fn: fn}, nil
}

func (b *CPUBackend) own(g Grid) (*cpuGrid, error) {
	cg, ok := g.(*cpuGrid)
	if !ok {
		return nil, errors.Errorf("grid %q was not created by the cpu backend", g.Name())
	}
	if _, live := b.grids[cg]; !live {
		return nil, errors.Wrapf(ErrReleased, "grid %q", g.Name())
	}
	return cg, nil
}

func (b *CPUBackend) Dispatch(program Program, bindings *Bindings, groups core.Dims) error {
	p, ok := program.(*cpuProgram)
	if !ok {
		return errors.Wrap(ErrUnknownKernel, "program was not compiled by the cpu backend")
	}
	grids, dims, err := bindings.Resolve(p.kernel)
	if err != nil {
		return err
	}
	if err := CheckGroups(p.kernel, p.tile, groups, dims); err != nil {
		return err
	}

	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return ErrReleased
	}
	inv := &invocation{grids: make([]*cpuGrid, len(grids)), dims: dims, params: bindings.Parameters()}
	for i, g := range grids {
		if inv.grids[i], err = b.own(g); err != nil {
			b.mu.Unlock()
			return err
		}
	}
	b.mu.Unlock()

	tile := p.tile
	var eg errgroup.Group
	eg.SetLimit(b.workers)
	for gz := 0; gz < groups.Z; gz++ {
		for gy := 0; gy < groups.Y; gy++ {
			eg.Go(func() error {
				for gx := 0; gx < groups.X; gx++ {
					for lz := 0; lz < tile.Z; lz++ {
						for ly := 0; ly < tile.Y; ly++ {
							for lx := 0; lx < tile.X; lx++ {
								c := core.Coord{X: gx*tile.X + lx, Y: gy*tile.Y + ly, Z: gz*tile.Z + lz}
								if c.X < dims.X && c.Y < dims.Y && c.Z < dims.Z {
									p.fn(inv, c)
								}
							}
						}
					}
				}
				return nil
			})
		}
	}
	return eg.Wait()
}

// Barrier is a no-op: Dispatch already waited for every group
func (b *CPUBackend) Barrier() {}

func (b *CPUBackend) Upload(grid Grid, data []float32) error {
	if err := CheckTransfer(grid, len(data)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	g, err := b.own(grid)
	if err != nil {
		return err
	}
	copy(g.data, data)
	return nil
}

func (b *CPUBackend) Readback(grid Grid, dst []float32) error {
	if err := CheckTransfer(grid, len(dst)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	g, err := b.own(grid)
	if err != nil {
		return err
	}
	copy(dst, g.data)
	return nil
}

// Free releases one grid. Freeing an unknown or already freed grid is a no-op.
func (b *CPUBackend) Free(grid Grid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := grid.(*cpuGrid); ok {
		delete(b.grids, g)
	}
}

// Release drops every grid. Further calls fail with ErrReleased.
func (b *CPUBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grids = make(map[*cpuGrid]struct{})
	b.released = true
}
