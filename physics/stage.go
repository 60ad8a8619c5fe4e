package physics

import (
	"time"

	"github.com/pkg/errors"

	"fluidsim/core"
	"fluidsim/gpu"
)

// stage holds what every pipeline stage shares: the backend, the grid and
// tile sizes, and the parameter block owned by the simulator.
type stage struct {
	backend gpu.Backend
	dims    core.Dims
	tile    core.Dims
	params  *core.Parameters
	grids   []gpu.Grid
}

func newStage(backend gpu.Backend, dims, tile core.Dims, params *core.Parameters) (stage, error) {
	if backend == nil {
		return stage{}, errors.Wrap(gpu.ErrBackendUnavailable, "nil backend")
	}
	if err := dims.Validate(tile); err != nil {
		return stage{}, err
	}
	return stage{backend: backend, dims: dims, tile: tile, params: params}, nil
}

// pass is one compiled kernel with its binding set and dispatch size
type pass struct {
	program  gpu.Program
	bindings *gpu.Bindings
	groups   core.Dims
}

func (s *stage) compile(k *gpu.Kernel) (*pass, error) {
	prog, err := s.backend.Compile(k, s.tile)
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s", k.Name)
	}
	b := gpu.NewBindings()
	if k.Uniform {
		b.SetParameters(s.params)
	}
	return &pass{program: prog, bindings: b, groups: k.Groups(s.dims, s.tile)}, nil
}

// newGrid allocates a grid owned by the stage and freed by release
func (s *stage) newGrid(name string, format core.Format, dims core.Dims) (gpu.Grid, error) {
	g, err := s.backend.NewGrid(name, format, dims)
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %s", name)
	}
	s.grids = append(s.grids, g)
	return g, nil
}

// run dispatches p and waits for its writes to become visible
func (s *stage) run(p *pass) error {
	start := time.Now()
	if err := s.backend.Dispatch(p.program, p.bindings, p.groups); err != nil {
		return errors.Wrapf(err, "dispatch %s", p.program.Kernel().Name)
	}
	s.backend.Barrier()
	core.Logger().Debug("dispatch", "kernel", p.program.Kernel().Name, "groups", p.groups.String(), "elapsed", time.Since(start))
	return nil
}

func (s *stage) release() {
	for _, g := range s.grids {
		s.backend.Free(g)
	}
	s.grids = nil
}
