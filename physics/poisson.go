package physics

import (
	"github.com/pkg/errors"

	"fluidsim/core"
	"fluidsim/gpu"
)

// SolvePoisson runs a fixed number of Jacobi sweeps for the pressure whose
// Laplacian equals the divergence. The working buffer is zeroed on the
// device at the start of every Execute. Each sweep writes the other buffer
// of the pair and then clears its outer layers (p = 0 on the walls), after
// which the roles flip.
type SolvePoisson struct {
	stage
	iterations int

	buffers [2]gpu.Grid
	current int

	zero   *pass
	relax  *pass
	bounds []*pass
}

func NewSolvePoisson(backend gpu.Backend, dims, tile core.Dims, params *core.Parameters, iterations int) (*SolvePoisson, error) {
	if iterations <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidIterations, "iterations=%d", iterations)
	}
	s, err := newStage(backend, dims, tile, params)
	if err != nil {
		return nil, err
	}
	p := &SolvePoisson{stage: s, iterations: iterations}
	fail := func(err error) (*SolvePoisson, error) {
		p.release()
		return nil, err
	}

	if p.zero, err = p.compile(gpu.ZeroScalar); err != nil {
		return fail(err)
	}
	if p.relax, err = p.compile(gpu.SolvePoisson); err != nil {
		return fail(err)
	}
	zeroes := []*gpu.Kernel{gpu.ZeroBoundaryX, gpu.ZeroBoundaryY, gpu.ZeroBoundaryZ}
	for axis := 0; axis < dims.Axes(); axis++ {
		b, err := p.compile(zeroes[axis])
		if err != nil {
			return fail(err)
		}
		p.bounds = append(p.bounds, b)
	}
	for i, name := range []string{"poisson0", "poisson1"} {
		if p.buffers[i], err = p.newGrid(name, core.FormatScalar, dims); err != nil {
			return fail(err)
		}
	}
	return p, nil
}

func (p *SolvePoisson) Execute(divergence gpu.Grid) error {
	p.current = 0
	p.zero.bindings.Set("target", p.buffers[p.current])
	if err := p.run(p.zero); err != nil {
		return err
	}

	p.relax.bindings.Set("divergence", divergence)
	for i := 0; i < p.iterations; i++ {
		next := 1 - p.current
		p.relax.bindings.
			Set("poisson", p.buffers[p.current]).
			Set("outPoisson", p.buffers[next])
		if err := p.run(p.relax); err != nil {
			return errors.Wrapf(err, "iteration %d", i)
		}
		for _, b := range p.bounds {
			b.bindings.Set("image", p.buffers[next])
			if err := p.run(b); err != nil {
				return errors.Wrapf(err, "iteration %d", i)
			}
		}
		p.current = next
	}
	return nil
}

// Poisson returns the buffer holding the result of the last Execute
func (p *SolvePoisson) Poisson() gpu.Grid { return p.buffers[p.current] }

func (p *SolvePoisson) Iterations() int { return p.iterations }

func (p *SolvePoisson) Release() { p.release() }
