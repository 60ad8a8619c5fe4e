package physics

import (
	"fluidsim/core"
	"fluidsim/gpu"
)

// ComputeDivergence derives the central-difference divergence of the
// velocity channels of a state grid.
type ComputeDivergence struct {
	stage
	divergence *pass
	output     gpu.Grid
}

func NewComputeDivergence(backend gpu.Backend, dims, tile core.Dims, params *core.Parameters) (*ComputeDivergence, error) {
	s, err := newStage(backend, dims, tile, params)
	if err != nil {
		return nil, err
	}
	c := &ComputeDivergence{stage: s}
	if c.divergence, err = c.compile(gpu.ComputeDivergence); err != nil {
		return nil, err
	}
	if c.output, err = c.newGrid("divergence", core.FormatScalar, dims); err != nil {
		return nil, err
	}
	c.divergence.bindings.Set("divergence", c.output)
	return c, nil
}

func (c *ComputeDivergence) Execute(state gpu.Grid) error {
	c.divergence.bindings.Set("state", state)
	return c.run(c.divergence)
}

func (c *ComputeDivergence) Divergence() gpu.Grid { return c.output }

func (c *ComputeDivergence) Release() { c.release() }
