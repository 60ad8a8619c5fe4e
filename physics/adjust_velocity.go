package physics

import (
	"fluidsim/core"
	"fluidsim/gpu"
)

// AdjustVelocity subtracts the pressure gradient from the velocity channels.
// Density passes through unchanged. Boundary layers are left for a
// following EnforceBoundary.
type AdjustVelocity struct {
	stage
	adjust *pass
}

func NewAdjustVelocity(backend gpu.Backend, dims, tile core.Dims, params *core.Parameters) (*AdjustVelocity, error) {
	s, err := newStage(backend, dims, tile, params)
	if err != nil {
		return nil, err
	}
	a := &AdjustVelocity{stage: s}
	if a.adjust, err = a.compile(gpu.AdjustVelocity); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *AdjustVelocity) Execute(inState, poisson, outState gpu.Grid) error {
	a.adjust.bindings.
		Set("inState", inState).
		Set("poisson", poisson).
		Set("outState", outState)
	return a.run(a.adjust)
}

func (a *AdjustVelocity) Release() { a.release() }
