package physics

import (
	"fluidsim/core"
	"fluidsim/gpu"
)

// UpdateState produces the tentative next state: stateTm1 advected along
// the velocity of stateT, plus viscous diffusion of stateT, plus dt*source.
// The result lands in a grid owned by the stage, never in stateT.
type UpdateState struct {
	stage
	update *pass
	output gpu.Grid
}

func NewUpdateState(backend gpu.Backend, dims, tile core.Dims, params *core.Parameters) (*UpdateState, error) {
	s, err := newStage(backend, dims, tile, params)
	if err != nil {
		return nil, err
	}
	u := &UpdateState{stage: s}
	if u.update, err = u.compile(gpu.UpdateState); err != nil {
		return nil, err
	}
	if u.output, err = u.newGrid("updateState", core.FormatVec4, dims); err != nil {
		return nil, err
	}
	u.update.bindings.Set("updateState", u.output)
	return u, nil
}

func (u *UpdateState) Execute(source, stateTm1, stateT gpu.Grid) error {
	u.update.bindings.
		Set("source", source).
		Set("stateTm1", stateTm1).
		Set("stateT", stateT)
	return u.run(u.update)
}

// Output is the grid written by Execute
func (u *UpdateState) Output() gpu.Grid { return u.output }

func (u *UpdateState) Release() { u.release() }
