package physics

import (
	"fluidsim/core"
	"fluidsim/gpu"
)

var axisNames = [3]string{"x", "y", "z"}

// EnforceBoundary applies a free-slip wall on every face of the state grid.
// Per axis, a copy pass captures the layer one cell inside each face with
// its normal velocity cleared, then a write pass stores it on the outer
// layer. Axes run in X, Y, Z order since later axes read corner cells
// written by earlier ones.
type EnforceBoundary struct {
	stage
	copies []*pass
	writes []*pass
}

func NewEnforceBoundary(backend gpu.Backend, dims, tile core.Dims, params *core.Parameters) (*EnforceBoundary, error) {
	s, err := newStage(backend, dims, tile, params)
	if err != nil {
		return nil, err
	}
	e := &EnforceBoundary{stage: s}
	fail := func(err error) (*EnforceBoundary, error) {
		e.release()
		return nil, err
	}

	copies := []*gpu.Kernel{gpu.CopyBoundaryX, gpu.CopyBoundaryY, gpu.CopyBoundaryZ}
	writes := []*gpu.Kernel{gpu.WriteBoundaryX, gpu.WriteBoundaryY, gpu.WriteBoundaryZ}
	for axis := 0; axis < dims.Axes(); axis++ {
		cp, err := e.compile(copies[axis])
		if err != nil {
			return fail(err)
		}
		wr, err := e.compile(writes[axis])
		if err != nil {
			return fail(err)
		}

		faceDims := copies[axis].Collapse(dims)
		lo, hi := axisNames[axis]+"Min", axisNames[axis]+"Max"
		loGrid, err := e.newGrid(lo, core.FormatVec4, faceDims)
		if err != nil {
			return fail(err)
		}
		hiGrid, err := e.newGrid(hi, core.FormatVec4, faceDims)
		if err != nil {
			return fail(err)
		}
		cp.bindings.Set(lo, loGrid).Set(hi, hiGrid)
		wr.bindings.Set(lo, loGrid).Set(hi, hiGrid)

		e.copies = append(e.copies, cp)
		e.writes = append(e.writes, wr)
	}
	return e, nil
}

// Execute rewrites the outer layers of state in place
func (e *EnforceBoundary) Execute(state gpu.Grid) error {
	for axis := range e.copies {
		e.copies[axis].bindings.Set("state", state)
		if err := e.run(e.copies[axis]); err != nil {
			return err
		}
		e.writes[axis].bindings.Set("state", state)
		if err := e.run(e.writes[axis]); err != nil {
			return err
		}
	}
	return nil
}

func (e *EnforceBoundary) Release() { e.release() }
