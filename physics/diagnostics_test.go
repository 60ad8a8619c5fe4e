package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fluidsim/core"
)

func TestMeasure(t *testing.T) {
	dims := core.NewDims2(4, 4)
	state := make([]float32, 4*dims.Cells())
	for i := 0; i < dims.Cells(); i++ {
		state[4*i+core.Density] = 0.5
	}
	// a single cell moving east at speed 2
	i := dims.Index(1, 1, 0)
	state[4*i+core.VelX] = 2

	s := Measure(dims, state)
	assert.InDelta(t, 8.0, s.TotalDensity, 1e-9)
	assert.InDelta(t, 0.5, s.MaxDensity, 1e-9)
	assert.InDelta(t, 2.0, s.KineticEnergy, 1e-9)
	assert.InDelta(t, 2.0, s.MaxSpeed, 1e-9)
	// of the interior cells only (2,1) sees the moving cell: 0.5*(0-2)
	assert.InDelta(t, 1.0, s.DivergenceL2, 1e-9)
}

func TestMeasureEmpty(t *testing.T) {
	assert.Equal(t, Stats{}, Measure(core.NewDims2(4, 4), nil))
}
