package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecInDelta(t *testing.T, want, got mgl32.Vec4, msg string) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "%s[%d]", msg, i)
	}
}

func TestNewParameters2D(t *testing.T) {
	p, err := NewParameters(NewDims2(64, 32), Spacing{}, 0.001, 0.01, 0.02)
	require.NoError(t, err)

	dx, dy := float32(1)/64, float32(1)/32
	r := (dx / dy) * (dx / dy)
	f := 0.5 / (1 + r)

	vecInDelta(t, mgl32.Vec4{dx, dy, 0, 0}, p.SpaceDelta, "spaceDelta")
	vecInDelta(t, mgl32.Vec4{32, 16, 0, 0}, p.HalfDivDelta, "halfDivDelta")
	vecInDelta(t, mgl32.Vec4{0.064, 0.032, 0, 0.001}, p.TimeDelta, "timeDelta")
	vecInDelta(t, mgl32.Vec4{0.01 * 0.001 / (dx * dx), 0.01 * 0.001 / (dx * dx), 0, 0.02 * 0.001 / (dx * dx)}, p.ViscosityX, "viscosityX")
	vecInDelta(t, mgl32.Vec4{}, p.ViscosityZ, "viscosityZ")
	vecInDelta(t, mgl32.Vec4{f, r * f, 0, dx * dx * f}, p.Epsilon, "epsilon")
}

func TestNewParameters3D(t *testing.T) {
	p, err := NewParameters(NewDims3(8, 8, 8), Spacing{DX: 1, DY: 1, DZ: 1}, 0.1, 0.5, 0)
	require.NoError(t, err)

	third := float32(1) / 6
	vecInDelta(t, mgl32.Vec4{third, third, third, third}, p.Epsilon, "epsilon")
	vecInDelta(t, mgl32.Vec4{0.5, 0.5, 0.5, 0}, p.HalfDivDelta, "halfDivDelta")
	vecInDelta(t, mgl32.Vec4{0.05, 0.05, 0.05, 0}, p.ViscosityZ, "viscosityZ")

	floats := p.Floats()
	require.Len(t, floats, ParameterCount)
	assert.Equal(t, p.TimeDelta[3], floats[11])
	assert.Equal(t, p.Epsilon[0], floats[24])
}

func TestNewParametersErrors(t *testing.T) {
	dims := NewDims2(8, 8)
	tests := []struct {
		name    string
		dims    Dims
		spacing Spacing
		dt      float32
		visc    float32
		want    error
	}{
		{"zero dt", dims, Spacing{}, 0, 0, ErrInvalidTimeStep},
		{"negative dt", dims, Spacing{}, -0.1, 0, ErrInvalidTimeStep},
		{"negative viscosity", dims, Spacing{}, 0.1, -1, ErrInvalidViscosity},
		{"negative spacing", dims, Spacing{DY: -1}, 0.1, 0, ErrInvalidSpacing},
		{"empty grid", Dims{}, Spacing{}, 0.1, 0, ErrInvalidDims},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParameters(tt.dims, tt.spacing, tt.dt, tt.visc, tt.visc)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSetLogger(t *testing.T) {
	assert.NotNil(t, Logger())
	assert.False(t, Logger().Enabled(t.Context(), 0))
	SetLogger(nil)
	assert.NotNil(t, Logger())
}
