//go:build gl

package opengl

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidsim/core"
	"fluidsim/gpu"
)

// runDivergence computes the divergence of state on backend b
func runDivergence(t *testing.T, b gpu.Backend, dims, tile core.Dims, params *core.Parameters, state []float32) []float32 {
	t.Helper()
	in, err := b.NewGrid("state", core.FormatVec4, dims)
	require.NoError(t, err)
	out, err := b.NewGrid("divergence", core.FormatScalar, dims)
	require.NoError(t, err)
	prog, err := b.Compile(gpu.ComputeDivergence, tile)
	require.NoError(t, err)

	require.NoError(t, b.Upload(in, state))
	bindings := gpu.NewBindings().Set("state", in).Set("divergence", out).SetParameters(params)
	require.NoError(t, b.Dispatch(prog, bindings, gpu.ComputeDivergence.Groups(dims, tile)))
	b.Barrier()

	got := make([]float32, dims.Cells())
	require.NoError(t, b.Readback(out, got))
	return got
}

func TestBackendMatchesCPU(t *testing.T) {
	glBackend, err := New()
	if err != nil {
		t.Skipf("opengl unavailable: %v", err)
	}
	defer glBackend.Release()
	cpu := gpu.NewCPUBackend(2)
	defer cpu.Release()

	dims := core.NewDims3(16, 16, 8)
	tile := core.NewDims3(8, 8, 4)
	params, err := core.NewParameters(dims, core.Spacing{}, 0.001, 0.01, 0.01)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	state := make([]float32, 4*dims.Cells())
	for i := range state {
		state[i] = rng.Float32()*2 - 1
	}

	want := runDivergence(t, cpu, dims, tile, &params, state)
	got := runDivergence(t, glBackend, dims, tile, &params, state)
	assert.InDeltaSlice(t, want, got, 1e-3)
}
