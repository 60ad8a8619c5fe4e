package physics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fluidsim/core"
	"fluidsim/gpu"
)

func newBackend(t *testing.T) gpu.Backend {
	t.Helper()
	b := gpu.NewCPUBackend(4)
	t.Cleanup(b.Release)
	return b
}

func newParams(t *testing.T, dims core.Dims, spacing core.Spacing, dt float32) *core.Parameters {
	t.Helper()
	p, err := core.NewParameters(dims, spacing, dt, 0, 0)
	require.NoError(t, err)
	return &p
}

func uploadGrid(t *testing.T, b gpu.Backend, name string, format core.Format, dims core.Dims, data []float32) gpu.Grid {
	t.Helper()
	g, err := b.NewGrid(name, format, dims)
	require.NoError(t, err)
	if data != nil {
		require.NoError(t, b.Upload(g, data))
	}
	return g
}

func readGrid(t *testing.T, b gpu.Backend, g gpu.Grid) []float32 {
	t.Helper()
	out := make([]float32, g.Len())
	require.NoError(t, b.Readback(g, out))
	return out
}

func cellOf(state []float32, i int) core.Cell {
	return core.Cell{state[4*i], state[4*i+1], state[4*i+2], state[4*i+3]}
}
