package gpu

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidsim/core"
)

func newParams(t *testing.T, dims core.Dims) *core.Parameters {
	t.Helper()
	p, err := core.NewParameters(dims, core.Spacing{DX: 1, DY: 1, DZ: 1}, 0.1, 0, 0)
	require.NoError(t, err)
	return &p
}

func TestCPUBackendUploadReadback(t *testing.T) {
	b := NewCPUBackend(2)
	defer b.Release()

	g, err := b.NewGrid("state", core.FormatVec4, core.NewDims2(4, 2))
	require.NoError(t, err)
	assert.Equal(t, 32, g.Len())

	data := make([]float32, 32)
	for i := range data {
		data[i] = float32(i)
	}
	require.NoError(t, b.Upload(g, data))

	got := make([]float32, 32)
	require.NoError(t, b.Readback(g, got))
	assert.Equal(t, data, got)

	err = b.Readback(g, make([]float32, 3))
	assert.True(t, errors.Is(err, ErrSizeMismatch))
}

func TestCPUBackendReleased(t *testing.T) {
	b := NewCPUBackend(1)
	g, err := b.NewGrid("p", core.FormatScalar, core.NewDims2(8, 8))
	require.NoError(t, err)

	b.Free(g)
	assert.True(t, errors.Is(b.Upload(g, make([]float32, 64)), ErrReleased))

	b.Release()
	_, err = b.NewGrid("q", core.FormatScalar, core.NewDims2(8, 8))
	assert.True(t, errors.Is(err, ErrReleased))
}

func TestCompileUnknownKernel(t *testing.T) {
	b := NewCPUBackend(1)
	_, err := b.Compile(&Kernel{Name: "nope", Axis: Whole}, core.NewDims2(8, 8))
	assert.True(t, errors.Is(err, ErrUnknownKernel))
}

func TestDispatchValidatesBindings(t *testing.T) {
	b := NewCPUBackend(2)
	dims := core.NewDims2(8, 8)
	tile := core.NewDims2(4, 4)
	params := newParams(t, dims)

	state, err := b.NewGrid("state", core.FormatVec4, dims)
	require.NoError(t, err)
	div, err := b.NewGrid("divergence", core.FormatScalar, dims)
	require.NoError(t, err)
	small, err := b.NewGrid("small", core.FormatScalar, core.NewDims2(4, 4))
	require.NoError(t, err)
	p0, err := b.NewGrid("poisson0", core.FormatScalar, dims)
	require.NoError(t, err)

	divProgram, err := b.Compile(ComputeDivergence, tile)
	require.NoError(t, err)
	poissonProgram, err := b.Compile(SolvePoisson, tile)
	require.NoError(t, err)
	groups := ComputeDivergence.Groups(dims, tile)

	tests := []struct {
		name     string
		program  Program
		bindings *Bindings
		groups   core.Dims
		want     error
	}{
		{"missing slot", divProgram, NewBindings().Set("state", state).SetParameters(params), groups, ErrBindingMissing},
		{"missing parameters", divProgram, NewBindings().Set("state", state).Set("divergence", div), groups, ErrBindingMissing},
		{"wrong format", divProgram, NewBindings().Set("state", div).Set("divergence", div).SetParameters(params), groups, ErrFormatMismatch},
		{"wrong size", divProgram, NewBindings().Set("state", state).Set("divergence", small).SetParameters(params), groups, ErrSizeMismatch},
		{"wrong groups", divProgram, NewBindings().Set("state", state).Set("divergence", div).SetParameters(params), core.NewDims2(1, 1), ErrSizeMismatch},
		{"aliased output", poissonProgram, NewBindings().Set("divergence", div).Set("poisson", p0).Set("outPoisson", p0).SetParameters(params), groups, ErrAliasedBinding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Dispatch(tt.program, tt.bindings, tt.groups)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestZeroBoundaryKernel(t *testing.T) {
	b := NewCPUBackend(4)
	dims := core.NewDims3(4, 4, 4)
	tile := core.NewDims3(2, 2, 2)

	image, err := b.NewGrid("image", core.FormatScalar, dims)
	require.NoError(t, err)
	ones := make([]float32, dims.Cells())
	for i := range ones {
		ones[i] = 1
	}
	require.NoError(t, b.Upload(image, ones))

	for _, k := range []*Kernel{ZeroBoundaryX, ZeroBoundaryY, ZeroBoundaryZ} {
		prog, err := b.Compile(k, tile)
		require.NoError(t, err)
		require.NoError(t, b.Dispatch(prog, NewBindings().Set("image", image), k.Groups(dims, tile)))
	}

	got := make([]float32, dims.Cells())
	require.NoError(t, b.Readback(image, got))
	for i, v := range got {
		c := dims.CoordOf(i)
		if dims.OnBoundary(c) {
			assert.Zero(t, v, "boundary %v", c)
		} else {
			assert.Equal(t, float32(1), v, "interior %v", c)
		}
	}
}

func TestSampleIsIdentityAtCellCenters(t *testing.T) {
	b := NewCPUBackend(1)
	dims := core.NewDims2(3, 3)
	g, err := b.NewGrid("s", core.FormatVec4, dims)
	require.NoError(t, err)
	data := make([]float32, g.Len())
	for i := range data {
		data[i] = float32(i) * 0.37
	}
	require.NoError(t, b.Upload(g, data))
	cg := g.(*cpuGrid)

	for i := 0; i < dims.Cells(); i++ {
		c := dims.CoordOf(i)
		assert.Equal(t, cg.vec4(c), cg.sample(float32(c.X), float32(c.Y), 0))
	}
	// halfway between (0,0) and (1,0)
	mid := cg.sample(0.5, 0, 0)
	assert.InDelta(t, 0.5*(data[0]+data[4]), mid[0], 1e-6)
	// outside the grid clamps to the edge
	assert.Equal(t, cg.vec4(core.Coord{}), cg.sample(-3, -3, 0))
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, Names(), "cpu")

	b, err := Open("cpu")
	require.NoError(t, err)
	assert.Equal(t, "cpu", b.Name())
	b.Release()

	_, err = Open("does-not-exist")
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
}

func TestKernelCatalogue(t *testing.T) {
	assert.Len(t, KernelNames(), 14)
	for _, name := range KernelNames() {
		k, ok := LookupKernel(name)
		require.True(t, ok)
		_, ok = cpuKernels[k.Name]
		assert.True(t, ok, "cpu backend is missing %s", name)
	}

	assert.Equal(t, core.NewDims3(1, 4, 2), CopyBoundaryX.Groups(core.NewDims3(16, 32, 16), core.NewDims3(8, 8, 8)))
	assert.Equal(t, core.NewDims2(4, 1), WriteBoundaryY.Groups(core.NewDims2(32, 32), core.NewDims2(8, 8)))
}
