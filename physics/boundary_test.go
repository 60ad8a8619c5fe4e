package physics

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidsim/core"
)

func TestEnforceBoundaryInvariant(t *testing.T) {
	tests := []struct {
		name string
		dims core.Dims
		tile core.Dims
	}{
		{"2d odd", core.NewDims2(5, 7), core.NewDims2(1, 1)},
		{"2d tiled", core.NewDims2(16, 16), core.NewDims2(8, 8)},
		{"2d minimal", core.NewDims2(3, 3), core.NewDims2(1, 1)},
		{"3d odd", core.NewDims3(4, 3, 5), core.NewDims3(1, 1, 1)},
		{"3d tiled", core.NewDims3(8, 8, 8), core.NewDims3(4, 4, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			dims := tt.dims
			rng := rand.New(rand.NewSource(1))
			data := make([]float32, 4*dims.Cells())
			for i := range data {
				data[i] = rng.Float32()*2 - 1
			}
			if dims.Is2D() {
				for i := 0; i < dims.Cells(); i++ {
					data[4*i+core.VelZ] = 0
				}
			}
			state := uploadGrid(t, b, "state", core.FormatVec4, dims, data)

			enforce, err := NewEnforceBoundary(b, dims, tt.tile, newParams(t, dims, core.Spacing{}, 0.01))
			require.NoError(t, err)
			defer enforce.Release()
			require.NoError(t, enforce.Execute(state))

			got := readGrid(t, b, state)
			for i := 0; i < dims.Cells(); i++ {
				c := dims.CoordOf(i)
				v := cellOf(got, i)
				if !dims.OnBoundary(c) {
					assert.Equal(t, cellOf(data, i), v, "interior %v changed", c)
					continue
				}
				for axis := 0; axis < dims.Axes(); axis++ {
					n := dims.Size(axis)
					pos := []int{c.X, c.Y, c.Z}[axis]
					var inner int
					switch pos {
					case 0:
						inner = 1
					case n - 1:
						inner = n - 2
					default:
						continue
					}
					assert.Zero(t, v[axis], "normal velocity at %v axis %d", c, axis)
					in := cellOf(got, dims.IndexOf(along3(c, axis, inner)))
					for k := 0; k < 4; k++ {
						if k != axis {
							assert.Equal(t, in[k], v[k], "component %d at %v axis %d", k, c, axis)
						}
					}
				}
			}
		})
	}
}

func along3(c core.Coord, axis, v int) core.Coord {
	switch axis {
	case 0:
		c.X = v
	case 1:
		c.Y = v
	default:
		c.Z = v
	}
	return c
}

func TestEnforceBoundaryRejectsBadTile(t *testing.T) {
	b := newBackend(t)
	_, err := NewEnforceBoundary(b, core.NewDims2(10, 10), core.NewDims2(8, 8), nil)
	assert.ErrorIs(t, err, core.ErrInvalidDims)
}
