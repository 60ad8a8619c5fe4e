package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIndexRoundTrip documents the linear layout: x fastest, then y, then z
func TestIndexRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		dims  Dims
		c     Coord
		index int
	}{
		{name: "origin", dims: NewDims2(4, 3), c: Coord{}, index: 0},
		{name: "end of first row", dims: NewDims2(4, 3), c: Coord{X: 3}, index: 3},
		{name: "start of second row", dims: NewDims2(4, 3), c: Coord{Y: 1}, index: 4},
		{name: "last 2d cell", dims: NewDims2(4, 3), c: Coord{X: 3, Y: 2}, index: 11},
		{name: "second slice", dims: NewDims3(4, 3, 2), c: Coord{Z: 1}, index: 12},
		{name: "last 3d cell", dims: NewDims3(4, 3, 2), c: Coord{X: 3, Y: 2, Z: 1}, index: 23},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.index, tt.dims.IndexOf(tt.c))
			assert.Equal(t, tt.c, tt.dims.CoordOf(tt.index))
			assert.True(t, tt.dims.Contains(tt.c))
		})
	}
}

func TestOnBoundary(t *testing.T) {
	tests := []struct {
		name string
		dims Dims
		c    Coord
		want bool
	}{
		{name: "2d corner", dims: NewDims2(5, 5), c: Coord{}, want: true},
		{name: "2d west edge", dims: NewDims2(5, 5), c: Coord{Y: 2}, want: true},
		{name: "2d interior", dims: NewDims2(5, 5), c: Coord{X: 2, Y: 2}, want: false},
		// z is not an axis for planar grids
		{name: "2d ignores z", dims: NewDims2(5, 5), c: Coord{X: 1, Y: 1}, want: false},
		{name: "3d bottom face", dims: NewDims3(5, 5, 5), c: Coord{X: 2, Y: 2}, want: true},
		{name: "3d top face", dims: NewDims3(5, 5, 5), c: Coord{X: 2, Y: 2, Z: 4}, want: true},
		{name: "3d interior", dims: NewDims3(5, 5, 5), c: Coord{X: 2, Y: 2, Z: 2}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dims.OnBoundary(tt.c))
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-1, 8))
	assert.Equal(t, 7, Clamp(8, 8))
	assert.Equal(t, 3, Clamp(3, 8))
	assert.Equal(t, 0, Clamp(1, 1))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, NewDims2(64, 64).Validate(NewDims2(8, 8)))
	assert.NoError(t, NewDims3(16, 16, 8).Validate(NewDims3(8, 8, 8)))
	assert.ErrorIs(t, NewDims2(60, 64).Validate(NewDims2(8, 8)), ErrInvalidDims)
	assert.ErrorIs(t, NewDims2(64, 64).Validate(Dims{X: 8, Y: 8}), ErrInvalidDims)
	assert.ErrorIs(t, Dims{X: -8, Y: 8, Z: 1}.Validate(NewDims2(8, 8)), ErrInvalidDims)

	assert.Equal(t, NewDims3(8, 4, 2), NewDims3(64, 32, 16).Groups(NewDims3(8, 8, 8)))
	assert.Equal(t, "64x64", NewDims2(64, 64).String())
	assert.Equal(t, "8x8x8", NewDims3(8, 8, 8).String())
}
