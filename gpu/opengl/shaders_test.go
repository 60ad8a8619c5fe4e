package opengl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidsim/core"
	"fluidsim/gpu"
)

func TestSourceCoversCatalogue(t *testing.T) {
	tile := core.NewDims3(8, 8, 8)
	for _, name := range gpu.KernelNames() {
		k, _ := gpu.LookupKernel(name)
		src, err := Source(k, tile)
		require.NoError(t, err, name)

		assert.True(t, strings.HasPrefix(strings.TrimSpace(src), "#version 430 core"), name)
		assert.NotContains(t, src, "{{", name)
		for i, s := range k.Slots {
			assert.Contains(t, src, storageBlock(i, s), "%s slot %s", name, s.Name)
		}
	}
}

func TestSourceCollapsesBoundaryTile(t *testing.T) {
	src, err := Source(gpu.CopyBoundaryY, core.NewDims3(8, 8, 4))
	require.NoError(t, err)
	assert.Contains(t, src, "local_size_x = 8, local_size_y = 1, local_size_z = 4")
	assert.Contains(t, src, "const int AXIS = 1;")
	assert.Contains(t, src, "yMin[f] = v;")
	assert.Contains(t, src, "yMax[f] = v;")

	src, err = Source(gpu.UpdateState, core.NewDims2(16, 8))
	require.NoError(t, err)
	assert.Contains(t, src, "local_size_x = 16, local_size_y = 8, local_size_z = 1")
}

func TestStorageQualifiers(t *testing.T) {
	k := gpu.WriteBoundaryX
	assert.Contains(t, storageBlock(0, k.Slots[0]), "readonly buffer xMinBuffer")
	assert.Contains(t, storageBlock(2, k.Slots[2]), "binding = 2) buffer stateBuffer")
	assert.Contains(t, storageBlock(1, gpu.ZeroScalar.Slots[0]), "writeonly buffer targetBuffer {\n    float target[];")
}

func TestSourceUnknownKernel(t *testing.T) {
	_, err := Source(&gpu.Kernel{Name: "missing", Axis: gpu.Whole}, core.NewDims2(8, 8))
	assert.ErrorIs(t, err, gpu.ErrUnknownKernel)
}
