package opengl

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"fluidsim/core"
	"fluidsim/gpu"
)

// Shared prologue. The Parameters block mirrors core.Parameters (std140,
// seven vec4). Grids are std430 arrays indexed x fastest.
const commonHeader = `
#version 430 core

layout(local_size_x = %d, local_size_y = %d, local_size_z = %d) in;

layout(std140, binding = 0) uniform Parameters {
    vec4 spaceDelta;    // (dx, dy, dz, 0)
    vec4 halfDivDelta;  // (0.5/dx, 0.5/dy, 0.5/dz, 0)
    vec4 timeDelta;     // (dt/dx, dt/dy, dt/dz, dt)
    vec4 viscosityX;
    vec4 viscosityY;
    vec4 viscosityZ;
    vec4 epsilon;
};

uniform ivec3 gridDims;

int indexOf(ivec3 c, ivec3 dims) {
    return (c.z * dims.y + c.y) * dims.x + c.x;
}

int clampedIndex(ivec3 c) {
    return indexOf(clamp(c, ivec3(0), gridDims - 1), gridDims);
}

const ivec3 X = ivec3(1, 0, 0);
const ivec3 Y = ivec3(0, 1, 0);
const ivec3 Z = ivec3(0, 0, 1);
`

const updateStateBody = `
vec4 sampleTm1(vec3 p) {
    p = clamp(p, vec3(0.0), vec3(gridDims - 1));
    ivec3 i0 = ivec3(floor(p));
    ivec3 i1 = min(i0 + 1, gridDims - 1);
    vec3 f = p - vec3(i0);

    vec4 c000 = stateTm1[indexOf(ivec3(i0.x, i0.y, i0.z), gridDims)];
    vec4 c100 = stateTm1[indexOf(ivec3(i1.x, i0.y, i0.z), gridDims)];
    vec4 c010 = stateTm1[indexOf(ivec3(i0.x, i1.y, i0.z), gridDims)];
    vec4 c110 = stateTm1[indexOf(ivec3(i1.x, i1.y, i0.z), gridDims)];
    vec4 c001 = stateTm1[indexOf(ivec3(i0.x, i0.y, i1.z), gridDims)];
    vec4 c101 = stateTm1[indexOf(ivec3(i1.x, i0.y, i1.z), gridDims)];
    vec4 c011 = stateTm1[indexOf(ivec3(i0.x, i1.y, i1.z), gridDims)];
    vec4 c111 = stateTm1[indexOf(ivec3(i1.x, i1.y, i1.z), gridDims)];

    vec4 y0 = mix(mix(c000, c100, f.x), mix(c010, c110, f.x), f.y);
    vec4 y1 = mix(mix(c001, c101, f.x), mix(c011, c111, f.x), f.y);
    return mix(y0, y1, f.z);
}

void main() {
    ivec3 c = ivec3(gl_GlobalInvocationID);
    if (any(greaterThanEqual(c, gridDims))) return;
    int i = indexOf(c, gridDims);

    vec4 center = stateT[i];
    vec4 dxx = stateT[clampedIndex(c + X)] + stateT[clampedIndex(c - X)] - 2.0 * center;
    vec4 dyy = stateT[clampedIndex(c + Y)] + stateT[clampedIndex(c - Y)] - 2.0 * center;
    vec4 dzz = stateT[clampedIndex(c + Z)] + stateT[clampedIndex(c - Z)] - 2.0 * center;

    vec4 advected = sampleTm1(vec3(c) - timeDelta.xyz * center.xyz);
    updateState[i] = advected
        + viscosityX * dxx + viscosityY * dyy + viscosityZ * dzz
        + timeDelta.w * source[i];
}
`

const divergenceBody = `
void main() {
    ivec3 c = ivec3(gl_GlobalInvocationID);
    if (any(greaterThanEqual(c, gridDims))) return;

    vec3 diff = vec3(
        state[clampedIndex(c + X)].x - state[clampedIndex(c - X)].x,
        state[clampedIndex(c + Y)].y - state[clampedIndex(c - Y)].y,
        state[clampedIndex(c + Z)].z - state[clampedIndex(c - Z)].z);
    divergence[indexOf(c, gridDims)] = dot(halfDivDelta.xyz, diff);
}
`

const zeroScalarBody = `
void main() {
    ivec3 c = ivec3(gl_GlobalInvocationID);
    if (any(greaterThanEqual(c, gridDims))) return;
    target[indexOf(c, gridDims)] = 0.0;
}
`

const poissonBody = `
void main() {
    ivec3 c = ivec3(gl_GlobalInvocationID);
    if (any(greaterThanEqual(c, gridDims))) return;
    int i = indexOf(c, gridDims);

    vec4 sums = vec4(
        poisson[clampedIndex(c + X)] + poisson[clampedIndex(c - X)],
        poisson[clampedIndex(c + Y)] + poisson[clampedIndex(c - Y)],
        poisson[clampedIndex(c + Z)] + poisson[clampedIndex(c - Z)],
        -divergence[i]);
    outPoisson[i] = dot(epsilon, sums);
}
`

const adjustVelocityBody = `
void main() {
    ivec3 c = ivec3(gl_GlobalInvocationID);
    if (any(greaterThanEqual(c, gridDims))) return;
    int i = indexOf(c, gridDims);

    vec3 gradient = vec3(
        poisson[clampedIndex(c + X)] - poisson[clampedIndex(c - X)],
        poisson[clampedIndex(c + Y)] - poisson[clampedIndex(c - Y)],
        poisson[clampedIndex(c + Z)] - poisson[clampedIndex(c - Z)]);
    outState[i] = inState[i] - vec4(halfDivDelta.xyz * gradient, 0.0);
}
`

// Boundary kernels run over the grid collapsed along AXIS
const zeroBoundaryBody = `
const int AXIS = {{axis}};

void main() {
    ivec3 c = ivec3(gl_GlobalInvocationID);
    ivec3 faceDims = gridDims;
    faceDims[AXIS] = 1;
    if (any(greaterThanEqual(c, faceDims))) return;

    ivec3 lo = c;
    ivec3 hi = c;
    hi[AXIS] = gridDims[AXIS] - 1;
    image[indexOf(lo, gridDims)] = 0.0;
    image[indexOf(hi, gridDims)] = 0.0;
}
`

const copyBoundaryBody = `
const int AXIS = {{axis}};

void main() {
    ivec3 c = ivec3(gl_GlobalInvocationID);
    ivec3 faceDims = gridDims;
    faceDims[AXIS] = 1;
    if (any(greaterThanEqual(c, faceDims))) return;
    int f = indexOf(c, faceDims);

    ivec3 inner = c;
    inner[AXIS] = 1;
    vec4 v = state[clampedIndex(inner)];
    v[AXIS] = 0.0;
    {{lo}}[f] = v;

    inner[AXIS] = gridDims[AXIS] - 2;
    v = state[clampedIndex(inner)];
    v[AXIS] = 0.0;
    {{hi}}[f] = v;
}
`

const writeBoundaryBody = `
const int AXIS = {{axis}};

void main() {
    ivec3 c = ivec3(gl_GlobalInvocationID);
    ivec3 faceDims = gridDims;
    faceDims[AXIS] = 1;
    if (any(greaterThanEqual(c, faceDims))) return;
    int f = indexOf(c, faceDims);

    ivec3 outer = c;
    vec4 v = {{lo}}[f];
    v[AXIS] = 0.0;
    state[indexOf(outer, gridDims)] = v;

    outer[AXIS] = gridDims[AXIS] - 1;
    v = {{hi}}[f];
    v[AXIS] = 0.0;
    state[indexOf(outer, gridDims)] = v;
}
`

var bodies = map[string]string{
	gpu.UpdateState.Name:       updateStateBody,
	gpu.ComputeDivergence.Name: divergenceBody,
	gpu.ZeroScalar.Name:        zeroScalarBody,
	gpu.SolvePoisson.Name:      poissonBody,
	gpu.AdjustVelocity.Name:    adjustVelocityBody,
	gpu.ZeroBoundaryX.Name:     zeroBoundaryBody,
	gpu.ZeroBoundaryY.Name:     zeroBoundaryBody,
	gpu.ZeroBoundaryZ.Name:     zeroBoundaryBody,
	gpu.CopyBoundaryX.Name:     copyBoundaryBody,
	gpu.CopyBoundaryY.Name:     copyBoundaryBody,
	gpu.CopyBoundaryZ.Name:     copyBoundaryBody,
	gpu.WriteBoundaryX.Name:    writeBoundaryBody,
	gpu.WriteBoundaryY.Name:    writeBoundaryBody,
	gpu.WriteBoundaryZ.Name:    writeBoundaryBody,
}

// storageBlock declares the SSBO for one slot at binding = slot index
func storageBlock(binding int, s gpu.Slot) string {
	qualifier := ""
	switch s.Access {
	case gpu.Read:
		qualifier = "readonly "
	case gpu.Write:
		qualifier = "writeonly "
	}
	elem := "float"
	if s.Format == core.FormatVec4 {
		elem = "vec4"
	}
	return fmt.Sprintf("layout(std430, binding = %d) %sbuffer %sBuffer {\n    %s %s[];\n};\n",
		binding, qualifier, s.Name, elem, s.Name)
}

// Source assembles the GLSL 430 compute shader for kernel at the given
// tile size. Boundary kernels get their tile collapsed along the boundary axis.
func Source(kernel *gpu.Kernel, tile core.Dims) (string, error) {
	body, ok := bodies[kernel.Name]
	if !ok {
		return "", errors.Wrapf(gpu.ErrUnknownKernel, "glsl: %s", kernel.Name)
	}
	tile = kernel.Collapse(tile)

	var sb strings.Builder
	fmt.Fprintf(&sb, commonHeader, tile.X, tile.Y, tile.Z)
	sb.WriteString("\n")
	for i, s := range kernel.Slots {
		sb.WriteString(storageBlock(i, s))
	}

	if kernel.Axis != gpu.Whole {
		var lo, hi string
		for _, s := range kernel.Slots {
			if s.Face == gpu.Whole {
				continue
			}
			if lo == "" {
				lo = s.Name
			} else {
				hi = s.Name
			}
		}
		body = strings.NewReplacer(
			"{{axis}}", fmt.Sprint(kernel.Axis),
			"{{lo}}", lo,
			"{{hi}}", hi,
		).Replace(body)
	}
	sb.WriteString(body)
	return sb.String(), nil
}
