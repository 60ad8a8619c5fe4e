//go:build !gl

package opengl

import (
	"github.com/pkg/errors"

	"fluidsim/gpu"
)

// Built without -tags gl: the backend name resolves but cannot be opened.
func init() {
	gpu.Register("gl", func() (gpu.Backend, error) {
		return nil, errors.Wrap(gpu.ErrBackendUnavailable, "opengl support not compiled in (build with -tags gl)")
	})
}
