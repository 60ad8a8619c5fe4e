package core

import "github.com/pkg/errors"

// Configuration errors are reported at construction time. Callers must not
// step a simulator whose constructor returned one of these.
var (
	ErrInvalidDims       = errors.New("grid dimensions must be positive multiples of the tile size")
	ErrInvalidTimeStep   = errors.New("time step must be positive")
	ErrInvalidSpacing    = errors.New("grid spacing must be positive")
	ErrInvalidViscosity  = errors.New("viscosity must not be negative")
	ErrInvalidIterations = errors.New("poisson iteration count must be positive")
)
