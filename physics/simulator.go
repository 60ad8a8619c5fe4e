package physics

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"fluidsim/core"
	"fluidsim/gpu"
)

var (
	ErrNotInitialized  = errors.New("simulator not initialized")
	ErrRestartRequired = errors.New("grid, tile or iteration changes require a new simulator")
)

// DefaultIterations is the Poisson sweep count used when Config leaves it 0
const DefaultIterations = 32

// Config is fixed at construction except for the fields Reconfigure accepts
type Config struct {
	Dims core.Dims
	Tile core.Dims
	// Spacing of zero selects 1/size per axis
	Spacing           core.Spacing
	TimeStep          float32
	VelocityViscosity float32
	DensityViscosity  float32
	Iterations        int
}

// WithDefaults fills the tile and iteration count the way New does
func (c Config) WithDefaults() Config {
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.Tile == (core.Dims{}) {
		if c.Dims.Is2D() {
			c.Tile = core.NewDims2(8, 8)
		} else {
			c.Tile = core.NewDims3(8, 8, 8)
		}
	}
	return c
}

// Simulator owns every grid of one fluid instance and runs the step
// pipeline. A 2D simulator is a 3D one with a single z slice.
//
// State lives in three rotating grids. A step reads stateTm1 and stateT and
// writes stateTp1; afterwards stateTm1 takes stateT, stateT takes stateTp1
// and the oldest grid becomes the next stateTp1.
type Simulator struct {
	mu sync.Mutex

	backend gpu.Backend
	cfg     Config
	params  *core.Parameters

	source   gpu.Grid
	stateTm1 gpu.Grid
	stateT   gpu.Grid
	stateTp1 gpu.Grid
	grids    []gpu.Grid

	updateState       *UpdateState
	enforceBoundary   *EnforceBoundary
	computeDivergence *ComputeDivergence
	solvePoisson      *SolvePoisson
	adjustVelocity    *AdjustVelocity

	hostSource  []float32
	initialized bool
	released    bool
	steps       uint64
}

// New validates cfg, builds the parameter block, compiles every stage and
// allocates all grids. Any failure releases what was allocated.
func New(backend gpu.Backend, cfg Config) (*Simulator, error) {
	if backend == nil {
		return nil, errors.Wrap(gpu.ErrBackendUnavailable, "nil backend")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Dims.Validate(cfg.Tile); err != nil {
		return nil, err
	}
	if cfg.Iterations < 0 {
		return nil, errors.Wrapf(core.ErrInvalidIterations, "iterations=%d", cfg.Iterations)
	}
	params, err := core.NewParameters(cfg.Dims, cfg.Spacing, cfg.TimeStep, cfg.VelocityViscosity, cfg.DensityViscosity)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		backend:    backend,
		cfg:        cfg,
		params:     &params,
		hostSource: make([]float32, 4*cfg.Dims.Cells()),
	}
	if err := s.build(); err != nil {
		s.Release()
		return nil, err
	}
	core.Logger().Info("simulator created",
		"backend", backend.Name(), "dims", cfg.Dims.String(), "tile", cfg.Tile.String(),
		"dt", cfg.TimeStep, "iterations", cfg.Iterations)
	return s, nil
}

// New2D creates a planar simulator on the unit square with an 8x8 tile
func New2D(backend gpu.Backend, xSize, ySize int, dt, densityViscosity, velocityViscosity float32) (*Simulator, error) {
	return New(backend, Config{
		Dims:              core.NewDims2(xSize, ySize),
		TimeStep:          dt,
		VelocityViscosity: velocityViscosity,
		DensityViscosity:  densityViscosity,
	})
}

// New3D creates a volume simulator on the unit cube with an 8x8x8 tile
func New3D(backend gpu.Backend, xSize, ySize, zSize int, dt, densityViscosity, velocityViscosity float32) (*Simulator, error) {
	return New(backend, Config{
		Dims:              core.NewDims3(xSize, ySize, zSize),
		TimeStep:          dt,
		VelocityViscosity: velocityViscosity,
		DensityViscosity:  densityViscosity,
	})
}

func (s *Simulator) build() error {
	dims, tile := s.cfg.Dims, s.cfg.Tile
	var err error

	for _, g := range []struct {
		dst  *gpu.Grid
		name string
	}{
		{&s.source, "source"},
		{&s.stateTm1, "stateTm1"},
		{&s.stateT, "stateT"},
		{&s.stateTp1, "stateTp1"},
	} {
		if *g.dst, err = s.backend.NewGrid(g.name, core.FormatVec4, dims); err != nil {
			return errors.Wrapf(err, "allocate %s", g.name)
		}
		s.grids = append(s.grids, *g.dst)
	}

	if s.updateState, err = NewUpdateState(s.backend, dims, tile, s.params); err != nil {
		return err
	}
	if s.enforceBoundary, err = NewEnforceBoundary(s.backend, dims, tile, s.params); err != nil {
		return err
	}
	if s.computeDivergence, err = NewComputeDivergence(s.backend, dims, tile, s.params); err != nil {
		return err
	}
	if s.solvePoisson, err = NewSolvePoisson(s.backend, dims, tile, s.params, s.cfg.Iterations); err != nil {
		return err
	}
	if s.adjustVelocity, err = NewAdjustVelocity(s.backend, dims, tile, s.params); err != nil {
		return err
	}
	return nil
}

// Initialize seeds stateTm1 and stateT with the same field and clears the
// source. A nil seeder selects RestingState.
func (s *Simulator) Initialize(seed Seeder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return gpu.ErrReleased
	}
	if seed == nil {
		seed = RestingState
	}

	state := make([]float32, 4*s.cfg.Dims.Cells())
	seed(s.cfg.Dims, state)
	for _, g := range []gpu.Grid{s.stateTm1, s.stateT} {
		if err := s.backend.Upload(g, state); err != nil {
			return errors.Wrapf(err, "seed %s", g.Name())
		}
	}
	if err := s.backend.Upload(s.stateTp1, make([]float32, len(state))); err != nil {
		return errors.Wrap(err, "clear stateTp1")
	}
	clear(s.hostSource)
	if err := s.backend.Upload(s.source, s.hostSource); err != nil {
		return errors.Wrap(err, "clear source")
	}

	s.steps = 0
	s.initialized = true
	core.Logger().Info("simulator initialized", "dims", s.cfg.Dims.String())
	return nil
}

// SetSource evaluates src into the source grid. The source persists across
// steps until replaced; a nil src clears it.
func (s *Simulator) SetSource(src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return gpu.ErrReleased
	}
	clear(s.hostSource)
	if src != nil {
		src(s.cfg.Dims, s.hostSource)
	}
	return s.backend.Upload(s.source, s.hostSource)
}

// UploadSource copies a caller-built source field (4 floats per cell)
func (s *Simulator) UploadSource(data []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return gpu.ErrReleased
	}
	if err := s.backend.Upload(s.source, data); err != nil {
		return err
	}
	copy(s.hostSource, data)
	return nil
}

// Step runs one full simulation step. Any dispatch failure is returned
// as is; the step is not retried and the state grids may hold a partial
// result.
func (s *Simulator) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return gpu.ErrReleased
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	start := time.Now()

	if err := s.updateState.Execute(s.source, s.stateTm1, s.stateT); err != nil {
		return errors.Wrap(err, "update state")
	}
	tentative := s.updateState.Output()
	if err := s.enforceBoundary.Execute(tentative); err != nil {
		return errors.Wrap(err, "enforce boundary")
	}
	if err := s.computeDivergence.Execute(tentative); err != nil {
		return errors.Wrap(err, "compute divergence")
	}
	if err := s.solvePoisson.Execute(s.computeDivergence.Divergence()); err != nil {
		return errors.Wrap(err, "solve poisson")
	}
	if err := s.adjustVelocity.Execute(tentative, s.solvePoisson.Poisson(), s.stateTp1); err != nil {
		return errors.Wrap(err, "adjust velocity")
	}
	if err := s.enforceBoundary.Execute(s.stateTp1); err != nil {
		return errors.Wrap(err, "enforce boundary")
	}

	s.stateTm1, s.stateT, s.stateTp1 = s.stateT, s.stateTp1, s.stateTm1
	s.steps++
	core.Logger().Debug("step", "step", s.steps, "elapsed", time.Since(start))
	return nil
}

// State returns the grid holding the current state. The handle stays valid
// until the next Step, after which it becomes the previous state.
func (s *Simulator) State() gpu.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateT
}

// Snapshot reads the current state back to host memory
func (s *Simulator) Snapshot(dst []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return gpu.ErrReleased
	}
	if !s.initialized {
		return ErrNotInitialized
	}
	return s.backend.Readback(s.stateT, dst)
}

// Reconfigure replaces the time step, spacing and viscosities. The new
// parameters apply from the next Step. Changing dims, tile or the
// iteration count returns ErrRestartRequired.
func (s *Simulator) Reconfigure(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg = cfg.WithDefaults()
	if cfg.Dims != s.cfg.Dims || cfg.Tile != s.cfg.Tile || cfg.Iterations != s.cfg.Iterations {
		return errors.Wrapf(ErrRestartRequired, "%s/%s/%d -> %s/%s/%d",
			s.cfg.Dims, s.cfg.Tile, s.cfg.Iterations, cfg.Dims, cfg.Tile, cfg.Iterations)
	}
	params, err := core.NewParameters(cfg.Dims, cfg.Spacing, cfg.TimeStep, cfg.VelocityViscosity, cfg.DensityViscosity)
	if err != nil {
		return err
	}
	*s.params = params
	s.cfg = cfg
	core.Logger().Info("simulator reconfigured", "dt", cfg.TimeStep,
		"velocityViscosity", cfg.VelocityViscosity, "densityViscosity", cfg.DensityViscosity)
	return nil
}

func (s *Simulator) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Simulator) Parameters() core.Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.params
}

func (s *Simulator) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

func (s *Simulator) Dims() core.Dims {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Dims
}

func (s *Simulator) Backend() gpu.Backend { return s.backend }

// Release frees every grid. The backend itself stays open.
func (s *Simulator) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	if s.updateState != nil {
		s.updateState.Release()
	}
	if s.enforceBoundary != nil {
		s.enforceBoundary.Release()
	}
	if s.computeDivergence != nil {
		s.computeDivergence.Release()
	}
	if s.solvePoisson != nil {
		s.solvePoisson.Release()
	}
	if s.adjustVelocity != nil {
		s.adjustVelocity.Release()
	}
	for _, g := range s.grids {
		s.backend.Free(g)
	}
	s.grids = nil
}
