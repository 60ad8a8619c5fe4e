package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"fluidsim/core"
	"fluidsim/physics"
)

var (
	ErrUnsupportedFormat = errors.New("settings file must be .toml, .yaml or .yml")
	ErrInvalidSettings   = errors.New("invalid settings")
)

var (
	down          = mgl32.Vec3{0, -1, 0}
	windDirection = mgl32.Vec3{1, 0, 0}
)

type Settings struct {
	Simulation SimulationSettings `toml:"simulation" yaml:"simulation"`
	Server     ServerSettings     `toml:"server" yaml:"server"`
	Backend    BackendSettings    `toml:"backend" yaml:"backend"`
	Log        LogSettings        `toml:"log" yaml:"log"`
}

type SimulationSettings struct {
	// Size has two entries for a planar grid and three for a volume
	Size []int `toml:"size" yaml:"size"`
	// Tile defaults to 8 per axis when empty
	Tile []int `toml:"tile" yaml:"tile"`
	// Spacing defaults to 1/size per axis when empty
	Spacing           []float32 `toml:"spacing" yaml:"spacing"`
	TimeStep          float32   `toml:"timeStep" yaml:"timeStep"`
	VelocityViscosity float32   `toml:"velocityViscosity" yaml:"velocityViscosity"`
	DensityViscosity  float32   `toml:"densityViscosity" yaml:"densityViscosity"`
	Iterations        int       `toml:"iterations" yaml:"iterations"`
	// Seed is one of rest, random or vortex
	Seed string `toml:"seed" yaml:"seed"`
	// Source is one of none, blob, gravity or wind
	Source string `toml:"source" yaml:"source"`
}

type ServerSettings struct {
	Addr         string  `toml:"addr" yaml:"addr"`
	TickRate     float64 `toml:"tickRate" yaml:"tickRate"`
	StepsPerTick int     `toml:"stepsPerTick" yaml:"stepsPerTick"`
}

type BackendSettings struct {
	Name    string `toml:"name" yaml:"name"`
	Workers int    `toml:"workers" yaml:"workers"`
	// Fallback selects the cpu backend when Name cannot be opened
	Fallback bool `toml:"fallback" yaml:"fallback"`
}

type LogSettings struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// Default returns a 256x256 planar setup served on :8080
func Default() Settings {
	return Settings{
		Simulation: SimulationSettings{
			Size:              []int{256, 256},
			TimeStep:          0.001,
			VelocityViscosity: 0.01,
			DensityViscosity:  0.01,
			Iterations:        physics.DefaultIterations,
			Seed:              "rest",
			Source:            "blob",
		},
		Server: ServerSettings{
			Addr:         ":8080",
			TickRate:     30,
			StepsPerTick: 1,
		},
		Backend: BackendSettings{
			Name:     "cpu",
			Fallback: true,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default3D is Default with a 64x64x64 volume
func Default3D() Settings {
	s := Default()
	s.Simulation.Size = []int{64, 64, 64}
	return s
}

// Load reads path over the defaults, choosing the decoder by extension
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, errors.Wrap(err, "read settings")
	}
	s := Default()
	if err := decode(filepath.Ext(path), data, &s); err != nil {
		return Settings{}, errors.Wrapf(err, "parse %s", path)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, errors.Wrapf(err, "validate %s", path)
	}
	return s, nil
}

func decode(ext string, data []byte, s *Settings) error {
	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(s)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}
}

// Validate checks everything a simulator or server would reject later
func (s Settings) Validate() error {
	cfg, err := s.SimulatorConfig()
	if err != nil {
		return err
	}
	if cfg.Iterations <= 0 {
		return errors.Wrapf(core.ErrInvalidIterations, "iterations=%d", cfg.Iterations)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Dims.Validate(cfg.Tile); err != nil {
		return err
	}
	if _, err := core.NewParameters(cfg.Dims, cfg.Spacing, cfg.TimeStep, cfg.VelocityViscosity, cfg.DensityViscosity); err != nil {
		return err
	}
	if _, err := s.Simulation.Seeder(); err != nil {
		return err
	}
	if _, err := s.Simulation.ForcingSource(); err != nil {
		return err
	}
	if s.Server.TickRate <= 0 {
		return errors.Wrapf(ErrInvalidSettings, "tickRate=%g", s.Server.TickRate)
	}
	if s.Server.StepsPerTick < 1 {
		return errors.Wrapf(ErrInvalidSettings, "stepsPerTick=%d", s.Server.StepsPerTick)
	}
	if s.Backend.Name == "" {
		return errors.Wrap(ErrInvalidSettings, "backend name is empty")
	}
	if s.Backend.Workers < 0 {
		return errors.Wrapf(ErrInvalidSettings, "workers=%d", s.Backend.Workers)
	}
	if _, err := s.Log.level(); err != nil {
		return err
	}
	return nil
}

// SimulatorConfig converts the simulation section. A zero tile is left for
// the simulator to default.
func (s Settings) SimulatorConfig() (physics.Config, error) {
	sim := s.Simulation
	dims, err := dimsOf("size", sim.Size)
	if err != nil {
		return physics.Config{}, err
	}
	var tile core.Dims
	if len(sim.Tile) > 0 {
		if tile, err = dimsOf("tile", sim.Tile); err != nil {
			return physics.Config{}, err
		}
		if tile.Is2D() != dims.Is2D() {
			return physics.Config{}, errors.Wrapf(ErrInvalidSettings, "tile %s does not match size %s", tile, dims)
		}
	}
	var spacing core.Spacing
	switch len(sim.Spacing) {
	case 0:
	case dims.Axes():
		spacing.DX, spacing.DY = sim.Spacing[0], sim.Spacing[1]
		if len(sim.Spacing) == 3 {
			spacing.DZ = sim.Spacing[2]
		}
	default:
		return physics.Config{}, errors.Wrapf(ErrInvalidSettings, "spacing has %d entries for a %d axis grid", len(sim.Spacing), dims.Axes())
	}

	return physics.Config{
		Dims:              dims,
		Tile:              tile,
		Spacing:           spacing,
		TimeStep:          sim.TimeStep,
		VelocityViscosity: sim.VelocityViscosity,
		DensityViscosity:  sim.DensityViscosity,
		Iterations:        sim.Iterations,
	}, nil
}

func dimsOf(field string, v []int) (core.Dims, error) {
	switch len(v) {
	case 2:
		return core.NewDims2(v[0], v[1]), nil
	case 3:
		if v[2] == 1 {
			return core.Dims{}, errors.Wrapf(ErrInvalidSettings, "%s %v: use two entries for a planar grid", field, v)
		}
		return core.NewDims3(v[0], v[1], v[2]), nil
	default:
		return core.Dims{}, errors.Wrapf(ErrInvalidSettings, "%s needs 2 or 3 entries, got %v", field, v)
	}
}

// Seeder maps the seed name to an initial condition
func (s SimulationSettings) Seeder() (physics.Seeder, error) {
	dims, err := dimsOf("size", s.Size)
	if err != nil {
		return nil, err
	}
	switch s.Seed {
	case "", "rest":
		return physics.RestingState, nil
	case "random":
		return physics.RandomDensity(1, 0, 1), nil
	case "vortex":
		radius := float32(min(dims.X, dims.Y)) / 4
		return physics.Vortex(dims.Center(), radius, 0.1), nil
	default:
		return nil, errors.Wrapf(ErrInvalidSettings, "unknown seed %q", s.Seed)
	}
}

// ForcingSource maps the source name to external forcing
func (s SimulationSettings) ForcingSource() (physics.Source, error) {
	dims, err := dimsOf("size", s.Size)
	if err != nil {
		return nil, err
	}
	c := dims.Center()
	radius := float32(min(dims.X, dims.Y)) / 16
	switch s.Source {
	case "", "none":
		return physics.ZeroSource, nil
	case "blob":
		return physics.DensityBlob(c, radius, 100), nil
	case "gravity":
		return physics.Composite(
			physics.DensityBlob(c, radius, 100),
			physics.Gravity(down),
		), nil
	case "wind":
		origin := core.Coord{X: 1, Y: dims.Y / 2, Z: dims.Z / 2}
		return physics.Composite(
			physics.DensityBlob(c, radius, 100),
			physics.Wind(origin, windDirection, float32(dims.Y)/8),
		), nil
	default:
		return nil, errors.Wrapf(ErrInvalidSettings, "unknown source %q", s.Source)
	}
}

// Handler builds the slog handler described by the log section
func (l LogSettings) Handler(w io.Writer) (slog.Handler, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.NewJSONHandler(w, opts), nil
	}
	return slog.NewTextHandler(w, opts), nil
}

func (l LogSettings) level() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, errors.Wrapf(ErrInvalidSettings, "log level %q", l.Level)
	}
	return level, nil
}
