package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluidsim/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	require.NoError(t, Default3D().Validate())

	cfg, err := Default3D().SimulatorConfig()
	require.NoError(t, err)
	assert.Equal(t, core.NewDims3(64, 64, 64), cfg.Dims)
	assert.Equal(t, core.Dims{}, cfg.Tile, "tile is left for the simulator to choose")
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fluid.toml", `
[simulation]
size = [64, 32]
tile = [16, 8]
timeStep = 0.01
iterations = 10
seed = "vortex"
source = "wind"

[server]
addr = ":9000"
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", s.Server.Addr)
	assert.Equal(t, 30.0, s.Server.TickRate, "unset keys keep their defaults")
	cfg, err := s.SimulatorConfig()
	require.NoError(t, err)
	assert.Equal(t, core.NewDims2(64, 32), cfg.Dims)
	assert.Equal(t, core.NewDims2(16, 8), cfg.Tile)
	assert.Equal(t, float32(0.01), cfg.TimeStep)
	assert.Equal(t, float32(0.01), cfg.VelocityViscosity)
	assert.Equal(t, 10, cfg.Iterations)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "fluid.yaml", `
simulation:
  size: [16, 16, 16]
  spacing: [1, 1, 2]
backend:
  name: gl
  workers: 4
log:
  level: debug
  format: json
`)
	s, err := Load(path)
	require.NoError(t, err)

	cfg, err := s.SimulatorConfig()
	require.NoError(t, err)
	assert.Equal(t, core.NewDims3(16, 16, 16), cfg.Dims)
	assert.Equal(t, core.Spacing{DX: 1, DY: 1, DZ: 2}, cfg.Spacing)
	assert.Equal(t, "gl", s.Backend.Name)
	assert.Equal(t, 4, s.Backend.Workers)

	h, err := s.Log.Handler(os.Stderr)
	require.NoError(t, err)
	assert.True(t, h.Enabled(context.Background(), -4))
}

func TestLoadEmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.yml", "")
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{"unknown extension", "fluid.json", `{}`, ErrUnsupportedFormat},
		{"grid not a tile multiple", "a.toml", "[simulation]\nsize = [60, 64]", core.ErrInvalidDims},
		{"one axis", "b.toml", "[simulation]\nsize = [64]", ErrInvalidSettings},
		{"degenerate volume", "c.toml", "[simulation]\nsize = [64, 64, 1]", ErrInvalidSettings},
		{"tile rank mismatch", "d.toml", "[simulation]\nsize = [64, 64]\ntile = [8, 8, 8]", ErrInvalidSettings},
		{"zero time step", "e.yaml", "simulation:\n  timeStep: 0", core.ErrInvalidTimeStep},
		{"negative viscosity", "f.yaml", "simulation:\n  densityViscosity: -1", core.ErrInvalidViscosity},
		{"zero iterations", "g.yaml", "simulation:\n  iterations: 0", core.ErrInvalidIterations},
		{"spacing rank", "h.yaml", "simulation:\n  spacing: [1, 1, 1]", ErrInvalidSettings},
		{"unknown seed", "i.toml", "[simulation]\nseed = \"storm\"", ErrInvalidSettings},
		{"unknown source", "j.toml", "[simulation]\nsource = \"storm\"", ErrInvalidSettings},
		{"zero tick rate", "k.toml", "[server]\ntickRate = 0", ErrInvalidSettings},
		{"empty backend", "l.toml", "[backend]\nname = \"\"", ErrInvalidSettings},
		{"bad log level", "m.toml", "[log]\nlevel = \"loud\"", ErrInvalidSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, dir, tt.file, tt.content))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Load(writeFile(t, dir, "n.toml", "[simulation]\nbogus = 1"))
	assert.Error(t, err, "unknown keys are rejected")
	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestSeedersAndSources(t *testing.T) {
	for _, seed := range []string{"", "rest", "random", "vortex"} {
		s := Default().Simulation
		s.Seed = seed
		fn, err := s.Seeder()
		require.NoError(t, err, seed)
		require.NotNil(t, fn)
	}
	for _, src := range []string{"", "none", "blob", "gravity", "wind"} {
		s := Default().Simulation
		s.Source = src
		fn, err := s.ForcingSource()
		require.NoError(t, err, src)

		dims := core.NewDims2(256, 256)
		buf := make([]float32, 4*dims.Cells())
		fn(dims, buf)
		if src == "gravity" {
			assert.Equal(t, float32(-1), buf[core.VelY])
		}
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "fluid.toml", "[simulation]\ntimeStep = 0.001")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan Settings, 64)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(s Settings) {
			select {
			case changes <- s:
			default:
			}
		})
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "fluid.toml", "[simulation]\ntimeStep = -1")
	writeFile(t, dir, "other.toml", "[simulation]\ntimeStep = 0.5")
	writeFile(t, dir, "fluid.toml", "[simulation]\ntimeStep = 0.002")

	// a truncating write can surface an empty file, which loads as defaults
	timeout := time.After(5 * time.Second)
	for seen := false; !seen; {
		select {
		case s := <-changes:
			dt := s.Simulation.TimeStep
			assert.Contains(t, []float32{0.001, 0.002}, dt, "invalid and unrelated files are ignored")
			seen = dt == 0.002
		case <-timeout:
			t.Fatal("no reload observed")
		}
	}

	cancel()
	require.NoError(t, <-done)
}
