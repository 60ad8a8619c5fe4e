package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/physics"
	"fluidsim/simulation"
)

type options struct {
	configPath string
	backend    string
	steps      int
	addr       string
	volume     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Settings file (.toml, .yaml); reloaded on change while serving")
	flag.StringVar(&opts.backend, "backend", "", "Compute backend (cpu, gl); overrides the settings file")
	flag.IntVar(&opts.steps, "steps", 0, "Run this many steps headless and exit instead of serving")
	flag.StringVar(&opts.addr, "addr", "", "Listen address; overrides the settings file")
	flag.BoolVar(&opts.volume, "3d", false, "Start from the 64x64x64 defaults when no settings file is given")
	flag.Parse()

	if err := run(opts); err != nil {
		slog.Error("fluidsim failed", "err", err)
		os.Exit(1)
	}
}

func loadSettings(opts options) (config.Settings, error) {
	s := config.Default()
	if opts.volume {
		s = config.Default3D()
	}
	if opts.configPath != "" {
		var err error
		if s, err = config.Load(opts.configPath); err != nil {
			return config.Settings{}, err
		}
	}
	if opts.backend != "" {
		s.Backend.Name = opts.backend
	}
	if opts.addr != "" {
		s.Server.Addr = opts.addr
	}
	return s, s.Validate()
}

func run(opts options) error {
	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}
	handler, err := settings.Log.Handler(os.Stderr)
	if err != nil {
		return err
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	core.SetLogger(logger)

	backend, err := openBackend(settings.Backend)
	if err != nil {
		return err
	}
	defer backend.Release()

	cfg, err := settings.SimulatorConfig()
	if err != nil {
		return err
	}
	sim, err := physics.New(backend, cfg)
	if err != nil {
		return err
	}
	defer sim.Release()

	seed, err := settings.Simulation.Seeder()
	if err != nil {
		return err
	}
	source, err := settings.Simulation.ForcingSource()
	if err != nil {
		return err
	}
	if err := sim.Initialize(seed); err != nil {
		return err
	}
	if err := sim.SetSource(source); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.steps > 0 {
		return runHeadless(ctx, sim, opts.steps)
	}
	return runServer(ctx, sim, settings, opts.configPath, seed, source)
}

// runHeadless steps n times and logs diagnostics ten times along the way
func runHeadless(ctx context.Context, sim *physics.Simulator, n int) error {
	every := max(n/10, 1)
	state := make([]float32, 4*sim.Dims().Cells())
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := sim.Step(); err != nil {
			return err
		}
		if i%every != 0 && i != n {
			continue
		}
		if err := sim.Snapshot(state); err != nil {
			return err
		}
		stats := physics.Measure(sim.Dims(), state)
		slog.Info("progress", "step", sim.Steps(),
			"totalDensity", stats.TotalDensity, "maxSpeed", stats.MaxSpeed,
			"kineticEnergy", stats.KineticEnergy, "divergenceL2", stats.DivergenceL2)
	}
	return nil
}

func runServer(ctx context.Context, sim *physics.Simulator, settings config.Settings, configPath string, seed physics.Seeder, source physics.Source) error {
	runner := simulation.NewRunner(sim, simulation.Options{
		TickRate:     settings.Server.TickRate,
		StepsPerTick: settings.Server.StepsPerTick,
		Seeder:       seed,
		Source:       source,
	})
	srv := newServer(runner)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error { return srv.serve(ctx, settings.Server.Addr) })
	if configPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, configPath, func(s config.Settings) { reconfigure(runner, s) })
		})
	}
	return g.Wait()
}

// reconfigure applies a reloaded settings file. Changes that need new grids
// are logged and ignored until restart.
func reconfigure(runner *simulation.Runner, s config.Settings) {
	cfg, err := s.SimulatorConfig()
	if err != nil {
		slog.Warn("settings reload rejected", "err", err)
		return
	}
	if err := runner.Simulator().Reconfigure(cfg); err != nil {
		if errors.Is(err, physics.ErrRestartRequired) {
			slog.Warn("settings change needs a restart", "err", err)
		} else {
			slog.Warn("settings reload rejected", "err", err)
		}
		return
	}
	runner.SetStepsPerTick(s.Server.StepsPerTick)
}
