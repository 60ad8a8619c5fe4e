package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"fluidsim/core"
	"fluidsim/gpu"
	_ "fluidsim/gpu/opengl"
	"fluidsim/physics"
)

// perf times each phase of a simulator run on one backend
func main() {
	var (
		backendName = flag.String("backend", "cpu", "Compute backend")
		size        = flag.Int("size", 256, "Cells per axis")
		volume      = flag.Bool("3d", false, "Use a cubic volume instead of a square")
		steps       = flag.Int("steps", 100, "Steps to time")
		iterations  = flag.Int("iterations", physics.DefaultIterations, "Poisson sweeps per step")
	)
	flag.Parse()

	if err := run(*backendName, *size, *volume, *steps, *iterations); err != nil {
		fmt.Fprintln(os.Stderr, "perf:", err)
		os.Exit(1)
	}
}

func run(backendName string, size int, volume bool, steps, iterations int) error {
	dims := core.NewDims2(size, size)
	if volume {
		dims = core.NewDims3(size, size, size)
	}
	fmt.Println("=== Performance Test ===")
	fmt.Printf("Backend: %s, grid %s, %d steps, %d sweeps\n", backendName, dims, steps, iterations)

	// Test 1: backend
	start := time.Now()
	backend, err := gpu.Open(backendName)
	if err != nil {
		return err
	}
	defer backend.Release()
	fmt.Printf("Backend open: %.3fs\n", time.Since(start).Seconds())

	// Test 2: compile and allocate
	start = time.Now()
	sim, err := physics.New(backend, physics.Config{
		Dims:              dims,
		TimeStep:          0.001,
		VelocityViscosity: 0.01,
		DensityViscosity:  0.01,
		Iterations:        iterations,
	})
	if err != nil {
		return err
	}
	defer sim.Release()
	fmt.Printf("Simulator creation: %.3fs\n", time.Since(start).Seconds())

	// Test 3: seeding
	start = time.Now()
	if err := sim.Initialize(physics.Vortex(dims.Center(), float32(size)/4, 0.1)); err != nil {
		return err
	}
	if err := sim.SetSource(physics.DensityBlob(dims.Center(), float32(size)/16, 100)); err != nil {
		return err
	}
	fmt.Printf("Initialize: %.3fs\n", time.Since(start).Seconds())

	// Test 4: stepping
	start = time.Now()
	for i := 0; i < steps; i++ {
		if err := sim.Step(); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("Steps: %.3fs (%.2f ms/step, %.1f Mcell-steps/s)\n", elapsed.Seconds(),
		float64(elapsed.Milliseconds())/float64(steps),
		float64(dims.Cells())*float64(steps)/elapsed.Seconds()/1e6)

	// Test 5: readback and diagnostics
	start = time.Now()
	state := make([]float32, 4*dims.Cells())
	if err := sim.Snapshot(state); err != nil {
		return err
	}
	stats := physics.Measure(dims, state)
	fmt.Printf("Readback + measure: %.3fs\n", time.Since(start).Seconds())
	fmt.Printf("Total density %.4f, max speed %.4f, divergence L2 %.6f\n",
		stats.TotalDensity, stats.MaxSpeed, stats.DivergenceL2)

	fmt.Println("\n=== Test Complete ===")
	return nil
}
