package main

import (
	"fluidsim/config"
	"fluidsim/core"
	"fluidsim/gpu"

	// registers the "gl" backend; builds without the gl tag get a stub
	_ "fluidsim/gpu/opengl"
)

// openBackend opens the configured compute backend. When it cannot be
// opened and fallback is enabled the CPU backend is used instead.
func openBackend(s config.BackendSettings) (gpu.Backend, error) {
	if s.Name == "cpu" {
		b := gpu.NewCPUBackend(s.Workers)
		core.Logger().Info("compute backend", "backend", b.Name(), "workers", b.Workers())
		return b, nil
	}

	b, err := gpu.Open(s.Name)
	if err == nil {
		return b, nil
	}
	if !s.Fallback {
		return nil, err
	}
	core.Logger().Warn("backend unavailable, falling back to cpu", "backend", s.Name, "err", err, "available", gpu.Names())
	cpu := gpu.NewCPUBackend(s.Workers)
	core.Logger().Info("compute backend", "backend", cpu.Name(), "workers", cpu.Workers())
	return cpu, nil
}
