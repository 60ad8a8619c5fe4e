//go:build gl

package opengl

import (
	"runtime"
	"strings"
	"sync"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"fluidsim/core"
	"fluidsim/gpu"
)

func init() {
	gpu.Register("gl", func() (gpu.Backend, error) {
		b, err := New()
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}

// glGrid is one shader storage buffer
type glGrid struct {
	name   string
	format core.Format
	dims   core.Dims
	ssbo   uint32
	n      int
}

func (g *glGrid) Name() string        { return g.name }
func (g *glGrid) Format() core.Format { return g.format }
func (g *glGrid) Dims() core.Dims     { return g.dims }
func (g *glGrid) Len() int            { return g.n }

type glProgram struct {
	kernel  *gpu.Kernel
	tile    core.Dims
	program uint32
	dimsLoc int32
}

func (p *glProgram) Kernel() *gpu.Kernel { return p.kernel }
func (p *glProgram) Tile() core.Dims     { return p.tile }

// Backend runs kernels as OpenGL 4.3 compute shaders. GL contexts belong to
// one OS thread, so every GL call is funneled through a locked goroutine.
type Backend struct {
	calls chan func()
	done  chan struct{}

	window   *glfw.Window
	ubo      uint32
	grids    map[*glGrid]struct{}
	programs []*glProgram

	mu       sync.Mutex
	released bool
}

// New opens a hidden 1x1 window to obtain a 4.3 core context
func New() (*Backend, error) {
	b := &Backend{
		calls: make(chan func()),
		done:  make(chan struct{}),
		grids: make(map[*glGrid]struct{}),
	}
	go b.loop()

	var err error
	b.do(func() { err = b.init() })
	if err != nil {
		close(b.calls)
		<-b.done
		return nil, err
	}
	return b, nil
}

func (b *Backend) loop() {
	runtime.LockOSThread()
	defer close(b.done)
	for f := range b.calls {
		f()
	}
}

// do runs f on the GL thread and waits for it
func (b *Backend) do(f func()) {
	finished := make(chan struct{})
	b.calls <- func() {
		defer close(finished)
		f()
	}
	<-finished
}

func (b *Backend) init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrapf(gpu.ErrBackendUnavailable, "glfw init: %v", err)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	window, err := glfw.CreateWindow(1, 1, "fluidsim", nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrapf(gpu.ErrBackendUnavailable, "create context: %v", err)
	}
	window.MakeContextCurrent()
	b.window = window

	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return errors.Wrapf(gpu.ErrBackendUnavailable, "gl init: %v", err)
	}

	gl.GenBuffers(1, &b.ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, b.ubo)
	gl.BufferData(gl.UNIFORM_BUFFER, core.ParameterCount*4, nil, gl.DYNAMIC_DRAW)

	core.Logger().Info("opengl context created",
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)),
		"version", gl.GoStr(gl.GetString(gl.VERSION)))
	return nil
}

func (b *Backend) Name() string { return "gl" }

func (b *Backend) live() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return gpu.ErrReleased
	}
	return nil
}

func (b *Backend) NewGrid(name string, format core.Format, dims core.Dims) (gpu.Grid, error) {
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidDims, "grid %q %s", name, dims)
	}
	if err := b.live(); err != nil {
		return nil, err
	}
	g := &glGrid{name: name, format: format, dims: dims, n: dims.Cells() * format.Components()}
	var err error
	b.do(func() {
		gl.GenBuffers(1, &g.ssbo)
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, g.ssbo)
		// zero-filled so a fresh grid reads as the resting state
		zeros := make([]float32, g.n)
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, g.n*4, gl.Ptr(zeros), gl.DYNAMIC_COPY)
		if e := gl.GetError(); e != gl.NO_ERROR {
			err = errors.Errorf("allocate %q (%d bytes): gl error 0x%x", name, g.n*4, e)
			gl.DeleteBuffers(1, &g.ssbo)
			return
		}
		b.grids[g] = struct{}{}
	})
	if err != nil {
		return nil, err
	}
	core.Logger().Debug("grid allocated", "backend", "gl", "grid", name, "format", format.String(), "dims", dims.String())
	return g, nil
}

// compileComputeShader compiles and links one compute program
func compileComputeShader(source string) (uint32, error) {
	shader := gl.CreateShader(gl.COMPUTE_SHADER)

	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, errors.Errorf("compute shader compilation failed: %s", log)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, shader)
	gl.LinkProgram(program)
	gl.DeleteShader(shader)

	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, errors.Errorf("compute program link failed: %s", log)
	}
	return program, nil
}

func (b *Backend) Compile(kernel *gpu.Kernel, tile core.Dims) (gpu.Program, error) {
	if kernel == nil {
		return nil, errors.Wrap(gpu.ErrUnknownKernel, "nil kernel")
	}
	if err := b.live(); err != nil {
		return nil, err
	}
	source, err := Source(kernel, tile)
	if err != nil {
		return nil, err
	}
	p := &glProgram{kernel: kernel, tile: kernel.Collapse(tile)}
	b.do(func() {
		p.program, err = compileComputeShader(source)
		if err == nil {
			p.dimsLoc = gl.GetUniformLocation(p.program, gl.Str("gridDims\x00"))
			b.programs = append(b.programs, p)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s", kernel.Name)
	}
	return p, nil
}

func (b *Backend) own(g gpu.Grid) (*glGrid, error) {
	gg, ok := g.(*glGrid)
	if !ok {
		return nil, errors.Errorf("grid %q was not created by the gl backend", g.Name())
	}
	if _, live := b.grids[gg]; !live {
		return nil, errors.Wrapf(gpu.ErrReleased, "grid %q", g.Name())
	}
	return gg, nil
}

func (b *Backend) Dispatch(program gpu.Program, bindings *gpu.Bindings, groups core.Dims) error {
	p, ok := program.(*glProgram)
	if !ok {
		return errors.Wrap(gpu.ErrUnknownKernel, "program was not compiled by the gl backend")
	}
	grids, dims, err := bindings.Resolve(p.kernel)
	if err != nil {
		return err
	}
	if err := gpu.CheckGroups(p.kernel, p.tile, groups, dims); err != nil {
		return err
	}
	if err := b.live(); err != nil {
		return err
	}

	b.do(func() {
		gl.UseProgram(p.program)
		for i, g := range grids {
			var gg *glGrid
			if gg, err = b.own(g); err != nil {
				return
			}
			gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, uint32(i), gg.ssbo)
		}
		if p.kernel.Uniform {
			block := bindings.Parameters().Floats()
			gl.BindBuffer(gl.UNIFORM_BUFFER, b.ubo)
			gl.BufferSubData(gl.UNIFORM_BUFFER, 0, len(block)*4, gl.Ptr(block))
			gl.BindBufferBase(gl.UNIFORM_BUFFER, 0, b.ubo)
		}
		gl.Uniform3i(p.dimsLoc, int32(dims.X), int32(dims.Y), int32(dims.Z))
		gl.DispatchCompute(uint32(groups.X), uint32(groups.Y), uint32(groups.Z))
		if e := gl.GetError(); e != gl.NO_ERROR {
			err = errors.Errorf("dispatch %s: gl error 0x%x", p.kernel.Name, e)
		}
	})
	return err
}

// Barrier makes storage writes of earlier dispatches visible to later ones
func (b *Backend) Barrier() {
	if b.live() != nil {
		return
	}
	b.do(func() {
		gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.BUFFER_UPDATE_BARRIER_BIT)
	})
}

func (b *Backend) Upload(grid gpu.Grid, data []float32) error {
	if err := gpu.CheckTransfer(grid, len(data)); err != nil {
		return err
	}
	if err := b.live(); err != nil {
		return err
	}
	var err error
	b.do(func() {
		var g *glGrid
		if g, err = b.own(grid); err != nil {
			return
		}
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, g.ssbo)
		gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(data)*4, gl.Ptr(data))
	})
	return err
}

func (b *Backend) Readback(grid gpu.Grid, dst []float32) error {
	if err := gpu.CheckTransfer(grid, len(dst)); err != nil {
		return err
	}
	if err := b.live(); err != nil {
		return err
	}
	var err error
	b.do(func() {
		var g *glGrid
		if g, err = b.own(grid); err != nil {
			return
		}
		gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT)
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, g.ssbo)
		gl.GetBufferSubData(gl.SHADER_STORAGE_BUFFER, 0, len(dst)*4, gl.Ptr(dst))
	})
	return err
}

func (b *Backend) Free(grid gpu.Grid) {
	if b.live() != nil {
		return
	}
	b.do(func() {
		g, ok := grid.(*glGrid)
		if !ok {
			return
		}
		if _, live := b.grids[g]; live {
			gl.DeleteBuffers(1, &g.ssbo)
			delete(b.grids, g)
		}
	})
}

// Release deletes every buffer and program and destroys the context
func (b *Backend) Release() {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return
	}
	b.released = true
	b.mu.Unlock()

	b.do(func() {
		for g := range b.grids {
			gl.DeleteBuffers(1, &g.ssbo)
		}
		b.grids = nil
		for _, p := range b.programs {
			gl.DeleteProgram(p.program)
		}
		b.programs = nil
		if b.ubo != 0 {
			gl.DeleteBuffers(1, &b.ubo)
		}
		b.window.Destroy()
		glfw.Terminate()
	})
	close(b.calls)
	<-b.done
}
