package simulation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"fluidsim/core"
	"fluidsim/physics"
)

var ErrAlreadyRunning = errors.New("runner already started")

// Frame is a host copy of the simulator state taken after a tick.
// Frames are never modified once published.
type Frame struct {
	Step    uint64
	Dims    core.Dims
	Data    []float32 // 4 floats per cell, x fastest
	Stats   physics.Stats
	Elapsed time.Duration // time spent stepping during the tick
}

// Density returns one value per cell
func (f *Frame) Density() []float32 {
	out := make([]float32, f.Dims.Cells())
	for i := range out {
		out[i] = f.Data[4*i+core.Density]
	}
	return out
}

// Velocity returns the active velocity components per cell: two in 2D,
// three in 3D, interleaved.
func (f *Frame) Velocity() []float32 {
	axes := f.Dims.Axes()
	out := make([]float32, 0, axes*f.Dims.Cells())
	for i := 0; i < f.Dims.Cells(); i++ {
		out = append(out, f.Data[4*i:4*i+axes]...)
	}
	return out
}

type Options struct {
	// TickRate is ticks per second
	TickRate     float64
	StepsPerTick int
	// Seeder and Source are applied by Reset. Nil selects the resting state
	// and no forcing.
	Seeder physics.Seeder
	Source physics.Source
}

func (o Options) withDefaults() Options {
	if o.TickRate <= 0 {
		o.TickRate = 30
	}
	if o.StepsPerTick <= 0 {
		o.StepsPerTick = 1
	}
	return o
}

// Runner steps a simulator in the background and publishes snapshots.
// The latest frame is read through an atomic pointer so readers never
// block the simulation.
type Runner struct {
	sim  *physics.Simulator
	opts Options

	latest       atomic.Pointer[Frame]
	paused       atomic.Bool
	stepsPerTick atomic.Int64
	resetCh      chan struct{}

	subMu  sync.Mutex
	subs   map[int]chan *Frame
	nextID int

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewRunner(sim *physics.Simulator, opts Options) *Runner {
	opts = opts.withDefaults()
	r := &Runner{
		sim:     sim,
		opts:    opts,
		resetCh: make(chan struct{}, 1),
		subs:    make(map[int]chan *Frame),
	}
	r.stepsPerTick.Store(int64(opts.StepsPerTick))
	return r
}

// Start launches Run in a goroutine. Stop cancels it.
func (r *Runner) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.done != nil {
		return ErrAlreadyRunning
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		r.err = r.Run(ctx)
	}()
	return nil
}

// Stop halts a runner launched with Start and returns the error that ended
// the loop, if any.
func (r *Runner) Stop() error {
	r.runMu.Lock()
	cancel, done := r.cancel, r.done
	r.runMu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done
	return r.err
}

// Run publishes the current state and then steps on every tick until ctx
// is done. A failed step or readback ends the loop; it is not retried.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.publish(0); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / r.opts.TickRate))
	defer ticker.Stop()
	core.Logger().Info("runner started", "dims", r.sim.Dims().String(), "tickRate", r.opts.TickRate)

	for {
		select {
		case <-ctx.Done():
			core.Logger().Info("runner stopped", "step", r.sim.Steps())
			return nil

		case <-r.resetCh:
			if err := r.reset(); err != nil {
				return err
			}

		case <-ticker.C:
			if r.paused.Load() {
				continue
			}
			start := time.Now()
			n := int(r.stepsPerTick.Load())
			for i := 0; i < n; i++ {
				if err := r.sim.Step(); err != nil {
					return errors.Wrapf(err, "step %d", r.sim.Steps()+1)
				}
			}
			if err := r.publish(time.Since(start)); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) reset() error {
	if err := r.sim.Initialize(r.opts.Seeder); err != nil {
		return errors.Wrap(err, "reset")
	}
	if err := r.sim.SetSource(r.opts.Source); err != nil {
		return errors.Wrap(err, "reset source")
	}
	core.Logger().Info("runner reset")
	return r.publish(0)
}

func (r *Runner) publish(elapsed time.Duration) error {
	dims := r.sim.Dims()
	data := make([]float32, 4*dims.Cells())
	if err := r.sim.Snapshot(data); err != nil {
		return errors.Wrap(err, "snapshot")
	}
	frame := &Frame{
		Step:    r.sim.Steps(),
		Dims:    dims,
		Data:    data,
		Stats:   physics.Measure(dims, data),
		Elapsed: elapsed,
	}
	r.latest.Store(frame)

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		offer(ch, frame)
	}
	return nil
}

// offer delivers f without blocking. A subscriber that has not taken the
// previous frame gets it replaced by f.
func offer(ch chan *Frame, f *Frame) {
	select {
	case ch <- f:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- f:
	default:
	}
}

// Latest returns the most recent frame, or nil before the first publish
func (r *Runner) Latest() *Frame { return r.latest.Load() }

// Subscribe returns a channel receiving every published frame; slow readers
// only see the newest. cancel closes the channel.
func (r *Runner) Subscribe() (<-chan *Frame, func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	id := r.nextID
	r.nextID++
	ch := make(chan *Frame, 1)
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			defer r.subMu.Unlock()
			delete(r.subs, id)
			close(ch)
		})
	}
}

func (r *Runner) Pause(paused bool) {
	r.paused.Store(paused)
	core.Logger().Info("runner paused", "paused", paused)
}

func (r *Runner) Paused() bool { return r.paused.Load() }

// SetStepsPerTick changes how many steps run per tick. Values below 1 are
// raised to 1.
func (r *Runner) SetStepsPerTick(n int) {
	if n < 1 {
		n = 1
	}
	r.stepsPerTick.Store(int64(n))
}

func (r *Runner) StepsPerTick() int { return int(r.stepsPerTick.Load()) }

// Reset reseeds the simulator on the runner goroutine before the next
// tick. Repeated requests before then collapse into one.
func (r *Runner) Reset() {
	select {
	case r.resetCh <- struct{}{}:
	default:
	}
}

func (r *Runner) Simulator() *physics.Simulator { return r.sim }
