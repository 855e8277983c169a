// Package progressive drives multi-resolution rendering of a Mandelbrot view.
//
// A Controller owns the viewport. Every command that changes the view starts
// a new sequence of render passes, coarse to fine; each pass gets a new
// generation number, and tiles rendered for any other generation are
// dropped. Completed frames are published on Events.
package progressive

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	mandel "github.com/marben/ingemi"
	"github.com/marben/ingemi/frame"
	"github.com/marben/ingemi/render"
	"github.com/marben/ingemi/search"
)

// ErrNotRunning is returned by Do once Run has returned.
var ErrNotRunning = errors.New("controller is not running")

// State is the render state of a Controller.
type State int

// A superseded pass is not waited for: the controller moves straight to
// the next Rendering pass and late tiles are dropped by generation.
const (
	Idle State = iota
	Rendering
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendering:
		return "rendering"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Event reports the end of a render pass: a completed frame, or Err.
type Event struct {
	Generation uint64
	Level      int
	Levels     int
	// Final is set on the last level of a sequence.
	Final    bool
	Viewport mandel.Viewport
	Frame    *frame.Frame
	Elapsed  time.Duration
	// Search is set on every pass that follows a Random command.
	Search *search.Stats
	// Status is the controller as it stood when this pass ended.
	Status Status
	Err    error
}

// Status is a snapshot of the controller, safe to read from any goroutine.
type Status struct {
	State        State
	Generation   uint64
	Level        int
	Levels       int
	Viewport     mandel.Viewport
	Settings     mandel.Settings
	SampleFactor float64
	Width        int
	Height       int
	Completed    int
	Total        int
}

// Controller serializes view changes and render passes on one goroutine
// (Run). Other goroutines interact through Do, Events and Status.
type Controller struct {
	cfg     Config
	cmds    chan Command
	results chan mandel.Result
	events  chan Event
	buffers *frame.BufferPool
	src     search.Source

	// current is the generation whose tiles are still wanted; workers read
	// it to skip superseded tasks.
	current atomic.Uint64
	status  atomic.Pointer[Status]
	stopped chan struct{}

	// Owned by Run.
	pool         *render.Pool
	vp           mandel.Viewport
	settings     mandel.Settings
	sampleFactor float64
	width        int
	height       int
	state        State
	gen          uint64
	level        int
	asm          *frame.Assembler
	started      time.Time
	deadline     *time.Timer
	searchStats  *search.Stats
}

// New validates cfg and returns an idle controller. Call Run to start it.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	aspect, err := mandel.AspectCorrection(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.RendererImpl{}
	}
	src := cfg.Rand
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.New(rand.NewPCG(now, now>>32|now<<32))
	}

	c := &Controller{
		cfg:     cfg,
		cmds:    make(chan Command),
		results: make(chan mandel.Result, cfg.Workers),
		events:  make(chan Event, 2*cfg.Levels),
		buffers: frame.NewBufferPool(),
		src:     src,
		stopped: make(chan struct{}),

		vp: cfg.Viewport,
		settings: mandel.Settings{
			MaxIteration:     cfg.MaxIteration,
			StdDevThreshold:  cfg.StdDevThreshold,
			AspectCorrection: aspect,
		},
		sampleFactor: cfg.SampleFactor,
		width:        cfg.Width,
		height:       cfg.Height,
	}
	c.publish()
	return c, nil
}

// Events delivers one event per finished or failed pass. It is closed when
// Run returns. The controller waits for the reader, so keep draining it.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Status returns the latest snapshot.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// Do validates cmd and hands it to the controller loop. Invalid commands
// fail with a *mandel.ConfigError and change nothing.
func (c *Controller) Do(ctx context.Context, cmd Command) error {
	if cmd == nil {
		return mandel.NewConfigError("command", "must not be nil")
	}
	if err := cmd.validate(); err != nil {
		return err
	}
	if err := c.admit(cmd, c.Status()); err != nil {
		return err
	}
	select {
	case c.cmds <- cmd:
		return nil
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes commands and tile results until ctx is done. It starts the
// worker pool and stops it on return; Run may be called once.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.events)
	defer close(c.stopped)

	pool, err := render.NewPool(c.cfg.Renderer, c.cfg.Workers, c.results,
		render.WithStale(func(gen uint64) bool { return gen != c.current.Load() }),
		render.WithBufferPool(c.buffers),
	)
	if err != nil {
		return err
	}
	c.pool = pool
	defer pool.Close()

	c.deadline = time.NewTimer(time.Hour)
	c.deadline.Stop()
	defer c.deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-c.cmds:
			c.handle(ctx, cmd)
		case res := <-c.results:
			c.collect(ctx, res)
		case <-c.deadline.C:
			c.expire(ctx)
		}
	}
}

// admit rejects size changes that would render frames above MaxPixels.
func (c *Controller) admit(cmd Command, st Status) error {
	var err error
	switch cmd := cmd.(type) {
	case SetResolution:
		_, _, err = levelSize(st.Width, st.Height, cmd.SampleFactor, c.cfg.Levels-1, c.cfg.Levels, c.cfg.MaxPixels)
	case Resize:
		_, _, err = levelSize(cmd.Width, cmd.Height, st.SampleFactor, c.cfg.Levels-1, c.cfg.Levels, c.cfg.MaxPixels)
	}
	return err
}

func (c *Controller) handle(ctx context.Context, cmd Command) {
	logger := mandel.Logger()
	// Do checked cmd against an earlier snapshot; a size change queued
	// since then may have moved the limits.
	if err := c.admit(cmd, *c.snapshot()); err != nil {
		c.fail(ctx, c.level, err)
		return
	}
	c.searchStats = nil

	switch cmd := cmd.(type) {
	case Pan:
		c.vp = c.vp.Pan(cmd.DX, cmd.DY, c.width, c.height, c.settings.AspectCorrection)
	case Center:
		c.vp = c.vp.Center(cmd.X, cmd.Y, c.width, c.height, c.settings.AspectCorrection)
	case Zoom:
		vp, err := c.vp.Zoomed(cmd.Factor)
		if err != nil {
			c.fail(ctx, c.level, err)
			return
		}
		c.vp = vp
	case Reset:
		c.vp = mandel.Home
	case SetViewport:
		c.vp = cmd.Viewport
	case Random:
		w, h, err := levelSize(c.width, c.height, c.sampleFactor, c.cfg.Levels-1, c.cfg.Levels, c.cfg.MaxPixels)
		if err != nil {
			c.fail(ctx, c.level, err)
			return
		}
		opts := search.DefaultOptions(w, h, c.settings)
		opts.MaxAttempts = c.cfg.SearchAttempts
		opts.GridSize = c.cfg.SearchGrid
		vp, stats, err := search.Random(c.src, opts)
		if err != nil {
			c.fail(ctx, c.level, err)
			return
		}
		logger.Info("random viewport", "offsetX", vp.OffsetX, "offsetY", vp.OffsetY, "zoom", vp.Zoom,
			"attempts", stats.Attempts, "stddev", stats.StdDev)
		c.vp = vp
		c.searchStats = &stats
	case SetResolution:
		c.sampleFactor = cmd.SampleFactor
	case Resize:
		aspect, err := mandel.AspectCorrection(cmd.Width, cmd.Height)
		if err != nil {
			c.fail(ctx, c.level, err)
			return
		}
		c.width, c.height = cmd.Width, cmd.Height
		c.settings.AspectCorrection = aspect
	case Refresh:
	default:
		logger.Warn("unknown command", "type", fmt.Sprintf("%T", cmd))
		return
	}

	c.start(ctx, 0)
}

// start dispatches a pass at level for the current view under a new
// generation, superseding any pass in flight.
func (c *Controller) start(ctx context.Context, level int) {
	logger := mandel.Logger()
	if c.state == Rendering {
		done, total := c.asm.Progress()
		logger.Debug("superseding pass", "generation", c.gen, "completed", done, "total", total)
	}

	c.gen++
	c.current.Store(c.gen)
	c.level = level
	c.state = Idle
	c.asm = nil
	c.deadline.Stop()

	w, h, err := levelSize(c.width, c.height, c.sampleFactor, level, c.cfg.Levels, c.cfg.MaxPixels)
	if err != nil {
		c.fail(ctx, level, err)
		return
	}
	tiles, err := frame.Split(w*h, c.cfg.Workers)
	if err != nil {
		c.fail(ctx, level, err)
		return
	}
	c.asm = frame.NewAssembler(c.gen, level, w, h, tiles)

	tasks := make([]mandel.Task, 0, len(tiles))
	for _, t := range tiles {
		if t.Pixels() == 0 {
			continue
		}
		tasks = append(tasks, mandel.Task{
			Generation: c.gen,
			Start:      t.Start,
			End:        t.End,
			Width:      w,
			Height:     h,
			Viewport:   c.vp,
			Settings:   c.settings,
			Buffer:     c.buffers.Get(t.ByteSize()),
		})
	}

	c.state = Rendering
	c.started = time.Now()
	if c.cfg.PassTimeout > 0 {
		c.deadline.Reset(c.cfg.PassTimeout)
	}
	c.publish()
	logger.Debug("dispatching pass", "generation", c.gen, "level", level, "width", w, "height", h, "tiles", len(tasks))

	pool, gen := c.pool, c.gen
	go func() {
		if err := pool.Submit(ctx, tasks...); err != nil {
			logger.Debug("pass dispatch stopped", "generation", gen, "err", err)
		}
	}()
}

// collect assembles one tile result. Results of any generation other than
// the current one are dropped.
func (c *Controller) collect(ctx context.Context, res mandel.Result) {
	logger := mandel.Logger()
	defer c.buffers.Put(res.Buffer)

	if c.asm == nil || c.state != Rendering {
		logger.Debug("dropping tile result", "generation", res.Generation, "reason", "no pass in flight")
		return
	}
	complete, err := c.asm.Accept(res)
	if err != nil {
		if errors.Is(err, frame.ErrStaleResult) {
			logger.Debug("dropping tile result", "generation", res.Generation, "err", err)
		} else {
			logger.Warn("rejecting tile result", "generation", res.Generation, "err", err)
		}
		return
	}
	if !complete {
		c.publish()
		return
	}

	f, _ := c.asm.Take()
	c.deadline.Stop()
	c.state = Idle
	final := c.level == c.cfg.Levels-1
	ev := Event{
		Generation: c.gen,
		Level:      c.level,
		Levels:     c.cfg.Levels,
		Final:      final,
		Viewport:   c.vp,
		Frame:      f,
		Elapsed:    time.Since(c.started),
		Search:     c.searchStats,
		Status:     *c.snapshot(),
	}
	logger.Info("pass complete", "generation", ev.Generation, "level", ev.Level,
		"width", f.Width, "height", f.Height, "elapsed", ev.Elapsed)

	c.asm = nil
	if final {
		c.publish()
	} else {
		c.start(ctx, c.level+1)
	}
	c.emit(ctx, ev)
}

// expire abandons a pass that missed its deadline.
func (c *Controller) expire(ctx context.Context) {
	if c.state != Rendering || c.asm == nil {
		return
	}
	completed, total := c.asm.Progress()
	err := &mandel.WorkerTimeoutError{
		Generation: c.gen,
		Completed:  completed,
		Total:      total,
		Timeout:    c.cfg.PassTimeout,
	}
	mandel.Logger().Warn("render pass timed out", "err", err)

	gen, elapsed := c.gen, time.Since(c.started)
	// Late tiles of the abandoned pass must not land anywhere.
	c.gen++
	c.current.Store(c.gen)
	c.state = Idle
	c.asm = nil
	c.publish()
	c.emit(ctx, Event{
		Generation: gen,
		Level:      c.level,
		Levels:     c.cfg.Levels,
		Viewport:   c.vp,
		Elapsed:    elapsed,
		Search:     c.searchStats,
		Status:     c.Status(),
		Err:        err,
	})
}

// fail reports err for a command or pass that rendered nothing. Any pass in
// flight keeps going.
func (c *Controller) fail(ctx context.Context, level int, err error) {
	c.publish()
	c.emit(ctx, Event{
		Generation: c.gen,
		Level:      level,
		Levels:     c.cfg.Levels,
		Viewport:   c.vp,
		Status:     c.Status(),
		Err:        err,
	})
}

func (c *Controller) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Controller) publish() {
	c.status.Store(c.snapshot())
}

func (c *Controller) snapshot() *Status {
	st := &Status{
		State:        c.state,
		Generation:   c.gen,
		Level:        c.level,
		Levels:       c.cfg.Levels,
		Viewport:     c.vp,
		Settings:     c.settings,
		SampleFactor: c.sampleFactor,
		Width:        c.width,
		Height:       c.height,
	}
	if c.asm != nil {
		st.Completed, st.Total = c.asm.Progress()
	}
	return st
}
