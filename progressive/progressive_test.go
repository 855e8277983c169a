package progressive

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mandel "github.com/marben/ingemi"
	"github.com/marben/ingemi/render"
	"github.com/marben/ingemi/search"
)

func testConfig(w, h, workers, levels int) Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = w, h
	cfg.Workers = workers
	cfg.Levels = levels
	cfg.PassTimeout = 0
	return cfg
}

// start runs a controller until the test ends.
func start(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Run did not return")
		}
	})
	return c
}

func next(t *testing.T, c *Controller) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return Event{}
}

func do(t *testing.T, c *Controller, cmd Command) {
	t.Helper()
	if err := c.Do(context.Background(), cmd); err != nil {
		t.Fatalf("Do(%T): %v", cmd, err)
	}
}

func TestController_LevelSequence(t *testing.T) {
	c := start(t, testConfig(64, 48, 4, 3))
	do(t, c, Refresh{})

	sizes := [][2]int{{16, 12}, {32, 24}, {64, 48}}
	var lastGen uint64
	for i, size := range sizes {
		ev := next(t, c)
		if ev.Err != nil {
			t.Fatalf("level %d: %v", i, ev.Err)
		}
		if ev.Level != i || ev.Levels != 3 {
			t.Errorf("event %d: level %d of %d", i, ev.Level, ev.Levels)
		}
		if ev.Final != (i == 2) {
			t.Errorf("event %d: Final = %v", i, ev.Final)
		}
		if ev.Frame.Width != size[0] || ev.Frame.Height != size[1] {
			t.Errorf("level %d: frame %dx%d, want %dx%d", i, ev.Frame.Width, ev.Frame.Height, size[0], size[1])
		}
		if len(ev.Frame.Pix) != size[0]*size[1]*mandel.BytesPerPixel {
			t.Errorf("level %d: %d bytes of pixels", i, len(ev.Frame.Pix))
		}
		if ev.Generation <= lastGen || ev.Frame.Generation != ev.Generation {
			t.Errorf("level %d: generation %d (frame %d) after %d", i, ev.Generation, ev.Frame.Generation, lastGen)
		}
		// The status travels with the frame, not with the pass that follows.
		st := ev.Status
		if st.Generation != ev.Generation || st.Level != i || st.State != Idle {
			t.Errorf("level %d: status %v generation %d level %d", i, st.State, st.Generation, st.Level)
		}
		if st.Total == 0 || st.Completed != st.Total || st.Width != 64 || st.Height != 48 {
			t.Errorf("level %d: status progress %d/%d for %dx%d", i, st.Completed, st.Total, st.Width, st.Height)
		}
		lastGen = ev.Generation
	}

	st := c.Status()
	if st.State != Idle || st.Generation != lastGen || st.Level != 2 {
		t.Errorf("status after sequence = %+v", st)
	}
}

func TestController_CentrePixel(t *testing.T) {
	c := start(t, testConfig(100, 100, 4, 1))
	ev, err := Final(context.Background(), c, Refresh{})
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	got := ev.Frame.Image().RGBAAt(50, 50)
	if got.R != 255 || got.G != 0 || got.B != 0 || got.A != 255 {
		t.Errorf("pixel (50, 50) = %v, want opaque red", got)
	}
}

func TestController_FramesAreReproducible(t *testing.T) {
	vp := mandel.Viewport{OffsetX: -0.7436, OffsetY: 0.1318, Zoom: 0.002}
	renderView := func(workers int) []byte {
		cfg := testConfig(90, 60, workers, 1)
		cfg.MaxIteration = 500
		c := start(t, cfg)
		ev, err := Final(context.Background(), c, SetViewport{Viewport: vp})
		if err != nil {
			t.Fatalf("Final: %v", err)
		}
		return ev.Frame.Pix
	}

	first := renderView(3)
	if again := renderView(3); !bytes.Equal(first, again) {
		t.Error("two renders of the same view differ")
	}
	if other := renderView(7); !bytes.Equal(first, other) {
		t.Error("the frame depends on the number of workers")
	}
}

// gatedRenderer blocks tiles of the home view until the gate is closed.
type gatedRenderer struct {
	gate chan struct{}
}

func (g gatedRenderer) RenderTile(ctx context.Context, task mandel.Task) (mandel.Result, error) {
	if task.Viewport == mandel.Home {
		<-g.gate
	}
	return render.RendererImpl{}.RenderTile(ctx, task)
}

func TestController_SupersededPassIsDropped(t *testing.T) {
	gate := make(chan struct{})
	cfg := testConfig(40, 40, 2, 1)
	cfg.Renderer = gatedRenderer{gate: gate}
	c := start(t, cfg)
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)

	do(t, c, Refresh{})
	target := mandel.Viewport{OffsetX: -1, Zoom: 0.25}
	do(t, c, SetViewport{Viewport: target})
	release()

	ev := next(t, c)
	if ev.Err != nil {
		t.Fatalf("event error: %v", ev.Err)
	}
	if ev.Generation != 2 || ev.Viewport != target {
		t.Errorf("first event = generation %d %+v, want generation 2 %+v", ev.Generation, ev.Viewport, target)
	}
	select {
	case ev := <-c.Events():
		t.Errorf("unexpected event for generation %d", ev.Generation)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestController_PassTimeout(t *testing.T) {
	gate := make(chan struct{})
	cfg := testConfig(20, 20, 2, 1)
	cfg.Renderer = gatedRenderer{gate: gate}
	cfg.PassTimeout = 50 * time.Millisecond
	c := start(t, cfg)
	t.Cleanup(func() { close(gate) })

	do(t, c, Refresh{})
	ev := next(t, c)
	if !errors.Is(ev.Err, mandel.ErrWorkerTimeout) {
		t.Fatalf("event error = %v, want ErrWorkerTimeout", ev.Err)
	}
	var te *mandel.WorkerTimeoutError
	if !errors.As(ev.Err, &te) {
		t.Fatalf("event error %T is not a *WorkerTimeoutError", ev.Err)
	}
	if te.Completed != 0 || te.Total != 2 || te.Timeout != cfg.PassTimeout {
		t.Errorf("timeout error = %+v", te)
	}
	if ev.Frame != nil {
		t.Error("timed out pass produced a frame")
	}
	if st := c.Status(); st.State != Idle {
		t.Errorf("state after timeout = %v, want idle", st.State)
	}
	if ev.Status.State != Idle || ev.Status.Generation <= ev.Generation {
		t.Errorf("event status after timeout = %v generation %d", ev.Status.State, ev.Status.Generation)
	}
}

// levelGate blocks home-view tiles of frames exactly width pixels wide.
type levelGate struct {
	width    int
	gate     chan struct{}
	entered  chan struct{}
	finished atomic.Int32
}

func (g *levelGate) RenderTile(ctx context.Context, task mandel.Task) (mandel.Result, error) {
	if task.Viewport != mandel.Home || task.Width != g.width {
		return render.RendererImpl{}.RenderTile(ctx, task)
	}
	g.entered <- struct{}{}
	<-g.gate
	defer g.finished.Add(1)
	return render.RendererImpl{}.RenderTile(ctx, task)
}

func TestController_SupersededMidSequence(t *testing.T) {
	g := &levelGate{width: 32, gate: make(chan struct{}), entered: make(chan struct{}, 2)}
	cfg := testConfig(64, 48, 2, 3)
	cfg.Renderer = g
	c := start(t, cfg)
	var once sync.Once
	release := func() { once.Do(func() { close(g.gate) }) }
	t.Cleanup(release)

	do(t, c, Refresh{})
	ev := next(t, c)
	if ev.Err != nil || ev.Level != 0 || ev.Viewport != mandel.Home {
		t.Fatalf("first event = level %d %+v, err %v", ev.Level, ev.Viewport, ev.Err)
	}
	// Level 1 of the home view is now stuck in both workers.
	for range 2 {
		select {
		case <-g.entered:
		case <-time.After(10 * time.Second):
			t.Fatal("level 1 tiles never reached the renderer")
		}
	}
	stuck := ev.Generation + 1

	target := mandel.Viewport{OffsetX: -1, Zoom: 0.25}
	do(t, c, SetViewport{Viewport: target})
	release()

	for level := range 3 {
		ev := next(t, c)
		if ev.Err != nil {
			t.Fatalf("level %d: %v", level, ev.Err)
		}
		if ev.Generation <= stuck || ev.Level != level || ev.Viewport != target {
			t.Errorf("event %d = generation %d level %d %+v, want level %d of %+v after generation %d",
				level, ev.Generation, ev.Level, ev.Viewport, level, target, stuck)
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	for g.finished.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("%d of 2 superseded tiles finished", g.finished.Load())
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case ev := <-c.Events():
		t.Errorf("unexpected event for generation %d level %d", ev.Generation, ev.Level)
	case <-time.After(100 * time.Millisecond):
	}
	if st := c.Status(); st.State != Idle || st.Viewport != target || st.Level != 2 {
		t.Errorf("status after sequence = %+v", st)
	}
}

func TestController_FrameSizeLimit(t *testing.T) {
	cfg := testConfig(40, 40, 2, 1)
	cfg.MaxPixels = 80 * 80
	c := start(t, cfg)
	ctx := context.Background()

	tooLarge := []Command{
		SetResolution{SampleFactor: 1e-6},
		SetResolution{SampleFactor: math.SmallestNonzeroFloat64},
		Resize{Width: 1 << 30, Height: 1 << 30},
		Resize{Width: math.MaxInt, Height: math.MaxInt},
		Resize{Width: 81, Height: 80},
	}
	for _, cmd := range tooLarge {
		if err := c.Do(ctx, cmd); !errors.Is(err, mandel.ErrConfig) {
			t.Errorf("Do(%#v) = %v, want ErrConfig", cmd, err)
		}
	}

	// Each change fits on its own; together they would not.
	if _, err := Final(ctx, c, SetResolution{SampleFactor: 0.5}); err != nil {
		t.Fatalf("SetResolution: %v", err)
	}
	if err := c.Do(ctx, Resize{Width: 80, Height: 80}); !errors.Is(err, mandel.ErrConfig) {
		t.Errorf("Resize past the limit at factor 0.5 = %v, want ErrConfig", err)
	}

	ev, err := Final(ctx, c, Refresh{})
	if err != nil {
		t.Fatalf("Refresh after rejected commands: %v", err)
	}
	if ev.Frame.Width != 80 || ev.Frame.Height != 80 {
		t.Errorf("frame = %dx%d, want 80x80", ev.Frame.Width, ev.Frame.Height)
	}
	if st := c.Status(); st.Width != 40 || st.Height != 40 || st.SampleFactor != 0.5 {
		t.Errorf("status = %+v", st)
	}
}

func TestController_AdmitAgainstPendingState(t *testing.T) {
	cfg := testConfig(40, 40, 1, 2)
	cfg.MaxPixels = 80 * 80
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		cmd Command
		st  Status
		ok  bool
	}{
		{SetResolution{SampleFactor: 0.5}, Status{Width: 40, Height: 40, SampleFactor: 1}, true},
		{SetResolution{SampleFactor: 0.5}, Status{Width: 80, Height: 40, SampleFactor: 1}, false},
		{Resize{Width: 80, Height: 80}, Status{Width: 40, Height: 40, SampleFactor: 1}, true},
		{Resize{Width: 80, Height: 80}, Status{Width: 40, Height: 40, SampleFactor: 0.9}, false},
		{Zoom{Factor: 2}, Status{Width: 1 << 20, Height: 1 << 20, SampleFactor: 1e-9}, true},
	}
	for _, tt := range tests {
		err := c.admit(tt.cmd, tt.st)
		if tt.ok && err != nil {
			t.Errorf("admit(%#v, %dx%d at %v) = %v", tt.cmd, tt.st.Width, tt.st.Height, tt.st.SampleFactor, err)
		}
		if !tt.ok && !errors.Is(err, mandel.ErrConfig) {
			t.Errorf("admit(%#v, %dx%d at %v) = %v, want ErrConfig", tt.cmd, tt.st.Width, tt.st.Height, tt.st.SampleFactor, err)
		}
	}
}

func TestController_InvalidCommands(t *testing.T) {
	c := start(t, testConfig(10, 10, 1, 1))
	invalid := []Command{
		nil,
		Zoom{Factor: 0},
		Zoom{Factor: math.Inf(1)},
		Pan{DX: math.NaN()},
		Center{Y: math.Inf(-1)},
		SetViewport{Viewport: mandel.Viewport{Zoom: -1}},
		SetResolution{SampleFactor: 0},
		Resize{Width: 0, Height: 10},
	}
	for _, cmd := range invalid {
		if err := c.Do(context.Background(), cmd); !errors.Is(err, mandel.ErrConfig) {
			t.Errorf("Do(%#v) = %v, want ErrConfig", cmd, err)
		}
	}
	if st := c.Status(); st.Generation != 0 || st.Viewport != mandel.Home {
		t.Errorf("invalid commands changed the controller: %+v", st)
	}
}

func TestController_ZoomUnderflow(t *testing.T) {
	c := start(t, testConfig(8, 8, 1, 1))
	tiny := mandel.Viewport{Zoom: math.SmallestNonzeroFloat64}
	if _, err := Final(context.Background(), c, SetViewport{Viewport: tiny}); err != nil {
		t.Fatalf("Final(SetViewport): %v", err)
	}
	if _, err := Final(context.Background(), c, Zoom{Factor: 4}); !errors.Is(err, mandel.ErrConfig) {
		t.Errorf("zoom past the smallest float = %v, want ErrConfig", err)
	}
	if vp := c.Status().Viewport; vp != tiny {
		t.Errorf("viewport after failed zoom = %+v, want %+v", vp, tiny)
	}
}

func TestController_NavigationCommands(t *testing.T) {
	c := start(t, testConfig(350, 200, 2, 1))
	ctx := context.Background()

	ev, err := Final(ctx, c, Zoom{Factor: 4})
	if err != nil {
		t.Fatalf("Zoom: %v", err)
	}
	if ev.Viewport.Zoom != 0.25 {
		t.Errorf("zoom = %v, want 0.25", ev.Viewport.Zoom)
	}

	ev, err = Final(ctx, c, Center{X: 175, Y: 100})
	if err != nil {
		t.Fatalf("Center: %v", err)
	}
	if ev.Viewport.OffsetX != 0 || ev.Viewport.OffsetY != 0 {
		t.Errorf("centering the middle pixel moved the view to %+v", ev.Viewport)
	}

	ev, err = Final(ctx, c, Pan{DX: 100})
	if err != nil {
		t.Fatalf("Pan: %v", err)
	}
	if want := 0.25 * mandel.PlaneWidth * 100 / 350; math.Abs(ev.Viewport.OffsetX-want) > 1e-12 {
		t.Errorf("offsetX after pan = %v, want %v", ev.Viewport.OffsetX, want)
	}

	ev, err = Final(ctx, c, Resize{Width: 70, Height: 40})
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if ev.Frame.Width != 70 || ev.Frame.Height != 40 {
		t.Errorf("frame after resize = %dx%d", ev.Frame.Width, ev.Frame.Height)
	}

	ev, err = Final(ctx, c, SetResolution{SampleFactor: 2})
	if err != nil {
		t.Fatalf("SetResolution: %v", err)
	}
	if ev.Frame.Width != 35 || ev.Frame.Height != 20 {
		t.Errorf("frame at sample factor 2 = %dx%d, want 35x20", ev.Frame.Width, ev.Frame.Height)
	}

	ev, err = Final(ctx, c, Reset{})
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if ev.Viewport != mandel.Home {
		t.Errorf("viewport after reset = %+v", ev.Viewport)
	}
}

func TestController_RandomIsSeeded(t *testing.T) {
	cfg := testConfig(120, 80, 2, 2)
	cfg.Rand = rand.New(rand.NewPCG(7, 11))
	c := start(t, cfg)

	ev, err := Final(context.Background(), c, Random{})
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	if ev.Search == nil {
		t.Fatal("event carries no search stats")
	}

	aspect, _ := mandel.AspectCorrection(120, 80)
	opts := search.DefaultOptions(120, 80, mandel.Settings{
		MaxIteration:     cfg.MaxIteration,
		StdDevThreshold:  cfg.StdDevThreshold,
		AspectCorrection: aspect,
	})
	opts.MaxAttempts = cfg.SearchAttempts
	opts.GridSize = cfg.SearchGrid
	want, stats, err := search.Random(rand.New(rand.NewPCG(7, 11)), opts)
	if err != nil {
		t.Fatalf("search.Random: %v", err)
	}
	if ev.Viewport != want || *ev.Search != stats {
		t.Errorf("random view = %+v %+v, want %+v %+v", ev.Viewport, *ev.Search, want, stats)
	}

	ev, err = Final(context.Background(), c, Refresh{})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ev.Search != nil || ev.Viewport != want {
		t.Errorf("refresh after random = %+v, search %v", ev.Viewport, ev.Search)
	}
}

func TestController_DoAfterRun(t *testing.T) {
	c, err := New(testConfig(10, 10, 1, 1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if err := c.Do(context.Background(), Refresh{}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Do after Run = %v, want ErrNotRunning", err)
	}
	if _, ok := <-c.Events(); ok {
		t.Error("events still open after Run returned")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	mutate := []func(*Config){
		func(c *Config) { c.Width = 0 },
		func(c *Config) { c.Workers = 0 },
		func(c *Config) { c.MaxIteration = 0 },
		func(c *Config) { c.StdDevThreshold = -1 },
		func(c *Config) { c.SampleFactor = 0 },
		func(c *Config) { c.Levels = 0 },
		func(c *Config) { c.PassTimeout = -time.Second },
		func(c *Config) { c.SearchGrid = 0 },
		func(c *Config) { c.MaxPixels = 0 },
		func(c *Config) { c.MaxPixels = math.MaxInt },
		func(c *Config) { c.MaxPixels = 1280*720 - 1 },
		func(c *Config) { c.SampleFactor = 1e-300 },
		func(c *Config) { c.Viewport = mandel.Viewport{} },
	}
	for i, m := range mutate {
		cfg := DefaultConfig()
		m(&cfg)
		if _, err := New(cfg); !errors.Is(err, mandel.ErrConfig) {
			t.Errorf("case %d: New = %v, want ErrConfig", i, err)
		}
	}
}

func TestStatus_BeforeRun(t *testing.T) {
	c, err := New(testConfig(300, 200, 2, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	st := c.Status()
	if st.State != Idle || st.Generation != 0 || st.Levels != 3 || st.Width != 300 || st.Height != 200 {
		t.Errorf("initial status = %+v", st)
	}
	if st.Viewport != mandel.Home || st.SampleFactor != 1 {
		t.Errorf("initial view = %+v at factor %v", st.Viewport, st.SampleFactor)
	}
}

func TestLevelSize(t *testing.T) {
	tests := []struct {
		clientW, clientH int
		factor           float64
		level, levels    int
		w, h             int
	}{
		{1280, 720, 1, 0, 3, 320, 180},
		{1280, 720, 1, 1, 3, 640, 360},
		{1280, 720, 1, 2, 3, 1280, 720},
		{1280, 720, 0.5, 0, 1, 2560, 1440},
		{100, 75, 3, 0, 1, 33, 25},
		{10, 10, 8, 0, 2, 1, 1},
		{1 << 30, 1 << 30, 1 << 30, 0, 1, 1, 1},
	}
	for _, tt := range tests {
		w, h, err := levelSize(tt.clientW, tt.clientH, tt.factor, tt.level, tt.levels, DefaultMaxPixels)
		if err != nil || w != tt.w || h != tt.h {
			t.Errorf("levelSize(%d, %d, %v, %d, %d) = %dx%d, %v, want %dx%d",
				tt.clientW, tt.clientH, tt.factor, tt.level, tt.levels, w, h, err, tt.w, tt.h)
		}
	}
}

func TestLevelSize_Limit(t *testing.T) {
	tests := []struct {
		clientW, clientH int
		factor           float64
		maxPixels        int
	}{
		{101, 100, 1, 100 * 100},
		{100, 100, 0.5, 100 * 100},
		{1 << 31, 1 << 31, 1, DefaultMaxPixels},
		{math.MaxInt, math.MaxInt, 1, math.MaxInt / mandel.BytesPerPixel},
		{10, 10, 1e-300, DefaultMaxPixels},
		{10, 10, math.SmallestNonzeroFloat64, DefaultMaxPixels},
	}
	for _, tt := range tests {
		if _, _, err := levelSize(tt.clientW, tt.clientH, tt.factor, 0, 1, tt.maxPixels); !errors.Is(err, mandel.ErrConfig) {
			t.Errorf("levelSize(%d, %d, %v) under %d = %v, want ErrConfig", tt.clientW, tt.clientH, tt.factor, tt.maxPixels, err)
		}
	}
	if w, h, err := levelSize(100, 100, 1, 0, 1, 100*100); err != nil || w != 100 || h != 100 {
		t.Errorf("levelSize at the limit = %dx%d, %v", w, h, err)
	}
}
