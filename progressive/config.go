package progressive

import (
	"math"
	"runtime"
	"time"

	mandel "github.com/marben/ingemi"
	"github.com/marben/ingemi/search"
)

// Config configures a Controller.
type Config struct {
	// Width and Height are the client (display) size in pixels.
	Width, Height int
	// Workers is the number of render goroutines and tiles per frame.
	Workers int

	MaxIteration    int
	StdDevThreshold float64

	// SampleFactor is the final resolution: client pixels per rendered
	// pixel. Values below 1 supersample.
	SampleFactor float64
	// Levels is the number of passes per viewport change. Level i renders
	// at SampleFactor * 2^(Levels-1-i).
	Levels int

	// PassTimeout bounds each pass. Zero disables the deadline.
	PassTimeout time.Duration

	// MaxPixels caps the size of one frame. Resize and SetResolution
	// commands that would exceed it are rejected.
	MaxPixels int

	// Viewport is the initial view.
	Viewport mandel.Viewport

	// SearchAttempts and SearchGrid tune Random commands.
	SearchAttempts int
	SearchGrid     int

	// Renderer computes tiles; RendererImpl when nil.
	Renderer mandel.Renderer
	// Rand drives Random commands; seeded from the clock when nil.
	Rand search.Source
}

// DefaultMaxPixels is 64 megapixels, 256 MiB of RGBA.
const DefaultMaxPixels = 64 << 20

// DefaultConfig returns the defaults used by the commands.
func DefaultConfig() Config {
	return Config{
		Width:           1280,
		Height:          720,
		Workers:         runtime.GOMAXPROCS(0),
		MaxIteration:    255,
		StdDevThreshold: 10,
		SampleFactor:    1,
		Levels:          3,
		PassTimeout:     30 * time.Second,
		MaxPixels:       DefaultMaxPixels,
		Viewport:        mandel.Home,
		SearchAttempts:  100,
		SearchGrid:      4,
	}
}

// Validate reports the first unusable field as a *mandel.ConfigError.
func (c Config) Validate() error {
	switch {
	case c.Width < 1 || c.Height < 1:
		return mandel.NewConfigError("canvas", "dimensions must be positive, got %dx%d", c.Width, c.Height)
	case c.Workers < 1:
		return mandel.NewConfigError("workers", "must be at least 1, got %d", c.Workers)
	case c.MaxIteration < 1:
		return mandel.NewConfigError("maxIteration", "must be at least 1, got %d", c.MaxIteration)
	case c.StdDevThreshold < 0 || math.IsNaN(c.StdDevThreshold):
		return mandel.NewConfigError("stdDevThreshold", "must not be negative, got %v", c.StdDevThreshold)
	case !(c.SampleFactor > 0) || math.IsInf(c.SampleFactor, 0):
		return mandel.NewConfigError("sampleFactor", "must be positive, got %v", c.SampleFactor)
	case c.Levels < 1:
		return mandel.NewConfigError("levels", "must be at least 1, got %d", c.Levels)
	case c.PassTimeout < 0:
		return mandel.NewConfigError("passTimeout", "must not be negative, got %s", c.PassTimeout)
	case c.SearchAttempts < 1:
		return mandel.NewConfigError("searchAttempts", "must be at least 1, got %d", c.SearchAttempts)
	case c.SearchGrid < 1:
		return mandel.NewConfigError("searchGrid", "must be at least 1, got %d", c.SearchGrid)
	case c.MaxPixels < 1 || c.MaxPixels > math.MaxInt/mandel.BytesPerPixel:
		return mandel.NewConfigError("maxPixels", "must be between 1 and %d, got %d", math.MaxInt/mandel.BytesPerPixel, c.MaxPixels)
	}
	if _, _, err := levelSize(c.Width, c.Height, c.SampleFactor, c.Levels-1, c.Levels, c.MaxPixels); err != nil {
		return err
	}
	return c.Viewport.Validate()
}

// levelSize returns the frame size rendered at level for a client of
// clientW x clientH. The size is worked out in float64 so that no client
// size or sample factor can overflow int; frames above maxPixels fail with
// a *mandel.ConfigError.
func levelSize(clientW, clientH int, sampleFactor float64, level, levels, maxPixels int) (w, h int, err error) {
	f := sampleFactor * math.Ldexp(1, levels-1-level)
	fw := math.Max(1, math.Floor(float64(clientW)/f))
	fh := math.Max(1, math.Floor(float64(clientH)/f))
	if math.IsNaN(fw*fh) || fw*fh > float64(maxPixels) {
		return 0, 0, mandel.NewConfigError("frame", "%vx%v pixels at sample factor %v exceeds the limit of %d pixels",
			fw, fh, sampleFactor, maxPixels)
	}
	return int(fw), int(fh), nil
}
