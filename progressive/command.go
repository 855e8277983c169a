package progressive

import (
	"math"

	mandel "github.com/marben/ingemi"
)

// Command is a request handled by the controller loop. The set of commands
// is closed: Pan, Center, Zoom, Reset, Random, SetViewport, SetResolution,
// Resize and Refresh.
type Command interface {
	validate() error
}

// Pan moves the view by a delta in client pixels.
type Pan struct{ DX, DY float64 }

// Center moves client pixel (X, Y) to the middle of the view.
type Center struct{ X, Y float64 }

// Zoom divides the zoom by Factor; factors above 1 zoom in.
type Zoom struct{ Factor float64 }

// Reset returns to the home view.
type Reset struct{}

// Random searches for an interesting view and renders it.
type Random struct{}

// SetViewport jumps to an explicit view.
type SetViewport struct{ Viewport mandel.Viewport }

// SetResolution changes the final sample factor.
type SetResolution struct{ SampleFactor float64 }

// Resize changes the client size; the aspect correction is recomputed.
type Resize struct{ Width, Height int }

// Refresh re-renders the current view.
type Refresh struct{}

func (c Pan) validate() error {
	if !finite(c.DX) || !finite(c.DY) {
		return mandel.NewConfigError("pan", "delta must be finite, got (%v, %v)", c.DX, c.DY)
	}
	return nil
}

func (c Center) validate() error {
	if !finite(c.X) || !finite(c.Y) {
		return mandel.NewConfigError("center", "point must be finite, got (%v, %v)", c.X, c.Y)
	}
	return nil
}

func (c Zoom) validate() error {
	if !(c.Factor > 0) || math.IsInf(c.Factor, 0) {
		return mandel.NewConfigError("zoom factor", "must be positive and finite, got %v", c.Factor)
	}
	return nil
}

func (Reset) validate() error   { return nil }
func (Random) validate() error  { return nil }
func (Refresh) validate() error { return nil }

func (c SetViewport) validate() error { return c.Viewport.Validate() }

func (c SetResolution) validate() error {
	if !(c.SampleFactor > 0) || math.IsInf(c.SampleFactor, 0) {
		return mandel.NewConfigError("sampleFactor", "must be positive, got %v", c.SampleFactor)
	}
	return nil
}

func (c Resize) validate() error {
	if c.Width < 1 || c.Height < 1 {
		return mandel.NewConfigError("canvas", "dimensions must be positive, got %dx%d", c.Width, c.Height)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
