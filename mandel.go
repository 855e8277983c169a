package mandel

import (
	"math"
	"strings"
)

// Base extents of the complex plane shown at zoom 1: the classical
// Mandelbrot bounding box.
const (
	PlaneWidth  = 3.5
	PlaneHeight = 2.0
)

// Viewport selects the visible part of the complex plane.
// Offsets are the plane coordinates of the frame centre; Zoom scales the
// base extents (smaller is deeper).
type Viewport struct {
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Zoom    float64 `json:"zoom"`
}

// Home is the initial, fully zoomed-out viewport.
var Home = Viewport{Zoom: 1}

// Validate reports a ConfigError if the viewport cannot be rendered.
func (v Viewport) Validate() error {
	if !(v.Zoom > 0) || math.IsInf(v.Zoom, 0) {
		return configErrorf("zoom", "must be positive and finite, got %v", v.Zoom)
	}
	if math.IsNaN(v.OffsetX) || math.IsNaN(v.OffsetY) {
		return configErrorf("offset", "must be a number")
	}
	return nil
}

// Depth is the zoom exponent log2(1/zoom), as shown in status lines.
func (v Viewport) Depth() float64 {
	return math.Log2(1 / v.Zoom)
}

// Settings hold per-session render parameters.
type Settings struct {
	MaxIteration    int     `json:"maxIteration"`
	StdDevThreshold float64 `json:"stdDevThreshold"`
	// AspectCorrection compensates non 3.5:2 containers so that pixels stay
	// square. See AspectCorrection.
	AspectCorrection float64 `json:"aspectCorrection"`
}

// Validate reports a ConfigError for unusable settings.
func (s Settings) Validate() error {
	if s.MaxIteration < 1 {
		return configErrorf("maxIteration", "must be at least 1, got %d", s.MaxIteration)
	}
	if !(s.AspectCorrection > 0) || math.IsInf(s.AspectCorrection, 0) {
		return configErrorf("aspectCorrection", "must be positive, got %v", s.AspectCorrection)
	}
	if s.StdDevThreshold < 0 || math.IsNaN(s.StdDevThreshold) {
		return configErrorf("stdDevThreshold", "must not be negative, got %v", s.StdDevThreshold)
	}
	return nil
}

// Region within the Mandelbrot set
type Region struct {
	Xmin, Xmax float64
	Ymin, Ymax float64
}

// Viewport returns the viewport centred on r whose horizontal span matches
// r. The vertical span follows from the frame's aspect.
func (r Region) Viewport() Viewport {
	return Viewport{
		OffsetX: (r.Xmin + r.Xmax) / 2,
		OffsetY: (r.Ymin + r.Ymax) / 2,
		Zoom:    (r.Xmax - r.Xmin) / PlaneWidth,
	}
}

// Classic regions / landmarks in the Mandelbrot set
var (
	// Seahorse Valley – dense filaments and repeating “seahorse” curls
	SeahorseValley = Region{
		Xmin: -0.8,
		Xmax: -0.7,
		Ymin: 0.05,
		Ymax: 0.15,
	}

	// Elephant Valley – large bulb with trunk-like tendrils
	ElephantValley = Region{
		Xmin: -1.85,
		Xmax: -1.75,
		Ymin: -0.10,
		Ymax: -0.02,
	}

	// Spiral Minibrot – small Mandelbrot copy with tight spiral arms
	SpiralMinibrot = Region{
		Xmin: -0.7435,
		Xmax: -0.7420,
		Ymin: 0.1310,
		Ymax: 0.1325,
	}

	// Triple Spiral – threefold symmetric spiral structure
	TripleSpiral = Region{
		Xmin: -0.7480,
		Xmax: -0.7450,
		Ymin: 0.0950,
		Ymax: 0.0980,
	}

	// Valley of the Dragon – deep, highly detailed spiral filaments
	ValleyOfTheDragon = Region{
		Xmin: -0.7400,
		Xmax: -0.7350,
		Ymin: 0.1800,
		Ymax: 0.1850,
	}

	// Minibrot in a Mini-Spiral – self-similar Mandelbrot copy inside a spiral arm
	MinibrotInMiniSpiral = Region{
		Xmin: -1.7390,
		Xmax: -1.7375,
		Ymin: -0.0235,
		Ymax: -0.0220,
	}
)

// Landmarks maps lower-case names to the classic regions.
var Landmarks = map[string]Region{
	"seahorse":      SeahorseValley,
	"elephant":      ElephantValley,
	"spiral":        SpiralMinibrot,
	"triple-spiral": TripleSpiral,
	"dragon":        ValleyOfTheDragon,
	"mini-spiral":   MinibrotInMiniSpiral,
}

// Landmark looks up a landmark by name, ignoring case.
func Landmark(name string) (Region, bool) {
	r, ok := Landmarks[strings.ToLower(name)]
	return r, ok
}
