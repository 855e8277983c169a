// Package search picks random viewports that are likely to look
// interesting.
//
// A candidate is sampled on a small grid of pixels; flat views (all points
// inside the set, or all escaping at the same rate) have a low spread of
// iteration counts and are rejected.
package search

import (
	"math"

	mandel "github.com/marben/ingemi"
)

// Source supplies randomness. *math/rand/v2.Rand implements it.
type Source interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// Options control the search.
type Options struct {
	// Width and Height are the frame size the sample grid spans.
	Width, Height int
	Settings      mandel.Settings
	// MaxAttempts bounds the number of candidates.
	MaxAttempts int
	// GridSize is the number of samples per axis.
	GridSize int
	// MinDepth and MaxDepth bound k in zoom = 2^-k, both inclusive.
	MinDepth, MaxDepth int
}

// DefaultOptions returns the options for a width x height frame.
func DefaultOptions(width, height int, s mandel.Settings) Options {
	return Options{
		Width:       width,
		Height:      height,
		Settings:    s,
		MaxAttempts: 100,
		GridSize:    4,
		MinDepth:    10,
		MaxDepth:    31,
	}
}

// Validate reports a ConfigError for unusable options.
func (o Options) Validate() error {
	switch {
	case o.Width < 1 || o.Height < 1:
		return mandel.NewConfigError("frame", "dimensions must be positive, got %dx%d", o.Width, o.Height)
	case o.MaxAttempts < 1:
		return mandel.NewConfigError("maxAttempts", "must be at least 1, got %d", o.MaxAttempts)
	case o.GridSize < 1:
		return mandel.NewConfigError("gridSize", "must be at least 1, got %d", o.GridSize)
	case o.MinDepth < 0 || o.MaxDepth < o.MinDepth:
		return mandel.NewConfigError("depth", "need 0 <= min <= max, got [%d, %d]", o.MinDepth, o.MaxDepth)
	}
	return o.Settings.Validate()
}

// Stats describe how a search went.
type Stats struct {
	Attempts int
	StdDev   float64
	// Exhausted is set when no candidate cleared the threshold and the last
	// one was returned anyway.
	Exhausted bool
}

// Random draws candidate viewports until the standard deviation of the
// sampled iteration counts reaches opts.Settings.StdDevThreshold, or until
// opts.MaxAttempts candidates have been tried, in which case the last one is
// returned with Stats.Exhausted set.
func Random(src Source, opts Options) (mandel.Viewport, Stats, error) {
	if err := opts.Validate(); err != nil {
		return mandel.Viewport{}, Stats{}, err
	}

	samples := make([]int, opts.GridSize*opts.GridSize)
	var (
		vp    mandel.Viewport
		stats Stats
	)
	for stats.Attempts < opts.MaxAttempts {
		stats.Attempts++
		vp = candidate(src, opts)
		Sample(samples, vp, opts)
		stats.StdDev = StdDev(samples)
		if stats.StdDev >= opts.Settings.StdDevThreshold {
			return vp, stats, nil
		}
	}

	stats.Exhausted = true
	mandel.Logger().Warn("random search exhausted, keeping last candidate",
		"attempts", stats.Attempts, "stddev", stats.StdDev, "threshold", opts.Settings.StdDevThreshold)
	return vp, stats, nil
}

func candidate(src Source, opts Options) mandel.Viewport {
	k := opts.MinDepth + src.IntN(opts.MaxDepth-opts.MinDepth+1)
	return mandel.Viewport{
		Zoom:    math.Ldexp(1, -k),
		OffsetX: mandel.PlaneWidth * (src.Float64() - 0.5),
		OffsetY: mandel.PlaneHeight * (src.Float64() - 0.5),
	}
}

// Sample fills dst with iteration counts on a GridSize x GridSize grid
// anchored at the top-left pixel. dst must hold GridSize² values.
func Sample(dst []int, vp mandel.Viewport, opts Options) {
	g := opts.GridSize
	m := mandel.NewMapper(opts.Width, opts.Height, vp, opts.Settings.AspectCorrection)
	for i := range g * g {
		px := (i % g) * opts.Width / g
		py := (i / g) * opts.Height / g
		x, y := m.Point(px, py)
		dst[i] = mandel.Escape(x, y, opts.Settings.MaxIteration)
	}
}

// StdDev returns the population standard deviation of values.
func StdDev(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
