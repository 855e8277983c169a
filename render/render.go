// Package render computes tiles of a Mandelbrot frame on a pool of workers.
package render

import (
	"context"
	"fmt"

	mandel "github.com/marben/ingemi"
)

// RendererImpl renders tiles on the local CPU.
type RendererImpl struct {
	// OnTileRender, if set, is called before each tile is computed.
	OnTileRender func(t mandel.Task)
}

var _ mandel.Renderer = RendererImpl{}

// RenderTile fills t.Buffer with the colors of pixels [t.Start, t.End) and
// hands the buffer back in the result.
func (imp RendererImpl) RenderTile(ctx context.Context, t mandel.Task) (mandel.Result, error) {
	if err := ctx.Err(); err != nil {
		return mandel.Result{}, err
	}
	if t.Width < 1 || t.Height < 1 {
		return mandel.Result{}, mandel.NewConfigError("frame", "dimensions must be positive, got %dx%d", t.Width, t.Height)
	}
	if t.Start < 0 || t.End < t.Start || t.End > t.Width*t.Height {
		return mandel.Result{}, fmt.Errorf("tile [%d, %d) outside %dx%d frame", t.Start, t.End, t.Width, t.Height)
	}
	if want := (t.End - t.Start) * mandel.BytesPerPixel; len(t.Buffer) != want {
		return mandel.Result{}, fmt.Errorf("tile [%d, %d): buffer is %d bytes, want %d", t.Start, t.End, len(t.Buffer), want)
	}
	if imp.OnTileRender != nil {
		imp.OnTileRender(t)
	}

	RenderRange(t.Buffer, t.Start, t.End, t.Width, t.Height, t.Viewport, t.Settings)

	return mandel.Result{
		Generation: t.Generation,
		Start:      t.Start,
		End:        t.End,
		Buffer:     t.Buffer,
	}, nil
}

// RenderRange colors pixels [start, end) of a width x height frame into buf,
// which must hold (end-start)*4 bytes.
func RenderRange(buf []byte, start, end, width, height int, vp mandel.Viewport, s mandel.Settings) {
	m := mandel.NewMapper(width, height, vp, s.AspectCorrection)
	off := 0
	for idx := start; idx < end; idx++ {
		x, y := m.Point(idx%width, idx/width)
		it := mandel.Escape(x, y, s.MaxIteration)
		mandel.PutColor(buf[off:off+mandel.BytesPerPixel], it, s.MaxIteration)
		off += mandel.BytesPerPixel
	}
}
