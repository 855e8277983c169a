package mandel

import "math"

// AspectCorrection returns the vertical stretch factor for a container of
// the given client size: round(w*dy/dx)/h. It is 1 for containers with the
// 3.5:2 shape of the base plane.
func AspectCorrection(containerW, containerH int) (float64, error) {
	if containerW < 1 || containerH < 1 {
		return 0, configErrorf("container", "dimensions must be positive, got %dx%d", containerW, containerH)
	}
	return math.Round(float64(containerW)*PlaneHeight/PlaneWidth) / float64(containerH), nil
}

// Mapper converts frame pixels to points of the complex plane for one frame
// size, viewport and aspect correction. Build a new Mapper whenever any of
// them changes.
type Mapper struct {
	w, h   float64
	vp     Viewport
	yScale float64
}

// NewMapper returns the mapper for a width x height frame.
func NewMapper(width, height int, vp Viewport, aspect float64) Mapper {
	return Mapper{
		w:      float64(width),
		h:      float64(height),
		vp:     vp,
		yScale: vp.Zoom / aspect,
	}
}

// Point maps pixel (px, py) to the plane.
func (m Mapper) Point(px, py int) (x, y float64) {
	x = m.vp.Zoom*(PlaneWidth*float64(px)/m.w-PlaneWidth/2) + m.vp.OffsetX
	y = m.yScale*(PlaneHeight*float64(py)/m.h-PlaneHeight/2) + m.vp.OffsetY
	return x, y
}

// Pan moves the viewport by a pixel delta measured on a frame of the given
// size. The delta is converted with the same scale as Mapper.Point, so the
// pixel that was at (w/2+dx, h/2+dy) ends up in the centre.
func (v Viewport) Pan(dxPixels, dyPixels float64, width, height int, aspect float64) Viewport {
	v.OffsetX += v.Zoom * PlaneWidth * dxPixels / float64(width)
	v.OffsetY += v.Zoom / aspect * PlaneHeight * dyPixels / float64(height)
	return v
}

// Center moves pixel (px, py) of a width x height frame to the centre.
func (v Viewport) Center(px, py float64, width, height int, aspect float64) Viewport {
	return v.Pan(px-float64(width)/2, py-float64(height)/2, width, height, aspect)
}

// Zoomed divides the zoom by factor; factors above 1 zoom in.
func (v Viewport) Zoomed(factor float64) (Viewport, error) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return v, configErrorf("zoom factor", "must be positive and finite, got %v", factor)
	}
	zoomed := v
	zoomed.Zoom /= factor
	if err := zoomed.Validate(); err != nil {
		return v, err
	}
	return zoomed, nil
}
