// Package present turns controller output into something a person can look
// at: frames scaled to the client, PNG files and a one-line status.
package present

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	mandel "github.com/marben/ingemi"
	"github.com/marben/ingemi/frame"
	"github.com/marben/ingemi/progressive"
)

// Fit scales f to width x height. Coarse frames are enlarged with nearest
// neighbour so their pixels stay visibly blocky; supersampled frames are
// reduced with Catmull-Rom. A frame that already has the client size is
// returned without copying.
func Fit(f *frame.Frame, width, height int) (*image.RGBA, error) {
	if width < 1 || height < 1 {
		return nil, mandel.NewConfigError("client", "dimensions must be positive, got %dx%d", width, height)
	}
	src := f.Image()
	if f.Width == width && f.Height == height {
		return src, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	var scaler draw.Scaler = draw.CatmullRom
	if width >= f.Width && height >= f.Height {
		scaler = draw.NearestNeighbor
	}
	scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// EncodePNG writes img as PNG. Fast compression is used since frames are
// usually streamed.
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Status formats st on one line with numbers in the conventions of tag:
// state and progress, level, offsets, zoom depth (log2 of 1/zoom) and
// canvas size.
func Status(tag language.Tag, st progressive.Status) string {
	p := message.NewPrinter(tag)

	progress := p.Sprintf("%s", st.State)
	if st.Total > 0 {
		pct := 100 * float64(st.Completed) / float64(st.Total)
		progress = p.Sprintf("%s %d/%d (%.0f%%)", st.State, st.Completed, st.Total, pct)
	}
	return p.Sprintf("%s | level %d/%d | x %.12f y %.12f | depth %.1f | %d×%d | max %d",
		progress,
		st.Level+1, st.Levels,
		st.Viewport.OffsetX, st.Viewport.OffsetY,
		depth(st.Viewport),
		st.Width, st.Height,
		st.Settings.MaxIteration,
	)
}

func depth(vp mandel.Viewport) float64 {
	d := vp.Depth()
	if math.Abs(d) < 0.05 {
		return 0
	}
	return d
}

var shade = color.RGBA{A: 0xa0}

// Annotate draws line in the bottom-left corner of img on a dark band.
func Annotate(img draw.Image, line string) {
	face := basicfont.Face7x13
	b := img.Bounds()
	m := face.Metrics()
	band := image.Rect(b.Min.X, b.Max.Y-m.Height.Ceil()-4, b.Max.X, b.Max.Y)
	draw.Draw(img, band, image.NewUniform(shade), image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(b.Min.X+4, b.Max.Y-m.Descent.Ceil()-2),
	}
	d.DrawString(line)
}
