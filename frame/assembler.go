package frame

import (
	"errors"
	"fmt"
	"image"

	mandel "github.com/marben/ingemi"
)

var (
	// ErrStaleResult marks a tile rendered for a generation other than the
	// assembler's. Stale results are dropped without touching the frame.
	ErrStaleResult = errors.New("stale tile result")

	// ErrUnexpectedTile marks a result whose range matches no pending tile:
	// unknown, already assembled, or with a buffer of the wrong size.
	ErrUnexpectedTile = errors.New("unexpected tile result")
)

// Frame is one assembled render pass.
type Frame struct {
	Generation uint64
	Level      int
	Width      int
	Height     int
	// Pix holds Width*Height RGBA pixels, row by row.
	Pix []byte
}

// Image exposes the frame as an *image.RGBA sharing Pix.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * mandel.BytesPerPixel,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Assembler collects the tiles of one generation into a frame.
//
// Thread safety: Assembler is NOT safe for concurrent use; it is owned by
// the control flow that receives worker results.
type Assembler struct {
	frame     *Frame
	tiles     []Tile
	byStart   map[int]int
	done      []bool
	completed int
	taken     bool
}

// NewAssembler prepares a width x height frame for generation gen, to be
// filled from tiles (as returned by Split). Empty tiles count as completed.
func NewAssembler(gen uint64, level, width, height int, tiles []Tile) *Assembler {
	a := &Assembler{
		frame: &Frame{
			Generation: gen,
			Level:      level,
			Width:      width,
			Height:     height,
			Pix:        make([]byte, width*height*mandel.BytesPerPixel),
		},
		tiles:   tiles,
		byStart: make(map[int]int, len(tiles)),
		done:    make([]bool, len(tiles)),
	}
	for i, t := range tiles {
		if t.Pixels() == 0 {
			a.done[i] = true
			a.completed++
			continue
		}
		a.byStart[t.Start] = i
	}
	return a
}

// Generation returns the generation this assembler accepts.
func (a *Assembler) Generation() uint64 {
	return a.frame.Generation
}

// Accept copies a rendered tile into the frame and reports whether the frame
// is now complete. Results for another generation fail with ErrStaleResult;
// unknown, duplicate or mis-sized tiles fail with ErrUnexpectedTile. Either
// way the frame is left untouched. The result buffer is not retained.
func (a *Assembler) Accept(r mandel.Result) (bool, error) {
	if r.Generation != a.frame.Generation {
		return false, fmt.Errorf("generation %d, want %d: %w", r.Generation, a.frame.Generation, ErrStaleResult)
	}

	i, ok := a.byStart[r.Start]
	if !ok {
		return false, fmt.Errorf("no tile starts at pixel %d: %w", r.Start, ErrUnexpectedTile)
	}
	t := a.tiles[i]
	switch {
	case t.End != r.End:
		return false, fmt.Errorf("tile %d ends at %d, result at %d: %w", i, t.End, r.End, ErrUnexpectedTile)
	case a.done[i]:
		return false, fmt.Errorf("tile %d already assembled: %w", i, ErrUnexpectedTile)
	case len(r.Buffer) != t.ByteSize():
		return false, fmt.Errorf("tile %d buffer is %d bytes, want %d: %w", i, len(r.Buffer), t.ByteSize(), ErrUnexpectedTile)
	}

	copy(a.frame.Pix[t.ByteOffset():], r.Buffer)
	a.done[i] = true
	a.completed++
	return a.Complete(), nil
}

// Complete reports whether every tile has been assembled.
func (a *Assembler) Complete() bool {
	return a.completed == len(a.tiles)
}

// Progress returns the number of assembled tiles and the tile count.
func (a *Assembler) Progress() (completed, total int) {
	return a.completed, len(a.tiles)
}

// Take hands out the completed frame. It returns false while tiles are
// missing and on every call after the first successful one, so a frame is
// drawn at most once.
func (a *Assembler) Take() (*Frame, bool) {
	if !a.Complete() || a.taken {
		return nil, false
	}
	a.taken = true
	return a.frame, true
}
