// Package frame partitions a frame into worker tiles and assembles the
// rendered tiles back into a frame.
//
// A frame of T pixels rendered by W workers is split into W contiguous pixel
// ranges; tile i covers [ceil(T*i/W), ceil(T*(i+1)/W)). Concatenated in index
// order the ranges cover [0, T) exactly, and no pixel is split across tiles.
package frame

import mandel "github.com/marben/ingemi"

// Tile is one contiguous range of a frame's pixels assigned to one worker
// for one render generation.
type Tile struct {
	Index      int
	Generation uint64
	// Start and End are pixel indices; End is exclusive.
	Start, End int
	// Buffer holds the tile's RGBA bytes while it is being rendered.
	Buffer []byte
}

// Pixels returns the number of pixels in the tile.
func (t Tile) Pixels() int {
	return t.End - t.Start
}

// ByteOffset returns the tile's byte offset within the frame buffer.
func (t Tile) ByteOffset() int {
	return t.Start * mandel.BytesPerPixel
}

// ByteSize returns the size of the tile's buffer in bytes.
func (t Tile) ByteSize() int {
	return t.Pixels() * mandel.BytesPerPixel
}

// Split partitions totalPixels into one tile per worker. Tiles are empty when
// there are more workers than pixels. Buffers are not allocated.
func Split(totalPixels, workers int) ([]Tile, error) {
	if totalPixels < 1 {
		return nil, mandel.NewConfigError("frame", "pixel count must be positive, got %d", totalPixels)
	}
	if workers < 1 {
		return nil, mandel.NewConfigError("workers", "must be at least 1, got %d", workers)
	}

	tiles := make([]Tile, workers)
	for i := range tiles {
		tiles[i] = Tile{
			Index: i,
			Start: ceilDiv(totalPixels*i, workers),
			End:   ceilDiv(totalPixels*(i+1), workers),
		}
	}
	return tiles, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
