package mandel

import "context"

// Task asks a worker to render pixels [Start, End) of a Width x Height
// frame. Buffer holds exactly (End-Start)*BytesPerPixel bytes and belongs to
// the worker until it is handed back in a Result.
type Task struct {
	Generation uint64
	Start, End int
	Width      int
	Height     int
	Viewport   Viewport
	Settings   Settings
	Buffer     []byte
}

// Result returns a rendered tile buffer together with the generation it was
// rendered for.
type Result struct {
	Generation uint64
	Start, End int
	Buffer     []byte
}

// Renderer computes one tile.
type Renderer interface {
	RenderTile(ctx context.Context, t Task) (Result, error)
}
