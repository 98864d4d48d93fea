package board

import "github.com/sketchdeck/sketchdeck/internal/protocol"

// Renderer receives draw requests from the store and engine. The actual
// drawing surface lives outside this package; tests and headless tools
// plug in their own.
type Renderer interface {
	// Full redraw of every shape under the given transform
	Redraw(shapes []protocol.Shape, v Viewport)

	// Live preview of an in-progress shape, drawn over the last redraw
	Preview(shape protocol.Shape, v Viewport)

	// Incremental pencil segment from the previous sample to the
	// current one
	Segment(from, to protocol.Point, v Viewport)
}

// NopRenderer discards all draw requests.
type NopRenderer struct{}

func (NopRenderer) Redraw([]protocol.Shape, Viewport) {}

func (NopRenderer) Preview(protocol.Shape, Viewport) {}

func (NopRenderer) Segment(protocol.Point, protocol.Point, Viewport) {}
