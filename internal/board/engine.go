package board

import (
	"math"

	"github.com/sketchdeck/sketchdeck/internal/protocol"
)

// Tool is the orthogonal mode flag gating what a pointer gesture does.
type Tool int

const (
	ToolNone Tool = iota
	ToolRect
	ToolCircle
	ToolPencil
	ToolHand
	ToolEraser
)

// Gesture states, mutually exclusive per pointer gesture
type gestureState int

const (
	stateIdle gestureState = iota
	stateDrawing
	statePanning
)

// DefaultEraseRadius is the fixed-radius disc hit-tested around the
// cursor while erasing.
const DefaultEraseRadius = 10.0

// Engine converts raw pointer input into shape, pan, and zoom
// operations against the store. It is driven from a single input
// goroutine; only the store underneath it is touched concurrently.
type Engine struct {
	store       *Store
	renderer    Renderer
	viewport    Viewport
	tool        Tool
	state       gestureState
	panModifier bool

	// Drawing gesture, world coordinates
	startX, startY float64
	currentPath    []protocol.Point

	// Panning gesture, screen coordinates
	lastPanX, lastPanY float64

	eraseRadius float64
}

func NewEngine(store *Store, renderer Renderer) *Engine {
	return &Engine{
		store:       store,
		renderer:    renderer,
		viewport:    DefaultViewport(),
		eraseRadius: DefaultEraseRadius,
	}
}

func (e *Engine) Viewport() Viewport {
	return e.viewport
}

// SetTool switches the active tool. A tool change mid-gesture is not a
// valid transition, so any in-progress gesture resets to idle.
func (e *Engine) SetTool(tool Tool) {
	e.tool = tool
	e.state = stateIdle
	e.currentPath = nil
}

// SetPanModifier mirrors the held state of the pan key (space).
func (e *Engine) SetPanModifier(held bool) {
	e.panModifier = held
}

// PointerDown starts a gesture. Screen coordinates in, world anchor
// recorded through the current transform.
func (e *Engine) PointerDown(sx, sy float64) {
	if e.state != stateIdle {
		return
	}

	if e.tool == ToolHand || e.panModifier {
		e.state = statePanning
		e.lastPanX, e.lastPanY = sx, sy
		return
	}

	if e.tool == ToolNone {
		return
	}

	e.state = stateDrawing
	e.startX, e.startY = e.viewport.ToWorld(sx, sy)
	if e.tool == ToolPencil {
		e.currentPath = []protocol.Point{{X: e.startX, Y: e.startY}}
	}
}

func (e *Engine) PointerMove(sx, sy float64) {
	switch e.state {
	case statePanning:
		e.viewport = e.viewport.Panned(sx-e.lastPanX, sy-e.lastPanY)
		e.lastPanX, e.lastPanY = sx, sy
		e.store.SetViewport(e.viewport)
		e.store.Render()

	case stateDrawing:
		wx, wy := e.viewport.ToWorld(sx, sy)

		switch e.tool {
		case ToolRect, ToolCircle:
			// Live preview only; the store is untouched until pointer-up
			e.store.Render()
			e.renderer.Preview(e.buildShape(wx, wy), e.viewport)

		case ToolPencil:
			prev := e.currentPath[len(e.currentPath)-1]
			cur := protocol.Point{X: wx, Y: wy}
			e.currentPath = append(e.currentPath, cur)
			// Incremental: only the new segment is drawn
			e.renderer.Segment(prev, cur, e.viewport)

		case ToolEraser:
			e.eraseAt(wx, wy)
		}
	}
}

// PointerUp finalizes a drawing gesture into the store, or ends a pan
// with no network effect.
func (e *Engine) PointerUp(sx, sy float64) {
	switch e.state {
	case statePanning:
		e.state = stateIdle

	case stateDrawing:
		e.state = stateIdle
		wx, wy := e.viewport.ToWorld(sx, sy)
		shape := e.finalizeShape(wx, wy)
		e.currentPath = nil
		if shape != nil {
			e.store.ApplyLocal(shape)
		}
	}
}

// Wheel applies cursor-anchored zoom from a scroll delta.
func (e *Engine) Wheel(deltaY, cx, cy float64) {
	newScale := clampScale(e.viewport.Scale + -deltaY*0.001)
	e.viewport = e.viewport.ZoomedAt(cx, cy, newScale)
	e.store.SetViewport(e.viewport)
	e.store.Render()
}

func (e *Engine) Undo() { e.store.Undo() }
func (e *Engine) Redo() { e.store.Redo() }

// buildShape constructs the in-progress rect/circle spanning the start
// anchor and the current pointer, id-less until finalized.
func (e *Engine) buildShape(wx, wy float64) protocol.Shape {
	width := wx - e.startX
	height := wy - e.startY

	switch e.tool {
	case ToolRect:
		x, y, w, h := normalizeRect(e.startX, e.startY, width, height)
		return protocol.Rect{X: x, Y: y, Width: w, Height: h}
	case ToolCircle:
		radius := math.Max(width, height) / 2
		return protocol.Circle{
			CenterX: e.startX + radius,
			CenterY: e.startY + radius,
			Radius:  radius,
		}
	default:
		return nil
	}
}

func (e *Engine) finalizeShape(wx, wy float64) protocol.Shape {
	switch e.tool {
	case ToolRect, ToolCircle:
		return e.buildShape(wx, wy)
	case ToolPencil:
		// A stroke needs at least two points to produce a shape
		if len(e.currentPath) < 2 {
			return nil
		}
		points := make([]protocol.Point, len(e.currentPath))
		copy(points, e.currentPath)
		return protocol.Pencil{Points: points}
	default:
		return nil
	}
}

// eraseAt deletes every shape within the eraser disc in one sample,
// emitting one delete event per hit.
func (e *Engine) eraseAt(wx, wy float64) {
	for _, shape := range e.store.Shapes() {
		if hitByEraser(shape, wx, wy, e.eraseRadius) {
			e.store.Erase(shape.ShapeID())
		}
	}
}

func hitByEraser(shape protocol.Shape, wx, wy, radius float64) bool {
	switch v := shape.(type) {
	case protocol.Rect:
		// Expanded bounding-box containment; tolerate unnormalized
		// rects from older peers
		minX := math.Min(v.X, v.X+v.Width) - radius
		maxX := math.Max(v.X, v.X+v.Width) + radius
		minY := math.Min(v.Y, v.Y+v.Height) - radius
		maxY := math.Max(v.Y, v.Y+v.Height) + radius
		return wx > minX && wx < maxX && wy > minY && wy < maxY

	case protocol.Circle:
		dist := math.Hypot(wx-v.CenterX, wy-v.CenterY)
		return dist < math.Abs(v.Radius)+radius

	case protocol.Pencil:
		for _, p := range v.Points {
			if math.Hypot(wx-p.X, wy-p.Y) < radius {
				return true
			}
		}
		return false

	default:
		return false
	}
}

func normalizeRect(x, y, w, h float64) (float64, float64, float64, float64) {
	if w < 0 {
		x += w
		w = -w
	}
	if h < 0 {
		y += h
		h = -h
	}
	return x, y, w, h
}
