package board

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/sketchdeck/sketchdeck/internal/protocol"
)

// Emitter carries outbound drawing events to the room. A Session
// implements it over a live socket.
type Emitter interface {
	Emit(frame *protocol.Frame) error
}

// Store is the ordered collection of shapes this client knows for the
// active room. Local applies come from the input path and remote
// applies from the socket read goroutine, so every mutation holds the
// mutex; the two paths interleave arbitrarily in time but never corrupt
// each other.
//
// Identifiers are client-generated, and exact-match de-duplication on
// them is the only thing preventing a client's own echo from
// double-rendering its shape.
type Store struct {
	mu       sync.Mutex
	roomID   string
	shapes   []protocol.Shape
	index    map[string]struct{}
	undo     []protocol.Shape
	redo     []protocol.Shape
	viewport Viewport
	renderer Renderer
	emitter  Emitter
}

func NewStore(roomID string, renderer Renderer, emitter Emitter) *Store {
	return &Store{
		roomID:   roomID,
		index:    make(map[string]struct{}),
		viewport: DefaultViewport(),
		renderer: renderer,
		emitter:  emitter,
	}
}

// Seed populates the store from the history the persistence sink
// returned. The sink returns newest-first; replay is oldest-first so
// the z-order of overlapping shapes matches original draw order.
func (s *Store) Seed(newestFirst []protocol.Shape) {
	s.mu.Lock()
	for i := len(newestFirst) - 1; i >= 0; i-- {
		shape := newestFirst[i]
		id := shape.ShapeID()
		if id == "" {
			continue
		}
		if _, ok := s.index[id]; ok {
			continue
		}
		s.shapes = append(s.shapes, shape)
		s.index[id] = struct{}{}
	}
	snapshot, viewport := s.snapshotLocked()
	s.mu.Unlock()

	s.renderer.Redraw(snapshot, viewport)
}

// ApplyLocal inserts a locally created shape immediately, before any
// server confirmation, and emits the create event carrying the same
// identifier so the later echo reconciles as a no-op.
func (s *Store) ApplyLocal(shape protocol.Shape) string {
	id := uuid.NewString()
	shape = withID(shape, id)

	s.mu.Lock()
	s.shapes = append(s.shapes, shape)
	s.index[id] = struct{}{}
	s.undo = append(s.undo, shape)
	s.redo = nil
	snapshot, viewport := s.snapshotLocked()
	s.mu.Unlock()

	s.renderer.Redraw(snapshot, viewport)
	s.emitCreate(shape)
	return id
}

// ApplyRemote folds one room event from the socket into the store.
// Creates whose identifier is already present are echoes or duplicate
// deliveries and do nothing; deletes of absent shapes are no-ops.
func (s *Store) ApplyRemote(frame *protocol.Frame) {
	switch frame.Type {
	case protocol.FrameChat:
		shape, err := protocol.DecodeShapeMessage(frame.Message)
		if err != nil {
			slog.Debug("dropping undecodable shape message", "error", err)
			return
		}
		if frame.ClientID != "" {
			shape = withID(shape, frame.ClientID)
		}
		id := shape.ShapeID()
		if id == "" {
			return
		}

		s.mu.Lock()
		if _, ok := s.index[id]; ok {
			s.mu.Unlock()
			return
		}
		s.shapes = append(s.shapes, shape)
		s.index[id] = struct{}{}
		snapshot, viewport := s.snapshotLocked()
		s.mu.Unlock()

		s.renderer.Redraw(snapshot, viewport)

	case protocol.FrameDeleteShape:
		s.mu.Lock()
		removed := s.removeLocked(frame.ID)
		snapshot, viewport := s.snapshotLocked()
		s.mu.Unlock()

		if removed {
			s.renderer.Redraw(snapshot, viewport)
		}
	}
}

// Erase removes a shape hit by the eraser, keeps it on the undo stack
// for potential restoration, and broadcasts its deletion.
func (s *Store) Erase(id string) bool {
	s.mu.Lock()
	var erased protocol.Shape
	for _, shape := range s.shapes {
		if shape.ShapeID() == id {
			erased = shape
			break
		}
	}
	if erased == nil {
		s.mu.Unlock()
		return false
	}
	s.removeLocked(id)
	s.undo = append(s.undo, erased)
	snapshot, viewport := s.snapshotLocked()
	s.mu.Unlock()

	s.renderer.Redraw(snapshot, viewport)
	s.emitDelete(id)
	return true
}

// Undo reverts this client's most recent action: the shape comes off
// the store if still present, moves to the redo stack, and its deletion
// is broadcast. Remote peers' shapes are never on the stack.
func (s *Store) Undo() {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return
	}
	shape := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, shape)
	s.removeLocked(shape.ShapeID())
	snapshot, viewport := s.snapshotLocked()
	s.mu.Unlock()

	s.renderer.Redraw(snapshot, viewport)
	s.emitDelete(shape.ShapeID())
}

// Redo replays the last undone shape, reusing its original identifier
// so peers de-duplicate correctly.
func (s *Store) Redo() {
	s.mu.Lock()
	if len(s.redo) == 0 {
		s.mu.Unlock()
		return
	}
	shape := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	id := shape.ShapeID()
	if _, ok := s.index[id]; !ok {
		s.shapes = append(s.shapes, shape)
		s.index[id] = struct{}{}
	}
	s.undo = append(s.undo, shape)
	snapshot, viewport := s.snapshotLocked()
	s.mu.Unlock()

	s.renderer.Redraw(snapshot, viewport)
	s.emitCreate(shape)
}

// Render triggers a full redraw of the current contents.
func (s *Store) Render() {
	s.mu.Lock()
	snapshot, viewport := s.snapshotLocked()
	s.mu.Unlock()
	s.renderer.Redraw(snapshot, viewport)
}

// SetViewport records the transform applied on the next redraw.
func (s *Store) SetViewport(v Viewport) {
	s.mu.Lock()
	s.viewport = v
	s.mu.Unlock()
}

// Shapes returns a copy of the current ordered contents.
func (s *Store) Shapes() []protocol.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]protocol.Shape, len(s.shapes))
	copy(snapshot, s.shapes)
	return snapshot
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shapes)
}

// Caller holds s.mu.
func (s *Store) removeLocked(id string) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	for i, shape := range s.shapes {
		if shape.ShapeID() == id {
			s.shapes = append(s.shapes[:i], s.shapes[i+1:]...)
			break
		}
	}
	return true
}

// Caller holds s.mu.
func (s *Store) snapshotLocked() ([]protocol.Shape, Viewport) {
	snapshot := make([]protocol.Shape, len(s.shapes))
	copy(snapshot, s.shapes)
	return snapshot, s.viewport
}

func (s *Store) emitCreate(shape protocol.Shape) {
	msg, err := protocol.EncodeShapeMessage(shape)
	if err != nil {
		slog.Error("failed to encode shape", "error", err)
		return
	}
	frame := &protocol.Frame{
		Type:     protocol.FrameChat,
		RoomID:   s.roomID,
		ClientID: shape.ShapeID(),
		Message:  msg,
	}
	if err := s.emitter.Emit(frame); err != nil {
		// The local apply stands either way; a dead socket only means
		// peers miss the event.
		slog.Warn("failed to emit create event", "shape", shape.ShapeID(), "error", err)
	}
}

func (s *Store) emitDelete(id string) {
	frame := &protocol.Frame{
		Type:   protocol.FrameDeleteShape,
		RoomID: s.roomID,
		ID:     id,
	}
	if err := s.emitter.Emit(frame); err != nil {
		slog.Warn("failed to emit delete event", "shape", id, "error", err)
	}
}

func withID(shape protocol.Shape, id string) protocol.Shape {
	switch v := shape.(type) {
	case protocol.Rect:
		v.ID = id
		return v
	case protocol.Circle:
		v.ID = id
		return v
	case protocol.Pencil:
		v.ID = id
		return v
	default:
		panic(fmt.Sprintf("unknown shape kind %T", shape))
	}
}
