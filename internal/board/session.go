package board

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sketchdeck/sketchdeck/internal/protocol"
)

// Session is a live connection to the broker for one room. It owns the
// socket, implements the store's Emitter over it, and feeds inbound
// room events into the store from a single read goroutine.
type Session struct {
	conn     *websocket.Conn
	store    *Store
	roomID   string
	writeMu  sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// Dial connects to the broker's /ws endpoint with the given session
// token, joins the room, and starts the read loop. wsURL is the ws:// or
// wss:// base, e.g. "ws://localhost:8080/ws".
func Dial(ctx context.Context, wsURL, token, roomID string, renderer Renderer) (*Session, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	s := &Session{
		conn:   conn,
		roomID: roomID,
		done:   make(chan struct{}),
	}
	s.store = NewStore(roomID, renderer, s)

	if err := s.Emit(&protocol.Frame{Type: protocol.FrameJoinRoom, RoomID: roomID}); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

func (s *Session) Store() *Store { return s.store }

// Emit sends one frame on the socket. Safe for the input path and the
// dial-time join to share.
func (s *Session) Emit(frame *protocol.Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Leave unsubscribes from the room without closing the socket.
func (s *Session) Leave() error {
	return s.Emit(&protocol.Frame{Type: protocol.FrameLeaveRoom, RoomID: s.roomID})
}

func (s *Session) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.conn.Close()
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) readLoop() {
	defer func() {
		s.doneOnce.Do(func() { close(s.done) })
		s.conn.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// No reconnection here: an active draw in flight is simply
			// discarded with the connection.
			select {
			case <-s.done:
			default:
				slog.Warn("session read failed", "room", s.roomID, "error", err)
			}
			return
		}

		frame, err := protocol.ParseFrame(data)
		if err != nil {
			slog.Debug("session dropping malformed frame", "error", err)
			continue
		}
		if frame.RoomID != s.roomID {
			continue
		}

		s.store.ApplyRemote(frame)
	}
}

type historyEvent struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

type historyResponse struct {
	Messages []historyEvent `json:"messages"`
}

// LoadHistory fetches the room's persisted events from the HTTP backend
// and decodes them into shapes, newest first, ready for Store.Seed. A
// fetch failure seeds an empty board rather than failing the session.
func LoadHistory(ctx context.Context, httpBase, roomID string) []protocol.Shape {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/chats/%s", httpBase, roomID), nil)
	if err != nil {
		return nil
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		slog.Warn("history fetch failed, starting empty", "room", roomID, "error", err)
		return nil
	}
	defer resp.Body.Close()

	var payload historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		slog.Warn("history decode failed, starting empty", "room", roomID, "error", err)
		return nil
	}

	shapes := make([]protocol.Shape, 0, len(payload.Messages))
	for _, ev := range payload.Messages {
		shape, err := protocol.DecodeShapeMessage(ev.Message)
		if err != nil {
			slog.Debug("skipping undecodable history event", "id", ev.ID, "error", err)
			continue
		}
		shapes = append(shapes, shape)
	}
	return shapes
}
