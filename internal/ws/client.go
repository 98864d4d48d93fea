package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sketchdeck/sketchdeck/internal/protocol"
)

// Options bound per-connection resource use.
type Options struct {
	WriteWait         time.Duration
	PongWait          time.Duration
	MaxMessageSize    int64
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultOptions() Options {
	return Options{
		WriteWait:         10 * time.Second,
		PongWait:          60 * time.Second,
		MaxMessageSize:    1024 * 1024,
		MessagesPerSecond: 100,
		MessageBurst:      200,
	}
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Verifier is the auth collaborator for the accept gate.
type Verifier interface {
	Verify(token string) (string, error)
}

// One registered connection: a live socket, its authenticated user, and
// the set of rooms it has joined. The rooms map is owned by the hub's
// Run goroutine.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  string
	rooms   map[string]bool
	limiter *rate.Limiter
	opts    Options
}

// ServeWs upgrades the connection and runs the accept gate. A missing or
// invalid token closes the socket without a reason: nothing about why
// auth failed is leaked to the peer.
func ServeWs(hub *Hub, verifier Verifier, opts Options, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade failed", "error", err)
		return
	}

	userID, err := verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		hub.metrics.AuthRejectsTotal.Inc()
		slog.Debug("connection rejected", "remote", conn.RemoteAddr().String())
		conn.Close()
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 512),
		userID:  userID,
		rooms:   make(map[string]bool),
		limiter: rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.MessageBurst),
		opts:    opts,
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump handles each inbound frame to completion before reading the
// next, which preserves per-sender ordering within a room.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error", "user", c.userID, "error", err)
			}
			break
		}

		if !c.limiter.Allow() {
			slog.Warn("rate limit exceeded", "user", c.userID)
			continue
		}

		// One bad frame should not disconnect a whole room's worth of
		// work; drop it and keep the connection alive.
		frame, err := protocol.ParseFrame(data)
		if err != nil {
			c.hub.metrics.MalformedTotal.Inc()
			slog.Debug("dropping malformed frame", "user", c.userID, "error", err)
			continue
		}

		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(frame *protocol.Frame) {
	c.hub.metrics.FramesTotal.WithLabelValues(frame.Type).Inc()

	switch frame.Type {
	case protocol.FrameJoinRoom:
		c.hub.join <- subscription{client: c, roomID: frame.RoomID}

	case protocol.FrameLeaveRoom:
		c.hub.leave <- subscription{client: c, roomID: frame.RoomID}

	case protocol.FrameChat:
		// Persist before fan-out so what peers see is bounded by what
		// will survive a reload. A write failure is logged but the live
		// broadcast still goes out.
		if _, err := c.hub.sink.AppendEvent(frame.RoomID, c.userID, frame.Message); err != nil {
			c.hub.metrics.PersistenceFailures.Inc()
			slog.Error("failed to persist shape event", "room", frame.RoomID, "error", err)
		}

		out, err := (&protocol.Frame{
			Type:     protocol.FrameChat,
			RoomID:   frame.RoomID,
			ClientID: frame.ClientID,
			Message:  frame.Message,
		}).Encode()
		if err != nil {
			return
		}
		c.hub.broadcast <- &Message{RoomID: frame.RoomID, Data: out}

	case protocol.FrameDeleteShape:
		out, err := (&protocol.Frame{
			Type:   protocol.FrameDeleteShape,
			RoomID: frame.RoomID,
			ID:     frame.ID,
		}).Encode()
		if err != nil {
			return
		}
		c.hub.broadcast <- &Message{RoomID: frame.RoomID, Data: out}

		// Best-effort tombstone: the durable record goes away so a
		// reload matches live state.
		if err := c.hub.sink.DeleteEventByShapeID(frame.RoomID, frame.ID); err != nil {
			c.hub.metrics.PersistenceFailures.Inc()
			slog.Error("failed to delete shape event", "room", frame.RoomID, "shape", frame.ID, "error", err)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
