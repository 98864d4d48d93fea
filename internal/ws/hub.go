package ws

import (
	"log/slog"
	"sync"

	"github.com/sketchdeck/sketchdeck/internal/metrics"
)

// Sink is the persistence collaborator for accepted drawing events.
type Sink interface {
	AppendEvent(roomID, userID, message string) (int64, error)
	DeleteEventByShapeID(roomID, shapeID string) error
}

// The directory of registered connections and their room subscriptions.
// Rooms exist only as the set of clients subscribed to them; an empty
// room is not an error, it just has nobody to deliver to.
type Hub struct {
	// Subscribers by room
	rooms map[string]map[*Client]bool

	// All registered connections
	clients map[*Client]bool

	// Frames to fan out to a room's subscribers
	broadcast chan *Message

	// Register requests from accepted connections
	register chan *Client

	// Unregister requests on disconnect
	unregister chan *Client

	// Room membership changes
	join  chan subscription
	leave chan subscription

	sink    Sink
	metrics *metrics.Metrics

	mu sync.RWMutex
}

type Message struct {
	RoomID string
	Data   []byte
}

type subscription struct {
	client *Client
	roomID string
}

func NewHub(sink Sink, m *metrics.Metrics) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan subscription),
		leave:      make(chan subscription),
		sink:       sink,
		metrics:    m,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			h.metrics.ConnectionsTotal.Inc()
			h.metrics.ActiveConnections.Set(float64(total))
			slog.Info("client connected", "user", client.userID, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for roomID := range client.rooms {
					h.dropFromRoom(client, roomID)
				}
				close(client.send)
			}
			total := len(h.clients)
			roomCount := len(h.rooms)
			h.mu.Unlock()

			h.metrics.ActiveConnections.Set(float64(total))
			h.metrics.ActiveRooms.Set(float64(roomCount))
			slog.Info("client disconnected", "user", client.userID, "total", total)

		case sub := <-h.join:
			h.mu.Lock()
			if _, ok := h.clients[sub.client]; ok {
				if _, ok := h.rooms[sub.roomID]; !ok {
					h.rooms[sub.roomID] = make(map[*Client]bool)
				}
				h.rooms[sub.roomID][sub.client] = true
				sub.client.rooms[sub.roomID] = true
			}
			members := len(h.rooms[sub.roomID])
			roomCount := len(h.rooms)
			h.mu.Unlock()

			h.metrics.ActiveRooms.Set(float64(roomCount))
			slog.Info("client joined room", "user", sub.client.userID, "room", sub.roomID, "members", members)

		case sub := <-h.leave:
			h.mu.Lock()
			delete(sub.client.rooms, sub.roomID)
			h.dropFromRoom(sub.client, sub.roomID)
			roomCount := len(h.rooms)
			h.mu.Unlock()

			h.metrics.ActiveRooms.Set(float64(roomCount))

		case message := <-h.broadcast:
			h.dispatch(message)
		}
	}
}

// Caller holds h.mu.
func (h *Hub) dropFromRoom(client *Client, roomID string) {
	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.rooms, roomID)
		slog.Debug("room closed", "room", roomID)
	}
}

// Delivers the frame to every subscriber of the room, the sender
// included: the echo back to the originator is what lets it reconcile
// its optimistic insert. Sends are fire-and-forget; a subscriber whose
// send buffer is full is treated as dead and scheduled for removal
// rather than blocking the fan-out.
func (h *Hub) dispatch(message *Message) {
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.rooms[message.RoomID]))
	for client := range h.rooms[message.RoomID] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	var dead []*Client
	for _, client := range subscribers {
		select {
		case client.send <- message.Data:
			h.metrics.BroadcastsTotal.Inc()
		default:
			dead = append(dead, client)
		}
	}

	for _, client := range dead {
		slog.Warn("evicting unresponsive client", "user", client.userID)
		go func(c *Client) { h.unregister <- c }(client)
	}
}

// Stats accessors for the HTTP API

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Returns subscriber counts for every room with at least one member
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	active := make(map[string]int, len(h.rooms))
	for roomID, clients := range h.rooms {
		active[roomID] = len(clients)
	}
	return active
}
