package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sketchdeck/sketchdeck/internal/auth"
	"github.com/sketchdeck/sketchdeck/internal/db"
	"github.com/sketchdeck/sketchdeck/internal/ws"
)

type API struct {
	hub          *ws.Hub
	database     *db.Database
	auth         *auth.Service
	historyLimit int
}

func New(hub *ws.Hub, database *db.Database, authSvc *auth.Service, historyLimit int) *API {
	return &API{
		hub:          hub,
		database:     database,
		auth:         authSvc,
		historyLimit: historyLimit,
	}
}

// Router mounts all HTTP endpoints.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", a.HealthHandler)
	r.Get("/api/stats", a.StatsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/signup", a.SignupHandler)
		r.Post("/signin", a.SigninHandler)
		r.Get("/room/{slug}", a.GetRoomHandler)
		r.Get("/chats/{roomID}", a.ChatsHandler)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Post("/room", a.CreateRoomHandler)
		})
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type contextKey string

const userIDKey contextKey = "userID"

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		userID, err := a.auth.Verify(token)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, "Not authorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error encoding JSON response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if dbStats, err := a.database.GetStats(); err == nil {
		stats["total_rooms"] = dbStats["room_count"]
		stats["total_users"] = dbStats["user_count"]
		stats["total_events"] = dbStats["event_count"]
	}

	jsonResponse(w, http.StatusOK, stats)
}

// User handlers

type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SigninRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Incorrect inputs")
		return
	}
	if req.Username == "" || req.Password == "" {
		errorResponse(w, http.StatusBadRequest, "Incorrect inputs")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	userID := uuid.NewString()
	if err := a.database.CreateUser(userID, req.Username, string(hashed), req.Name); err != nil {
		errorResponse(w, http.StatusConflict, "User already exists with this username")
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]string{"userId": userID})
}

func (a *API) SigninHandler(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Incorrect inputs")
		return
	}

	user, err := a.database.GetUserByEmail(req.Username)
	if err != nil || user == nil {
		errorResponse(w, http.StatusForbidden, "Not authorized")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		errorResponse(w, http.StatusForbidden, "Not authorized")
		return
	}

	token, err := a.auth.Sign(user.ID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to sign token")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"token": token})
}

// Room handlers

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type RoomResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	AdminID     string    `json:"adminId"`
	CreatedAt   time.Time `json:"createdAt"`
	ActiveUsers int       `json:"activeUsers"`
}

func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Incorrect inputs")
		return
	}
	if req.Name == "" {
		errorResponse(w, http.StatusBadRequest, "Room name is required")
		return
	}

	roomID := uuid.NewString()
	if err := a.database.CreateRoom(roomID, req.Name, userIDFrom(r.Context())); err != nil {
		errorResponse(w, http.StatusConflict, "Room already exists with this name")
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]string{"roomId": roomID})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	room, err := a.database.GetRoomBySlug(slug)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if room == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	activeRooms := a.hub.GetActiveRooms()

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"room": RoomResponse{
			ID:          room.ID,
			Slug:        room.Slug,
			AdminID:     room.AdminID,
			CreatedAt:   room.CreatedAt,
			ActiveUsers: activeRooms[room.ID],
		},
	})
}

// ChatsHandler returns the room's shape events, newest first, bounded by
// the history limit. On a read failure the client starts from an empty
// store rather than failing the session, so this never errors out.
func (a *API) ChatsHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	events, err := a.database.ListEvents(roomID, a.historyLimit)
	if err != nil {
		slog.Error("failed to list events", "room", roomID, "error", err)
		events = nil
	}
	if events == nil {
		events = []db.ShapeEvent{}
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{"messages": events})
}
