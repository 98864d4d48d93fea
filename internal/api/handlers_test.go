package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sketchdeck/sketchdeck/internal/auth"
	"github.com/sketchdeck/sketchdeck/internal/db"
	"github.com/sketchdeck/sketchdeck/internal/metrics"
	"github.com/sketchdeck/sketchdeck/internal/ws"
)

func setupTestAPI(t *testing.T) (*API, *db.Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sketchdeck-api-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	hub := ws.NewHub(database, metrics.New(prometheus.NewRegistry()))
	go hub.Run()

	authSvc := auth.New("test-secret", time.Hour)
	api := New(hub, database, authSvc, 100)

	cleanup := func() {
		database.Close()
		os.RemoveAll(tmpDir)
	}

	return api, database, cleanup
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal body: %v", err)
	}

	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	api, _, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	api.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	api, database, cleanup := setupTestAPI(t)
	defer cleanup()

	database.AppendEvent("42", "user-1", `{"shape":{"type":"rect","id":"s-1"}}`)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()

	api.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["active_rooms"] != float64(0) {
		t.Errorf("Expected 0 active rooms, got %v", response["active_rooms"])
	}
	if response["total_events"] != float64(1) {
		t.Errorf("Expected 1 total event, got %v", response["total_events"])
	}
}

func TestSignupAndSignin(t *testing.T) {
	api, _, cleanup := setupTestAPI(t)
	defer cleanup()
	router := api.Router()

	w := postJSON(t, router, "/api/v1/signup", SignupRequest{
		Username: "ada@example.com",
		Password: "hunter22",
		Name:     "Ada",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created map[string]string
	json.NewDecoder(w.Body).Decode(&created)
	if created["userId"] == "" {
		t.Fatal("Signup should return a user id")
	}

	// Duplicate username conflicts
	w = postJSON(t, router, "/api/v1/signup", SignupRequest{
		Username: "ada@example.com",
		Password: "other",
	}, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}

	// Signin with correct password
	w = postJSON(t, router, "/api/v1/signin", SigninRequest{
		Username: "ada@example.com",
		Password: "hunter22",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var signin map[string]string
	json.NewDecoder(w.Body).Decode(&signin)
	if signin["token"] == "" {
		t.Fatal("Signin should return a token")
	}

	userID, err := auth.New("test-secret", time.Hour).Verify(signin["token"])
	if err != nil {
		t.Fatalf("Returned token should verify: %v", err)
	}
	if userID != created["userId"] {
		t.Errorf("Token carries wrong user: %s != %s", userID, created["userId"])
	}

	// Wrong password rejected
	w = postJSON(t, router, "/api/v1/signin", SigninRequest{
		Username: "ada@example.com",
		Password: "wrong",
	}, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}

	// Unknown user rejected with the same status
	w = postJSON(t, router, "/api/v1/signin", SigninRequest{
		Username: "nobody@example.com",
		Password: "hunter22",
	}, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}

func TestSignupValidation(t *testing.T) {
	api, _, cleanup := setupTestAPI(t)
	defer cleanup()
	router := api.Router()

	w := postJSON(t, router, "/api/v1/signup", SignupRequest{Username: "", Password: ""}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/v1/signup", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad JSON, got %d", rec.Code)
	}
}

func TestCreateRoomRequiresAuth(t *testing.T) {
	api, _, cleanup := setupTestAPI(t)
	defer cleanup()
	router := api.Router()

	w := postJSON(t, router, "/api/v1/room", CreateRoomRequest{Name: "design-review"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, got %d", w.Code)
	}

	w = postJSON(t, router, "/api/v1/room", CreateRoomRequest{Name: "design-review"}, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with bad token, got %d", w.Code)
	}
}

func TestCreateAndGetRoom(t *testing.T) {
	api, database, cleanup := setupTestAPI(t)
	defer cleanup()
	router := api.Router()

	database.CreateUser("user-1", "ada@example.com", "hashed", "Ada")
	token, err := auth.New("test-secret", time.Hour).Sign("user-1")
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	w := postJSON(t, router, "/api/v1/room", CreateRoomRequest{Name: "design-review"}, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created map[string]string
	json.NewDecoder(w.Body).Decode(&created)
	if created["roomId"] == "" {
		t.Fatal("Room creation should return an id")
	}

	// Duplicate name conflicts
	w = postJSON(t, router, "/api/v1/room", CreateRoomRequest{Name: "design-review"}, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/room/design-review", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var lookup struct {
		Room RoomResponse `json:"room"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&lookup); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if lookup.Room.ID != created["roomId"] || lookup.Room.AdminID != "user-1" {
		t.Errorf("Unexpected room: %+v", lookup.Room)
	}

	req = httptest.NewRequest("GET", "/api/v1/room/no-such-room", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestChatsHandler(t *testing.T) {
	api, database, cleanup := setupTestAPI(t)
	defer cleanup()
	router := api.Router()

	database.AppendEvent("42", "user-1", `{"shape":{"type":"rect","id":"first"}}`)
	database.AppendEvent("42", "user-1", `{"shape":{"type":"rect","id":"second"}}`)

	req := httptest.NewRequest("GET", "/api/v1/chats/42", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response struct {
		Messages []db.ShapeEvent `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(response.Messages))
	}
	// Newest first
	if response.Messages[0].Message != `{"shape":{"type":"rect","id":"second"}}` {
		t.Errorf("Expected newest message first, got %s", response.Messages[0].Message)
	}
}

func TestChatsHandlerEmptyRoom(t *testing.T) {
	api, _, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/api/v1/chats/empty-room", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response struct {
		Messages []db.ShapeEvent `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Messages) != 0 {
		t.Errorf("Expected empty message list, got %d", len(response.Messages))
	}
}

func TestCORSPreflight(t *testing.T) {
	api, _, cleanup := setupTestAPI(t)
	defer cleanup()

	req := httptest.NewRequest("OPTIONS", "/api/v1/signup", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS origin header")
	}
}
