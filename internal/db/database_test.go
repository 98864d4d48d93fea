package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sketchdeck-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func shapeMessage(shapeID string) string {
	return fmt.Sprintf(`{"shape":{"type":"rect","id":"%s","x":0,"y":0,"width":10,"height":10}}`, shapeID)
}

func TestDatabaseCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
}

func TestUserOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := db.CreateUser("user-1", "ada@example.com", "hashed", "Ada")
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	user, err := db.GetUserByEmail("ada@example.com")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if user == nil {
		t.Fatal("User should exist")
	}
	if user.ID != "user-1" || user.Name != "Ada" {
		t.Errorf("Unexpected user: %+v", user)
	}

	// Duplicate email rejected
	if err := db.CreateUser("user-2", "ada@example.com", "other", "Other"); err == nil {
		t.Error("Duplicate email should fail")
	}

	missing, err := db.GetUserByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("Lookup of missing user should not error: %v", err)
	}
	if missing != nil {
		t.Error("Missing user should be nil")
	}
}

func TestRoomOperations(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.CreateUser("admin-1", "admin@example.com", "hashed", ""); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	err := db.CreateRoom("room-1", "design-review", "admin-1")
	if err != nil {
		t.Fatalf("Failed to create room: %v", err)
	}

	room, err := db.GetRoom("room-1")
	if err != nil {
		t.Fatalf("Failed to get room: %v", err)
	}
	if room == nil {
		t.Fatal("Room should exist")
	}
	if room.Slug != "design-review" || room.AdminID != "admin-1" {
		t.Errorf("Unexpected room: %+v", room)
	}

	bySlug, err := db.GetRoomBySlug("design-review")
	if err != nil {
		t.Fatalf("Failed to get room by slug: %v", err)
	}
	if bySlug == nil || bySlug.ID != "room-1" {
		t.Errorf("Slug lookup mismatch: %+v", bySlug)
	}

	// Duplicate slug rejected
	if err := db.CreateRoom("room-2", "design-review", "admin-1"); err == nil {
		t.Error("Duplicate slug should fail")
	}

	missing, err := db.GetRoom("nope")
	if err != nil {
		t.Fatalf("Lookup of missing room should not error: %v", err)
	}
	if missing != nil {
		t.Error("Missing room should be nil")
	}

	rooms, err := db.ListRooms(10, 0)
	if err != nil {
		t.Fatalf("Failed to list rooms: %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("Expected 1 room, got %d", len(rooms))
	}
}

func TestEventsNewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if _, err := db.AppendEvent("42", "user-1", shapeMessage(fmt.Sprintf("s-%d", i))); err != nil {
			t.Fatalf("Failed to append event: %v", err)
		}
	}

	events, err := db.ListEvents("42", 50)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].Message != shapeMessage("s-2") || events[2].Message != shapeMessage("s-0") {
		t.Error("Events should be ordered newest first")
	}
}

func TestListEventsHonorsLimit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 10; i++ {
		if _, err := db.AppendEvent("42", "user-1", shapeMessage(fmt.Sprintf("s-%d", i))); err != nil {
			t.Fatalf("Failed to append event: %v", err)
		}
	}

	events, err := db.ListEvents("42", 4)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}
	// Newest survive the cut
	if events[0].Message != shapeMessage("s-9") {
		t.Errorf("Expected newest event first, got %s", events[0].Message)
	}
}

func TestEventsScopedToRoom(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.AppendEvent("42", "user-1", shapeMessage("a"))
	db.AppendEvent("other", "user-1", shapeMessage("b"))

	events, err := db.ListEvents("42", 50)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event for room 42, got %d", len(events))
	}
}

func TestDeleteEventByShapeID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.AppendEvent("42", "user-1", shapeMessage("keep"))
	db.AppendEvent("42", "user-1", shapeMessage("gone"))

	if err := db.DeleteEventByShapeID("42", "gone"); err != nil {
		t.Fatalf("Failed to delete event: %v", err)
	}

	events, err := db.ListEvents("42", 50)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 surviving event, got %d", len(events))
	}
	if events[0].Message != shapeMessage("keep") {
		t.Errorf("Wrong event survived: %s", events[0].Message)
	}

	// Deleting a shape with no record is not an error
	if err := db.DeleteEventByShapeID("42", "never-existed"); err != nil {
		t.Errorf("Deleting a missing shape should not error: %v", err)
	}
}

func TestPruneEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	for i := 0; i < 10; i++ {
		db.AppendEvent("42", "user-1", shapeMessage(fmt.Sprintf("s-%d", i)))
	}
	db.AppendEvent("other", "user-1", shapeMessage("untouched"))

	if err := db.PruneEvents("42", 3); err != nil {
		t.Fatalf("Failed to prune: %v", err)
	}

	count, err := db.EventCount("42")
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 events after pruning, got %d", count)
	}

	events, _ := db.ListEvents("42", 50)
	if events[0].Message != shapeMessage("s-9") || events[2].Message != shapeMessage("s-7") {
		t.Error("Pruning should keep the most recent events")
	}

	otherCount, _ := db.EventCount("other")
	if otherCount != 1 {
		t.Errorf("Other room should be untouched, got %d events", otherCount)
	}
}

func TestRoomIDsWithEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.AppendEvent("42", "user-1", shapeMessage("a"))
	db.AppendEvent("42", "user-1", shapeMessage("b"))
	db.AppendEvent("other", "user-1", shapeMessage("c"))

	ids, err := db.RoomIDsWithEvents()
	if err != nil {
		t.Fatalf("Failed to list room ids: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 rooms with events, got %d", len(ids))
	}
}

func TestGetStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	db.CreateUser("user-1", "ada@example.com", "hashed", "Ada")
	db.CreateRoom("room-1", "design-review", "user-1")
	db.AppendEvent("room-1", "user-1", shapeMessage("s-1"))

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats["user_count"] != 1 || stats["room_count"] != 1 || stats["event_count"] != 1 {
		t.Errorf("Unexpected stats: %v", stats)
	}
}
