package db

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

type User struct {
	ID        string
	Email     string
	Password  string
	Name      string
	CreatedAt time.Time
}

type Room struct {
	ID        string
	Slug      string
	AdminID   string
	CreatedAt time.Time
}

// One durable drawing event. Message is the client's opaque JSON string
// encoding {"shape": ...}.
type ShapeEvent struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	slog.Info("database initialized", "path", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		admin_id TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (admin_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS shape_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_shape_events_room_id ON shape_events(room_id, id DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// User operations

func (d *Database) CreateUser(id, email, password, name string) error {
	_, err := d.db.Exec(
		"INSERT INTO users (id, email, password, name) VALUES (?, ?, ?, ?)",
		id, email, password, name,
	)
	return err
}

func (d *Database) GetUserByEmail(email string) (*User, error) {
	row := d.db.QueryRow(
		"SELECT id, email, password, name, created_at FROM users WHERE email = ?",
		email,
	)

	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Room operations

func (d *Database) CreateRoom(id, slug, adminID string) error {
	_, err := d.db.Exec(
		"INSERT INTO rooms (id, slug, admin_id) VALUES (?, ?, ?)",
		id, slug, adminID,
	)
	return err
}

func (d *Database) GetRoom(id string) (*Room, error) {
	return scanRoom(d.db.QueryRow(
		"SELECT id, slug, admin_id, created_at FROM rooms WHERE id = ?", id,
	))
}

func (d *Database) GetRoomBySlug(slug string) (*Room, error) {
	return scanRoom(d.db.QueryRow(
		"SELECT id, slug, admin_id, created_at FROM rooms WHERE slug = ?", slug,
	))
}

func scanRoom(row *sql.Row) (*Room, error) {
	var r Room
	err := row.Scan(&r.ID, &r.Slug, &r.AdminID, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *Database) ListRooms(limit, offset int) ([]Room, error) {
	rows, err := d.db.Query(
		"SELECT id, slug, admin_id, created_at FROM rooms ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Slug, &r.AdminID, &r.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// Shape event operations (append-only log consulted on room load)

func (d *Database) AppendEvent(roomID, userID, message string) (int64, error) {
	result, err := d.db.Exec(
		"INSERT INTO shape_events (room_id, user_id, message) VALUES (?, ?, ?)",
		roomID, userID, message,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Returns the most recent events for a room, newest first. Callers replay
// them reversed so z-order matches original draw order.
func (d *Database) ListEvents(roomID string, limit int) ([]ShapeEvent, error) {
	rows, err := d.db.Query(
		"SELECT id, room_id, user_id, message, created_at FROM shape_events WHERE room_id = ? ORDER BY id DESC LIMIT ?",
		roomID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ShapeEvent
	for rows.Next() {
		var e ShapeEvent
		if err := rows.Scan(&e.ID, &e.RoomID, &e.UserID, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Best-effort removal of the durable record for a deleted shape, so a
// room reload matches live state. The shape id lives inside the message
// JSON, so match on the id field the client serialized.
func (d *Database) DeleteEventByShapeID(roomID, shapeID string) error {
	_, err := d.db.Exec(
		"DELETE FROM shape_events WHERE room_id = ? AND message LIKE '%' || ? || '%'",
		roomID, `"id":"`+shapeID+`"`,
	)
	return err
}

func (d *Database) EventCount(roomID string) (int, error) {
	var count int
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM shape_events WHERE room_id = ?",
		roomID,
	).Scan(&count)
	return count, err
}

func (d *Database) RoomIDsWithEvents() ([]string, error) {
	rows, err := d.db.Query("SELECT DISTINCT room_id FROM shape_events")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Deletes all but the most recent keepCount events for a room
func (d *Database) PruneEvents(roomID string, keepCount int) error {
	_, err := d.db.Exec(`
		DELETE FROM shape_events
		WHERE room_id = ? AND id NOT IN (
			SELECT id FROM shape_events
			WHERE room_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, roomID, roomID, keepCount)
	return err
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var userCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return nil, err
	}
	stats["user_count"] = userCount

	var eventCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM shape_events").Scan(&eventCount); err != nil {
		return nil, err
	}
	stats["event_count"] = eventCount

	return stats, nil
}
