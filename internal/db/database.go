package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/studyden/backend/internal/room"
)

type Database struct {
	db *sql.DB
}

// User is the identity record owned by the auth service. The core engine only
// ever sees the ID.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func New(dbPath string) (*Database, error) {
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

	log.Info().Str("path", dbPath).Msg("database initialized")
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		is_private INTEGER NOT NULL DEFAULT 0,
		last_active DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rooms_public_recent ON rooms(is_private, last_active DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// User operations

func (d *Database) CreateUser(ctx context.Context, u *User) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO users (id, username, email, password_hash) VALUES (?, ?, ?, ?)",
		u.ID, u.Username, u.Email, u.PasswordHash,
	)
	return err
}

func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return d.scanUser(d.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?",
		email,
	))
}

func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	return d.scanUser(d.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?",
		id,
	))
}

func (d *Database) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Room operations. The room document is stored whole as JSON; is_private and
// last_active are denormalized copies used only for the public listing.

func (d *Database) InsertRoom(ctx context.Context, r *room.Room) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		"INSERT INTO rooms (id, doc, is_private, last_active) VALUES (?, ?, ?, ?)",
		r.ID, string(doc), boolToInt(r.Private), r.LastActive,
	)
	return err
}

func (d *Database) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	var doc string
	err := d.db.QueryRowContext(ctx, "SELECT doc FROM rooms WHERE id = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRoom(doc)
}

func (d *Database) ReplaceRoom(ctx context.Context, r *room.Room) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx,
		"UPDATE rooms SET doc = ?, is_private = ?, last_active = ? WHERE id = ?",
		string(doc), boolToInt(r.Private), r.LastActive, r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("room %s does not exist", r.ID)
	}
	return nil
}

func (d *Database) ListPublicRooms(ctx context.Context, limit, offset int) ([]*room.Room, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT doc FROM rooms WHERE is_private = 0 ORDER BY last_active DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*room.Room
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		r, err := decodeRoom(doc)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// Stats

func (d *Database) GetStats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	var roomCount int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var userCount int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		return nil, err
	}
	stats["user_count"] = userCount

	return stats, nil
}

func decodeRoom(doc string) (*room.Room, error) {
	var r room.Room
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("corrupt room document: %w", err)
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
