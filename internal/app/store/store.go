/*
Package store provides the sqlite-backed persistence layer for users, rooms,
messages, and the blacklist relation.

Schema and migrations are embedded and applied via goose on open, targeting
modernc.org/sqlite's pure-Go driver and the "sqlite3" goose dialect.
*/
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"conchat/internal/pkg/randx"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	// SentinelID is the placeholder id used by the sentinel user/room rows
	// that satisfy NOT NULL foreign keys on messages lacking a real target.
	SentinelID = "NONE"

	// LobbyName is the name of the pinned default room.
	LobbyName = "Lobby"

	// DefaultHistoryLimit is the default N for get_room_messages.
	DefaultHistoryLimit = 30

	createdAtLayout = "2006-01-02 15:04:05.000-07:00"
)

// Store wraps a sqlite database handle and exposes the operations named in
// the data model: insert_user, insert_room, insert_message, insert_blacklist,
// delete_blacklist, get_user_by_username, get_room_by_name, get_room_list,
// get_room_messages.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path, applies pending
// migrations, and ensures the sentinel rows and Lobby room exist. Pass
// ":memory:" for ephemeral in-process storage (tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSeed(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed sentinel rows: %w", err)
	}

	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations applies all pending migrations from the embedded file system.
func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// ensureSeed idempotently inserts the NONE sentinel user, NONE sentinel
// room, and the pinned Lobby room on first initialization.
func (s *Store) ensureSeed() error {
	now := nowStamp()

	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO users(id, username, password, created_at) VALUES (?, ?, ?, ?)`,
		SentinelID, SentinelID, SentinelID, now,
	); err != nil {
		return fmt.Errorf("seed sentinel user: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO rooms(id, name, created_at) VALUES (?, ?, ?)`,
		SentinelID, SentinelID, now,
	); err != nil {
		return fmt.Errorf("seed sentinel room: %w", err)
	}

	var lobbyExists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM rooms WHERE name = ?`, LobbyName).Scan(&lobbyExists); err != nil {
		return fmt.Errorf("check lobby: %w", err)
	}
	if lobbyExists == 0 {
		if _, err := s.db.Exec(
			`INSERT INTO rooms(id, name, created_at) VALUES (?, ?, ?)`,
			randx.NewID(), LobbyName, now,
		); err != nil {
			return fmt.Errorf("seed lobby: %w", err)
		}
	}

	return nil
}

// nowStamp formats the current time as "YYYY-MM-DD HH:MM:SS.fff+00:00".
func nowStamp() string {
	return time.Now().UTC().Format(createdAtLayout)
}
