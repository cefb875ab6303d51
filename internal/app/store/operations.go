package store

import (
	"database/sql"
	"errors"

	"conchat/internal/pkg/randx"
)

// InsertUser persists a new user row. Returns *ConstraintError if username
// already exists.
func (s *Store) InsertUser(username, passwordHash string) (User, error) {
	u := User{
		ID:           randx.NewID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    nowStamp(),
	}

	_, err := s.db.Exec(
		`INSERT INTO users(id, username, password, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return User{}, classify(err)
	}

	return u, nil
}

// GetUserByUsername looks up a user by username. Returns ErrNotFound if no such row exists.
func (s *Store) GetUserByUsername(username string) (User, error) {
	var u User
	err := s.db.QueryRow(
		`SELECT id, username, password, created_at, last_login_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt)

	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, &DBConnectionError{cause: err}
	}

	return u, nil
}

// UpdateLastLogin stamps users.last_login_at with the current time. Never
// surfaced on the wire; the ops surface reads it back via ActiveUserCount.
func (s *Store) UpdateLastLogin(userID string) error {
	_, err := s.db.Exec(
		`UPDATE users SET last_login_at = ? WHERE id = ?`,
		nowStamp(), userID,
	)
	if err != nil {
		return &DBConnectionError{cause: err}
	}
	return nil
}

// ActiveUserCount returns the number of users whose last_login_at falls
// within the given window of now, for the ops surface's /stats endpoint.
// last_login_at is stored with fractional seconds and a numeric UTC
// offset (createdAtLayout), so it's compared against strftime's equivalent
// formatting of datetime('now', ?) rather than datetime's own plain
// output, keeping the comparison exact instead of lexicographic-by-luck.
func (s *Store) ActiveUserCount(window string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM users WHERE id != ? AND last_login_at IS NOT NULL AND last_login_at >= strftime('%Y-%m-%d %H:%M:%f+00:00', 'now', ?)`,
		SentinelID, window,
	).Scan(&count)
	if err != nil {
		return 0, &DBConnectionError{cause: err}
	}
	return count, nil
}

// InsertRoom persists a new room row, recording createdBy as its creator;
// an empty createdBy defaults to the sentinel user, matching the preseeded
// Lobby. Returns *ConstraintError if the name already exists.
func (s *Store) InsertRoom(name, createdBy string) (Room, error) {
	if createdBy == "" {
		createdBy = SentinelID
	}

	r := Room{
		ID:        randx.NewID(),
		Name:      name,
		CreatedAt: nowStamp(),
		CreatedBy: createdBy,
	}

	_, err := s.db.Exec(
		`INSERT INTO rooms(id, name, created_at, created_by) VALUES (?, ?, ?, ?)`,
		r.ID, r.Name, r.CreatedAt, r.CreatedBy,
	)
	if err != nil {
		return Room{}, classify(err)
	}

	return r, nil
}

// GetRoomByName looks up a room by name. Returns ErrNotFound if no such row exists.
func (s *Store) GetRoomByName(name string) (Room, error) {
	var r Room
	err := s.db.QueryRow(
		`SELECT id, name, created_at, created_by FROM rooms WHERE name = ?`, name,
	).Scan(&r.ID, &r.Name, &r.CreatedAt, &r.CreatedBy)

	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, &DBConnectionError{cause: err}
	}

	return r, nil
}

// ListRoomsDetailed returns every non-sentinel room with its creator's
// username, sorted by name ascending. Exercised only by the ops surface's
// /rooms endpoint; the wire protocol's list_rooms keeps using
// GetRoomList's plain name slice.
func (s *Store) ListRoomsDetailed() ([]RoomDetail, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.name, r.created_at, r.created_by, c.username
		 FROM rooms r
		 JOIN users c ON c.id = r.created_by
		 WHERE r.id != ?
		 ORDER BY r.name ASC`,
		SentinelID,
	)
	if err != nil {
		return nil, &DBConnectionError{cause: err}
	}
	defer rows.Close()

	var details []RoomDetail
	for rows.Next() {
		var d RoomDetail
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.CreatedBy, &d.CreatedByUsername); err != nil {
			return nil, &DBConnectionError{cause: err}
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &DBConnectionError{cause: err}
	}

	return details, nil
}

// GetRoomList returns every non-sentinel room name, sorted ascending.
func (s *Store) GetRoomList() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT name FROM rooms WHERE id != ? ORDER BY name ASC`, SentinelID,
	)
	if err != nil {
		return nil, &DBConnectionError{cause: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &DBConnectionError{cause: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &DBConnectionError{cause: err}
	}

	return names, nil
}

// InsertMessage persists a message. The author must be a real user; at least
// one of roomID/targetUserID must be non-sentinel; if targetUserID has
// blocked authorID, the trigger aborts the insert and a *ConstraintError is
// returned.
func (s *Store) InsertMessage(authorID, roomID, targetUserID, body string) (Message, error) {
	if roomID == "" {
		roomID = SentinelID
	}
	if targetUserID == "" {
		targetUserID = SentinelID
	}

	m := Message{
		ID:           randx.NewID(),
		AuthorID:     authorID,
		RoomID:       roomID,
		TargetUserID: targetUserID,
		Body:         body,
		CreatedAt:    nowStamp(),
	}

	_, err := s.db.Exec(
		`INSERT INTO messages(id, author_id, room_id, target_user_id, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.AuthorID, m.RoomID, m.TargetUserID, m.Body, m.CreatedAt,
	)
	if err != nil {
		return Message{}, classify(err)
	}

	return m, nil
}

// GetRoomMessages returns up to limit most-recent messages for roomID, oldest-first.
func (s *Store) GetRoomMessages(roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.Query(
		`SELECT m.id, m.author_id, a.username, m.room_id, m.target_user_id, t.username, m.body, m.created_at
		 FROM (
		 	SELECT id, author_id, room_id, target_user_id, body, created_at
		 	FROM messages
		 	WHERE room_id = ?
		 	ORDER BY created_at DESC, id DESC
		 	LIMIT ?
		 ) m
		 JOIN users a ON a.id = m.author_id
		 JOIN users t ON t.id = m.target_user_id
		 ORDER BY m.created_at ASC, m.id ASC`,
		roomID, limit,
	)
	if err != nil {
		return nil, &DBConnectionError{cause: err}
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AuthorID, &m.AuthorUsername, &m.RoomID, &m.TargetUserID, &m.TargetUsername, &m.Body, &m.CreatedAt); err != nil {
			return nil, &DBConnectionError{cause: err}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &DBConnectionError{cause: err}
	}

	return messages, nil
}

// InsertBlacklist records that userID has blocked blockedUserID. Returns
// *ConstraintError if the pair already exists.
func (s *Store) InsertBlacklist(userID, blockedUserID string) error {
	_, err := s.db.Exec(
		`INSERT INTO blacklisted_users(user_id, blocked_user_id, created_at) VALUES (?, ?, ?)`,
		userID, blockedUserID, nowStamp(),
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

// DeleteBlacklist removes a block pair. Returns ErrNotFound if the pair didn't exist.
func (s *Store) DeleteBlacklist(userID, blockedUserID string) error {
	res, err := s.db.Exec(
		`DELETE FROM blacklisted_users WHERE user_id = ? AND blocked_user_id = ?`,
		userID, blockedUserID,
	)
	if err != nil {
		return &DBConnectionError{cause: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &DBConnectionError{cause: err}
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}
