package store

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
)

// ErrNotFound indicates a lookup (get_user_by_username, get_room_by_name) found no row.
var ErrNotFound = errors.New("store: not found")

// SQLite extended result codes for constraint failures (see sqlite3.h); the
// primary SQLITE_CONSTRAINT code also covers a bare RAISE(ABORT,...) that
// the driver doesn't further classify.
const (
	sqliteConstraint           = 19
	sqliteConstraintUnique     = 2067
	sqliteConstraintTrigger    = 1811
	sqliteConstraintForeignKey = 787
)

// ConstraintError wraps a logical failure: a uniqueness violation or a
// trigger ABORT (trigger_block_none_message, trigger_block_message_insert).
type ConstraintError struct {
	cause error
}

func (e *ConstraintError) Error() string { return "store: constraint violation: " + e.cause.Error() }
func (e *ConstraintError) Unwrap() error { return e.cause }

// DBConnectionError wraps an operational failure unrelated to caller input.
type DBConnectionError struct {
	cause error
}

func (e *DBConnectionError) Error() string { return "store: connection error: " + e.cause.Error() }
func (e *DBConnectionError) Unwrap() error { return e.cause }

// classify maps a raw database/sql error into ConstraintError (logical,
// caller-correctable) or DBConnectionError (operational). Both uniqueness
// violations and trigger RAISE(ABORT,...) surface from modernc.org/sqlite
// as *sqlite.Error with a SQLITE_CONSTRAINT* extended code; fall back to
// substring matching on the message for resilience against driver
// error-wrapping differences.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqliteConstraint, sqliteConstraintUnique, sqliteConstraintTrigger, sqliteConstraintForeignKey:
			return &ConstraintError{cause: err}
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "ABORT") {
		return &ConstraintError{cause: err}
	}

	return &DBConnectionError{cause: err}
}

// IsBlacklistBlock reports whether err is the ConstraintError raised by
// trigger_block_message_insert specifically (the target has blocked the
// author), as opposed to the none-message trigger or a uniqueness
// violation. Dispatcher uses this to silently drop a blocked DM: no error
// frame at all, not even to the sender.
func IsBlacklistBlock(err error) bool {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return strings.Contains(ce.cause.Error(), "blocked author")
	}
	return false
}
