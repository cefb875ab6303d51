/*
Package randx provides identifier generation helpers.

It wraps UUIDv4 generation for the ids assigned to users, rooms, and messages.
*/
package randx

import (
	"github.com/google/uuid"
)

// NewID generates a standard UUID v4 string, used as the unique identifier for
// users, rooms, and messages alike (spec data model §4.5).
func NewID() string {
	return uuid.New().String()
}
