package store

// User is a persisted identity row. LastLoginAt is never surfaced on the
// wire, only through the ops surface.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    string
	LastLoginAt  *string
}

// Room is a persisted named conversation space. CreatedBy is the user who
// ran create_room, defaulted to the sentinel user for the preseeded Lobby.
// Not part of the wire protocol; exercised only by ListRoomsDetailed for
// the ops surface.
type Room struct {
	ID        string
	Name      string
	CreatedAt string
	CreatedBy string
}

// RoomDetail augments Room with its creator's username, for the ops
// surface's /rooms endpoint.
type RoomDetail struct {
	Room
	CreatedByUsername string
}

// Message is a persisted utterance, either to a room or a direct target.
// AuthorUsername/TargetUsername are resolved via join by GetRoomMessages
// (history replay), which needs the wire-visible username rather than id;
// InsertMessage leaves them empty.
type Message struct {
	ID             string
	AuthorID       string
	AuthorUsername string
	RoomID         string
	TargetUserID   string
	TargetUsername string
	Body           string
	CreatedAt      string
}
