package chat

import "sync"

// Room is an in-memory fan-out group: the set of Connections currently
// IN_ROOM for one persisted room id. Membership is guarded by a
// sync.RWMutex.
type Room struct {
	id   string
	name string

	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRoom constructs an empty Room.
func NewRoom(id, name string) *Room {
	return &Room{
		id:    id,
		name:  name,
		conns: make(map[string]*Connection),
	}
}

// ID returns the room's persisted id.
func (r *Room) ID() string { return r.id }

// Name returns the room's persisted name.
func (r *Room) Name() string { return r.name }

// Add inserts conn into the membership set.
func (r *Room) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.id] = conn
}

// Remove deletes conn from the membership set, if present.
func (r *Room) Remove(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn.id)
}

// Members returns a snapshot slice of the current membership.
func (r *Room) Members() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		members = append(members, c)
	}
	return members
}

// Usernames returns the usernames of every authenticated member, for
// list_users responses.
func (r *Room) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.conns))
	for _, c := range r.conns {
		if u := c.User(); u != nil {
			names = append(names, u.Username)
		}
	}
	return names
}

// IsEmpty reports whether the room currently has no members.
func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns) == 0
}

// Broadcast fans payload out to every member. Each Connection.Send is
// itself non-blocking, so one slow or closed peer never stalls delivery to
// the rest of the room.
func (r *Room) Broadcast(payload any) {
	for _, c := range r.Members() {
		c.Send(payload)
	}
}
