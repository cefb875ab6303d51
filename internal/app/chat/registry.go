package chat

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"conchat/internal/app/store"
	"conchat/internal/pkg/errs"
	"conchat/internal/pkg/logx"
)

// Registry is the single source of truth for which Rooms exist in memory
// and who belongs to each.
type Registry struct {
	store  *store.Store
	logger zerolog.Logger

	mu     sync.RWMutex
	rooms  map[string]*Room // id -> Room
	byName map[string]string // name -> id

	lobby *Room

	userConns map[string]*Connection // user id -> Connection, populated on login

	cleanup chan string
	wg      sync.WaitGroup
}

// NewRegistry loads (or creates) the Lobby and starts the eviction loop.
func NewRegistry(st *store.Store) (*Registry, error) {
	lobbyRoom, err := st.GetRoomByName(store.LobbyName)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		store:     st,
		logger:    logx.Logger().With().Str("component", "Registry").Logger(),
		rooms:     make(map[string]*Room),
		byName:    make(map[string]string),
		userConns: make(map[string]*Connection),
		cleanup:   make(chan string, 16),
	}

	reg.lobby = NewRoom(lobbyRoom.ID, lobbyRoom.Name)
	reg.rooms[reg.lobby.id] = reg.lobby
	reg.byName[reg.lobby.name] = reg.lobby.id

	reg.wg.Add(1)
	go reg.runCleanupLoop()

	return reg, nil
}

// Lobby returns the pinned Lobby room, which is never evicted even when empty.
func (r *Registry) Lobby() *Room { return r.lobby }

// Get returns an in-memory Room by id.
func (r *Registry) Get(id string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// GetOrLoad resolves a room by name, materializing it from the Store into
// memory on first reference. Returns errs.ErrRoomNotFound if no such room
// is persisted.
func (r *Registry) GetOrLoad(name string) (*Room, error) {
	r.mu.RLock()
	if id, ok := r.byName[name]; ok {
		room := r.rooms[id]
		r.mu.RUnlock()
		return room, nil
	}
	r.mu.RUnlock()

	persisted, err := r.store.GetRoomByName(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrRoomNotFound)
		}
		return nil, errs.NewError(errs.ErrServerError)
	}

	return r.materialize(persisted), nil
}

// Create persists a new room and materializes it, rejecting a duplicate
// name with errs.ErrRoomExists. createdBy records the creator for the ops
// surface's room listing; it is never echoed on the wire.
func (r *Registry) Create(name, createdBy string) (*Room, error) {
	persisted, err := r.store.InsertRoom(name, createdBy)
	if err != nil {
		var ce *store.ConstraintError
		if errors.As(err, &ce) {
			return nil, errs.NewError(errs.ErrRoomExists)
		}
		return nil, errs.NewError(errs.ErrServerError)
	}

	return r.materialize(persisted), nil
}

// materialize installs a persisted room's in-memory Room if not already present.
func (r *Registry) materialize(persisted store.Room) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[persisted.Name]; ok {
		return r.rooms[id]
	}

	room := NewRoom(persisted.ID, persisted.Name)
	r.rooms[room.id] = room
	r.byName[room.name] = room.id
	return room
}

// Join moves conn into room, removing it from any prior room first and
// scheduling that prior room for eviction if it's now empty and not Lobby.
func (r *Registry) Join(room *Room, conn *Connection) {
	old := conn.setRoom(room)
	if old != nil && old != room {
		old.Remove(conn)
		r.maybeEvict(old)
	}
	room.Add(conn)
}

// Leave removes conn from its current room (if any), scheduling eviction.
func (r *Registry) Leave(conn *Connection) {
	old := conn.setRoom(nil)
	if old != nil {
		old.Remove(conn)
		r.maybeEvict(old)
	}
}

// maybeEvict schedules a non-Lobby, now-empty room for asynchronous
// removal from the registry. Lobby is pinned; every other empty room is
// dropped.
func (r *Registry) maybeEvict(room *Room) {
	if room == r.lobby {
		return
	}
	if !room.IsEmpty() {
		return
	}
	select {
	case r.cleanup <- room.id:
	default:
		r.logger.Warn().Str("room_id", room.id).Msg("cleanup queue full, dropping eviction signal")
	}
}

func (r *Registry) runCleanupLoop() {
	defer r.wg.Done()
	for id := range r.cleanup {
		r.mu.Lock()
		if room, ok := r.rooms[id]; ok && room.IsEmpty() && room != r.lobby {
			delete(r.rooms, id)
			delete(r.byName, room.name)
		}
		r.mu.Unlock()
	}
}

// Shutdown stops the eviction loop and waits for it to drain.
func (r *Registry) Shutdown() {
	close(r.cleanup)
	r.wg.Wait()
}

// BindUser records that userID is now reachable via conn, for
// forward_to_user DM routing. Populated on login.
func (r *Registry) BindUser(userID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userConns[userID] = conn
}

// UnbindUser removes userID's routing entry, idempotently. It only clears
// the entry if it still points at conn, so a stale disconnect can't
// clobber a newer login from the same user.
func (r *Registry) UnbindUser(userID string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userConns[userID] == conn {
		delete(r.userConns, userID)
	}
}

// GetConnectionForUser resolves a user id to its live Connection, if logged in.
func (r *Registry) GetConnectionForUser(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.userConns[userID]
	return conn, ok
}

// Stats is a snapshot of in-memory registry state, for the ops /stats endpoint.
type Stats struct {
	RoomCount        int `json:"room_count"`
	ConnectedUsers   int `json:"connected_users"`
	LobbyMemberCount int `json:"lobby_member_count"`
}

// Stats returns a point-in-time snapshot of room and connection counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		RoomCount:        len(r.rooms),
		ConnectedUsers:   len(r.userConns),
		LobbyMemberCount: len(r.lobby.Members()),
	}
}
