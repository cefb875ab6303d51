package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"conchat/internal/app/auth"
	"conchat/internal/app/store"
	"conchat/internal/app/wire"
	"conchat/internal/pkg/errs"
	"conchat/internal/pkg/logx"
	"conchat/internal/pkg/randx"
)

// authTimeout bounds how long a single Hash/Verify call may occupy the
// dispatcher before giving up (the bcrypt worker pool itself is otherwise
// unbounded in wait time).
const authTimeout = 5 * time.Second

// Dispatcher routes decoded frames to their per-verb handler and
// orchestrates the handlers that span the Store, Registry, and Auth pool.
type Dispatcher struct {
	store        *store.Store
	registry     *Registry
	authPool     *auth.Pool
	historyLimit int
	logger       zerolog.Logger
}

// NewDispatcher wires together the pieces a Connection needs serviced.
func NewDispatcher(st *store.Store, registry *Registry, authPool *auth.Pool, historyLimit int) *Dispatcher {
	return &Dispatcher{
		store:        st,
		registry:     registry,
		authPool:     authPool,
		historyLimit: historyLimit,
		logger:       logx.Logger().With().Str("component", "Dispatcher").Logger(),
	}
}

// Serve drives one accepted connection end to end: it launches the write
// and process loops, runs the read loop on the calling goroutine (so Serve
// returns only once the peer has disconnected), then cleans up room/user
// bindings.
func (d *Dispatcher) Serve(netConn net.Conn) {
	conn := NewConnection(randx.NewID(), netConn)

	go conn.WriteLoop()
	go conn.ProcessLoop(d.handle)

	conn.ReadLoop()

	d.handleDisconnect(conn)
	conn.Close()
}

// handle dispatches one decoded envelope to its verb-specific handler. It
// runs on the Connection's ProcessLoop goroutine, so handlers never need
// their own locking against other frames from the same connection, only
// against concurrent frames from other connections touching shared state
// (Registry, Store).
func (d *Dispatcher) handle(conn *Connection, env wire.Envelope) {
	switch env.Type {
	case wire.TypeRegister:
		d.handleRegister(conn, env)
	case wire.TypeLogin:
		d.handleLogin(conn, env)
	case wire.TypeLogout:
		d.handleLogout(conn, env)
	case wire.TypeCreateRoom:
		d.handleCreateRoom(conn, env)
	case wire.TypeJoinRoom:
		d.handleJoinRoom(conn, env)
	case wire.TypeListRooms:
		d.handleListRooms(conn, env)
	case wire.TypeListUsers:
		d.handleListUsers(conn, env)
	case wire.TypeChat:
		d.handleChat(conn, env)
	case wire.TypeBlacklist:
		d.handleBlacklist(conn, env)
	case wire.TypeUnblock:
		d.handleUnblock(conn, env)
	default:
		d.logger.Warn().Str("message_type", env.Type).Msg("unrecognized message_type, ignoring")
	}
}

// requireAuth sends invalid_username_password and returns false if conn has
// no bound session yet. Several verbs are nonsensical before login.
func (d *Dispatcher) requireAuth(conn *Connection) (*Session, bool) {
	session := conn.User()
	if session == nil {
		conn.SendError(errs.NewError(errs.ErrInvalidUsernamePassword))
		return nil, false
	}
	return session, true
}

// handleRegister creates a new user account.
func (d *Dispatcher) handleRegister(conn *Connection, env wire.Envelope) {
	var req wire.Credentials
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		conn.SendError(errs.NewError(errs.ErrInvalidUsernamePassword))
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		conn.SendError(errs.NewError(errs.ErrInvalidUsernamePassword))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	hash, err := d.authPool.Hash(ctx, req.Password)
	if err != nil {
		d.logger.Error().Err(err).Msg("password hashing failed")
		conn.SendError(errs.NewError(errs.ErrServerError))
		return
	}

	if _, err := d.store.InsertUser(req.Username, hash); err != nil {
		var ce *store.ConstraintError
		if errors.As(err, &ce) {
			conn.SendError(errs.NewError(errs.ErrUsernameExists))
			return
		}
		d.logger.Error().Err(err).Msg("insert user failed")
		conn.SendError(errs.NewError(errs.ErrServerError))
		return
	}

	conn.Send(wire.RegisterResponse{
		MessageType: wire.TypeRegisterResponse,
		Username:    req.Username,
		Status:      "registered",
	})
}

// handleLogin authenticates a user, binds the Connection's Session, and
// implicitly joins the Lobby. The post-login Lobby join emits only a
// history frame; a join_room_response is reserved for the explicit
// join_room/create_room verbs.
func (d *Dispatcher) handleLogin(conn *Connection, env wire.Envelope) {
	var req wire.Credentials
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		conn.SendError(errs.NewError(errs.ErrInvalidUsernamePassword))
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		conn.SendError(errs.NewError(errs.ErrInvalidUsernamePassword))
		return
	}

	user, err := d.store.GetUserByUsername(req.Username)
	if err != nil {
		// Non-disclosure: unknown user and wrong password look identical to the caller.
		conn.SendError(errs.NewError(errs.ErrInvalidUsernamePassword))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	if err := d.authPool.Verify(ctx, user.PasswordHash, req.Password); err != nil {
		conn.SendError(errs.NewError(errs.ErrInvalidUsernamePassword))
		return
	}

	if err := d.store.UpdateLastLogin(user.ID); err != nil {
		d.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to stamp last_login_at")
	}

	conn.Bind(Session{ID: user.ID, Username: user.Username})
	d.registry.BindUser(user.ID, conn)

	lobby := d.registry.Lobby()
	d.registry.Join(lobby, conn)

	conn.Send(wire.LoginResponse{
		MessageType: wire.TypeLoginResponse,
		Username:    user.Username,
		ID:          user.ID,
		RoomID:      lobby.ID(),
		RoomName:    lobby.Name(),
	})

	d.sendHistory(conn, lobby)
}

// handleLogout closes the originating connection. A logout whose userid
// doesn't match the bound session is silently dropped: no error frame,
// no effect.
func (d *Dispatcher) handleLogout(conn *Connection, env wire.Envelope) {
	session := conn.User()
	if session == nil {
		return
	}

	var req wire.Logout
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.ID != session.ID {
		return
	}

	d.registry.Leave(conn)
	d.registry.UnbindUser(session.ID, conn)
	conn.Close()
}

// handleCreateRoom persists a new room, then joins the creator to it.
func (d *Dispatcher) handleCreateRoom(conn *Connection, env wire.Envelope) {
	session, ok := d.requireAuth(conn)
	if !ok {
		return
	}

	var req wire.RoomName
	if err := json.Unmarshal(env.Payload, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		conn.SendError(errs.NewError(errs.ErrInvalidRoom))
		return
	}

	room, err := d.registry.Create(req.Name, session.ID)
	if err != nil {
		conn.SendError(asCustomError(err))
		return
	}

	conn.Send(wire.RoomName{
		MessageType: wire.TypeCreateRoomResponse,
		Name:        room.Name(),
	})

	d.registry.Join(room, conn)

	conn.Send(wire.JoinRoomResponse{
		MessageType: wire.TypeJoinRoomResponse,
		UserID:      conn.User().ID,
		RoomName:    room.Name(),
		RoomID:      room.ID(),
	})
	d.sendHistory(conn, room)
}

// handleJoinRoom moves the caller into an existing room.
func (d *Dispatcher) handleJoinRoom(conn *Connection, env wire.Envelope) {
	session, ok := d.requireAuth(conn)
	if !ok {
		return
	}

	var req wire.JoinRoom
	if err := json.Unmarshal(env.Payload, &req); err != nil || strings.TrimSpace(req.RoomName) == "" {
		conn.SendError(errs.NewError(errs.ErrInvalidRoom))
		return
	}
	if req.UserID != "" && req.UserID != session.ID {
		return
	}

	room, err := d.registry.GetOrLoad(req.RoomName)
	if err != nil {
		conn.SendError(asCustomError(err))
		return
	}

	d.registry.Join(room, conn)

	conn.Send(wire.JoinRoomResponse{
		MessageType: wire.TypeJoinRoomResponse,
		UserID:      conn.User().ID,
		RoomName:    room.Name(),
		RoomID:      room.ID(),
	})
	d.sendHistory(conn, room)
}

// handleListRooms returns every persisted room name. GetRoomList already
// excludes only the sentinel row by id, so Lobby (a real row) is naturally
// included; the explicit union below is defensive insurance against Lobby
// ever being absent from the result.
func (d *Dispatcher) handleListRooms(conn *Connection, env wire.Envelope) {
	if _, ok := d.requireAuth(conn); !ok {
		return
	}

	names, err := d.store.GetRoomList()
	if err != nil {
		conn.SendError(errs.NewError(errs.ErrServerError))
		return
	}

	if !containsString(names, store.LobbyName) {
		names = append([]string{store.LobbyName}, names...)
	}

	conn.Send(wire.ListRooms{MessageType: wire.TypeListRooms, Rooms: names})
}

// handleListUsers reports the live membership of a room. This is in-memory
// only; presence isn't persisted.
func (d *Dispatcher) handleListUsers(conn *Connection, env wire.Envelope) {
	if _, ok := d.requireAuth(conn); !ok {
		return
	}

	var req wire.ListUsersRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		conn.SendError(errs.NewError(errs.ErrInvalidRoom))
		return
	}

	room, ok := d.registry.Get(req.RoomID)
	if !ok {
		conn.SendError(errs.NewError(errs.ErrRoomNotFound))
		return
	}

	conn.Send(wire.ListUsersResponse{
		MessageType: wire.TypeListUsers,
		RoomID:      room.ID(),
		RoomName:    room.Name(),
		Users:       room.Usernames(),
	})
}

// handleChat routes each item of the batch independently: to a room
// broadcast if roomid is set, otherwise to a DM target. A single batch may
// mix room and DM items.
func (d *Dispatcher) handleChat(conn *Connection, env wire.Envelope) {
	session, ok := d.requireAuth(conn)
	if !ok {
		return
	}

	var req wire.Chat
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		conn.SendError(errs.NewError(errs.ErrInvalidMessageTarget))
		return
	}

	for _, item := range req.Messages {
		d.routeChatItem(conn, session, item)
	}
}

func (d *Dispatcher) routeChatItem(conn *Connection, session *Session, item wire.ChatItem) {
	if strings.TrimSpace(item.Message) == "" {
		conn.SendError(errs.NewError(errs.ErrInvalidMessageTarget))
		return
	}

	switch {
	case item.RoomID != "":
		d.routeRoomChat(conn, session, item)
	case item.TargetUserID != "" || item.TargetUsername != "":
		d.routeDirectChat(conn, session, item)
	default:
		conn.SendError(errs.NewError(errs.ErrInvalidMessageTarget))
	}
}

func (d *Dispatcher) routeRoomChat(conn *Connection, session *Session, item wire.ChatItem) {
	room, ok := d.registry.Get(item.RoomID)
	if !ok {
		conn.SendError(errs.NewError(errs.ErrInvalidRoom))
		return
	}

	msg, err := d.store.InsertMessage(session.ID, room.ID(), "", item.Message)
	if err != nil {
		d.logger.Error().Err(err).Msg("insert room message failed")
		conn.SendError(errs.NewError(errs.ErrServerError))
		return
	}

	room.Broadcast(wire.Chat{
		MessageType: wire.TypeChat,
		Messages: []wire.ChatItem{{
			ID:         msg.ID,
			AuthorName: session.Username,
			AuthorID:   session.ID,
			RoomID:     room.ID(),
			Message:    msg.Body,
			CreateDate: msg.CreatedAt,
		}},
	})
}

// routeDirectChat resolves the DM target and persists the message. A target
// that has blocked the sender gets no error at all, not to the sender and
// not to anyone, unlike every other chat failure (empty body, unresolvable
// target), which does get an error{} frame.
func (d *Dispatcher) routeDirectChat(conn *Connection, session *Session, item wire.ChatItem) {
	targetID := item.TargetUserID
	if targetID == "" {
		targetUser, err := d.store.GetUserByUsername(item.TargetUsername)
		if err != nil {
			conn.SendError(errs.NewError(errs.ErrInvalidMessageTarget))
			return
		}
		targetID = targetUser.ID
	}

	msg, err := d.store.InsertMessage(session.ID, "", targetID, item.Message)
	if err != nil {
		if store.IsBlacklistBlock(err) {
			return
		}
		var ce *store.ConstraintError
		if errors.As(err, &ce) {
			conn.SendError(errs.NewError(errs.ErrInvalidMessageTarget))
			return
		}
		d.logger.Error().Err(err).Msg("insert direct message failed")
		conn.SendError(errs.NewError(errs.ErrServerError))
		return
	}

	frame := wire.Chat{
		MessageType: wire.TypeChat,
		Messages: []wire.ChatItem{{
			ID:             msg.ID,
			AuthorName:     session.Username,
			AuthorID:       session.ID,
			TargetUserID:   targetID,
			TargetUsername: item.TargetUsername,
			Message:        msg.Body,
			CreateDate:     msg.CreatedAt,
		}},
	}

	// A DM is delivered to both sender and target, not just the target,
	// since the sender otherwise has no client-side echo.
	conn.Send(frame)
	if targetConn, ok := d.registry.GetConnectionForUser(targetID); ok && targetConn != conn {
		targetConn.Send(frame)
	}
}

// handleBlacklist records that the caller blocks another user by username.
func (d *Dispatcher) handleBlacklist(conn *Connection, env wire.Envelope) {
	session, ok := d.requireAuth(conn)
	if !ok {
		return
	}

	var req wire.Blacklist
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.BlockedUsername == "" {
		conn.SendError(errs.NewError(errs.ErrInvalidBlacklist))
		return
	}

	blocked, err := d.store.GetUserByUsername(req.BlockedUsername)
	if err != nil {
		conn.SendError(errs.NewError(errs.ErrInvalidBlacklist))
		return
	}

	if err := d.store.InsertBlacklist(session.ID, blocked.ID); err != nil {
		var ce *store.ConstraintError
		if errors.As(err, &ce) {
			conn.SendError(errs.NewError(errs.ErrInvalidBlacklist))
			return
		}
		conn.SendError(errs.NewError(errs.ErrServerError))
		return
	}

	conn.Send(wire.Blacklist{
		MessageType:     wire.TypeBlacklistResponse,
		UserID:          session.ID,
		BlockedUsername: req.BlockedUsername,
	})
}

// handleUnblock removes a blacklist pair.
func (d *Dispatcher) handleUnblock(conn *Connection, env wire.Envelope) {
	session, ok := d.requireAuth(conn)
	if !ok {
		return
	}

	var req wire.Blacklist
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.BlockedUsername == "" {
		conn.SendError(errs.NewError(errs.ErrInvalidBlacklist))
		return
	}

	blocked, err := d.store.GetUserByUsername(req.BlockedUsername)
	if err != nil {
		conn.SendError(errs.NewError(errs.ErrInvalidBlacklist))
		return
	}

	if err := d.store.DeleteBlacklist(session.ID, blocked.ID); err != nil {
		conn.SendError(errs.NewError(errs.ErrInvalidBlacklist))
		return
	}

	conn.Send(wire.Blacklist{
		MessageType:     wire.TypeUnblockResponse,
		UserID:          session.ID,
		BlockedUsername: req.BlockedUsername,
	})
}

// handleDisconnect tears down whatever state a peer accumulated before its
// socket closed: room membership and, if logged in, its user->Connection
// routing entry.
func (d *Dispatcher) handleDisconnect(conn *Connection) {
	if session := conn.User(); session != nil {
		d.registry.UnbindUser(session.ID, conn)
	}
	d.registry.Leave(conn)
}

// sendHistory replays up to historyLimit recent messages for room to conn.
func (d *Dispatcher) sendHistory(conn *Connection, room *Room) {
	messages, err := d.store.GetRoomMessages(room.ID(), d.historyLimit)
	if err != nil {
		d.logger.Error().Err(err).Msg("history lookup failed")
		conn.Send(wire.Chat{MessageType: wire.TypeChat, Messages: []wire.ChatItem{}})
		return
	}

	// GetRoomMessages filters by room_id, so every row here is a room
	// broadcast, never a DM (DMs persist with room_id = SentinelID).
	items := make([]wire.ChatItem, 0, len(messages))
	for _, m := range messages {
		items = append(items, wire.ChatItem{
			ID:         m.ID,
			AuthorName: m.AuthorUsername,
			AuthorID:   m.AuthorID,
			RoomID:     room.ID(),
			Message:    m.Body,
			CreateDate: m.CreatedAt,
		})
	}

	conn.Send(wire.Chat{MessageType: wire.TypeChat, Messages: items})
}

// asCustomError maps a Registry/Store error into its wire-facing
// errs.CustomError, falling back to server_error for anything unrecognized.
func asCustomError(err error) *errs.CustomError {
	var ce *errs.CustomError
	if errors.As(err, &ce) {
		return ce
	}
	return errs.NewError(errs.ErrServerError)
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
