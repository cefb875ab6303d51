/*
Package chat implements the in-memory message-routing engine: per-peer
Connections, the Room Registry, and the Dispatcher that ties them to the
Store and Auth pool.

Each Connection runs three goroutines: ReadLoop decodes frames off the
socket, ProcessLoop drains them sequentially so that one connection's
frames are always handled in arrival order, and WriteLoop drains the
outbound send buffer. Two connections still run concurrently with each
other.
*/
package chat

import (
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"conchat/internal/app/wire"
	"conchat/internal/pkg/errs"
	"conchat/internal/pkg/logx"
)

// State is the Connection's lifecycle state.
type State int

const (
	StateUnbound State = iota
	StateAuthenticated
	StateInRoom
	StateClosed
)

const (
	// loginReadTimeout bounds how long a peer may hold the socket open,
	// counted from accept, before it has logged in.
	loginReadTimeout = 30 * time.Second

	// writeTimeout closes the connection if a single frame can't be written
	// within this window.
	writeTimeout = 5 * time.Second

	// sendBuffer is the depth of the outbound frame buffer.
	sendBuffer = 256

	// inboxBuffer bounds how many decoded frames ReadLoop may get ahead of
	// ProcessLoop before backpressuring the read side.
	inboxBuffer = 64
)

// Session identifies the authenticated user bound to a Connection.
type Session struct {
	ID       string
	Username string
}

// Connection is one TCP peer: it owns the socket, decodes inbound frames,
// serializes outbound writes, and tracks user/room binding and closed state.
type Connection struct {
	id     string
	conn   net.Conn
	logger zerolog.Logger

	inbox chan wire.Envelope
	send  chan []byte
	done  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once

	mu    sync.Mutex
	user  *Session
	room  *Room
	state State
}

// NewConnection wraps a freshly accepted net.Conn.
func NewConnection(id string, netConn net.Conn) *Connection {
	return &Connection{
		id:     id,
		conn:   netConn,
		logger: logx.Logger().With().Str("component", "Connection").Str("conn_id", id).Logger(),
		inbox:  make(chan wire.Envelope, inboxBuffer),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		state:  StateUnbound,
	}
}

// User returns the bound session, or nil if still UNBOUND.
func (c *Connection) User() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Room returns the connection's current room, or nil if not IN_ROOM.
func (c *Connection) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bind attaches a Session to the connection, transitioning UNBOUND -> AUTHENTICATED,
// and lifts the login read deadline so an idle authenticated peer stays connected.
func (c *Connection) Bind(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &session
	c.state = StateAuthenticated
	c.conn.SetReadDeadline(time.Time{})
}

// setRoom installs newRoom as the current room (or clears it, if nil) and
// transitions to IN_ROOM on a non-nil assignment. It returns the previous
// room so the caller (Registry) can remove the connection from it first.
func (c *Connection) setRoom(newRoom *Room) *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.room
	c.room = newRoom
	if newRoom != nil {
		c.state = StateInRoom
	}
	return old
}

// Closed reports whether the connection has been closed.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// Close idempotently closes the transport and marks the connection closed.
// A closed Connection ignores further sends.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
		c.conn.Close()
	})
}

// Send marshals v to JSON and enqueues it as one newline-delimited frame.
// It is non-blocking: a full send buffer (an unresponsive peer) drops the
// frame and logs it, and a closed connection is a no-op.
func (c *Connection) Send(v any) {
	if c.closed.Load() {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal outbound frame")
		return
	}
	data = append(data, '\n')

	select {
	case c.send <- data:
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("send buffer full, dropping frame")
	}
}

// SendError is a convenience wrapper sending the canonical error{} frame shape.
func (c *Connection) SendError(customErr *errs.CustomError) {
	c.Send(wire.ErrorFrame{
		MessageType: wire.TypeError,
		ErrorType:   customErr.Type,
		Message:     customErr.Message,
	})
}

// ReadLoop decodes frames off the socket and forwards them to inbox for
// ProcessLoop to handle sequentially. It returns on EOF, a transport error,
// or a malformed frame, all of which are fatal for the connection: no
// response is sent, the connection is simply closed.
func (c *Connection) ReadLoop() {
	c.conn.SetReadDeadline(time.Now().Add(loginReadTimeout))

	scanner := wire.NewScanner(c.conn)

	for {
		env, err := scanner.Next()
		if err != nil {
			c.logger.Info().Err(err).Msg("read loop terminating")
			return
		}
		if env.Type == "" {
			// Blank keepalive line; not a frame.
			continue
		}

		if c.User() != nil {
			// Once authenticated there's no further read deadline.
			c.conn.SetReadDeadline(time.Time{})
		}

		select {
		case c.inbox <- env:
		case <-c.done:
			return
		}
	}
}

// ProcessLoop drains inbox strictly sequentially, handing each frame to
// handle. Two frames from the same connection are never processed
// concurrently, though two connections' ProcessLoops still run
// concurrently with each other.
func (c *Connection) ProcessLoop(handle func(*Connection, wire.Envelope)) {
	for {
		select {
		case env := <-c.inbox:
			handle(c, env)
		case <-c.done:
			return
		}
	}
}

// WriteLoop drains send and writes each frame to the socket under a
// per-frame write deadline, closing the connection on write failure or
// timeout.
func (c *Connection) WriteLoop() {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := c.conn.Write(data); err != nil {
				c.logger.Warn().Err(err).Msg("write failed, closing connection")
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
