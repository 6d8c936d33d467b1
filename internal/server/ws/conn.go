package ws

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rzbill/pulse/internal/batcher"
	"github.com/rzbill/pulse/internal/flags"
	"github.com/rzbill/pulse/internal/protocol"
	"github.com/rzbill/pulse/internal/registry"
	"github.com/rzbill/pulse/internal/storage"
	"github.com/rzbill/pulse/pkg/id"
	logpkg "github.com/rzbill/pulse/pkg/log"
)

// State is the connection lifecycle state.
type State int

const (
	// StateOpen: authenticated and registered, no identity attached yet.
	StateOpen State = iota
	// StateIdentified: a successful identify attached a user id; all later
	// events carry it.
	StateIdentified
	// StateClosed is terminal; the connection is unregistered and no
	// further messages are processed.
	StateClosed
)

// wire is the subset of *websocket.Conn the handler needs. Tests substitute
// a scripted implementation.
type wire interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Params carries the connection establishment values, pre-validated by the
// HTTP layer.
type Params struct {
	Tenant    string
	SessionID string
	AnonID    string
}

// Deps bundles the collaborators a connection routes into.
type Deps struct {
	Batcher  *batcher.Batcher
	Flags    *flags.Cache
	Registry *registry.Registry
	Store    storage.Store
	IDs      *id.Generator
	Logger   logpkg.Logger
}

// Conn is the state machine for one live connection.
type Conn struct {
	ws     wire
	deps   Deps
	logger logpkg.Logger

	tenant    string
	sessionID string
	anonID    string
	connID    string

	writeMu sync.Mutex

	mu     sync.Mutex
	userID string
	state  State
}

// NewConn builds the handler for an accepted socket of params' tenant. The
// connection id is generated here and never derived from the socket.
func NewConn(w wire, params Params, deps Deps) *Conn {
	connID := deps.IDs.NextString()
	logger := deps.Logger.WithComponent("conn").With(
		logpkg.Str("tenant", params.Tenant),
		logpkg.Str("session", params.SessionID),
		logpkg.Str("conn_id", connID),
	)
	return &Conn{
		ws:        w,
		deps:      deps,
		logger:    logger,
		tenant:    params.Tenant,
		sessionID: params.SessionID,
		anonID:    params.AnonID,
		connID:    connID,
		state:     StateOpen,
	}
}

// ID returns the generated connection id.
func (c *Conn) ID() string { return c.connID }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send delivers one payload on the socket. It is the registry.Sender
// implementation; a returned error gets this connection pruned.
func (c *Conn) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Run registers the connection, writes through the session record, pushes
// the current flag snapshot, and processes inbound messages in arrival order
// until the socket closes or ctx is cancelled. It always unregisters before
// returning.
func (c *Conn) Run(ctx context.Context) {
	c.deps.Registry.Register(c.tenant, c.connID, c)
	defer c.close()

	if err := c.deps.Store.UpsertSession(ctx, c.tenant, c.sessionID, c.anonID); err != nil {
		c.logger.Error("session upsert failed", logpkg.Err(err))
	}
	if err := c.Send(c.deps.Flags.GetSerialized(c.tenant)); err != nil {
		c.logger.Warn("initial flag push failed", logpkg.Err(err))
		return
	}
	c.logger.Debug("connection open")

	// unblock the reader when the server shuts down
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read loop ended", logpkg.Err(err))
			}
			return
		}
		c.handleMessage(ctx, raw)
	}
}

// handleMessage processes one inbound message. Backend failures are logged
// and swallowed; malformed input never closes the connection.
func (c *Conn) handleMessage(ctx context.Context, raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		c.logger.Warn("unparseable message",
			logpkg.Str("payload", string(raw)),
			logpkg.Err(err))
		return
	}
	switch msg.Kind {
	case protocol.KindEvent:
		c.handleEvent(ctx, msg)
	case protocol.KindIdentify:
		c.handleIdentify(ctx, msg)
	case protocol.KindPing:
		if err := c.Send(protocol.Pong()); err != nil {
			c.logger.Debug("pong write failed", logpkg.Err(err))
		}
	}
}

func (c *Conn) handleEvent(ctx context.Context, msg protocol.Message) {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	c.deps.Batcher.Enqueue(storage.Event{
		Tenant:    c.tenant,
		SessionID: c.sessionID,
		AnonID:    c.anonID,
		UserID:    userID,
		Name:      msg.Event,
		Props:     msg.Props,
		Ts:        msg.Ts,
	})
	if err := c.deps.Store.TouchSession(ctx, c.sessionID); err != nil {
		c.logger.Warn("session touch failed", logpkg.Err(err))
	}
}

func (c *Conn) handleIdentify(ctx context.Context, msg protocol.Message) {
	if err := c.deps.Batcher.EnqueueIdentify(ctx, c.tenant, c.anonID, msg.UserID, msg.Traits); err != nil {
		c.logger.Warn("identify upsert failed", logpkg.Err(err))
	}
	if err := c.deps.Store.SetSessionUser(ctx, c.sessionID, msg.UserID); err != nil {
		c.logger.Warn("session user link failed", logpkg.Err(err))
	}
	c.mu.Lock()
	c.userID = msg.UserID
	c.state = StateIdentified
	c.mu.Unlock()
	c.logger.Debug("identified", logpkg.Str("user", msg.UserID))
}

func (c *Conn) close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()
	c.deps.Registry.Unregister(c.tenant, c.connID)
	_ = c.ws.Close()
	c.logger.Debug("connection closed")
}
