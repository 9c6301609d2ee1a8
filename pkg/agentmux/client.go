// Package agentmux is a Go SDK for the agentmux agent runtime. A Client
// owns one connection to a runtime process, spawned over stdio or a local
// socket or attached to an externally managed endpoint, and multiplexes
// any number of conversation sessions over it. Inbound traffic (tool calls,
// permission and user-input requests, hook invocations, session and
// lifecycle events) is routed back to the handlers registered on the owning
// session or client.
//
// Basic usage:
//
//	client, err := agentmux.New(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop()
//
//	session, err := client.CreateSession(ctx, &agentmux.SessionConfig{Model: "m1"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Destroy(ctx)
//
//	session.On(func(ev types.SessionEvent) {
//	    if ev.Type == types.EventAssistantMessage {
//	        fmt.Println(ev.Content())
//	    }
//	})
//	session.Send(ctx, agentmux.Message{Prompt: "hello"})
package agentmux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/agentmux/agentmux/internal/event"
	"github.com/agentmux/agentmux/internal/logging"
	"github.com/agentmux/agentmux/internal/rpc"
	"github.com/agentmux/agentmux/internal/transport"
	"github.com/agentmux/agentmux/pkg/types"
)

// ProtocolVersion is the wire protocol revision this SDK speaks. Start
// fails when the runtime reports anything else.
const ProtocolVersion = 1

// stopGrace bounds how long Stop waits for an owned runtime process to exit
// after a graceful signal before killing it.
const stopGrace = 5 * time.Second

// ErrNotConnected is returned when an operation needs a connection, the
// client is not connected, and AutoStart is disabled.
var ErrNotConnected = errors.New("agentmux: client not connected; call Start first")

// ConnectionState describes the client's connection lifecycle.
type ConnectionState string

// Connection states. Start moves disconnected to connecting to connected,
// or connecting to error; Stop always returns to disconnected.
const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// Client manages the connection to an agentmux runtime and the sessions
// multiplexed over it. All methods are safe for concurrent use.
type Client struct {
	opts resolved
	log  zerolog.Logger

	// attach is swapped out by tests to connect the client to an
	// in-process fake runtime.
	attach func(ctx context.Context) (transport.Handle, error)

	// startMu serializes Start so concurrent first calls cannot attach
	// two transports.
	startMu sync.Mutex

	mu     sync.Mutex
	state  ConnectionState
	conn   *rpc.Conn
	handle transport.Handle

	sessionsMu sync.Mutex
	sessions   map[string]*Session

	modelsMu     sync.Mutex
	models       []types.ModelInfo
	modelsFlight singleflight.Group

	lifecycle *event.Bus
}

// New validates opts and creates a disconnected client. Configuration
// errors (conflicting attachment options, credentials for an external
// runtime, malformed URL) are reported here, before any transport activity.
func New(opts *Options) (*Client, error) {
	r, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	log := logging.Component("client")
	if opts != nil && opts.Logger != nil {
		log = *opts.Logger
	}

	c := &Client{
		opts:      r,
		log:       log,
		state:     StateDisconnected,
		sessions:  make(map[string]*Session),
		lifecycle: event.NewBus(),
	}
	c.attach = c.attachTransport
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start attaches to the runtime and verifies protocol compatibility. It is
// a no-op when already connected. On any failure the client is left in
// StateError with the transport torn down.
func (c *Client) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	handle, err := c.attach(ctx)
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("agentmux: attach runtime: %w", err)
	}

	conn := rpc.NewConn(handle)
	c.bindInbound(conn)
	conn.Start()

	if err := c.verifyProtocolVersion(ctx, conn); err != nil {
		_ = conn.Close()
		handle.Kill()
		c.setState(StateError)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.handle = handle
	c.state = StateConnected
	c.mu.Unlock()

	c.log.Debug().Msg("connected to runtime")
	return nil
}

func (c *Client) attachTransport(ctx context.Context) (transport.Handle, error) {
	switch c.opts.mode {
	case attachExternal:
		return transport.Dial(ctx, c.opts.endpoint)
	case attachSocket:
		return transport.AttachSocket(ctx, c.spawn())
	default:
		return transport.AttachStdio(ctx, c.spawn())
	}
}

func (c *Client) spawn() transport.Spawn {
	return transport.Spawn{
		Bin:  c.opts.binPath,
		Args: c.opts.spawnArgs(),
		Dir:  c.opts.dir,
		Env:  c.opts.spawnEnv(),
	}
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// verifyProtocolVersion pings the runtime and compares the reported
// protocol version against ProtocolVersion. A runtime that omits the
// version predates the handshake and is equally incompatible.
func (c *Client) verifyProtocolVersion(ctx context.Context, conn *rpc.Conn) error {
	raw, err := conn.Request(ctx, "ping", map[string]any{})
	if err != nil {
		return fmt.Errorf("agentmux: handshake ping: %w", err)
	}
	var pong types.PingResponse
	if err := decode(raw, &pong); err != nil {
		return fmt.Errorf("agentmux: handshake ping: %w", err)
	}
	if pong.ProtocolVersion == nil {
		return fmt.Errorf("agentmux: protocol version mismatch: SDK expects %d but the runtime reports none; update the runtime", ProtocolVersion)
	}
	if *pong.ProtocolVersion != ProtocolVersion {
		return fmt.Errorf("agentmux: protocol version mismatch: SDK expects %d, runtime reports %d", ProtocolVersion, *pong.ProtocolVersion)
	}
	return nil
}

// connection returns the live rpc connection, starting the client first
// when AutoStart is enabled.
func (c *Client) connection(ctx context.Context) (*rpc.Conn, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	if !c.opts.autoStart {
		return nil, ErrNotConnected
	}
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// Stop gracefully shuts the client down: destroys every registered session,
// closes the connection, clears the models cache, and terminates the
// runtime process if this client spawned it. Per-session destruction
// failures are collected and returned rather than aborting the shutdown;
// calling Stop repeatedly, or while disconnected, is safe and returns nil.
func (c *Client) Stop() []error {
	var errs []error

	// Swap the registry in one lock acquisition so no concurrent caller
	// can reach a session that is being torn down.
	c.sessionsMu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*Session)
	c.sessionsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	for _, s := range sessions {
		if err := s.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("destroy session %s: %w", s.ID, err))
		}
	}

	c.releaseConnection(false)
	return errs
}

// ForceStop tears everything down without remote cleanup: sessions are
// dropped un-destroyed, the connection close is best-effort, and an owned
// runtime process is killed immediately. Use it when Stop hangs.
func (c *Client) ForceStop() {
	c.sessionsMu.Lock()
	c.sessions = make(map[string]*Session)
	c.sessionsMu.Unlock()

	c.releaseConnection(true)
}

// releaseConnection closes the rpc connection, clears the models cache and
// releases the transport exactly once. Both shutdown paths funnel here, so
// a second call finds nothing to release and is a no-op.
func (c *Client) releaseConnection(force bool) {
	c.mu.Lock()
	conn := c.conn
	handle := c.handle
	c.conn = nil
	c.handle = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil && !force {
			c.log.Debug().Err(err).Msg("closing rpc connection")
		}
	}

	c.modelsMu.Lock()
	c.models = nil
	c.modelsMu.Unlock()

	if handle == nil {
		return
	}
	if force {
		handle.Kill()
		return
	}
	handle.Terminate(stopGrace)
}

// Ping verifies connectivity. The message, when non-empty, is echoed back.
func (c *Client) Ping(ctx context.Context, message string) (*types.PingResponse, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if message != "" {
		payload["message"] = message
	}
	raw, err := conn.Request(ctx, "ping", payload)
	if err != nil {
		return nil, err
	}
	var resp types.PingResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the runtime's version information.
func (c *Client) Status(ctx context.Context) (*types.StatusResponse, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := conn.Request(ctx, "status.get", map[string]any{})
	if err != nil {
		return nil, err
	}
	var resp types.StatusResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AuthStatus returns the runtime's authentication state.
func (c *Client) AuthStatus(ctx context.Context) (*types.AuthStatus, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := conn.Request(ctx, "auth.getStatus", map[string]any{})
	if err != nil {
		return nil, err
	}
	var resp types.AuthStatus
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListModels returns the models available through the runtime. The first
// successful result is cached for the lifetime of the connection;
// concurrent cold-cache callers share a single request, and every caller
// gets its own copy of the list.
func (c *Client) ListModels(ctx context.Context) ([]types.ModelInfo, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch := c.modelsFlight.DoChan("models.list", func() (any, error) {
		c.modelsMu.Lock()
		cached := c.models
		c.modelsMu.Unlock()
		if cached != nil {
			return cached, nil
		}

		// The flight is shared by every concurrent caller, so the wire
		// request must not die with whichever caller happened to start it.
		// Each caller's own ctx still bounds its wait below.
		raw, err := conn.Request(context.WithoutCancel(ctx), "models.list", map[string]any{})
		if err != nil {
			return nil, err
		}
		var resp struct {
			Models []types.ModelInfo `json:"models"`
		}
		if err := decode(raw, &resp); err != nil {
			return nil, err
		}

		c.modelsMu.Lock()
		c.models = resp.Models
		c.modelsMu.Unlock()
		return resp.Models, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		models := res.Val.([]types.ModelInfo)
		out := make([]types.ModelInfo, len(models))
		copy(out, models)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListSessions returns metadata for every session the runtime knows about,
// including sessions this client holds no handle to.
func (c *Client) ListSessions(ctx context.Context) ([]types.SessionMetadata, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := conn.Request(ctx, "session.list", map[string]any{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Sessions []types.SessionMetadata `json:"sessions"`
	}
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// DeleteSession permanently deletes a session and its history. A deleted
// session cannot be resumed. The local handle, if any, is dropped from the
// registry.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}
	raw, err := conn.Request(ctx, "session.delete", map[string]any{"sessionId": sessionID})
	if err != nil {
		return err
	}
	var resp struct {
		Success bool    `json:"success"`
		Error   *string `json:"error,omitempty"`
	}
	if err := decode(raw, &resp); err != nil {
		return err
	}
	if !resp.Success {
		msg := "unknown error"
		if resp.Error != nil {
			msg = *resp.Error
		}
		return fmt.Errorf("agentmux: delete session %s: %s", sessionID, msg)
	}

	c.sessionsMu.Lock()
	delete(c.sessions, sessionID)
	c.sessionsMu.Unlock()
	return nil
}

// ForegroundSession returns the id of the session the runtime's UI is
// currently displaying, or nil when none is set. Only meaningful against a
// runtime running in UI+server mode.
func (c *Client) ForegroundSession(ctx context.Context) (*string, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := conn.Request(ctx, "session.getForeground", map[string]any{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		SessionID *string `json:"sessionId,omitempty"`
	}
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	return resp.SessionID, nil
}

// SetForegroundSession asks the runtime's UI to display the given session.
func (c *Client) SetForegroundSession(ctx context.Context, sessionID string) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}
	raw, err := conn.Request(ctx, "session.setForeground", map[string]any{"sessionId": sessionID})
	if err != nil {
		return err
	}
	var resp struct {
		Success bool    `json:"success"`
		Error   *string `json:"error,omitempty"`
	}
	if err := decode(raw, &resp); err != nil {
		return err
	}
	if !resp.Success {
		msg := "unknown error"
		if resp.Error != nil {
			msg = *resp.Error
		}
		return fmt.Errorf("agentmux: set foreground session: %s", msg)
	}
	return nil
}

// OnLifecycle subscribes to every session lifecycle event. The returned
// function unsubscribes the handler.
func (c *Client) OnLifecycle(handler types.LifecycleHandler) func() {
	return c.lifecycle.SubscribeAll(handler)
}

// OnLifecycleType subscribes to one lifecycle event type. The returned
// function unsubscribes the handler.
func (c *Client) OnLifecycleType(eventType types.LifecycleEventType, handler types.LifecycleHandler) func() {
	return c.lifecycle.Subscribe(eventType, handler)
}

// liveConn returns the current connection without triggering AutoStart.
func (c *Client) liveConn() *rpc.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// lookupSession copies the session reference out under the registry lock;
// callers invoke handlers only after the lock is released.
func (c *Client) lookupSession(id string) (*Session, bool) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	s, ok := c.sessions[id]
	return s, ok
}

func (c *Client) removeSession(id string) {
	c.sessionsMu.Lock()
	delete(c.sessions, id)
	c.sessionsMu.Unlock()
}
