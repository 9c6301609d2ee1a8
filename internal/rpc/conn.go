// Package rpc implements the JSON-RPC 2.0 connection the agentmux client
// multiplexes its traffic over. It correlates outbound requests with
// responses by id, routes inbound requests to per-method handlers, and hands
// inbound notifications to a single notification handler in arrival order.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/agentmux/agentmux/internal/logging"
)

// JSON-RPC error codes used by the connection.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
)

// ErrConnClosed is returned for requests in flight, or issued, after the
// connection is closed or the transport is lost.
var ErrConnClosed = errors.New("rpc: connection closed")

// RemoteError is a JSON-RPC error object reported by the peer.
type RemoteError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Handler serves an inbound request. A non-nil *RemoteError is sent back as
// the JSON-RPC error; otherwise the returned value is marshalled as the
// result.
type Handler func(ctx context.Context, params map[string]any) (any, *RemoteError)

// NotificationHandler receives inbound notifications. It runs on the read
// loop, so notifications for one connection are observed in arrival order.
type NotificationHandler func(method string, params map[string]any)

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

func (m *message) isCall() bool { return len(m.ID) > 0 }

// Conn is a bidirectional JSON-RPC 2.0 connection using Content-Length
// framing. All methods are safe for concurrent use.
type Conn struct {
	rw io.ReadWriteCloser

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan *message
	handlers map[string]Handler
	notify   NotificationHandler

	nextID  atomic.Int64
	started atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
	readDone  chan struct{}
}

// NewConn wraps rw in a connection. Call Start before issuing requests.
func NewConn(rw io.ReadWriteCloser) *Conn {
	return &Conn{
		rw:       rw,
		pending:  make(map[string]chan *message),
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

// SetRequestHandler registers the handler for an inbound request method.
// A nil handler unregisters the method.
func (c *Conn) SetRequestHandler(method string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.handlers, method)
		return
	}
	c.handlers[method] = h
}

// SetNotificationHandler registers the handler for inbound notifications.
func (c *Conn) SetNotificationHandler(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = h
}

// Start begins servicing the connection in a background goroutine.
func (c *Conn) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.readLoop()
}

// Close tears the connection down and fails all pending requests with
// ErrConnClosed. Closing an already-closed connection is a no-op.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.rw.Close()
		c.failPending()
	})
	return err
}

func (c *Conn) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Request issues method with params and blocks until the matching response
// arrives, ctx is done, or the connection is lost. A JSON-RPC error from the
// peer is returned as a *RemoteError.
func (c *Conn) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, ErrConnClosed
	default:
	}

	id := strconv.FormatInt(c.nextID.Add(1), 10)
	ch := make(chan *message, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal params: %w", err)
	}
	req := message{
		JSONRPC: "2.0",
		ID:      json.RawMessage(id),
		Method:  method,
		Params:  raw,
	}
	if err := c.write(&req); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnClosed
	}
}

// Notify sends a notification; no response is expected.
func (c *Conn) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpc: marshal params: %w", err)
	}
	return c.write(&message{JSONRPC: "2.0", Method: method, Params: raw})
}

func (c *Conn) write(msg *message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rpc: marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(c.rw, header); err != nil {
		return fmt.Errorf("rpc: write header: %w", err)
	}
	if _, err := c.rw.Write(data); err != nil {
		return fmt.Errorf("rpc: write body: %w", err)
	}
	return nil
}

// readLoop services the connection until the transport is lost or Close is
// called. Transport loss tears the whole connection down, so requests issued
// afterwards fail with ErrConnClosed instead of blocking on a dead peer.
func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer func() { _ = c.Close() }()

	reader := bufio.NewReader(c.rw)
	for {
		body, err := readFrame(reader)
		if err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, io.EOF) {
					logging.Debug().Err(err).Msg("rpc read loop terminated")
				}
			}
			return
		}
		if body == nil {
			continue
		}

		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			logging.Debug().Err(err).Msg("dropping unparseable rpc frame")
			continue
		}

		switch {
		case msg.Method != "" && msg.isCall():
			c.serveCall(&msg)
		case msg.Method != "":
			c.serveNotification(&msg)
		case msg.isCall():
			c.deliverResponse(&msg)
		}
	}
}

// readFrame reads one Content-Length framed body. A nil body with nil error
// means the frame had no usable length and should be skipped.
func readFrame(reader *bufio.Reader) ([]byte, error) {
	contentLength := 0
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if line == "\r\n" || line == "\n" {
			break
		}
		var n int
		if _, err := fmt.Sscanf(line, "Content-Length: %d", &n); err == nil {
			contentLength = n
		}
	}
	if contentLength == 0 {
		return nil, nil
	}
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Conn) deliverResponse(msg *message) {
	c.mu.Lock()
	ch, ok := c.pending[string(msg.ID)]
	if ok {
		delete(c.pending, string(msg.ID))
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (c *Conn) serveNotification(msg *message) {
	c.mu.Lock()
	notify := c.notify
	c.mu.Unlock()
	if notify == nil {
		return
	}
	params, err := decodeParams(msg.Params)
	if err != nil {
		logging.Debug().Str("method", msg.Method).Err(err).Msg("dropping notification with bad params")
		return
	}
	notify(msg.Method, params)
}

// serveCall runs the method handler on its own goroutine so a slow handler
// cannot stall response delivery for the caller side of the connection.
func (c *Conn) serveCall(msg *message) {
	c.mu.Lock()
	handler := c.handlers[msg.Method]
	c.mu.Unlock()

	if handler == nil {
		c.respondErr(msg.ID, &RemoteError{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", msg.Method)})
		return
	}

	params, err := decodeParams(msg.Params)
	if err != nil {
		c.respondErr(msg.ID, &RemoteError{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)})
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.respondErr(msg.ID, &RemoteError{Code: CodeInternal, Message: fmt.Sprintf("handler panic: %v", r)})
			}
		}()
		result, herr := handler(context.Background(), params)
		if herr != nil {
			c.respondErr(msg.ID, herr)
			return
		}
		raw, err := json.Marshal(result)
		if err != nil {
			c.respondErr(msg.ID, &RemoteError{Code: CodeInternal, Message: fmt.Sprintf("marshal result: %v", err)})
			return
		}
		if err := c.write(&message{JSONRPC: "2.0", ID: msg.ID, Result: raw}); err != nil {
			logging.Debug().Err(err).Msg("failed to send rpc response")
		}
	}()
}

func (c *Conn) respondErr(id json.RawMessage, rerr *RemoteError) {
	if err := c.write(&message{JSONRPC: "2.0", ID: id, Error: rerr}); err != nil {
		logging.Debug().Err(err).Msg("failed to send rpc error response")
	}
}

func decodeParams(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}
