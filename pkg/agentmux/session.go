package agentmux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentmux/agentmux/internal/logging"
	"github.com/agentmux/agentmux/pkg/types"
)

// DefaultSendAndWaitTimeout bounds SendAndWait when the caller's context
// carries no deadline. Hitting it stops the local wait only; remote work
// continues until aborted.
const DefaultSendAndWaitTimeout = 60 * time.Second

// Message is one user turn sent into a session.
type Message struct {
	// Prompt is the user's text. Required.
	Prompt string
	// Attachments are files included with the turn.
	Attachments []Attachment
	// Mode selects an agent mode for this turn, when the runtime supports
	// several.
	Mode string
}

// Attachment references a file sent alongside a prompt.
type Attachment struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type subscriber struct {
	id uint64
	fn types.SessionEventHandler
}

// Session is a handle to one remote conversation. Sessions are created by
// Client.CreateSession or Client.ResumeSession, never directly. All methods
// are safe for concurrent use.
//
// A Session's registry membership is independent of its remote existence:
// after Destroy, or after the remote side deletes the session, the handle
// remains valid to hold but its remote operations fail.
type Session struct {
	// ID is the session's opaque identifier.
	ID string

	client *Client

	mu            sync.Mutex
	subscribers   []subscriber
	nextSubID     uint64
	tools         map[string]types.Tool
	permission    types.PermissionHandler
	userInput     types.UserInputHandler
	hooks         *types.Hooks
	workspacePath string
}

func newSession(id string, client *Client) *Session {
	return &Session{
		ID:     id,
		client: client,
		tools:  make(map[string]types.Tool),
	}
}

// On subscribes a handler to this session's events. Handlers run in
// transport arrival order; the returned function unsubscribes.
func (s *Session) On(handler types.SessionEventHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: handler})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				break
			}
		}
	}
}

// dispatchEvent delivers ev to a snapshot of the current subscribers. Each
// handler is panic-isolated so one subscriber cannot cost the rest their
// delivery.
func (s *Session) dispatchEvent(ev types.SessionEvent) {
	s.mu.Lock()
	snapshot := make([]types.SessionEventHandler, len(s.subscribers))
	for i, sub := range s.subscribers {
		snapshot[i] = sub.fn
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Warn().
						Str("session_id", s.ID).
						Str("type", ev.Type).
						Any("panic", r).
						Msg("session event subscriber panicked")
				}
			}()
			fn(ev)
		}()
	}
}

// Send submits one user turn and returns the runtime-assigned message id.
// It returns as soon as the runtime accepts the turn; events stream to
// subscribers as the agent works.
func (s *Session) Send(ctx context.Context, msg Message) (string, error) {
	conn, err := s.client.connection(ctx)
	if err != nil {
		return "", err
	}
	payload := map[string]any{
		"sessionId": s.ID,
		"prompt":    msg.Prompt,
	}
	if len(msg.Attachments) > 0 {
		payload["attachments"] = msg.Attachments
	}
	if msg.Mode != "" {
		payload["mode"] = msg.Mode
	}
	raw, err := conn.Request(ctx, "session.send", payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		MessageID string `json:"messageId"`
	}
	if err := decode(raw, &resp); err != nil {
		return "", err
	}
	return resp.MessageID, nil
}

// SendAndWait submits one turn and blocks until the session goes idle,
// returning the last assistant message of the turn (nil when the turn
// produced none). A session.error event fails the wait. Without a context
// deadline the wait is bounded by DefaultSendAndWaitTimeout; timing out
// stops the wait, not the remote turn.
func (s *Session) SendAndWait(ctx context.Context, msg Message) (*types.SessionEvent, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSendAndWaitTimeout)
		defer cancel()
	}

	// Buffered so dispatch never blocks behind this waiter; a turn that
	// overflows the buffer still terminates on its idle event because
	// terminal events are sent blocking below.
	events := make(chan types.SessionEvent, 256)
	unsubscribe := s.On(func(ev types.SessionEvent) {
		switch ev.Type {
		case types.EventSessionIdle, types.EventSessionError:
			events <- ev
		default:
			select {
			case events <- ev:
			default:
			}
		}
	})
	defer unsubscribe()

	if _, err := s.Send(ctx, msg); err != nil {
		return nil, err
	}

	var last *types.SessionEvent
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case types.EventAssistantMessage:
				evCopy := ev
				last = &evCopy
			case types.EventSessionIdle:
				return last, nil
			case types.EventSessionError:
				return nil, fmt.Errorf("agentmux: session %s: %s", s.ID, ev.ErrMessage())
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetMessages returns the session's event history. A session deleted on the
// remote side fails with the runtime's "not found" error even while the
// local handle exists.
func (s *Session) GetMessages(ctx context.Context) ([]types.SessionEvent, error) {
	conn, err := s.client.connection(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := conn.Request(ctx, "session.getMessages", map[string]any{"sessionId": s.ID})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Events []types.SessionEvent `json:"events"`
	}
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Abort cancels the session's in-flight turn on the remote side. It does
// not unblock local SendAndWait callers directly; their own deadlines do.
func (s *Session) Abort(ctx context.Context) error {
	conn, err := s.client.connection(ctx)
	if err != nil {
		return err
	}
	_, err = conn.Request(ctx, "session.abort", map[string]any{"sessionId": s.ID})
	return err
}

// Destroy tears the remote session down and clears every local handler
// table. The handle stays usable as a dangling reference; further remote
// operations fail with the runtime's "not found" error. Local cleanup
// happens even when the remote destroy fails.
func (s *Session) Destroy(ctx context.Context) error {
	var err error
	if conn := s.client.liveConn(); conn != nil {
		_, err = conn.Request(ctx, "session.destroy", map[string]any{"sessionId": s.ID})
	}

	s.mu.Lock()
	s.subscribers = nil
	s.tools = make(map[string]types.Tool)
	s.permission = nil
	s.userInput = nil
	s.hooks = nil
	s.mu.Unlock()

	s.client.removeSession(s.ID)
	return err
}

// WorkspacePath returns the on-disk workspace directory, non-empty only for
// sessions created with InfiniteSessions.
func (s *Session) WorkspacePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspacePath
}

// registerTools replaces the whole tool table. Tools without a name or
// handler are skipped.
func (s *Session) registerTools(tools []types.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools = make(map[string]types.Tool, len(tools))
	for _, t := range tools {
		if t.Name == "" || t.Handler == nil {
			continue
		}
		s.tools[t.Name] = t
	}
}

func (s *Session) setPermissionHandler(h types.PermissionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permission = h
}

func (s *Session) setUserInputHandler(h types.UserInputHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInput = h
}

func (s *Session) setHooks(h *types.Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

func (s *Session) toolByName(name string) (types.Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tools[name]
	return t, ok
}

func (s *Session) permissionHandler() types.PermissionHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

func (s *Session) userInputHandler() types.UserInputHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userInput
}

func (s *Session) hookByType(hookType string) types.HookHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks.ByType(hookType)
}
