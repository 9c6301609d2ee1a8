package types

// Session event types callers most commonly switch on. The runtime emits
// more; unknown types should be passed through, not rejected.
const (
	EventSessionStart     = "session.start"
	EventSessionIdle      = "session.idle"
	EventSessionError     = "session.error"
	EventAssistantMessage = "assistant.message"
)

// SessionEvent is an in-conversation event delivered to session subscribers.
// Data is the event payload with keys that vary by event type.
type SessionEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Content returns Data["content"] when present, for the common case of
// reading assistant message text.
func (e SessionEvent) Content() string {
	s, _ := e.Data["content"].(string)
	return s
}

// ErrMessage returns Data["message"] when present; session.error events
// carry their description there.
func (e SessionEvent) ErrMessage() string {
	s, _ := e.Data["message"].(string)
	return s
}

// SessionEventHandler receives session events in transport arrival order.
type SessionEventHandler func(event SessionEvent)

// LifecycleEventType tags a lifecycle notification.
type LifecycleEventType string

// Lifecycle event types: a session's existence or visibility changed.
const (
	LifecycleCreated    LifecycleEventType = "session.created"
	LifecycleDeleted    LifecycleEventType = "session.deleted"
	LifecycleUpdated    LifecycleEventType = "session.updated"
	LifecycleForeground LifecycleEventType = "session.foreground"
	LifecycleBackground LifecycleEventType = "session.background"
)

// LifecycleMetadata carries optional timestamps and summary for a lifecycle
// event.
type LifecycleMetadata struct {
	StartTime    string  `json:"startTime"`
	ModifiedTime string  `json:"modifiedTime"`
	Summary      *string `json:"summary,omitempty"`
}

// LifecycleEvent is a client-wide notification about a session's existence
// or visibility. It is ephemeral: the SDK dispatches it and drops it.
type LifecycleEvent struct {
	Type      LifecycleEventType `json:"type"`
	SessionID string             `json:"sessionId"`
	Metadata  *LifecycleMetadata `json:"metadata,omitempty"`
}

// LifecycleHandler receives lifecycle events.
type LifecycleHandler func(event LifecycleEvent)
