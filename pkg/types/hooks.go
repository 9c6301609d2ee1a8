package types

import "context"

// Hook type names as sent by the runtime in hooks.invoke.
const (
	HookPreToolUse          = "preToolUse"
	HookPostToolUse         = "postToolUse"
	HookUserPromptSubmitted = "userPromptSubmitted"
	HookSessionStart        = "sessionStart"
	HookSessionEnd          = "sessionEnd"
	HookErrorOccurred       = "errorOccurred"
)

// HookInvocation identifies the session a hook invocation targets.
type HookInvocation struct {
	SessionID string
}

// HookHandler observes or modifies a point in the session lifecycle. Input
// and output shapes vary by hook type and are passed through untyped. A nil
// output means the hook has nothing to contribute.
type HookHandler func(ctx context.Context, input map[string]any, inv HookInvocation) (map[string]any, error)

// Hooks maps the runtime's hook points to caller-supplied handlers. Any
// field may be nil; an uninstalled hook yields no output.
type Hooks struct {
	PreToolUse          HookHandler
	PostToolUse         HookHandler
	UserPromptSubmitted HookHandler
	SessionStart        HookHandler
	SessionEnd          HookHandler
	ErrorOccurred       HookHandler
}

// Empty reports whether no handler is installed.
func (h *Hooks) Empty() bool {
	return h == nil || (h.PreToolUse == nil && h.PostToolUse == nil &&
		h.UserPromptSubmitted == nil && h.SessionStart == nil &&
		h.SessionEnd == nil && h.ErrorOccurred == nil)
}

// ByType returns the handler registered for the given hook type name, or nil
// when the type is unknown or the hook is not installed.
func (h *Hooks) ByType(hookType string) HookHandler {
	if h == nil {
		return nil
	}
	switch hookType {
	case HookPreToolUse:
		return h.PreToolUse
	case HookPostToolUse:
		return h.PostToolUse
	case HookUserPromptSubmitted:
		return h.UserPromptSubmitted
	case HookSessionStart:
		return h.SessionStart
	case HookSessionEnd:
		return h.SessionEnd
	case HookErrorOccurred:
		return h.ErrorOccurred
	default:
		return nil
	}
}
