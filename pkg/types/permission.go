package types

import "context"

// PermissionDeniedNoRule is the fail-closed permission result kind: no
// approval rule matched and the user could not be asked. Any ambiguity or
// handler failure resolves to this kind, never to an implicit approval.
const PermissionDeniedNoRule = "denied-no-approval-rule-and-could-not-request-from-user"

// PermissionRequest is the raw permission request payload from the runtime.
// The shape varies by kind; the documented common keys are "kind" and
// "toolCallId".
type PermissionRequest map[string]any

// Kind returns the request's "kind" field, or "" when absent.
func (r PermissionRequest) Kind() string {
	kind, _ := r["kind"].(string)
	return kind
}

// ToolCallID returns the request's "toolCallId" field, or "" when absent.
func (r PermissionRequest) ToolCallID() string {
	id, _ := r["toolCallId"].(string)
	return id
}

// PermissionInvocation identifies the session a permission request targets.
type PermissionInvocation struct {
	SessionID string
}

// PermissionResult is the decision returned to the runtime.
type PermissionResult struct {
	Kind  string `json:"kind"`
	Rules []any  `json:"rules,omitempty"`
}

// PermissionHandler decides a permission request. Returning an error, like
// having no handler at all, denies the request.
type PermissionHandler func(ctx context.Context, req PermissionRequest, inv PermissionInvocation) (PermissionResult, error)
