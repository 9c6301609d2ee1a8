package types

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksByType(t *testing.T) {
	called := ""
	mk := func(name string) HookHandler {
		return func(ctx context.Context, input map[string]any, inv HookInvocation) (map[string]any, error) {
			called = name
			return nil, nil
		}
	}
	h := &Hooks{
		PreToolUse: mk("pre"),
		SessionEnd: mk("end"),
	}

	require.NotNil(t, h.ByType(HookPreToolUse))
	h.ByType(HookPreToolUse)(context.Background(), nil, HookInvocation{})
	assert.Equal(t, "pre", called)

	assert.Nil(t, h.ByType(HookPostToolUse))
	assert.Nil(t, h.ByType("somethingNew"))

	var nilHooks *Hooks
	assert.Nil(t, nilHooks.ByType(HookPreToolUse))
}

func TestHooksEmpty(t *testing.T) {
	var nilHooks *Hooks
	assert.True(t, nilHooks.Empty())
	assert.True(t, (&Hooks{}).Empty())
	assert.False(t, (&Hooks{ErrorOccurred: func(ctx context.Context, input map[string]any, inv HookInvocation) (map[string]any, error) {
		return nil, nil
	}}).Empty())
}

func TestPermissionRequestAccessors(t *testing.T) {
	req := PermissionRequest{"kind": "write", "toolCallId": "c1", "path": "/tmp/x"}
	assert.Equal(t, "write", req.Kind())
	assert.Equal(t, "c1", req.ToolCallID())

	empty := PermissionRequest{}
	assert.Equal(t, "", empty.Kind())
	assert.Equal(t, "", empty.ToolCallID())
}

func TestSessionEventHelpers(t *testing.T) {
	ev := SessionEvent{
		Type: EventAssistantMessage,
		Data: map[string]any{"content": "hello"},
	}
	assert.Equal(t, "hello", ev.Content())
	assert.Equal(t, "", ev.ErrMessage())

	errEv := SessionEvent{
		Type: EventSessionError,
		Data: map[string]any{"message": "model unavailable"},
	}
	assert.Equal(t, "model unavailable", errEv.ErrMessage())

	assert.Equal(t, "", SessionEvent{}.Content())
}

func TestToolResultWireNames(t *testing.T) {
	data, err := json.Marshal(ToolResult{
		TextResultForLLM: "ok",
		ResultType:       ToolResultSuccess,
	})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "ok", m["textResultForLlm"])
	assert.Equal(t, "success", m["resultType"])
	assert.NotContains(t, m, "error")
}

func TestLifecycleEventDecoding(t *testing.T) {
	payload := `{"type":"session.foreground","sessionId":"s1","metadata":{"startTime":"2026-01-01T00:00:00Z","modifiedTime":"2026-01-02T00:00:00Z","summary":"fix the build"}}`

	var ev LifecycleEvent
	require.NoError(t, json.Unmarshal([]byte(payload), &ev))
	assert.Equal(t, LifecycleForeground, ev.Type)
	assert.Equal(t, "s1", ev.SessionID)
	require.NotNil(t, ev.Metadata)
	require.NotNil(t, ev.Metadata.Summary)
	assert.Equal(t, "fix the build", *ev.Metadata.Summary)
}
