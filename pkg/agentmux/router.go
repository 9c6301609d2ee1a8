package agentmux

import (
	"context"
	"fmt"

	"github.com/agentmux/agentmux/internal/rpc"
	"github.com/agentmux/agentmux/pkg/types"
)

// Fail-closed defaults for inbound requests. When a handler is missing,
// errors or panics, the router answers with these instead of propagating:
// tool calls fail with a generic model-visible text, permission requests are
// denied, hook invocations contribute nothing. User-input requests are the
// exception: with no safe default answer they fail hard back to the runtime.
const (
	failedToolText      = "Invoking this tool produced an error. Detailed information is not available."
	unsupportedToolText = "Tool '%s' is not supported by this client instance."
)

// bindInbound registers the inbound request and notification routes on a
// fresh connection.
func (c *Client) bindInbound(conn *rpc.Conn) {
	conn.SetRequestHandler("tool.call", c.handleToolCall)
	conn.SetRequestHandler("permission.request", c.handlePermissionRequest)
	conn.SetRequestHandler("userInput.request", c.handleUserInputRequest)
	conn.SetRequestHandler("hooks.invoke", c.handleHooksInvoke)
	conn.SetNotificationHandler(c.handleNotification)
}

// resolveSession extracts the target session for an inbound request. The
// registry lock is held for the lookup only; the caller invokes handlers
// after it is released.
func (c *Client) resolveSession(params map[string]any) (*Session, *rpc.RemoteError) {
	id, ok := stringField(params, "sessionId")
	if !ok {
		return nil, &rpc.RemoteError{Code: rpc.CodeInvalidParams, Message: "missing required field: sessionId"}
	}
	s, ok := c.lookupSession(id)
	if !ok {
		return nil, &rpc.RemoteError{Code: rpc.CodeInvalidParams, Message: fmt.Sprintf("unknown session: %s", id)}
	}
	return s, nil
}

func (c *Client) handleToolCall(ctx context.Context, params map[string]any) (any, *rpc.RemoteError) {
	s, rerr := c.resolveSession(params)
	if rerr != nil {
		return nil, rerr
	}
	toolCallID, ok := stringField(params, "toolCallId")
	if !ok {
		return nil, &rpc.RemoteError{Code: rpc.CodeInvalidParams, Message: "missing required field: toolCallId"}
	}
	toolName, ok := stringField(params, "toolName")
	if !ok {
		return nil, &rpc.RemoteError{Code: rpc.CodeInvalidParams, Message: "missing required field: toolName"}
	}

	tool, found := s.toolByName(toolName)
	if !found {
		// A normal outcome the runtime handles, not a protocol error.
		return toolResponse(types.ToolResult{
			TextResultForLLM: fmt.Sprintf(unsupportedToolText, toolName),
			ResultType:       types.ToolResultFailure,
		}), nil
	}

	inv := types.ToolInvocation{
		SessionID:  s.ID,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Arguments:  params["arguments"],
	}
	result, err := invokeTool(ctx, tool.Handler, inv)
	if err != nil {
		c.log.Debug().
			Str("session_id", s.ID).
			Str("tool", toolName).
			Err(err).
			Msg("tool handler failed")
		// The model-visible text stays generic; the real error goes to the
		// diagnostic field only.
		return toolResponse(types.ToolResult{
			TextResultForLLM: failedToolText,
			ResultType:       types.ToolResultFailure,
			Error:            err.Error(),
		}), nil
	}
	if result.ResultType == "" {
		result.ResultType = types.ToolResultSuccess
	}
	return toolResponse(result), nil
}

func toolResponse(result types.ToolResult) map[string]any {
	return map[string]any{"result": result}
}

func invokeTool(ctx context.Context, handler types.ToolHandler, inv types.ToolInvocation) (result types.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool handler panicked: %v", r)
		}
	}()
	return handler(ctx, inv)
}

func (c *Client) handlePermissionRequest(ctx context.Context, params map[string]any) (any, *rpc.RemoteError) {
	s, rerr := c.resolveSession(params)
	if rerr != nil {
		return nil, rerr
	}
	rawReq, ok := params["permissionRequest"].(map[string]any)
	if !ok {
		return nil, &rpc.RemoteError{Code: rpc.CodeInvalidParams, Message: "missing required field: permissionRequest"}
	}

	denied := map[string]any{"result": types.PermissionResult{Kind: types.PermissionDeniedNoRule}}

	handler := s.permissionHandler()
	if handler == nil {
		return denied, nil
	}
	result, err := invokePermission(ctx, handler, types.PermissionRequest(rawReq), types.PermissionInvocation{SessionID: s.ID})
	if err != nil {
		c.log.Debug().Str("session_id", s.ID).Err(err).Msg("permission handler failed, denying")
		return denied, nil
	}
	return map[string]any{"result": result}, nil
}

func invokePermission(ctx context.Context, handler types.PermissionHandler, req types.PermissionRequest, inv types.PermissionInvocation) (result types.PermissionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("permission handler panicked: %v", r)
		}
	}()
	return handler(ctx, req, inv)
}

func (c *Client) handleUserInputRequest(ctx context.Context, params map[string]any) (any, *rpc.RemoteError) {
	s, rerr := c.resolveSession(params)
	if rerr != nil {
		return nil, rerr
	}
	question, ok := stringField(params, "question")
	if !ok {
		return nil, &rpc.RemoteError{Code: rpc.CodeInvalidParams, Message: "missing required field: question"}
	}

	handler := s.userInputHandler()
	if handler == nil {
		return nil, &rpc.RemoteError{
			Code:    rpc.CodeInternal,
			Message: fmt.Sprintf("session %s has no user input handler", s.ID),
		}
	}

	req := types.UserInputRequest{Question: question}
	if choices, ok := params["choices"].([]any); ok {
		for _, choice := range choices {
			if text, ok := choice.(string); ok {
				req.Choices = append(req.Choices, text)
			}
		}
	}
	if allow, ok := params["allowFreeform"].(bool); ok {
		req.AllowFreeform = allow
	}

	resp, err := handler(ctx, req, types.UserInputInvocation{SessionID: s.ID})
	if err != nil {
		return nil, &rpc.RemoteError{Code: rpc.CodeInternal, Message: fmt.Sprintf("user input handler: %v", err)}
	}
	return map[string]any{"answer": resp.Answer, "wasFreeform": resp.WasFreeform}, nil
}

func (c *Client) handleHooksInvoke(ctx context.Context, params map[string]any) (any, *rpc.RemoteError) {
	s, rerr := c.resolveSession(params)
	if rerr != nil {
		return nil, rerr
	}
	hookType, ok := stringField(params, "hookType")
	if !ok {
		return nil, &rpc.RemoteError{Code: rpc.CodeInvalidParams, Message: "missing required field: hookType"}
	}
	input, _ := params["input"].(map[string]any)

	// When there is nothing to contribute the output key is omitted
	// entirely; the runtime treats its absence as "no output".
	empty := map[string]any{}

	handler := s.hookByType(hookType)
	if handler == nil {
		return empty, nil
	}
	output, err := invokeHook(ctx, handler, input, types.HookInvocation{SessionID: s.ID})
	if err != nil {
		c.log.Debug().
			Str("session_id", s.ID).
			Str("hook", hookType).
			Err(err).
			Msg("hook handler failed, dropping output")
		return empty, nil
	}
	if output == nil {
		return empty, nil
	}
	return map[string]any{"output": output}, nil
}

func invokeHook(ctx context.Context, handler types.HookHandler, input map[string]any, inv types.HookInvocation) (output map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook handler panicked: %v", r)
		}
	}()
	return handler(ctx, input, inv)
}

// handleNotification runs on the read loop, so events for one session reach
// subscribers in transport arrival order.
func (c *Client) handleNotification(method string, params map[string]any) {
	switch method {
	case "session.event":
		c.dispatchSessionEvent(params)
	case "session.lifecycle":
		c.dispatchLifecycle(params)
	default:
		c.log.Debug().Str("method", method).Msg("ignoring unknown notification")
	}
}

func (c *Client) dispatchSessionEvent(params map[string]any) {
	id, ok := stringField(params, "sessionId")
	if !ok {
		c.log.Debug().Msg("dropping session.event without sessionId")
		return
	}
	s, ok := c.lookupSession(id)
	if !ok {
		c.log.Debug().Str("session_id", id).Msg("dropping event for unknown session")
		return
	}

	var ev types.SessionEvent
	if raw, ok := params["event"].(map[string]any); ok {
		if err := decodeMap(raw, &ev); err != nil {
			c.log.Debug().Str("session_id", id).Err(err).Msg("dropping unparseable session event")
			return
		}
	}
	s.dispatchEvent(ev)
}

func (c *Client) dispatchLifecycle(params map[string]any) {
	var ev types.LifecycleEvent
	if err := decodeMap(params, &ev); err != nil {
		c.log.Debug().Err(err).Msg("dropping unparseable lifecycle event")
		return
	}
	if ev.Type == "" || ev.SessionID == "" {
		c.log.Debug().Msg("dropping lifecycle event without type or sessionId")
		return
	}
	c.lifecycle.Publish(ev)
}
