package types

import "context"

// Tool is a caller-implemented capability exposed to the runtime. The runtime
// decides when to call it; the SDK routes the call back to Handler.
type Tool struct {
	// Name identifies the tool to the model. Required.
	Name string
	// Description tells the model what the tool does.
	Description string
	// Parameters is a JSON-schema object describing the tool arguments.
	Parameters map[string]any
	// Handler executes the tool. Required.
	Handler ToolHandler
}

// ToolInvocation is the per-call record passed to a ToolHandler.
type ToolInvocation struct {
	SessionID  string
	ToolCallID string
	ToolName   string
	Arguments  any
}

// ToolHandler executes a tool invocation. Returning an error marks the
// execution as failed; the error text is reported to the caller-visible
// diagnostic field only, never to the model.
type ToolHandler func(ctx context.Context, inv ToolInvocation) (ToolResult, error)

// Tool result types reported to the runtime.
const (
	ToolResultSuccess = "success"
	ToolResultFailure = "failure"
)

// ToolResult is the outcome of a tool invocation as reported to the runtime.
type ToolResult struct {
	// TextResultForLLM is the text surfaced to the model.
	TextResultForLLM string `json:"textResultForLlm"`
	// ResultType is ToolResultSuccess or ToolResultFailure.
	ResultType string `json:"resultType"`
	// Error carries diagnostic detail for failures. It is not shown to the
	// model.
	Error string `json:"error,omitempty"`
	// SessionLog is optional text appended to the session log.
	SessionLog string `json:"sessionLog,omitempty"`
	// ToolTelemetry carries arbitrary telemetry back to the runtime.
	ToolTelemetry map[string]any `json:"toolTelemetry,omitempty"`
}
