package agentmux

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentmux/agentmux/pkg/types"
)

// SessionConfig configures a new or resumed session. Every field is
// optional; unset fields are omitted from the request so the runtime's own
// defaults apply.
type SessionConfig struct {
	// Model selects the model backing the session.
	Model string
	// SessionID requests a specific id instead of a generated one.
	SessionID string
	// ReasoningEffort tunes reasoning-capable models ("low", "medium", "high").
	ReasoningEffort string
	// SystemMessage replaces the runtime's default system message.
	SystemMessage string
	// Tools are caller-implemented capabilities exposed to the agent. Tools
	// without a name or handler are skipped.
	Tools []types.Tool
	// AvailableTools restricts the runtime's built-in tools to this set.
	AvailableTools []string
	// ExcludedTools removes built-in tools from the session.
	ExcludedTools []string
	// OnPermissionRequest decides permission requests for this session.
	// Without one every request is denied.
	OnPermissionRequest types.PermissionHandler
	// OnUserInputRequest answers the runtime's questions to the user.
	// Without one user-input requests fail.
	OnUserInputRequest types.UserInputHandler
	// Hooks observe or modify points in the session lifecycle.
	Hooks *types.Hooks
	// WorkingDirectory is the session's working directory on the runtime side.
	WorkingDirectory string
	// Streaming enables incremental assistant message events.
	Streaming *bool
	// Provider is an opaque model-provider configuration passed through to
	// the runtime.
	Provider map[string]any
	// MCPServers configures MCP servers the runtime should connect to,
	// passed through opaquely.
	MCPServers map[string]any
	// CustomAgents defines additional agent profiles, passed through opaquely.
	CustomAgents []map[string]any
	// ConfigDir overrides the runtime's configuration directory.
	ConfigDir string
	// SkillDirectories adds directories the runtime loads skills from.
	SkillDirectories []string
	// DisabledSkills disables skills by name.
	DisabledSkills []string
	// InfiniteSessions enables persistent session mode: an on-disk workspace
	// plus automatic context compaction. The workspace path comes back on
	// the created session.
	InfiniteSessions *bool
}

// payload builds the outbound request body, including only the fields that
// are set.
func (cfg *SessionConfig) payload() map[string]any {
	p := map[string]any{}
	if cfg == nil {
		return p
	}
	if cfg.Model != "" {
		p["model"] = cfg.Model
	}
	if cfg.SessionID != "" {
		p["sessionId"] = cfg.SessionID
	}
	if cfg.ReasoningEffort != "" {
		p["reasoningEffort"] = cfg.ReasoningEffort
	}
	if cfg.SystemMessage != "" {
		p["systemMessage"] = cfg.SystemMessage
	}
	if tools := toolDeclarations(cfg.Tools); len(tools) > 0 {
		p["tools"] = tools
	}
	if len(cfg.AvailableTools) > 0 {
		p["availableTools"] = cfg.AvailableTools
	}
	if len(cfg.ExcludedTools) > 0 {
		p["excludedTools"] = cfg.ExcludedTools
	}
	if cfg.OnPermissionRequest != nil {
		p["requestPermission"] = true
	}
	if cfg.OnUserInputRequest != nil {
		p["requestUserInput"] = true
	}
	if !cfg.Hooks.Empty() {
		p["hooks"] = installedHookTypes(cfg.Hooks)
	}
	if cfg.WorkingDirectory != "" {
		p["workingDirectory"] = cfg.WorkingDirectory
	}
	if cfg.Streaming != nil {
		p["streaming"] = *cfg.Streaming
	}
	if len(cfg.Provider) > 0 {
		p["provider"] = cfg.Provider
	}
	if len(cfg.MCPServers) > 0 {
		p["mcpServers"] = cfg.MCPServers
	}
	if len(cfg.CustomAgents) > 0 {
		p["customAgents"] = cfg.CustomAgents
	}
	if cfg.ConfigDir != "" {
		p["configDir"] = cfg.ConfigDir
	}
	if len(cfg.SkillDirectories) > 0 {
		p["skillDirectories"] = cfg.SkillDirectories
	}
	if len(cfg.DisabledSkills) > 0 {
		p["disabledSkills"] = cfg.DisabledSkills
	}
	if cfg.InfiniteSessions != nil {
		p["infiniteSessions"] = *cfg.InfiniteSessions
	}
	return p
}

// toolDeclarations is the wire form of the tool table: name, description and
// schema only. Handlers stay local.
func toolDeclarations(tools []types.Tool) []map[string]any {
	decls := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		if t.Name == "" || t.Handler == nil {
			continue
		}
		decl := map[string]any{"name": t.Name}
		if t.Description != "" {
			decl["description"] = t.Description
		}
		if t.Parameters != nil {
			decl["parameters"] = t.Parameters
		}
		decls = append(decls, decl)
	}
	return decls
}

func installedHookTypes(h *types.Hooks) []string {
	var names []string
	for _, name := range []string{
		types.HookPreToolUse, types.HookPostToolUse, types.HookUserPromptSubmitted,
		types.HookSessionStart, types.HookSessionEnd, types.HookErrorOccurred,
	} {
		if h.ByType(name) != nil {
			names = append(names, name)
		}
	}
	return names
}

// ResumeConfig configures resuming an existing remote session. The embedded
// SessionConfig's SessionID field is ignored; the id is passed explicitly.
type ResumeConfig struct {
	SessionConfig
	// DisableResume suppresses the runtime's resume-event emission.
	DisableResume bool
}

type sessionCreated struct {
	SessionID     string  `json:"sessionId"`
	WorkspacePath *string `json:"workspacePath,omitempty"`
}

// CreateSession creates a remote session and returns its local handle with
// all handlers from cfg wired in. A nil cfg uses runtime defaults for
// everything.
func (c *Client) CreateSession(ctx context.Context, cfg *SessionConfig) (*Session, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := conn.Request(ctx, "session.create", cfg.payload())
	if err != nil {
		return nil, err
	}
	var resp sessionCreated
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, errors.New("agentmux: runtime returned an empty session id")
	}
	return c.registerSession(resp.SessionID, cfg, resp.WorkspacePath), nil
}

// ResumeSession attaches to an existing remote session by id. It differs
// from CreateSession only in targeting an existing id and accepting
// DisableResume.
func (c *Client) ResumeSession(ctx context.Context, sessionID string, cfg *ResumeConfig) (*Session, error) {
	if sessionID == "" {
		return nil, errors.New("agentmux: resume requires a session id")
	}
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	var sessionCfg *SessionConfig
	payload := map[string]any{}
	if cfg != nil {
		sessionCfg = &cfg.SessionConfig
		payload = sessionCfg.payload()
		if cfg.DisableResume {
			payload["disableResume"] = true
		}
	}
	payload["sessionId"] = sessionID

	raw, err := conn.Request(ctx, "session.resume", payload)
	if err != nil {
		return nil, err
	}
	var resp sessionCreated
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID != "" && resp.SessionID != sessionID {
		return nil, fmt.Errorf("agentmux: runtime resumed session %s instead of %s", resp.SessionID, sessionID)
	}
	return c.registerSession(sessionID, sessionCfg, resp.WorkspacePath), nil
}

// registerSession builds the local handle, wires its handler tables from
// cfg, and inserts it into the registry.
func (c *Client) registerSession(id string, cfg *SessionConfig, workspacePath *string) *Session {
	s := newSession(id, c)
	if workspacePath != nil {
		s.workspacePath = *workspacePath
	}
	if cfg != nil {
		s.registerTools(cfg.Tools)
		s.setPermissionHandler(cfg.OnPermissionRequest)
		s.setUserInputHandler(cfg.OnUserInputRequest)
		s.setHooks(cfg.Hooks)
	}

	c.sessionsMu.Lock()
	c.sessions[id] = s
	c.sessionsMu.Unlock()
	return s
}
