package types

// PingResponse echoes a ping. ProtocolVersion is nil on runtimes predating
// the version handshake; the client treats that as a fatal mismatch.
type PingResponse struct {
	Message         string `json:"message"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion *int   `json:"protocolVersion,omitempty"`
}

// StatusResponse reports the runtime's version information.
type StatusResponse struct {
	Version         string `json:"version"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// AuthStatus reports the runtime's current authentication state.
type AuthStatus struct {
	IsAuthenticated bool    `json:"isAuthenticated"`
	AuthType        *string `json:"authType,omitempty"`
	Host            *string `json:"host,omitempty"`
	Login           *string `json:"login,omitempty"`
	StatusMessage   *string `json:"statusMessage,omitempty"`
}

// SessionMetadata describes a session known to the runtime, whether or not
// this client holds a handle to it.
type SessionMetadata struct {
	SessionID    string  `json:"sessionId"`
	StartTime    string  `json:"startTime"`
	ModifiedTime string  `json:"modifiedTime"`
	Summary      *string `json:"summary,omitempty"`
	IsRemote     bool    `json:"isRemote"`
}
