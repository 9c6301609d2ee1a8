package types

import "context"

// UserInputRequest is a question the runtime wants answered by the user.
type UserInputRequest struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices,omitempty"`
	AllowFreeform bool     `json:"allowFreeform,omitempty"`
}

// UserInputInvocation identifies the session a user-input request targets.
type UserInputInvocation struct {
	SessionID string
}

// UserInputResponse is the user's answer.
type UserInputResponse struct {
	Answer      string `json:"answer"`
	WasFreeform bool   `json:"wasFreeform"`
}

// UserInputHandler answers a user-input request. There is no safe default
// for "what did the user answer", so sessions without a handler reject these
// requests outright.
type UserInputHandler func(ctx context.Context, req UserInputRequest, inv UserInputInvocation) (UserInputResponse, error)
