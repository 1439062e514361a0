package server

import "github.com/danshapiro/gamecrew/internal/llm"

// ChatRequest is the POST /api/chat request body.
type ChatRequest struct {
	// Agent is the display name of the acting role.
	Agent string `json:"agent"`

	// UserInput may be empty; the gateway then sends a continuation prompt.
	UserInput string `json:"user_input"`

	// History is the full conversation so far, resent on every call.
	History []llm.Message `json:"history"`
}

// RolesResponse is returned by GET /api/roles.
type RolesResponse struct {
	Roles    []string `json:"roles"`
	Terminal string   `json:"terminal"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Model       string `json:"model,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Credentials bool   `json:"credentials"`
}

// ErrorResponse is a standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
