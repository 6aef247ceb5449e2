package api

import "time"

// CreateSessionResponse represents the response payload for session creation
type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChatRequest represents the request payload for a text chat turn
type ChatRequest struct {
	Message string `json:"message" validate:"required"`
}

// ChatResponse represents the response payload for a text chat turn
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
