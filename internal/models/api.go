package models

import (
	"time"
)

// WebSocket message types
const (
	EventSessionStarted = "session_started"
	EventSessionClosed  = "session_closed" // closed implicitly by the next start
	EventSessionStopped = "session_stopped"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type SessionEvent struct {
	SessionID       int64      `json:"session_id"`
	UserID          int64      `json:"user_id"`
	Subject         string     `json:"subject"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
