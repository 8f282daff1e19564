package models

import (
	"time"
)

type StudySession struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	Subject         string     `json:"subject"`
	BookID          *int64     `json:"book_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes"`
	Notes           *string    `json:"notes,omitempty"`
}

// IsOpen reports whether the session is still running.
func (s *StudySession) IsOpen() bool {
	return s.EndTime == nil
}

// SessionHandle is returned when a session is opened.
type SessionHandle struct {
	SessionID int64     `json:"session_id"`
	StartTime time.Time `json:"start_time"`
}

type StopResult struct {
	SessionID       int64     `json:"session_id"`
	DurationMinutes int       `json:"duration"`
	EndTime         time.Time `json:"end_time"`
	Clamped         bool      `json:"clamped"`
}

type CurrentStatus struct {
	Active         bool       `json:"active"`
	SessionID      int64      `json:"session_id,omitempty"`
	Subject        string     `json:"subject,omitempty"`
	ElapsedSeconds *int64     `json:"elapsed_seconds,omitempty"` // set whenever Active
	StartTime      *time.Time `json:"start_time,omitempty"`
}

type SubjectDuration struct {
	Subject         string
	DurationMinutes int
}
