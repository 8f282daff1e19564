package models

import (
	"time"
)

type User struct {
	ID                  int64     `json:"id"`
	ExternalID          string    `json:"-"`
	Email               string    `json:"email"`
	Name                string    `json:"name"`
	IsApproved          bool      `json:"is_approved"`
	IsAdmin             bool      `json:"is_admin"`
	ApprovalRequestedAt time.Time `json:"approval_requested_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// Identity is the verified subject presented by the external identity provider.
type Identity struct {
	Subject string
	Email   string
	Name    string
}
