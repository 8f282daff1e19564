package models

import "time"

type Book struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	Title    string    `json:"title"`
	Author   *string   `json:"author"`
	Summary  *string   `json:"summary"`
	DateRead time.Time `json:"date_read"`
}

type CreateBookRequest struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Summary string `json:"summary"`
}
