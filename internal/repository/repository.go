package repository

import (
	"context"
	"errors"

	"studytracker-backend/internal/models"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("repository: record not found")

// SessionWriter is the subset of session operations allowed inside a per-user
// transaction.
type SessionWriter interface {
	FindOpenSession(ctx context.Context, userID int64) (*models.StudySession, error)
	InsertSession(ctx context.Context, s *models.StudySession) error
	UpdateSession(ctx context.Context, s *models.StudySession) error
}

// StudySessionRepository manages study sessions.
type StudySessionRepository interface {
	SessionWriter

	// WithUserLock runs fn atomically with respect to every other
	// WithUserLock call for the same user.
	WithUserLock(ctx context.Context, userID int64, fn func(tx SessionWriter) error) error

	ClosedDurationsByUser(ctx context.Context) (map[int64][]int, error)
	ClosedSessionsForUser(ctx context.Context, userID int64) ([]models.SubjectDuration, error)
	ListClosedSessions(ctx context.Context, userID int64, limit int) ([]models.StudySession, error)
	SessionsForBook(ctx context.Context, bookID int64) ([]models.StudySession, error)
}

// UserRepository manages user accounts and their approval state.
type UserRepository interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	ListPendingUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	EnsureUser(ctx context.Context, identity models.Identity) (*models.User, error)
	SetApproval(ctx context.Context, id int64, approved bool) error
	SetAdmin(ctx context.Context, id int64, admin bool) error
}

// BookRepository manages the books a user has read.
type BookRepository interface {
	CreateBook(ctx context.Context, b *models.Book) error
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	BooksForUser(ctx context.Context, userID int64, limit int) ([]models.Book, error)
}

// Store is the root storage interface.
type Store interface {
	StudySessionRepository
	UserRepository
	BookRepository
	Ping(ctx context.Context) error
	Close() error
}
