package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"studytracker-backend/internal/models"
	"studytracker-backend/internal/repository"
)

// IdentityService maps verified token subjects onto local user accounts and
// runs the approval workflow.
type IdentityService struct {
	users  repository.UserRepository
	cache  *expirable.LRU[string, *models.User]
	logger zerolog.Logger
}

func NewIdentityService(users repository.UserRepository, cacheSize int, cacheTTL time.Duration, logger zerolog.Logger) *IdentityService {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &IdentityService{
		users:  users,
		cache:  expirable.NewLRU[string, *models.User](cacheSize, nil, cacheTTL),
		logger: logger.With().Str("component", "identity").Logger(),
	}
}

// Resolve returns the account for a verified identity, creating it on first
// sight. New accounts start unapproved.
func (s *IdentityService) Resolve(ctx context.Context, identity models.Identity) (*models.User, error) {
	identity.Subject = strings.TrimSpace(identity.Subject)
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	if identity.Subject == "" || identity.Email == "" {
		return nil, &UnauthorizedError{Message: "Token is missing subject or email"}
	}

	if u, ok := s.cache.Get(identity.Subject); ok {
		return u, nil
	}

	u, err := s.users.EnsureUser(ctx, identity)
	if err != nil {
		return nil, storeUnavailable("resolve user", err)
	}
	s.cache.Add(identity.Subject, u)

	if !u.IsApproved {
		s.logger.Debug().Int64("user_id", u.ID).Str("email", u.Email).Msg("Resolved user pending approval")
	}
	return u, nil
}

func (s *IdentityService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return nil, storeUnavailable("get user", err)
	}
	return u, nil
}

func (s *IdentityService) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return nil, storeUnavailable("get user", err)
	}
	return u, nil
}

// ListUsers returns every account, or only those awaiting approval.
func (s *IdentityService) ListUsers(ctx context.Context, pendingOnly bool) ([]models.User, error) {
	var (
		users []models.User
		err   error
	)
	if pendingOnly {
		users, err = s.users.ListPendingUsers(ctx)
	} else {
		users, err = s.users.ListUsers(ctx)
	}
	if err != nil {
		return nil, storeUnavailable("list users", err)
	}
	return users, nil
}

func (s *IdentityService) Approve(ctx context.Context, id int64) (*models.User, error) {
	return s.update(ctx, id, "approved", func() error { return s.users.SetApproval(ctx, id, true) })
}

func (s *IdentityService) Revoke(ctx context.Context, id int64) (*models.User, error) {
	return s.update(ctx, id, "revoked", func() error { return s.users.SetApproval(ctx, id, false) })
}

func (s *IdentityService) SetAdmin(ctx context.Context, id int64, admin bool) (*models.User, error) {
	action := "admin_granted"
	if !admin {
		action = "admin_removed"
	}
	return s.update(ctx, id, action, func() error { return s.users.SetAdmin(ctx, id, admin) })
}

func (s *IdentityService) update(ctx context.Context, id int64, action string, write func() error) (*models.User, error) {
	err := write()
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return nil, storeUnavailable(action, err)
	}
	s.forget(id)

	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", id).Str("email", u.Email).Str("action", action).Msg("User updated")
	return u, nil
}

// forget drops every cached entry for the user so the next request sees the
// new flags.
func (s *IdentityService) forget(id int64) {
	for _, key := range s.cache.Keys() {
		if u, ok := s.cache.Peek(key); ok && u.ID == id {
			s.cache.Remove(key)
		}
	}
}
