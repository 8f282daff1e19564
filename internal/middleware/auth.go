package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studytracker-backend/internal/models"
	"studytracker-backend/internal/services"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	UserKey   contextKey = "user"
)

// UserResolver maps a verified identity onto a local account.
type UserResolver interface {
	Resolve(ctx context.Context, identity models.Identity) (*models.User, error)
}

// JWTAuth verifies bearer tokens minted by the identity provider. Only HMAC
// signatures are accepted.
type JWTAuth struct {
	Secret   []byte
	Resolver UserResolver
}

func NewJWTAuth(secret string, resolver UserResolver) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret), Resolver: resolver}
}

// IssueToken signs a token for identity. The service never issues tokens to
// end users; this exists for operators and tests.
func (j *JWTAuth) IssueToken(identity models.Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   identity.Subject,
		"email": identity.Email,
		"name":  identity.Name,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ErrTokenExpired is returned by ParseToken for well-formed expired tokens.
var ErrTokenExpired = errors.New("token has expired")

// ParseToken verifies tokenStr and extracts the identity claims.
func (j *JWTAuth) ParseToken(tokenStr string) (models.Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, ErrTokenExpired
		}
		return models.Identity{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Identity{}, errors.New("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	if sub == "" {
		return models.Identity{}, errors.New("token has no subject")
	}
	return models.Identity{Subject: sub, Email: email, Name: name}, nil
}

// Authenticate resolves the account behind a raw token. The returned status
// and code describe the failure for the HTTP layer.
func (j *JWTAuth) Authenticate(ctx context.Context, tokenStr string) (*models.User, int, string, error) {
	identity, err := j.ParseToken(tokenStr)
	if errors.Is(err, ErrTokenExpired) {
		return nil, http.StatusUnauthorized, "TOKEN_EXPIRED", err
	}
	if err != nil {
		return nil, http.StatusUnauthorized, "UNAUTHORIZED", err
	}

	user, err := j.Resolver.Resolve(ctx, identity)
	if err != nil {
		var unauthorized *services.UnauthorizedError
		if errors.As(err, &unauthorized) {
			return nil, http.StatusUnauthorized, "UNAUTHORIZED", err
		}
		return nil, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", err
	}
	return user, http.StatusOK, "", nil
}

// Middleware validates the bearer token and attaches the user to the context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		// Must be Bearer format
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		user, status, code, err := j.Authenticate(r.Context(), parts[1])
		if err != nil {
			message := "Invalid token"
			switch code {
			case "TOKEN_EXPIRED":
				message = "Token has expired"
			case "STORE_UNAVAILABLE":
				message = "Service temporarily unavailable"
			}
			writeError(w, status, code, message, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser attaches user to ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	ctx = context.WithValue(ctx, UserKey, user)
	return context.WithValue(ctx, UserIDKey, user.ID)
}

// GetUserID extracts user_id from request context
func GetUserID(ctx context.Context) int64 {
	id, _ := ctx.Value(UserIDKey).(int64)
	return id
}

func GetUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(UserKey).(*models.User)
	return u
}

// RequireApproved rejects users an admin has not approved yet. Admins always
// pass. When enabled is false the gate is a no-op.
func RequireApproved(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := GetUser(r.Context())
			if u == nil || (!u.IsApproved && !u.IsAdmin) {
				writeError(w, http.StatusForbidden, "PENDING_APPROVAL", "Your account is waiting for admin approval", r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := GetUser(r.Context())
		if u == nil || !u.IsAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin access required", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: GetRequestID(r.Context()),
		},
	})
}
