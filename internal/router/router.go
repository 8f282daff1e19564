package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"studytracker-backend/internal/handlers"
	"studytracker-backend/internal/metrics"
	"studytracker-backend/internal/middleware"
	"studytracker-backend/internal/websocket"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	JWTAuth         *middleware.JWTAuth
	RequireApproval bool
	RateLimiter     *middleware.RateLimiter

	StudySessions *handlers.StudySessionHandler
	Dashboard     *handlers.DashboardHandler
	Books         *handlers.BookHandler
	Users         *handlers.UserHandler
	Hub           *websocket.Hub

	Store       Pinger
	FrontendURL string
	Logger      zerolog.Logger
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.FrontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := d.Store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ──── WebSocket (token in query) ────
		r.Get("/ws", d.Hub.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			if d.RateLimiter != nil {
				r.Use(d.RateLimiter.Middleware)
			}

			// Pending users may still see who they are.
			r.Get("/user/me", d.Users.GetMe)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireApproved(d.RequireApproval))

				// ──── Study Session Routes ────
				r.Route("/study-sessions", func(r chi.Router) {
					r.Post("/start", d.StudySessions.Start)
					r.Post("/stop", d.StudySessions.Stop)
					r.Get("/current", d.StudySessions.Current)
					r.Get("/", d.StudySessions.History)
				})

				r.Get("/leaderboard", d.StudySessions.Leaderboard)
				r.Get("/dashboard", d.Dashboard.Get)

				// ──── Book Routes ────
				r.Route("/books", func(r chi.Router) {
					r.Get("/", d.Books.List)
					r.Post("/", d.Books.Create)
					r.Get("/{id}/sessions", d.Books.Sessions)
				})
			})

			// ──── Admin Routes ────
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/users", d.Users.List)
				r.Post("/users/{id}/approve", d.Users.Approve)
				r.Post("/users/{id}/revoke", d.Users.Revoke)
			})
		})
	})

	return r
}
