package handlers

import (
	"net/http"

	"studytracker-backend/internal/middleware"
	"studytracker-backend/internal/services"
)

type DashboardHandler struct {
	tracker sessionTracker
	books   bookService
}

func NewDashboardHandler(tracker sessionTracker, books bookService) *DashboardHandler {
	return &DashboardHandler{tracker: tracker, books: books}
}

// Get returns the user's latest books and sessions alongside the running
// session, if any.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	books, err := h.books.List(ctx, userID, services.DashboardBooksLimit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	sessions, err := h.tracker.RecentSessions(ctx, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	current, err := h.tracker.GetCurrentSession(ctx, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":            middleware.GetUser(ctx),
		"recent_books":    books,
		"recent_sessions": sessions,
		"current_session": current,
	})
}
