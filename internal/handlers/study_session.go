package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"studytracker-backend/internal/middleware"
	"studytracker-backend/internal/models"
	"studytracker-backend/internal/services"
)

type sessionTracker interface {
	StartSession(ctx context.Context, req services.StartSessionRequest) (*models.SessionHandle, error)
	StopSession(ctx context.Context, req services.StopSessionRequest) (*models.StopResult, error)
	GetCurrentSession(ctx context.Context, userID int64) (*models.CurrentStatus, error)
	SessionHistory(ctx context.Context, userID int64, limit int) ([]models.StudySession, error)
	RecentSessions(ctx context.Context, userID int64) ([]models.StudySession, error)
	SessionsForBook(ctx context.Context, userID, bookID int64) ([]models.StudySession, error)
	ComputeLeaderboard(ctx context.Context, userID int64) (*models.Leaderboard, error)
}

type StudySessionHandler struct {
	tracker sessionTracker
}

func NewStudySessionHandler(tracker sessionTracker) *StudySessionHandler {
	return &StudySessionHandler{tracker: tracker}
}

// looseID accepts a JSON string, number or null. Clients send book ids both
// ways.
type looseID string

func (id *looseID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = looseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// Anything else is treated as no book.
		*id = ""
		return nil
	}
	*id = looseID(n.String())
	return nil
}

type startSessionRequest struct {
	Subject   string  `json:"subject"`
	BookID    looseID `json:"book_id"`
	StartTime string  `json:"start_time"`
}

type stopSessionRequest struct {
	Notes   string `json:"notes"`
	EndTime string `json:"end_time"`
}

func (h *StudySessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	handle, err := h.tracker.StartSession(r.Context(), services.StartSessionRequest{
		UserID:          middleware.GetUserID(r.Context()),
		Subject:         req.Subject,
		BookID:          strings.TrimSpace(string(req.BookID)),
		ClientStartTime: req.StartTime,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, handle)
}

func (h *StudySessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	result, err := h.tracker.StopSession(r.Context(), services.StopSessionRequest{
		UserID:        middleware.GetUserID(r.Context()),
		Notes:         req.Notes,
		ClientEndTime: req.EndTime,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *StudySessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	status, err := h.tracker.GetCurrentSession(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *StudySessionHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	sessions, err := h.tracker.SessionHistory(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *StudySessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.tracker.ComputeLeaderboard(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
