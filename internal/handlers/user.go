package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"studytracker-backend/internal/middleware"
	"studytracker-backend/internal/models"
)

type userDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, pendingOnly bool) ([]models.User, error)
	Approve(ctx context.Context, id int64) (*models.User, error)
	Revoke(ctx context.Context, id int64) (*models.User, error)
}

type UserHandler struct {
	users userDirectory
}

func NewUserHandler(users userDirectory) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Admin handlers

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != "pending" && status != "all" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "status must be pending or all", r))
		return
	}

	users, err := h.users.ListUsers(r.Context(), status == "pending")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *UserHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, h.users.Approve)
}

func (h *UserHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.setApproval(w, r, h.users.Revoke)
}

func (h *UserHandler) setApproval(w http.ResponseWriter, r *http.Request, apply func(context.Context, int64) (*models.User, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid user ID", r))
		return
	}

	user, err := apply(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
