package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"studytracker-backend/internal/middleware"
	"studytracker-backend/internal/models"
)

type bookService interface {
	Create(ctx context.Context, userID int64, req models.CreateBookRequest) (*models.Book, error)
	List(ctx context.Context, userID int64, limit int) ([]models.Book, error)
}

type BookHandler struct {
	books   bookService
	tracker sessionTracker
}

func NewBookHandler(books bookService, tracker sessionTracker) *BookHandler {
	return &BookHandler{books: books, tracker: tracker}
}

func (h *BookHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.List(r.Context(), middleware.GetUserID(r.Context()), queryLimit(r, 100, 500))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"books": books})
}

func (h *BookHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	book, err := h.books.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid book ID", r))
		return
	}

	sessions, err := h.tracker.SessionsForBook(r.Context(), middleware.GetUserID(r.Context()), bookID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}
