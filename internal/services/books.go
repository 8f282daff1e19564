package services

import (
	"context"
	"strings"

	"studytracker-backend/internal/models"
	"studytracker-backend/internal/repository"
)

// DashboardBooksLimit is the number of books shown on the dashboard.
const DashboardBooksLimit = 5

type BookService struct {
	books repository.BookRepository
}

func NewBookService(books repository.BookRepository) *BookService {
	return &BookService{books: books}
}

func (s *BookService) Create(ctx context.Context, userID int64, req models.CreateBookRequest) (*models.Book, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, &ValidationError{Fields: map[string]string{"title": "Title is required"}}
	}

	book := &models.Book{
		UserID:  userID,
		Title:   title,
		Author:  optionalText(req.Author),
		Summary: optionalText(req.Summary),
	}
	if err := s.books.CreateBook(ctx, book); err != nil {
		return nil, storeUnavailable("create book", err)
	}
	return book, nil
}

// List returns the user's books, most recently read first. A non-positive
// limit returns all of them.
func (s *BookService) List(ctx context.Context, userID int64, limit int) ([]models.Book, error) {
	books, err := s.books.BooksForUser(ctx, userID, limit)
	if err != nil {
		return nil, storeUnavailable("list books", err)
	}
	return books, nil
}

func optionalText(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
