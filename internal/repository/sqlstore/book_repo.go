package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"studytracker-backend/internal/models"
	"studytracker-backend/internal/repository"
)

var bookColumns = []string{"id", "user_id", "title", "author", "summary", "date_read"}

func scanBook(row rowScanner) (*models.Book, error) {
	var (
		b       models.Book
		author  sql.NullString
		summary sql.NullString
		read    dbTime
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.Title, &author, &summary, &read); err != nil {
		return nil, err
	}
	b.Author = stringPtr(author)
	b.Summary = stringPtr(summary)
	b.DateRead = read.Time
	return &b, nil
}

// CreateBook inserts b and fills in its id. A zero DateRead is set to now.
func (r *queries) CreateBook(ctx context.Context, b *models.Book) error {
	if b.DateRead.IsZero() {
		b.DateRead = r.now().UTC()
	}

	query, args, err := r.d.builder.Insert("books").
		Columns("user_id", "title", "author", "summary", "date_read").
		Values(b.UserID, b.Title, nullableString(b.Author), nullableString(b.Summary), r.d.encodeTime(b.DateRead)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("building book insert: %w", err)
	}

	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&b.ID); err != nil {
		return fmt.Errorf("inserting book: %w", err)
	}
	return nil
}

func (r *queries) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	query, args, err := r.d.builder.Select(bookColumns...).From("books").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building book query: %w", err)
	}

	b, err := scanBook(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying book %d: %w", id, err)
	}
	return b, nil
}

// BooksForUser lists a user's books, most recently read first.
func (r *queries) BooksForUser(ctx context.Context, userID int64, limit int) ([]models.Book, error) {
	qb := r.d.builder.Select(bookColumns...).
		From("books").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("date_read DESC", "id DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building book list query: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	defer func() { _ = rows.Close() }()

	books := make([]models.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating books: %w", err)
	}
	return books, nil
}
