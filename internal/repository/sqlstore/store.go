// Package sqlstore implements the repository interfaces over database/sql for
// PostgreSQL (pgx) and SQLite (modernc).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studytracker-backend/internal/repository"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement the store issues, bound to a querier so the
// same code runs inside and outside transactions.
type queries struct {
	q   querier
	d   Dialect
	now func() time.Time
}

// Store implements repository.Store.
type Store struct {
	*queries
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// New wraps an already opened and migrated database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		queries: &queries{q: db, d: dialect, now: time.Now},
		db:      db,
	}
}

// Dialect reports the engine this store issues SQL for.
func (s *Store) Dialect() Dialect { return s.d }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithUserLock runs fn in a single transaction serialised per user. The
// transaction is rolled back when fn returns an error.
func (s *Store) WithUserLock(ctx context.Context, userID int64, fn func(tx repository.SessionWriter) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.d.lockUser != nil {
		if err = s.d.lockUser(ctx, tx, userID); err != nil {
			return fmt.Errorf("lock user %d: %w", userID, err)
		}
	}

	if err = fn(&queries{q: tx, d: s.d, now: s.now}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
