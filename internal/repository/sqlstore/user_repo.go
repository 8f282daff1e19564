package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"studytracker-backend/internal/models"
	"studytracker-backend/internal/repository"
)

var userColumns = []string{
	"id", "external_id", "email", "name", "is_approved", "is_admin", "approval_requested_at", "created_at",
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		requested dbTime
		created   dbTime
	)
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.IsApproved, &u.IsAdmin, &requested, &created); err != nil {
		return nil, err
	}
	u.ApprovalRequestedAt = requested.Time
	u.CreatedAt = created.Time
	return &u, nil
}

func (r *queries) ListUsers(ctx context.Context) ([]models.User, error) {
	return r.listUsers(ctx, r.d.builder.Select(userColumns...).From("users").OrderBy("id"))
}

// ListPendingUsers returns unapproved accounts, oldest request first.
func (r *queries) ListPendingUsers(ctx context.Context) ([]models.User, error) {
	return r.listUsers(ctx, r.d.builder.Select(userColumns...).
		From("users").
		Where(sq.Eq{"is_approved": false}).
		OrderBy("approval_requested_at", "id"))
}

func (r *queries) listUsers(ctx context.Context, qb sq.SelectBuilder) ([]models.User, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user list query: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func (r *queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return r.getUser(ctx, sq.Eq{"id": id})
}

func (r *queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, sq.Eq{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *queries) getUser(ctx context.Context, where sq.Eq) (*models.User, error) {
	query, args, err := r.d.builder.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}

	u, err := scanUser(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// EnsureUser creates the account for identity on first sight, or refreshes
// its email and display name. Approval flags are never touched here.
func (r *queries) EnsureUser(ctx context.Context, identity models.Identity) (*models.User, error) {
	now := r.d.encodeTime(r.now())
	query, args, err := r.d.builder.Insert("users").
		Columns("external_id", "email", "name", "is_approved", "is_admin", "approval_requested_at", "created_at").
		Values(
			identity.Subject,
			strings.ToLower(strings.TrimSpace(identity.Email)),
			identity.Name,
			false,
			false,
			now,
			now,
		).
		Suffix("ON CONFLICT (external_id) DO UPDATE SET email = excluded.email, name = excluded.name RETURNING " +
			strings.Join(userColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user upsert: %w", err)
	}

	u, err := scanUser(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("upserting user %q: %w", identity.Subject, err)
	}
	return u, nil
}

func (r *queries) SetApproval(ctx context.Context, id int64, approved bool) error {
	return r.setUserFlag(ctx, id, "is_approved", approved)
}

func (r *queries) SetAdmin(ctx context.Context, id int64, admin bool) error {
	return r.setUserFlag(ctx, id, "is_admin", admin)
}

func (r *queries) setUserFlag(ctx context.Context, id int64, column string, value bool) error {
	query, args, err := r.d.builder.Update("users").
		Set(column, value).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building user update: %w", err)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating %s for user %d: %w", column, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating %s for user %d: %w", column, id, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
