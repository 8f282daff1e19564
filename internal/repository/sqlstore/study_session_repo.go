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

var sessionColumns = []string{
	"id", "user_id", "subject", "book_id", "start_time", "end_time", "duration_minutes", "notes",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.StudySession, error) {
	var (
		s        models.StudySession
		bookID   sql.NullInt64
		start    dbTime
		end      dbTime
		duration sql.NullInt64
		notes    sql.NullString
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.Subject, &bookID, &start, &end, &duration, &notes); err != nil {
		return nil, err
	}
	s.BookID = int64Ptr(bookID)
	s.StartTime = start.Time
	s.EndTime = end.ptr()
	s.DurationMinutes = intPtr(duration)
	s.Notes = stringPtr(notes)
	return &s, nil
}

func (r *queries) FindOpenSession(ctx context.Context, userID int64) (*models.StudySession, error) {
	query, args, err := r.d.builder.Select(sessionColumns...).
		From("study_sessions").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"end_time": nil}).
		OrderBy("id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building open session query: %w", err)
	}

	s, err := scanSession(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying open session: %w", err)
	}
	return s, nil
}

func (r *queries) InsertSession(ctx context.Context, s *models.StudySession) error {
	query, args, err := r.d.builder.Insert("study_sessions").
		Columns("user_id", "subject", "book_id", "start_time", "end_time", "duration_minutes", "notes").
		Values(
			s.UserID,
			s.Subject,
			nullableInt64(s.BookID),
			r.d.encodeTime(s.StartTime),
			r.d.nullableTime(s.EndTime),
			nullableInt(s.DurationMinutes),
			nullableString(s.Notes),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}

	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&s.ID); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// UpdateSession persists the close-time fields. Subject, owner and start
// time never change after insert.
func (r *queries) UpdateSession(ctx context.Context, s *models.StudySession) error {
	query, args, err := r.d.builder.Update("study_sessions").
		Set("end_time", r.d.nullableTime(s.EndTime)).
		Set("duration_minutes", nullableInt(s.DurationMinutes)).
		Set("notes", nullableString(s.Notes)).
		Where(sq.Eq{"id": s.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building session update: %w", err)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session %d: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session %d: %w", s.ID, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// closedFilter selects sessions that can contribute to totals.
var closedFilter = sq.And{
	sq.NotEq{"end_time": nil},
	sq.NotEq{"duration_minutes": nil},
}

func (r *queries) ClosedDurationsByUser(ctx context.Context) (map[int64][]int, error) {
	query, args, err := r.d.builder.Select("user_id", "duration_minutes").
		From("study_sessions").
		Where(closedFilter).
		OrderBy("user_id", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building closed durations query: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying closed durations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	durations := make(map[int64][]int)
	for rows.Next() {
		var userID int64
		var minutes int
		if err := rows.Scan(&userID, &minutes); err != nil {
			return nil, fmt.Errorf("scanning closed duration: %w", err)
		}
		durations[userID] = append(durations[userID], minutes)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating closed durations: %w", err)
	}
	return durations, nil
}

func (r *queries) ClosedSessionsForUser(ctx context.Context, userID int64) ([]models.SubjectDuration, error) {
	query, args, err := r.d.builder.Select("subject", "duration_minutes").
		From("study_sessions").
		Where(sq.Eq{"user_id": userID}).
		Where(closedFilter).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building subject durations query: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subject durations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]models.SubjectDuration, 0)
	for rows.Next() {
		var sd models.SubjectDuration
		if err := rows.Scan(&sd.Subject, &sd.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scanning subject duration: %w", err)
		}
		out = append(out, sd)
	}
	return out, rows.Err()
}

// ListClosedSessions returns closed sessions newest first. A non-positive
// limit returns all of them.
func (r *queries) ListClosedSessions(ctx context.Context, userID int64, limit int) ([]models.StudySession, error) {
	qb := r.d.builder.Select(sessionColumns...).
		From("study_sessions").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.NotEq{"end_time": nil}).
		OrderBy("start_time DESC", "id DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	return r.listSessions(ctx, qb)
}

func (r *queries) SessionsForBook(ctx context.Context, bookID int64) ([]models.StudySession, error) {
	qb := r.d.builder.Select(sessionColumns...).
		From("study_sessions").
		Where(sq.Eq{"book_id": bookID}).
		OrderBy("start_time DESC", "id DESC")
	return r.listSessions(ctx, qb)
}

func (r *queries) listSessions(ctx context.Context, qb sq.SelectBuilder) ([]models.StudySession, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session list query: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]models.StudySession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}
