package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the differences between the SQL engines the store runs on.
type Dialect struct {
	name    string
	builder sq.StatementBuilderType

	// encodeTime converts a timestamp into the column representation.
	encodeTime func(time.Time) any

	// lockUser serialises transactions for one user. Nil when the engine
	// already serialises writers.
	lockUser func(ctx context.Context, tx *sql.Tx, userID int64) error
}

// Name returns the dialect name ("postgres" or "sqlite").
func (d Dialect) Name() string { return d.name }

// Postgres stores timestamps as TIMESTAMPTZ and takes a transaction-scoped
// advisory lock keyed by user id.
var Postgres = Dialect{
	name:    "postgres",
	builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	encodeTime: func(t time.Time) any {
		return t.UTC()
	},
	lockUser: func(ctx context.Context, tx *sql.Tx, userID int64) error {
		_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", userID)
		return err
	},
}

// SQLite stores timestamps as unix milliseconds. Writers are serialised by
// the single connection the database package configures.
var SQLite = Dialect{
	name:    "sqlite",
	builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	encodeTime: func(t time.Time) any {
		return t.UTC().UnixMilli()
	},
}

// DialectFor maps a storage driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.name:
		return Postgres, nil
	case SQLite.name:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported storage driver %q", driver)
	}
}

func (d Dialect) nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.encodeTime(*t)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// dbTime scans either representation back into a UTC time.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
	case int64:
		t.Time, t.Valid = time.UnixMilli(v).UTC(), true
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
