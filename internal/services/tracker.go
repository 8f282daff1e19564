package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studytracker-backend/internal/metrics"
	"studytracker-backend/internal/models"
	"studytracker-backend/internal/repository"
)

// RecentSessionsLimit is the number of sessions shown on the dashboard.
const RecentSessionsLimit = 5

// storePrecision is the coarsest timestamp resolution of the supported
// stores (SQLite keeps unix milliseconds). Times are truncated to it before
// they are written so handles match what later reads return.
const storePrecision = time.Millisecond

// TrackerStore is the storage the tracker needs.
type TrackerStore interface {
	repository.StudySessionRepository
	ListUsers(ctx context.Context) ([]models.User, error)
	GetBook(ctx context.Context, id int64) (*models.Book, error)
}

type StartSessionRequest struct {
	UserID          int64
	Subject         string
	BookID          string // optional, best effort
	ClientStartTime string // optional ISO-8601
}

type StopSessionRequest struct {
	UserID        int64
	Notes         string
	ClientEndTime string // optional ISO-8601
}

// SessionTracker owns the study session lifecycle. It guarantees that a user
// never has more than one open session and derives durations and rankings
// from closed sessions.
type SessionTracker struct {
	store     TrackerStore
	locker    UserLocker
	publisher EventPublisher
	cache     LeaderboardCache
	clock     Clock
	logger    zerolog.Logger
}

type TrackerOption func(*SessionTracker)

func WithLocker(l UserLocker) TrackerOption {
	return func(t *SessionTracker) { t.locker = l }
}

func WithEventPublisher(p EventPublisher) TrackerOption {
	return func(t *SessionTracker) { t.publisher = p }
}

func WithLeaderboardCache(c LeaderboardCache) TrackerOption {
	return func(t *SessionTracker) { t.cache = c }
}

func WithClock(c Clock) TrackerOption {
	return func(t *SessionTracker) { t.clock = c }
}

func NewSessionTracker(store TrackerStore, logger zerolog.Logger, opts ...TrackerOption) *SessionTracker {
	t := &SessionTracker{
		store:     store,
		locker:    NewLocalLocker(),
		publisher: nopPublisher{},
		cache:     nopLeaderboardCache{},
		clock:     RealClock{},
		logger:    logger.With().Str("component", "session_tracker").Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSession opens a session for the user, closing any session that is
// still open in the same transaction.
func (t *SessionTracker) StartSession(ctx context.Context, req StartSessionRequest) (*models.SessionHandle, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		return nil, &ValidationError{Fields: map[string]string{"subject": "Subject is required"}}
	}

	now := t.clock.Now().Truncate(storePrecision)
	start, clientSupplied := t.clientTime(req.ClientStartTime, now, req.UserID)

	bookID, err := t.resolveBook(ctx, req.UserID, req.BookID)
	if err != nil {
		return nil, storeUnavailable("resolve book", err)
	}

	unlock, err := t.locker.Lock(ctx, req.UserID)
	if err != nil {
		return nil, storeUnavailable("lock user", err)
	}
	defer unlock()

	session := &models.StudySession{
		UserID:    req.UserID,
		Subject:   subject,
		BookID:    bookID,
		StartTime: start,
	}

	var (
		closed  *models.StudySession
		clamped bool
	)
	err = t.store.WithUserLock(ctx, req.UserID, func(tx repository.SessionWriter) error {
		closed, clamped = nil, false

		open, err := tx.FindOpenSession(ctx, req.UserID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return err
		default:
			end := now
			if clientSupplied {
				end = start
			}
			clamped = closeSession(open, end, "")
			if err := tx.UpdateSession(ctx, open); err != nil {
				return err
			}
			closed = open
		}

		return tx.InsertSession(ctx, session)
	})
	if err != nil {
		return nil, storeUnavailable("start session", err)
	}

	if closed != nil {
		t.recordClose(ctx, closed, "superseded", clamped)
	}
	metrics.SessionsStarted.Inc()
	t.publish(ctx, session.UserID, sessionEvent(models.EventSessionStarted, session))

	t.logger.Info().
		Int64("user_id", session.UserID).
		Int64("session_id", session.ID).
		Str("subject", session.Subject).
		Bool("client_time", clientSupplied).
		Msg("Study session started")

	return &models.SessionHandle{SessionID: session.ID, StartTime: session.StartTime}, nil
}

// StopSession closes the user's open session.
func (t *SessionTracker) StopSession(ctx context.Context, req StopSessionRequest) (*models.StopResult, error) {
	now := t.clock.Now().Truncate(storePrecision)
	end, _ := t.clientTime(req.ClientEndTime, now, req.UserID)

	unlock, err := t.locker.Lock(ctx, req.UserID)
	if err != nil {
		return nil, storeUnavailable("lock user", err)
	}
	defer unlock()

	var (
		stopped *models.StudySession
		clamped bool
	)
	err = t.store.WithUserLock(ctx, req.UserID, func(tx repository.SessionWriter) error {
		open, err := tx.FindOpenSession(ctx, req.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return &NoActiveSessionError{UserID: req.UserID}
		}
		if err != nil {
			return err
		}

		clamped = closeSession(open, end, req.Notes)
		if err := tx.UpdateSession(ctx, open); err != nil {
			return err
		}
		stopped = open
		return nil
	})

	var noActive *NoActiveSessionError
	if errors.As(err, &noActive) {
		return nil, noActive
	}
	if err != nil {
		return nil, storeUnavailable("stop session", err)
	}

	t.recordClose(ctx, stopped, "stop", clamped)

	return &models.StopResult{
		SessionID:       stopped.ID,
		DurationMinutes: *stopped.DurationMinutes,
		EndTime:         *stopped.EndTime,
		Clamped:         clamped,
	}, nil
}

// GetCurrentSession reports the user's open session, if any. Elapsed time is
// computed against the clock on every call.
func (t *SessionTracker) GetCurrentSession(ctx context.Context, userID int64) (*models.CurrentStatus, error) {
	open, err := t.store.FindOpenSession(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.CurrentStatus{Active: false}, nil
	}
	if err != nil {
		return nil, storeUnavailable("current session", err)
	}

	elapsed := t.clock.Now().Sub(open.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	start := open.StartTime
	seconds := int64(elapsed / time.Second)

	return &models.CurrentStatus{
		Active:         true,
		SessionID:      open.ID,
		Subject:        open.Subject,
		ElapsedSeconds: &seconds,
		StartTime:      &start,
	}, nil
}

// ComputeLeaderboard ranks every user by minutes studied in closed sessions
// and adds the requesting user's rank and per-subject totals.
func (t *SessionTracker) ComputeLeaderboard(ctx context.Context, userID int64) (*models.Leaderboard, error) {
	entries, err := t.cache.Get(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Leaderboard cache read failed")
		entries = nil
	}

	if entries != nil && !ranked(entries, userID) {
		// Accounts created after the fill are missing from the cached ranking.
		t.logger.Debug().Int64("user_id", userID).Msg("Cached leaderboard lacks user, recomputing")
		entries = nil
	}

	if entries != nil {
		metrics.LeaderboardRequests.WithLabelValues("cache").Inc()
	} else {
		entries, err = t.rankUsers(ctx)
		if err != nil {
			return nil, storeUnavailable("leaderboard", err)
		}
		metrics.LeaderboardRequests.WithLabelValues("store").Inc()
		if err := t.cache.Set(ctx, entries); err != nil {
			t.logger.Warn().Err(err).Msg("Leaderboard cache write failed")
		}
	}

	subjects, err := t.store.ClosedSessionsForUser(ctx, userID)
	if err != nil {
		return nil, storeUnavailable("subject totals", err)
	}

	return &models.Leaderboard{
		Entries:       entries,
		UserRank:      rankOf(entries, userID),
		TotalUsers:    len(entries),
		SubjectTotals: subjectTotals(subjects),
	}, nil
}

// SessionHistory lists closed sessions, newest first.
func (t *SessionTracker) SessionHistory(ctx context.Context, userID int64, limit int) ([]models.StudySession, error) {
	sessions, err := t.store.ListClosedSessions(ctx, userID, limit)
	if err != nil {
		return nil, storeUnavailable("session history", err)
	}
	return sessions, nil
}

func (t *SessionTracker) RecentSessions(ctx context.Context, userID int64) ([]models.StudySession, error) {
	return t.SessionHistory(ctx, userID, RecentSessionsLimit)
}

// SessionsForBook lists every session linked to a book the user owns.
func (t *SessionTracker) SessionsForBook(ctx context.Context, userID, bookID int64) ([]models.StudySession, error) {
	book, err := t.store.GetBook(ctx, bookID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && book.UserID != userID) {
		return nil, &NotFoundError{Message: "Book not found"}
	}
	if err != nil {
		return nil, storeUnavailable("get book", err)
	}

	sessions, err := t.store.SessionsForBook(ctx, bookID)
	if err != nil {
		return nil, storeUnavailable("book sessions", err)
	}
	return sessions, nil
}

func (t *SessionTracker) rankUsers(ctx context.Context) ([]models.LeaderboardEntry, error) {
	users, err := t.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	durations, err := t.store.ClosedDurationsByUser(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		total := 0
		for _, d := range durations[u.ID] {
			total += d
		}
		entries = append(entries, models.LeaderboardEntry{
			UserID:       u.ID,
			Name:         u.Name,
			Email:        u.Email,
			TotalMinutes: total,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalMinutes > entries[j].TotalMinutes
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func ranked(entries []models.LeaderboardEntry, userID int64) bool {
	for _, e := range entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

func rankOf(entries []models.LeaderboardEntry, userID int64) int {
	for _, e := range entries {
		if e.UserID == userID {
			return e.Rank
		}
	}
	return len(entries) + 1
}

// subjectTotals sums minutes per subject, largest first. Equal totals keep
// the order in which the subject first appeared.
func subjectTotals(rows []models.SubjectDuration) []models.SubjectTotal {
	index := make(map[string]int)
	totals := make([]models.SubjectTotal, 0)
	for _, r := range rows {
		i, ok := index[r.Subject]
		if !ok {
			i = len(totals)
			index[r.Subject] = i
			totals = append(totals, models.SubjectTotal{Subject: r.Subject})
		}
		totals[i].TotalMinutes += r.DurationMinutes
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].TotalMinutes > totals[j].TotalMinutes
	})
	return totals
}

// closeSession sets the end time, duration and notes of s. A span that ends
// before it starts is recorded as zero minutes and reported as clamped.
func closeSession(s *models.StudySession, end time.Time, notes string) (clamped bool) {
	span := end.Sub(s.StartTime)
	minutes := int(span / time.Minute)
	if span < 0 {
		minutes = 0
		clamped = true
	}

	s.EndTime = &end
	s.DurationMinutes = &minutes
	if notes != "" {
		s.Notes = &notes
	}
	return clamped
}

// clientTime returns the parsed client timestamp, or now when it is absent
// or unparseable. The bool reports whether the client value was used.
func (t *SessionTracker) clientTime(raw string, now time.Time, userID int64) (time.Time, bool) {
	if strings.TrimSpace(raw) == "" {
		return now, false
	}
	parsed, err := ParseClientTime(raw)
	if err != nil {
		metrics.InvalidClientTimestamps.Inc()
		t.logger.Warn().
			Err(err).
			Int64("user_id", userID).
			Msg("Ignoring client timestamp, using server time")
		return now, false
	}
	return parsed.Truncate(storePrecision), true
}

// resolveBook turns the raw book reference into an id the user owns. Anything
// else means no book.
func (t *SessionTracker) resolveBook(ctx context.Context, userID int64, raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, nil
	}

	book, err := t.store.GetBook(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if book.UserID != userID {
		t.logger.Debug().Int64("user_id", userID).Int64("book_id", id).Msg("Ignoring book owned by another user")
		return nil, nil
	}
	return &book.ID, nil
}

func (t *SessionTracker) recordClose(ctx context.Context, s *models.StudySession, reason string, clamped bool) {
	metrics.SessionsClosed.WithLabelValues(reason).Inc()
	metrics.MinutesRecorded.Add(float64(*s.DurationMinutes))
	if clamped {
		metrics.NegativeDurationsClamped.Inc()
		t.logger.Warn().
			Int64("user_id", s.UserID).
			Int64("session_id", s.ID).
			Time("start_time", s.StartTime).
			Time("end_time", *s.EndTime).
			Msg("Session ended before it started, duration clamped to zero")
	}

	eventType := models.EventSessionStopped
	if reason == "superseded" {
		eventType = models.EventSessionClosed
	}
	t.publish(ctx, s.UserID, sessionEvent(eventType, s))

	if err := t.cache.Invalidate(ctx); err != nil {
		t.logger.Warn().Err(err).Msg("Leaderboard cache invalidation failed")
	}

	t.logger.Info().
		Int64("user_id", s.UserID).
		Int64("session_id", s.ID).
		Int("duration_minutes", *s.DurationMinutes).
		Str("reason", reason).
		Msg("Study session closed")
}

func (t *SessionTracker) publish(ctx context.Context, userID int64, msg models.WSMessage) {
	if err := t.publisher.Publish(ctx, userID, msg); err != nil {
		t.logger.Warn().Err(err).Str("type", msg.Type).Int64("user_id", userID).Msg("Failed to publish session event")
	}
}
