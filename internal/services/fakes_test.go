package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"studytracker-backend/internal/models"
	"studytracker-backend/internal/repository"
)

// memStore is an in-memory TrackerStore and UserRepository used by the
// service tests.
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	sessions []models.StudySession
	users    []models.User
	books    []models.Book
	nextID   int64

	// failures maps a method name to the error it returns.
	failures map[string]error

	ensureCalls int
}

func newMemStore() *memStore {
	return &memStore{failures: make(map[string]error)}
}

func (m *memStore) fail(method string) error {
	return m.failures[method]
}

func (m *memStore) addUser(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.users = append(m.users, models.User{
		ID:         m.nextID,
		ExternalID: "sub-" + name,
		Name:       name,
		Email:      strings.ToLower(name) + "@example.com",
	})
	return m.nextID
}

func (m *memStore) addBook(userID int64, title string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.books = append(m.books, models.Book{ID: m.nextID, UserID: userID, Title: title})
	return m.nextID
}

// addClosed records a finished session of the given length.
func (m *memStore) addClosed(userID int64, subject string, minutes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(minutes) * time.Minute)
	d := minutes
	m.sessions = append(m.sessions, models.StudySession{
		ID: m.nextID, UserID: userID, Subject: subject, StartTime: start, EndTime: &end, DurationMinutes: &d,
	})
}

func (m *memStore) openCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.EndTime == nil {
			n++
		}
	}
	return n
}

func (m *memStore) session(id int64) models.StudySession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			return s
		}
	}
	return models.StudySession{}
}

func (m *memStore) FindOpenSession(_ context.Context, userID int64) (*models.StudySession, error) {
	if err := m.fail("FindOpenSession"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sessions) - 1; i >= 0; i-- {
		s := m.sessions[i]
		if s.UserID == userID && s.EndTime == nil {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) InsertSession(_ context.Context, s *models.StudySession) error {
	if err := m.fail("InsertSession"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.sessions = append(m.sessions, *s)
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s *models.StudySession) error {
	if err := m.fail("UpdateSession"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == s.ID {
			m.sessions[i] = *s
			return nil
		}
	}
	return repository.ErrNotFound
}

// WithUserLock serialises callers and restores the session table when fn
// fails.
func (m *memStore) WithUserLock(_ context.Context, _ int64, fn func(tx repository.SessionWriter) error) error {
	if err := m.fail("WithUserLock"); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := append([]models.StudySession(nil), m.sessions...)
	next := m.nextID
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.sessions = snapshot
		m.nextID = next
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) ClosedDurationsByUser(context.Context) (map[int64][]int, error) {
	if err := m.fail("ClosedDurationsByUser"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64][]int)
	for _, s := range m.sessions {
		if s.EndTime != nil && s.DurationMinutes != nil {
			out[s.UserID] = append(out[s.UserID], *s.DurationMinutes)
		}
	}
	return out, nil
}

func (m *memStore) ClosedSessionsForUser(_ context.Context, userID int64) ([]models.SubjectDuration, error) {
	if err := m.fail("ClosedSessionsForUser"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SubjectDuration
	for _, s := range m.sessions {
		if s.UserID == userID && s.EndTime != nil && s.DurationMinutes != nil {
			out = append(out, models.SubjectDuration{Subject: s.Subject, DurationMinutes: *s.DurationMinutes})
		}
	}
	return out, nil
}

func (m *memStore) ListClosedSessions(_ context.Context, userID int64, limit int) ([]models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StudySession
	for _, s := range m.sessions {
		if s.UserID == userID && s.EndTime != nil {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) SessionsForBook(_ context.Context, bookID int64) ([]models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StudySession
	for _, s := range m.sessions {
		if s.BookID != nil && *s.BookID == bookID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListUsers(context.Context) ([]models.User, error) {
	if err := m.fail("ListUsers"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.User(nil), m.users...), nil
}

func (m *memStore) ListPendingUsers(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if !u.IsApproved {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) EnsureUser(_ context.Context, identity models.Identity) (*models.User, error) {
	if err := m.fail("EnsureUser"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	for i := range m.users {
		if m.users[i].ExternalID == identity.Subject {
			m.users[i].Email = identity.Email
			m.users[i].Name = identity.Name
			u := m.users[i]
			return &u, nil
		}
	}
	m.nextID++
	u := models.User{ID: m.nextID, ExternalID: identity.Subject, Email: identity.Email, Name: identity.Name}
	m.users = append(m.users, u)
	return &u, nil
}

func (m *memStore) SetApproval(_ context.Context, id int64, approved bool) error {
	return m.setUser(id, func(u *models.User) { u.IsApproved = approved })
}

func (m *memStore) SetAdmin(_ context.Context, id int64, admin bool) error {
	return m.setUser(id, func(u *models.User) { u.IsAdmin = admin })
}

func (m *memStore) setUser(id int64, mutate func(*models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			mutate(&m.users[i])
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memStore) CreateBook(_ context.Context, b *models.Book) error {
	if err := m.fail("CreateBook"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b.ID = m.nextID
	m.books = append(m.books, *b)
	return nil
}

func (m *memStore) GetBook(_ context.Context, id int64) (*models.Book, error) {
	if err := m.fail("GetBook"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) BooksForUser(_ context.Context, userID int64, limit int) ([]models.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Book
	for i := len(m.books) - 1; i >= 0; i-- {
		if m.books[i].UserID == userID {
			out = append(out, m.books[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.WSMessage
}

func (p *recordingPublisher) Publish(_ context.Context, _ int64, msg models.WSMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
