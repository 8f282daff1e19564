package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"studytracker-backend/internal/middleware"
	"studytracker-backend/internal/models"
	"studytracker-backend/internal/services"
)

var start = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

type stubTracker struct {
	startReq services.StartSessionRequest
	stopReq  services.StopSessionRequest
	limit    int
	err      error

	current *models.CurrentStatus
	board   *models.Leaderboard
}

func (s *stubTracker) StartSession(_ context.Context, req services.StartSessionRequest) (*models.SessionHandle, error) {
	s.startReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.SessionHandle{SessionID: 11, StartTime: start}, nil
}

func (s *stubTracker) StopSession(_ context.Context, req services.StopSessionRequest) (*models.StopResult, error) {
	s.stopReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.StopResult{SessionID: 11, DurationMinutes: 42, EndTime: start.Add(42 * time.Minute)}, nil
}

func (s *stubTracker) GetCurrentSession(context.Context, int64) (*models.CurrentStatus, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.current == nil {
		return &models.CurrentStatus{Active: false}, nil
	}
	return s.current, nil
}

func (s *stubTracker) SessionHistory(_ context.Context, _ int64, limit int) ([]models.StudySession, error) {
	s.limit = limit
	return []models.StudySession{}, s.err
}

func (s *stubTracker) RecentSessions(context.Context, int64) ([]models.StudySession, error) {
	return []models.StudySession{{ID: 3, Subject: "maths", StartTime: start}}, s.err
}

func (s *stubTracker) SessionsForBook(_ context.Context, userID, bookID int64) ([]models.StudySession, error) {
	if bookID != 5 {
		return nil, &services.NotFoundError{Message: "Book not found"}
	}
	return []models.StudySession{{ID: 9, UserID: userID, BookID: &bookID}}, nil
}

func (s *stubTracker) ComputeLeaderboard(context.Context, int64) (*models.Leaderboard, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.board, nil
}

type stubBooks struct {
	created models.CreateBookRequest
	err     error
}

func (s *stubBooks) Create(_ context.Context, userID int64, req models.CreateBookRequest) (*models.Book, error) {
	s.created = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.Book{ID: 5, UserID: userID, Title: req.Title, DateRead: start}, nil
}

func (s *stubBooks) List(_ context.Context, userID int64, limit int) ([]models.Book, error) {
	books := []models.Book{{ID: 5, UserID: userID, Title: "Dune"}}
	return books[:min(limit, len(books))], s.err
}

type stubUsers struct {
	pendingOnly bool
	approved    int64
}

func (s *stubUsers) GetUser(_ context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id, Email: "ada@example.com", IsApproved: true}, nil
}

func (s *stubUsers) ListUsers(_ context.Context, pendingOnly bool) ([]models.User, error) {
	s.pendingOnly = pendingOnly
	return []models.User{{ID: 2}}, nil
}

func (s *stubUsers) Approve(_ context.Context, id int64) (*models.User, error) {
	if id == 404 {
		return nil, &services.NotFoundError{Message: "User not found"}
	}
	s.approved = id
	return &models.User{ID: id, IsApproved: true}, nil
}

func (s *stubUsers) Revoke(_ context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func newRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(middleware.WithUser(req.Context(), &models.User{ID: 7, IsApproved: true}))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	decode(t, rec, &body)
	return body.Error.Code
}

func TestStudySessionHandler_Start(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
		wantBook   string
	}{
		{name: "numeric book id", body: `{"subject":"maths","book_id":5,"start_time":"2024-03-10T10:00:00Z"}`, wantStatus: http.StatusCreated, wantBook: "5"},
		{name: "string book id", body: `{"subject":"maths","book_id":"5"}`, wantStatus: http.StatusCreated, wantBook: "5"},
		{name: "null book id", body: `{"subject":"maths","book_id":null}`, wantStatus: http.StatusCreated},
		{name: "object book id is ignored", body: `{"subject":"maths","book_id":{"id":5}}`, wantStatus: http.StatusCreated},
		{name: "malformed json", body: `{"subject":`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{
			name: "validation error", body: `{"subject":""}`,
			err:        &services.ValidationError{Fields: map[string]string{"subject": "Subject is required"}},
			wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR",
		},
		{
			name: "store unavailable", body: `{"subject":"maths"}`,
			err:        &services.StoreUnavailableError{Op: "start session", Err: errors.New("down")},
			wantStatus: http.StatusServiceUnavailable, wantCode: "STORE_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &stubTracker{err: tt.err}
			h := NewStudySessionHandler(tracker)
			rec := httptest.NewRecorder()

			h.Start(rec, newRequest(http.MethodPost, "/api/v1/study-sessions/start", tt.body))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				if code := errorCode(t, rec); code != tt.wantCode {
					t.Errorf("code = %q, want %q", code, tt.wantCode)
				}
				return
			}

			if tracker.startReq.UserID != 7 {
				t.Errorf("user id = %d, want 7", tracker.startReq.UserID)
			}
			if tracker.startReq.BookID != tt.wantBook {
				t.Errorf("book id = %q, want %q", tracker.startReq.BookID, tt.wantBook)
			}

			var resp map[string]interface{}
			decode(t, rec, &resp)
			if resp["session_id"] != float64(11) {
				t.Errorf("session_id = %v", resp["session_id"])
			}
			if resp["start_time"] != "2024-03-10T10:00:00Z" {
				t.Errorf("start_time = %v", resp["start_time"])
			}
		})
	}
}

func TestStudySessionHandler_Stop(t *testing.T) {
	tracker := &stubTracker{}
	h := NewStudySessionHandler(tracker)

	rec := httptest.NewRecorder()
	h.Stop(rec, newRequest(http.MethodPost, "/api/v1/study-sessions/stop", `{"notes":"ch 3","end_time":"2024-03-10T10:42:00Z"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if tracker.stopReq.Notes != "ch 3" || tracker.stopReq.ClientEndTime != "2024-03-10T10:42:00Z" {
		t.Errorf("stop request = %+v", tracker.stopReq)
	}
	var resp map[string]interface{}
	decode(t, rec, &resp)
	if resp["duration"] != float64(42) {
		t.Errorf("duration = %v", resp["duration"])
	}

	// Empty body is allowed.
	rec = httptest.NewRecorder()
	h.Stop(rec, newRequest(http.MethodPost, "/api/v1/study-sessions/stop", ""))
	if rec.Code != http.StatusOK {
		t.Errorf("empty body status = %d", rec.Code)
	}
}

func TestStudySessionHandler_StopWithoutActiveSession(t *testing.T) {
	h := NewStudySessionHandler(&stubTracker{err: &services.NoActiveSessionError{UserID: 7}})

	rec := httptest.NewRecorder()
	h.Stop(rec, newRequest(http.MethodPost, "/api/v1/study-sessions/stop", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "NO_ACTIVE_SESSION" {
		t.Errorf("code = %q", code)
	}
}

func TestStudySessionHandler_Current(t *testing.T) {
	st := start
	elapsed, zero := int64(65), int64(0)
	tests := []struct {
		name    string
		current *models.CurrentStatus
		want    string
	}{
		{name: "inactive", want: `{"active":false}`},
		{
			name:    "active",
			current: &models.CurrentStatus{Active: true, SessionID: 3, Subject: "maths", ElapsedSeconds: &elapsed, StartTime: &st},
			want:    `{"active":true,"session_id":3,"subject":"maths","elapsed_seconds":65,"start_time":"2024-03-10T10:00:00Z"}`,
		},
		{
			name:    "just started",
			current: &models.CurrentStatus{Active: true, SessionID: 4, Subject: "maths", ElapsedSeconds: &zero, StartTime: &st},
			want:    `{"active":true,"session_id":4,"subject":"maths","elapsed_seconds":0,"start_time":"2024-03-10T10:00:00Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStudySessionHandler(&stubTracker{current: tt.current})
			rec := httptest.NewRecorder()
			h.Current(rec, newRequest(http.MethodGet, "/api/v1/study-sessions/current", ""))

			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Errorf("body = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStudySessionHandler_HistoryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{query: "", want: 50},
		{query: "?limit=10", want: 10},
		{query: "?limit=abc", want: 50},
		{query: "?limit=-1", want: 50},
		{query: "?limit=100000", want: 500},
	}

	for _, tt := range tests {
		tracker := &stubTracker{}
		h := NewStudySessionHandler(tracker)
		rec := httptest.NewRecorder()
		h.History(rec, newRequest(http.MethodGet, "/api/v1/study-sessions"+tt.query, ""))

		if tracker.limit != tt.want {
			t.Errorf("%q: limit = %d, want %d", tt.query, tracker.limit, tt.want)
		}
	}
}

func TestStudySessionHandler_Leaderboard(t *testing.T) {
	board := &models.Leaderboard{
		Entries:       []models.LeaderboardEntry{{Rank: 1, UserID: 7, Name: "Ada", TotalMinutes: 35}},
		UserRank:      1,
		TotalUsers:    1,
		SubjectTotals: []models.SubjectTotal{{Subject: "maths", TotalMinutes: 35}},
	}
	h := NewStudySessionHandler(&stubTracker{board: board})

	rec := httptest.NewRecorder()
	h.Leaderboard(rec, newRequest(http.MethodGet, "/api/v1/leaderboard", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
		UserRank    int                       `json:"user_rank"`
		Subjects    []models.SubjectTotal     `json:"subject_totals"`
	}
	decode(t, rec, &resp)
	if len(resp.Leaderboard) != 1 || resp.UserRank != 1 || resp.Subjects[0].Subject != "maths" {
		t.Errorf("unexpected leaderboard %+v", resp)
	}
}

func TestDashboardHandler_Get(t *testing.T) {
	h := NewDashboardHandler(&stubTracker{}, &stubBooks{})

	rec := httptest.NewRecorder()
	h.Get(rec, newRequest(http.MethodGet, "/api/v1/dashboard", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		RecentBooks    []models.Book         `json:"recent_books"`
		RecentSessions []models.StudySession `json:"recent_sessions"`
		Current        models.CurrentStatus  `json:"current_session"`
	}
	decode(t, rec, &resp)
	if len(resp.RecentBooks) != 1 || len(resp.RecentSessions) != 1 || resp.Current.Active {
		t.Errorf("unexpected dashboard %+v", resp)
	}
}

func TestDashboardHandler_StoreFailure(t *testing.T) {
	h := NewDashboardHandler(&stubTracker{}, &stubBooks{err: &services.StoreUnavailableError{Op: "list books", Err: errors.New("x")}})

	rec := httptest.NewRecorder()
	h.Get(rec, newRequest(http.MethodGet, "/api/v1/dashboard", ""))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestBookHandler(t *testing.T) {
	books := &stubBooks{}
	h := NewBookHandler(books, &stubTracker{})

	rec := httptest.NewRecorder()
	h.Create(rec, newRequest(http.MethodPost, "/api/v1/books", `{"title":"Dune","author":"Frank Herbert"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}
	if books.created.Author != "Frank Herbert" {
		t.Errorf("created = %+v", books.created)
	}

	rec = httptest.NewRecorder()
	h.List(rec, newRequest(http.MethodGet, "/api/v1/books", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}

	tests := []struct {
		id         string
		wantStatus int
	}{
		{id: "5", wantStatus: http.StatusOK},
		{id: "6", wantStatus: http.StatusNotFound},
		{id: "abc", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec = httptest.NewRecorder()
		req := withURLParam(newRequest(http.MethodGet, "/api/v1/books/"+tt.id+"/sessions", ""), "id", tt.id)
		h.Sessions(rec, req)
		if rec.Code != tt.wantStatus {
			t.Errorf("book %s: status = %d, want %d", tt.id, rec.Code, tt.wantStatus)
		}
	}
}

func TestUserHandler_GetMe(t *testing.T) {
	h := NewUserHandler(&stubUsers{})
	rec := httptest.NewRecorder()
	h.GetMe(rec, newRequest(http.MethodGet, "/api/v1/user/me", ""))

	var user models.User
	decode(t, rec, &user)
	if user.ID != 7 {
		t.Errorf("user id = %d", user.ID)
	}
}

func TestUserHandler_AdminList(t *testing.T) {
	tests := []struct {
		query       string
		wantStatus  int
		wantPending bool
	}{
		{query: "", wantStatus: http.StatusOK},
		{query: "?status=pending", wantStatus: http.StatusOK, wantPending: true},
		{query: "?status=bogus", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		users := &stubUsers{}
		h := NewUserHandler(users)
		rec := httptest.NewRecorder()
		h.List(rec, newRequest(http.MethodGet, "/api/v1/admin/users"+tt.query, ""))

		if rec.Code != tt.wantStatus {
			t.Errorf("%q: status = %d", tt.query, rec.Code)
		}
		if users.pendingOnly != tt.wantPending {
			t.Errorf("%q: pendingOnly = %v", tt.query, users.pendingOnly)
		}
	}
}

func TestUserHandler_Approve(t *testing.T) {
	users := &stubUsers{}
	h := NewUserHandler(users)

	rec := httptest.NewRecorder()
	h.Approve(rec, withURLParam(newRequest(http.MethodPost, "/api/v1/admin/users/12/approve", ""), "id", "12"))
	if rec.Code != http.StatusOK || users.approved != 12 {
		t.Fatalf("status = %d, approved = %d", rec.Code, users.approved)
	}

	rec = httptest.NewRecorder()
	h.Approve(rec, withURLParam(newRequest(http.MethodPost, "/api/v1/admin/users/404/approve", ""), "id", "404"))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Revoke(rec, withURLParam(newRequest(http.MethodPost, "/api/v1/admin/users/x/revoke", ""), "id", "x"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d", rec.Code)
	}
}
