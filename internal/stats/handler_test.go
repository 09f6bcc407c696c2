package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/zaltech/callops/internal/calls"
)

type staticLive struct {
	calls []calls.Call
}

func (s *staticLive) ActiveCalls() []calls.Call { return s.calls }

func TestGetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\),`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "completion"}).AddRow(12, 95.5, 75.0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM calls`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(48))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM leads`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	live := &staticLive{calls: []calls.Call{{ID: "call-1"}, {ID: "call-2"}}}
	h := NewHandler(db, live, nil)
	h.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }

	req := httptest.NewRequest(http.MethodGet, "/ops/stats", nil)
	w := httptest.NewRecorder()
	h.GetStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ActiveCalls != 2 {
		t.Errorf("expected 2 active calls, got %d", resp.ActiveCalls)
	}
	if resp.CallsToday != 12 || resp.CallsThisWeek != 48 {
		t.Errorf("unexpected call counts: %+v", resp)
	}
	if resp.AvgDurationSec != 95.5 || resp.CompletionRatePct != 75.0 {
		t.Errorf("unexpected aggregates: %+v", resp)
	}
	if resp.NewLeadsToday != 5 || resp.AppointmentsToday != 3 {
		t.Errorf("unexpected entity counts: %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetStats_NoDatabase(t *testing.T) {
	h := NewHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ops/stats", nil)
	w := httptest.NewRecorder()
	h.GetStats(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestGetStats_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\),`).WillReturnError(sqlmock.ErrCancelled)

	h := NewHandler(db, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/ops/stats", nil)
	w := httptest.NewRecorder()
	h.GetStats(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
