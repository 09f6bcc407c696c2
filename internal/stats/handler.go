// Package stats serves the dashboard headline numbers. It reads the
// relational store directly over database/sql; live counts come from the
// realtime state, not the database.
package stats

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zaltech/callops/internal/calls"
	"github.com/zaltech/callops/pkg/logging"
)

// LiveCounter reports the calls currently under observation.
type LiveCounter interface {
	ActiveCalls() []calls.Call
}

// Handler serves GET /ops/stats.
type Handler struct {
	db     *sql.DB
	live   LiveCounter
	logger *logging.Logger
	now    func() time.Time
}

// Response contains the dashboard headline metrics.
type Response struct {
	ActiveCalls       int     `json:"active_calls"`
	CallsToday        int64   `json:"calls_today"`
	CallsThisWeek     int64   `json:"calls_this_week"`
	AvgDurationSec    float64 `json:"avg_duration_sec"`
	CompletionRatePct float64 `json:"completion_rate_pct"`
	NewLeadsToday     int64   `json:"new_leads_today"`
	AppointmentsToday int64   `json:"appointments_today"`
}

// NewHandler creates a new stats handler.
func NewHandler(db *sql.DB, live LiveCounter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		db:     db,
		live:   live,
		logger: logger.Component("stats.handler"),
		now:    time.Now,
	}
}

// GetStats returns the dashboard metrics.
// GET /ops/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "stats disabled", http.StatusServiceUnavailable)
		return
	}

	now := h.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -int(dayStart.Weekday()))

	resp := Response{}
	if h.live != nil {
		resp.ActiveCalls = len(h.live.ActiveCalls())
	}

	var err error
	resp.CallsToday, resp.AvgDurationSec, resp.CompletionRatePct, err =
		h.callTotals(r.Context(), dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		h.logger.Error("failed to aggregate calls", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if resp.CallsThisWeek, err = h.countCalls(r.Context(), weekStart, weekStart.AddDate(0, 0, 7)); err != nil {
		h.logger.Error("failed to count weekly calls", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if resp.NewLeadsToday, err = h.countLeads(r.Context(), dayStart, dayStart.AddDate(0, 0, 1)); err != nil {
		h.logger.Error("failed to count leads", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if resp.AppointmentsToday, err = h.countAppointments(r.Context(), dayStart, dayStart.AddDate(0, 0, 1)); err != nil {
		h.logger.Error("failed to count appointments", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) callTotals(ctx context.Context, start, end time.Time) (int64, float64, float64, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(AVG(duration_sec), 0),
			COALESCE(AVG(CASE WHEN status = 'COMPLETED' THEN 100.0 ELSE 0.0 END), 0)
		FROM calls
		WHERE started_at >= $1 AND started_at < $2
	`
	var (
		count      int64
		avg        float64
		completion float64
	)
	if err := h.db.QueryRowContext(ctx, query, start, end).Scan(&count, &avg, &completion); err != nil {
		return 0, 0, 0, err
	}
	return count, avg, completion, nil
}

func (h *Handler) countCalls(ctx context.Context, start, end time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM calls WHERE started_at >= $1 AND started_at < $2`
	var count int64
	err := h.db.QueryRowContext(ctx, query, start, end).Scan(&count)
	return count, err
}

func (h *Handler) countLeads(ctx context.Context, start, end time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM leads WHERE created_at >= $1 AND created_at < $2`
	var count int64
	err := h.db.QueryRowContext(ctx, query, start, end).Scan(&count)
	return count, err
}

func (h *Handler) countAppointments(ctx context.Context, start, end time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE starts_at >= $1 AND starts_at < $2 AND status <> 'CANCELLED'
	`
	var count int64
	err := h.db.QueryRowContext(ctx, query, start, end).Scan(&count)
	return count, err
}
