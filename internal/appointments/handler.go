package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zaltech/callops/pkg/logging"
)

// Handler handles HTTP requests for appointments
type Handler struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler creates a new appointments handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger.Component("appointments.handler"),
		now:    time.Now,
	}
}

// CreateAppointment handles POST /ops/appointments requests
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	appt, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to create appointment", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("appointment created", "id", appt.ID, "service", appt.Service, "starts_at", appt.StartsAt)
	writeJSON(w, http.StatusCreated, appt)
}

// ListAppointmentsResponse is the response for listing appointments
type ListAppointmentsResponse struct {
	Appointments []*Appointment `json:"appointments"`
	Count        int            `json:"count"`
	Offset       int            `json:"offset"`
	Limit        int            `json:"limit"`
}

// ListAppointments handles GET /ops/appointments requests
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Limit: 100}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			http.Error(w, ErrUnknownStatus.Error(), http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from timestamp", http.StatusBadRequest)
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to timestamp", http.StatusBadRequest)
			return
		}
		filter.To = to
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 500 {
			filter.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	appts, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListAppointmentsResponse{
		Appointments: appts,
		Count:        len(appts),
		Offset:       filter.Offset,
		Limit:        filter.Limit,
	})
}

// GetAppointment handles GET /ops/appointments/{appointmentID} requests
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentID")
	appt, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load appointment", "error", err, "id", id)
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// UpdateAppointment handles PATCH /ops/appointments/{appointmentID} requests
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentID")

	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	appt, err := h.repo.Update(r.Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrAppointmentNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, ErrUnknownStatus):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("failed to update appointment", "error", err, "id", id)
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("appointment updated", "id", id, "status", appt.Status)
	writeJSON(w, http.StatusOK, appt)
}

// CancelAppointment handles DELETE /ops/appointments/{appointmentID} requests
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "appointmentID")

	appt, err := h.repo.Cancel(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to cancel appointment", "error", err, "id", id)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	h.logger.Info("appointment cancelled", "id", id)
	writeJSON(w, http.StatusOK, appt)
}

// CalendarResponse groups a month's appointments by day.
type CalendarResponse struct {
	Year  int                       `json:"year"`
	Month int                       `json:"month"`
	Days  map[string][]*Appointment `json:"days"`
}

// Calendar handles GET /ops/appointments/calendar requests. Defaults to the
// current month.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	year, month := now.Year(), int(now.Month())

	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 2000 || y > 2200 {
			http.Error(w, "invalid year", http.StatusBadRequest)
			return
		}
		year = y
	}
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			http.Error(w, "invalid month", http.StatusBadRequest)
			return
		}
		month = m
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	appts, err := h.repo.List(r.Context(), ListFilter{
		From:  from,
		To:    from.AddDate(0, 1, 0),
		Limit: 500,
	})
	if err != nil {
		h.logger.Error("failed to load calendar", "error", err)
		http.Error(w, "failed to load calendar", http.StatusInternalServerError)
		return
	}

	resp := CalendarResponse{Year: year, Month: month, Days: make(map[string][]*Appointment)}
	for _, appt := range appts {
		day := appt.StartsAt.UTC().Format("2006-01-02")
		resp.Days[day] = append(resp.Days[day], appt)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetStats handles GET /ops/appointments/stats requests
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context(), h.now())
	if err != nil {
		h.logger.Error("failed to load appointment stats", "error", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
