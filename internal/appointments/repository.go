package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for appointment storage
type Repository interface {
	Create(ctx context.Context, req *CreateAppointmentRequest) (*Appointment, error)
	GetByID(ctx context.Context, id string) (*Appointment, error)
	List(ctx context.Context, filter ListFilter) ([]*Appointment, error)
	Update(ctx context.Context, id string, req *UpdateAppointmentRequest) (*Appointment, error)
	Cancel(ctx context.Context, id string) (*Appointment, error)
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

// InMemoryRepository is a Repository backed by process memory, used in
// development and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	appts map[string]*Appointment
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		appts: make(map[string]*Appointment),
		now:   time.Now,
	}
}

// Create books a new slot.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateAppointmentRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	duration := req.DurationMin
	if duration <= 0 {
		duration = 30
	}
	appt := &Appointment{
		ID:           uuid.New().String(),
		LeadID:       req.LeadID,
		CallID:       req.CallID,
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Service:      req.Service,
		Status:       StatusScheduled,
		StartsAt:     req.StartsAt.UTC(),
		DurationMin:  duration,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	r.appts[appt.ID] = appt
	r.mu.Unlock()

	return appt, nil
}

// GetByID retrieves an appointment by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	snapshot := *appt
	return &snapshot, nil
}

// List returns appointments ordered by start time.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, error) {
	filter.normalize()

	r.mu.RLock()
	all := make([]*Appointment, 0, len(r.appts))
	for _, appt := range r.appts {
		if filter.Status != "" && appt.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && appt.StartsAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !appt.StartsAt.Before(filter.To) {
			continue
		}
		snapshot := *appt
		all = append(all, &snapshot)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartsAt.Equal(all[j].StartsAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].StartsAt.Before(all[j].StartsAt)
	})

	if filter.Offset >= len(all) {
		return []*Appointment{}, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

// Update applies the set fields of the request.
func (r *InMemoryRepository) Update(ctx context.Context, id string, req *UpdateAppointmentRequest) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if req.Status != "" {
		status, ok := ParseStatus(req.Status)
		if !ok {
			return nil, ErrUnknownStatus
		}
		appt.Status = status
	}
	if req.StartsAt != nil {
		appt.StartsAt = req.StartsAt.UTC()
	}
	if req.DurationMin != nil && *req.DurationMin > 0 {
		appt.DurationMin = *req.DurationMin
	}
	if req.Notes != nil {
		appt.Notes = *req.Notes
	}
	appt.UpdatedAt = r.now().UTC()
	snapshot := *appt
	return &snapshot, nil
}

// Cancel marks a slot cancelled; already-cancelled slots pass through.
func (r *InMemoryRepository) Cancel(ctx context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != StatusCancelled {
		appt.Status = StatusCancelled
		appt.UpdatedAt = r.now().UTC()
	}
	snapshot := *appt
	return &snapshot, nil
}

// Stats counts appointments for the dashboard.
func (r *InMemoryRepository) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := dayStart.AddDate(0, 0, -int(dayStart.Weekday()))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	stats := &Stats{ByStatus: make(map[string]int)}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, appt := range r.appts {
		stats.ByStatus[string(appt.Status)]++
		if appt.Status == StatusCancelled {
			continue
		}
		if !appt.StartsAt.Before(dayStart) && appt.StartsAt.Before(dayStart.AddDate(0, 0, 1)) {
			stats.Today++
		}
		if !appt.StartsAt.Before(weekStart) && appt.StartsAt.Before(weekStart.AddDate(0, 0, 7)) {
			stats.ThisWeek++
		}
		if !appt.StartsAt.Before(monthStart) && appt.StartsAt.Before(monthStart.AddDate(0, 1, 0)) {
			stats.ThisMonth++
		}
	}
	return stats, nil
}
