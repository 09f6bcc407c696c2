package appointments

import (
	"strings"
	"time"
)

// AppointmentStatus is the lifecycle state of a booked slot.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusNoShow    AppointmentStatus = "NO_SHOW"
)

// ParseStatus maps a wire status string to an AppointmentStatus.
func ParseStatus(raw string) (AppointmentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SCHEDULED":
		return StatusScheduled, true
	case "CONFIRMED":
		return StatusConfirmed, true
	case "COMPLETED":
		return StatusCompleted, true
	case "CANCELLED":
		return StatusCancelled, true
	case "NO_SHOW":
		return StatusNoShow, true
	}
	return "", false
}

// Appointment is a slot the voice agent booked for a caller.
type Appointment struct {
	ID           string            `json:"id"`
	LeadID       string            `json:"lead_id,omitempty"`
	CallID       string            `json:"call_id,omitempty"`
	CustomerName string            `json:"customer_name"`
	Phone        string            `json:"phone,omitempty"`
	Service      string            `json:"service"`
	Status       AppointmentStatus `json:"status"`
	StartsAt     time.Time         `json:"starts_at"`
	DurationMin  int               `json:"duration_min"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// CreateAppointmentRequest represents the request body for booking a slot
type CreateAppointmentRequest struct {
	LeadID       string    `json:"lead_id"`
	CallID       string    `json:"call_id"`
	CustomerName string    `json:"customer_name"`
	Phone        string    `json:"phone"`
	Service      string    `json:"service"`
	StartsAt     time.Time `json:"starts_at"`
	DurationMin  int       `json:"duration_min"`
	Notes        string    `json:"notes"`
}

// Validate validates the create appointment request
func (r *CreateAppointmentRequest) Validate() error {
	if strings.TrimSpace(r.CustomerName) == "" {
		return ErrMissingCustomer
	}
	if strings.TrimSpace(r.Service) == "" {
		return ErrMissingService
	}
	if r.StartsAt.IsZero() {
		return ErrMissingStart
	}
	return nil
}

// UpdateAppointmentRequest reschedules or re-statuses a slot. Zero values
// leave the field unchanged.
type UpdateAppointmentRequest struct {
	Status      string     `json:"status"`
	StartsAt    *time.Time `json:"starts_at"`
	DurationMin *int       `json:"duration_min"`
	Notes       *string    `json:"notes"`
}

// ListFilter narrows appointment queries.
type ListFilter struct {
	Status AppointmentStatus
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

func (f *ListFilter) normalize() {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Stats are the dashboard counters for the booking pipeline.
type Stats struct {
	Today     int            `json:"today"`
	ThisWeek  int            `json:"this_week"`
	ThisMonth int            `json:"this_month"`
	ByStatus  map[string]int `json:"by_status"`
}
