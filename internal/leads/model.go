package leads

import (
	"strings"
	"time"
)

// LeadStatus is the follow-up pipeline position of a lead.
type LeadStatus string

const (
	StatusNew       LeadStatus = "NEW"
	StatusFollowUp  LeadStatus = "FOLLOW_UP"
	StatusBooked    LeadStatus = "BOOKED"
	StatusLost      LeadStatus = "LOST"
	StatusCompleted LeadStatus = "COMPLETED"
)

// ParseStatus maps a wire status string to a LeadStatus.
func ParseStatus(raw string) (LeadStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "NEW":
		return StatusNew, true
	case "FOLLOW_UP":
		return StatusFollowUp, true
	case "BOOKED":
		return StatusBooked, true
	case "LOST":
		return StatusLost, true
	case "COMPLETED":
		return StatusCompleted, true
	}
	return "", false
}

// Lead represents a caller the agent has captured contact details for
type Lead struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Email           string     `json:"email,omitempty"`
	Status          LeadStatus `json:"status"`
	ServiceInterest string     `json:"service_interest,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	LastCallID      string     `json:"last_call_id,omitempty"`
	LastCallAt      *time.Time `json:"last_call_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	ServiceInterest string `json:"service_interest"`
	Notes           string `json:"notes"`
	LastCallID      string `json:"last_call_id"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.Phone == "" && r.Email == "" {
		return ErrMissingContact
	}
	return nil
}

// UpdateStatusRequest moves a lead through the pipeline.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// ListFilter narrows lead queries.
type ListFilter struct {
	Status LeadStatus
	Limit  int
	Offset int
}

func (f *ListFilter) normalize() {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
