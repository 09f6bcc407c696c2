// Package services is the catalog of offerings the voice agent can book:
// what the dashboard shows in dropdowns and what extraction service names
// are matched against.
package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("service name is required")

	// ErrServiceNotFound is returned when a service is not found
	ErrServiceNotFound = errors.New("service not found")

	// ErrDuplicateName is returned when a service name already exists
	ErrDuplicateName = errors.New("service name already exists")
)

// Service is one bookable offering.
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DurationMin int       `json:"duration_min"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpsertServiceRequest creates or updates a catalog entry.
type UpsertServiceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DurationMin int    `json:"duration_min"`
	Active      *bool  `json:"active"`
}

// Validate validates the request
func (r *UpsertServiceRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	return nil
}

// Repository defines the interface for catalog storage
type Repository interface {
	Create(ctx context.Context, req *UpsertServiceRequest) (*Service, error)
	GetByID(ctx context.Context, id string) (*Service, error)
	List(ctx context.Context, activeOnly bool) ([]*Service, error)
	Update(ctx context.Context, id string, req *UpsertServiceRequest) (*Service, error)
	Deactivate(ctx context.Context, id string) error
}

// InMemoryRepository is a Repository backed by process memory.
type InMemoryRepository struct {
	mu       sync.RWMutex
	services map[string]*Service
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		services: make(map[string]*Service),
		now:      time.Now,
	}
}

// Create adds a catalog entry.
func (r *InMemoryRepository) Create(ctx context.Context, req *UpsertServiceRequest) (*Service, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, svc := range r.services {
		if strings.EqualFold(svc.Name, req.Name) {
			return nil, ErrDuplicateName
		}
	}

	now := r.now().UTC()
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	duration := req.DurationMin
	if duration <= 0 {
		duration = 30
	}
	svc := &Service{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		DurationMin: duration,
		Active:      active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.services[svc.ID] = svc
	snapshot := *svc
	return &snapshot, nil
}

// GetByID retrieves a service by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	snapshot := *svc
	return &snapshot, nil
}

// List returns the catalog ordered by name.
func (r *InMemoryRepository) List(ctx context.Context, activeOnly bool) ([]*Service, error) {
	r.mu.RLock()
	out := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		if activeOnly && !svc.Active {
			continue
		}
		snapshot := *svc
		out = append(out, &snapshot)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Update replaces the mutable fields of a catalog entry.
func (r *InMemoryRepository) Update(ctx context.Context, id string, req *UpsertServiceRequest) (*Service, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	for otherID, other := range r.services {
		if otherID != id && strings.EqualFold(other.Name, req.Name) {
			return nil, ErrDuplicateName
		}
	}

	svc.Name = req.Name
	svc.Description = req.Description
	if req.DurationMin > 0 {
		svc.DurationMin = req.DurationMin
	}
	if req.Active != nil {
		svc.Active = *req.Active
	}
	svc.UpdatedAt = r.now().UTC()
	snapshot := *svc
	return &snapshot, nil
}

// Deactivate hides a service from new bookings without deleting history.
func (r *InMemoryRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[id]
	if !ok {
		return ErrServiceNotFound
	}
	svc.Active = false
	svc.UpdatedAt = r.now().UTC()
	return nil
}
