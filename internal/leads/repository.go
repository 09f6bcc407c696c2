package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListFilter) ([]*Lead, error)
	UpdateStatus(ctx context.Context, id string, status LeadStatus, notes string) (*Lead, error)
	TouchCall(ctx context.Context, id string, callID string, at time.Time) error
}

// InMemoryRepository is a Repository backed by process memory, used in
// development and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   time.Now,
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	lead := &Lead{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Phone:           req.Phone,
		Email:           req.Email,
		Status:          StatusNew,
		ServiceInterest: req.ServiceInterest,
		Notes:           req.Notes,
		LastCallID:      req.LastCallID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.LastCallID != "" {
		at := now
		lead.LastCallAt = &at
	}

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.mu.Unlock()

	return lead, nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	snapshot := *lead
	return &snapshot, nil
}

// List returns leads newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	filter.normalize()

	r.mu.RLock()
	all := make([]*Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		snapshot := *lead
		all = append(all, &snapshot)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if filter.Offset >= len(all) {
		return []*Lead{}, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

// UpdateStatus moves a lead through the pipeline.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, status LeadStatus, notes string) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	lead.Status = status
	if notes != "" {
		lead.Notes = notes
	}
	lead.UpdatedAt = r.now().UTC()
	snapshot := *lead
	return &snapshot, nil
}

// TouchCall records the most recent call that reached this lead.
func (r *InMemoryRepository) TouchCall(ctx context.Context, id string, callID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	lead.LastCallID = callID
	lead.LastCallAt = &at
	lead.UpdatedAt = r.now().UTC()
	return nil
}
