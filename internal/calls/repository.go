package calls

import (
	"context"
	"sort"
	"sync"
)

// ListFilter narrows history queries.
type ListFilter struct {
	Status CallStatus
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

// Repository defines the interface for ended-call history storage
type Repository interface {
	Save(ctx context.Context, detail *CallDetail) error
	GetByID(ctx context.Context, id string) (*CallDetail, error)
	List(ctx context.Context, filter ListFilter) ([]*Call, error)
}

// InMemoryRepository is a Repository backed by process memory, used in
// development and tests.
type InMemoryRepository struct {
	mu    sync.RWMutex
	calls map[string]*CallDetail
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		calls: make(map[string]*CallDetail),
	}
}

// Save stores or replaces one ended call with its transcript and extraction.
func (r *InMemoryRepository) Save(ctx context.Context, detail *CallDetail) error {
	if detail == nil || detail.ID == "" {
		return ErrCallNotFound
	}
	snapshot := *detail
	snapshot.Transcript = append([]TranscriptItem(nil), detail.Transcript...)
	if detail.Extraction != nil {
		ex := *detail.Extraction
		snapshot.Extraction = &ex
	}

	r.mu.Lock()
	r.calls[detail.ID] = &snapshot
	r.mu.Unlock()
	return nil
}

// GetByID retrieves a call by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*CallDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	detail, ok := r.calls[id]
	if !ok {
		return nil, ErrCallNotFound
	}
	snapshot := *detail
	return &snapshot, nil
}

// List returns call history newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Call, error) {
	filter.normalize()

	r.mu.RLock()
	all := make([]*Call, 0, len(r.calls))
	for _, detail := range r.calls {
		if filter.Status != "" && detail.Status != filter.Status {
			continue
		}
		call := detail.Call
		all = append(all, &call)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	if filter.Offset >= len(all) {
		return []*Call{}, nil
	}
	all = all[filter.Offset:]
	if len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}
