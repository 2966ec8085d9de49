package statusstore

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Records are lost on restart, so the first run after a restart reports
// every non-normal line again.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRepository creates a new in-memory status repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
	}
}

// Get retrieves the record for a railway.
func (r *InMemoryRepository) Get(_ context.Context, railwayID string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[railwayID]
	if !ok {
		return nil, ErrRecordNotFound
	}

	cpy := *rec
	return &cpy, nil
}

// List retrieves every record ordered by railway ID.
func (r *InMemoryRepository) List(_ context.Context) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		cpy := *rec
		out = append(out, &cpy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RailwayID < out[j].RailwayID })
	return out, nil
}

// Save inserts or replaces the given records.
func (r *InMemoryRepository) Save(_ context.Context, records []*Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range records {
		cpy := *rec
		r.records[rec.RailwayID] = &cpy
	}
	return nil
}
