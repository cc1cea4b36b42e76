package archive

import (
	"context"
	"sort"
	"sync"
)

type recordKey struct {
	stationID int
	saveDate  string
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[recordKey]*Record
}

// NewInMemoryRepository creates a new in-memory archive repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[recordKey]*Record),
	}
}

// Create stores a copy of rec.
func (r *InMemoryRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey{rec.StationID, rec.SaveDate}
	if _, exists := r.records[key]; exists {
		return ErrRecordExists
	}
	r.records[key] = rec.Clone()
	return nil
}

// List returns all record summaries.
func (r *InMemoryRepository) List(_ context.Context) ([]Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Summary())
	}
	sortSummaries(out)
	return out, nil
}

// Get returns a copy of the stored record.
func (r *InMemoryRepository) Get(_ context.Context, stationID int, saveDate string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[recordKey{stationID, saveDate}]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].StationID != s[j].StationID {
			return s[i].StationID < s[j].StationID
		}
		return s[i].SaveDate < s[j].SaveDate
	})
}
