package endpointpool

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryRepository seeds a fixed pool with the given resource ids, all
// free.
func NewMemoryRepository(resourceIDs ...string) *MemoryRepository {
	r := &MemoryRepository{}
	for _, id := range resourceIDs {
		r.entries = append(r.entries, Entry{ResourceID: id})
	}
	return r
}

func (r *MemoryRepository) List(ctx context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

func (r *MemoryRepository) Claim(ctx context.Context, resourceID string, prev, now time.Time, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ResourceID != resourceID {
			continue
		}
		if !r.entries[i].LastCheckedOut.Equal(prev) {
			return false, nil
		}
		r.entries[i].LastCheckedOut = now.UTC()
		r.entries[i].SessionID = sessionID
		return true, nil
	}
	return false, nil
}

func (r *MemoryRepository) Release(ctx context.Context, resourceID string, prev time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ResourceID != resourceID {
			continue
		}
		if !r.entries[i].LastCheckedOut.Equal(prev) {
			return false, nil
		}
		r.entries[i].LastCheckedOut = time.Time{}
		r.entries[i].SessionID = ""
		return true, nil
	}
	return false, nil
}
