package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"dialer-platform/internal/calls"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.
// It enforces client isolation on reads.

type MemoryRepo struct {
	mu sync.Mutex

	Calls []calls.ActiveCall
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, clientID string, from, to time.Time, campaignID string) ([]calls.ActiveCall, error) {
	if clientID == "" {
		return nil, errors.New("client_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.ActiveCall, 0)
	for _, c := range r.Calls {
		if c.ClientID != clientID {
			continue
		}
		if !c.StartTime.IsZero() {
			if c.StartTime.Before(from) || !c.StartTime.Before(to) {
				continue
			}
		}
		if campaignID != "" && c.CampaignID != campaignID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
