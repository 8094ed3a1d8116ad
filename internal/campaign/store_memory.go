package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// It mirrors PGStore semantics, including the conditional-update contracts.
type MemoryStore struct {
	mu        sync.Mutex
	campaigns map[string]Campaign

	// Clock is injectable for deterministic tests.
	Clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{campaigns: map[string]Campaign{}, Clock: time.Now}
}

func (s *MemoryStore) now() time.Time { return s.Clock().UTC() }

func (s *MemoryStore) Create(ctx context.Context, c Campaign) error {
	if c.ID == "" || c.ClientID == "" || c.ListID == "" || c.TotalContacts < 0 {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; ok {
		return fmt.Errorf("campaign %s already exists", c.ID)
	}
	now := s.now()
	c.Status = StatusPending
	c.CurrentIndex = 0
	c.ProcessedContacts = 0
	c.CompletedCalls = 0
	c.FailedCalls = 0
	c.WorkerID = ""
	c.Heartbeat = nil
	c.StartedAt = nil
	c.LastActivity = now
	c.CreatedAt = now
	c.UpdatedAt = now
	s.campaigns[c.ID] = c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Campaign, error) {
	if id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) TryTransition(ctx context.Context, id string, from []Status, to Status, opts TransitionOpts) (bool, error) {
	if id == "" || len(from) == 0 {
		return false, ErrInvalidArgument
	}
	if to == StatusRunning && opts.WorkerID == "" {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, f := range from {
		if c.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}

	now := s.now()
	c.Status = to
	if to == StatusRunning {
		c.WorkerID = opts.WorkerID
		hb := now
		c.Heartbeat = &hb
		if c.StartedAt == nil {
			st := now
			c.StartedAt = &st
		}
	} else {
		c.WorkerID = ""
		c.Heartbeat = nil
		if to == StatusFailed {
			c.LastError = opts.LastError
		}
	}
	c.LastActivity = now
	c.UpdatedAt = now
	s.campaigns[id] = c
	return true, nil
}

func (s *MemoryStore) IncrementCounter(ctx context.Context, id string, field CounterField, delta int) error {
	if id == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	switch field {
	case CounterProcessedContacts:
		c.ProcessedContacts += delta
	case CounterCompletedCalls:
		c.CompletedCalls += delta
	case CounterFailedCalls:
		c.FailedCalls += delta
	default:
		return fmt.Errorf("%w: counter field %q", ErrInvalidArgument, field)
	}
	c.UpdatedAt = s.now()
	s.campaigns[id] = c
	return nil
}

func (s *MemoryStore) AdvanceCursor(ctx context.Context, id, workerID string, to int) (bool, error) {
	if id == "" || workerID == "" || to <= 0 {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return false, nil
	}
	if c.Status != StatusRunning || c.WorkerID != workerID || c.CurrentIndex >= to {
		return false, nil
	}
	now := s.now()
	c.CurrentIndex = to
	c.LastActivity = now
	c.UpdatedAt = now
	s.campaigns[id] = c
	return true, nil
}

func (s *MemoryStore) RefreshHeartbeat(ctx context.Context, id, workerID string, at time.Time) (bool, error) {
	if id == "" || workerID == "" {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return false, nil
	}
	if c.Status != StatusRunning || c.WorkerID != workerID {
		return false, nil
	}
	hb := at.UTC()
	c.Heartbeat = &hb
	c.UpdatedAt = s.now()
	s.campaigns[id] = c
	return true, nil
}

func (s *MemoryStore) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Campaign
	for _, c := range s.campaigns {
		if c.Status == StatusRunning && c.Heartbeat != nil && c.Heartbeat.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}
