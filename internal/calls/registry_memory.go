package calls

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRegistry is an in-memory Registry for tests.
// It mirrors PGRegistry semantics, including idempotent terminal transitions.
type MemoryRegistry struct {
	mu    sync.Mutex
	calls map[string]ActiveCall

	// Clock is injectable for deterministic tests.
	Clock func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{calls: map[string]ActiveCall{}, Clock: time.Now}
}

func (r *MemoryRegistry) now() time.Time { return r.Clock().UTC() }

func (r *MemoryRegistry) Create(ctx context.Context, c ActiveCall) error {
	if c.CallID == "" || c.ClientID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[c.CallID]; ok {
		return fmt.Errorf("call %s already exists", c.CallID)
	}
	now := r.now()
	c.Status = CallStatusInitiating
	if c.StartTime.IsZero() {
		c.StartTime = now
	}
	c.UpdatedAt = now
	r.calls[c.CallID] = c
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, callID string) (ActiveCall, error) {
	if callID == "" {
		return ActiveCall{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return ActiveCall{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRegistry) GetByProviderCallID(ctx context.Context, providerCallID string) (ActiveCall, error) {
	if providerCallID == "" {
		return ActiveCall{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return ActiveCall{}, ErrNotFound
}

func (r *MemoryRegistry) AttachProviderCallID(ctx context.Context, callID, providerCallID string) error {
	if callID == "" || providerCallID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.ProviderCallID = providerCallID
	c.UpdatedAt = r.now()
	r.calls[callID] = c
	return nil
}

func (r *MemoryRegistry) Transition(ctx context.Context, callID string, to CallStatus) (bool, error) {
	if callID == "" || to == "" {
		return false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return false, nil
	}
	if c.Status.Terminal() {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = r.now()
	r.calls[callID] = c
	return true, nil
}

func (r *MemoryRegistry) CountActive(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if !c.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRegistry) CountActiveForClient(ctx context.Context, clientID string) (int, error) {
	if clientID == "" {
		return 0, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.ClientID == clientID && !c.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRegistry) ListStale(ctx context.Context, cutoff time.Time) ([]ActiveCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ActiveCall
	for _, c := range r.calls {
		if !c.Status.Terminal() && c.StartTime.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}
