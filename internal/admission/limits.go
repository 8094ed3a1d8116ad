package admission

import (
	"context"
	"errors"
	"time"
)

// ClientLimit is a tenant-scoped concurrency ceiling override.
// Clients without an effective row fall back to the configured default.
type ClientLimit struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`

	MaxActiveCalls int `json:"max_active_calls" db:"max_active_calls"`

	// Effective window for the override.
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LimitRepository abstracts limit persistence.
// Implementations must return the override effective at `at`, if any.
type LimitRepository interface {
	FindClientLimit(ctx context.Context, clientID string, at time.Time) (ClientLimit, bool, error)
}

var ErrInvalidLimitReq = errors.New("invalid limit request")

// LimitPolicy resolves the per-client ceiling.
type LimitPolicy struct {
	repo       LimitRepository
	defaultMax int
	clock      func() time.Time
}

func NewLimitPolicy(repo LimitRepository, defaultMax int) *LimitPolicy {
	return &LimitPolicy{repo: repo, defaultMax: defaultMax, clock: time.Now}
}

func (p *LimitPolicy) MaxActiveCalls(ctx context.Context, clientID string) (int, error) {
	if clientID == "" {
		return 0, ErrInvalidLimitReq
	}
	if p.repo == nil {
		return p.defaultMax, nil
	}
	l, ok, err := p.repo.FindClientLimit(ctx, clientID, p.clock().UTC())
	if err != nil {
		return 0, err
	}
	if !ok || l.MaxActiveCalls <= 0 {
		return p.defaultMax, nil
	}
	return l.MaxActiveCalls, nil
}
