package admission

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// PGLimitRepository reads client limit overrides from Postgres.
//
// NOTE: assumes a `client_limits` table. Overlapping effective windows are
// resolved by taking the most recently effective row.
type PGLimitRepository struct {
	db *sql.DB
}

func NewPGLimitRepository(db *sql.DB) *PGLimitRepository {
	return &PGLimitRepository{db: db}
}

func (r *PGLimitRepository) FindClientLimit(ctx context.Context, clientID string, at time.Time) (ClientLimit, bool, error) {
	const q = `
SELECT id, client_id, max_active_calls, effective_from, effective_to, created_at, updated_at
FROM client_limits
WHERE client_id = $1
  AND effective_from <= $2
  AND (effective_to IS NULL OR effective_to > $2)
ORDER BY effective_from DESC
LIMIT 1
`
	var l ClientLimit
	var effectiveTo sql.NullTime
	err := r.db.QueryRowContext(ctx, q, clientID, at).Scan(
		&l.ID,
		&l.ClientID,
		&l.MaxActiveCalls,
		&l.EffectiveFrom,
		&effectiveTo,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ClientLimit{}, false, nil
		}
		return ClientLimit{}, false, err
	}
	if effectiveTo.Valid {
		t := effectiveTo.Time
		l.EffectiveTo = &t
	}
	return l, true, nil
}

// MemoryLimitRepository is an in-memory LimitRepository for tests.
type MemoryLimitRepository struct {
	mu     sync.Mutex
	limits map[string]ClientLimit
}

func NewMemoryLimitRepository() *MemoryLimitRepository {
	return &MemoryLimitRepository{limits: map[string]ClientLimit{}}
}

func (r *MemoryLimitRepository) Set(l ClientLimit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[l.ClientID] = l
}

func (r *MemoryLimitRepository) FindClientLimit(ctx context.Context, clientID string, at time.Time) (ClientLimit, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limits[clientID]
	if !ok {
		return ClientLimit{}, false, nil
	}
	if l.EffectiveFrom.After(at) {
		return ClientLimit{}, false, nil
	}
	if l.EffectiveTo != nil && !l.EffectiveTo.After(at) {
		return ClientLimit{}, false, nil
	}
	return l, true, nil
}
