package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("campaign not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransitionOpts carries the extra fields written alongside a status change.
type TransitionOpts struct {
	// WorkerID is required when transitioning into running; it becomes the
	// owner recorded on the row. Ignored for all other targets.
	WorkerID string

	// LastError is stored when transitioning into failed.
	LastError string
}

// Store is the persistence contract for campaigns.
//
// TryTransition is the sole mechanism for status changes. It succeeds only if
// the stored status is one of `from`, applies the change plus ownership
// bookkeeping atomically, and reports false (no error) when the precondition
// does not hold. Ownership handling is structural, not caller-supplied:
// entering running sets worker_id and heartbeat (and started_at if unset),
// leaving running clears both.
type Store interface {
	Create(ctx context.Context, c Campaign) error
	Get(ctx context.Context, id string) (Campaign, error)

	TryTransition(ctx context.Context, id string, from []Status, to Status, opts TransitionOpts) (bool, error)

	// IncrementCounter atomically adds delta to a whitelisted numeric field.
	// It carries no status precondition; callbacks may tally outcomes after
	// the campaign itself has finished.
	IncrementCounter(ctx context.Context, id string, field CounterField, delta int) error

	// AdvanceCursor moves current_index forward for the owning worker.
	// It is conditional on status=running, worker_id ownership and a strictly
	// larger target, which keeps the cursor non-decreasing.
	AdvanceCursor(ctx context.Context, id, workerID string, to int) (bool, error)

	// RefreshHeartbeat updates the liveness timestamp while ownership holds.
	// A false return means ownership was lost (pause, cancel or orphan reclaim).
	RefreshHeartbeat(ctx context.Context, id, workerID string, at time.Time) (bool, error)

	// ListStaleRunning returns running campaigns whose heartbeat is older
	// than the cutoff. Input to the orphan sweep.
	ListStaleRunning(ctx context.Context, cutoff time.Time) ([]Campaign, error)
}

// PGStore implements Store on Postgres.
//
// NOTE: assumes a `campaigns` table with the columns scanned below and a
// text `status` column; status strings are the Status constants.
type PGStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, clock: time.Now}
}

const campaignColumns = `
id, client_id, list_id, status, current_index, total_contacts, processed_contacts,
completed_calls, failed_calls, worker_id, heartbeat, started_at, last_error,
last_activity, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (Campaign, error) {
	var c Campaign
	var workerID, lastError sql.NullString
	var heartbeat, startedAt sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.ListID,
		&c.Status,
		&c.CurrentIndex,
		&c.TotalContacts,
		&c.ProcessedContacts,
		&c.CompletedCalls,
		&c.FailedCalls,
		&workerID,
		&heartbeat,
		&startedAt,
		&lastError,
		&c.LastActivity,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Campaign{}, err
	}
	c.WorkerID = workerID.String
	c.LastError = lastError.String
	if heartbeat.Valid {
		t := heartbeat.Time
		c.Heartbeat = &t
	}
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	return c, nil
}

func (s *PGStore) Create(ctx context.Context, c Campaign) error {
	if c.ID == "" || c.ClientID == "" || c.ListID == "" {
		return ErrInvalidArgument
	}
	if c.TotalContacts < 0 {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()
	const q = `
INSERT INTO campaigns (
  id, client_id, list_id, status, current_index, total_contacts, processed_contacts,
  completed_calls, failed_calls, last_activity, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.ClientID, c.ListID, string(StatusPending),
		0, c.TotalContacts, 0, 0, 0,
		now, now, now,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id string) (Campaign, error) {
	if id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	c, err := scanCampaign(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (s *PGStore) TryTransition(ctx context.Context, id string, from []Status, to Status, opts TransitionOpts) (bool, error) {
	if id == "" || len(from) == 0 {
		return false, ErrInvalidArgument
	}
	if to == StatusRunning && opts.WorkerID == "" {
		return false, ErrInvalidArgument
	}
	now := s.clock().UTC()

	args := []any{id, string(to), now}
	ph := make([]string, 0, len(from))
	for _, f := range from {
		args = append(args, string(f))
		ph = append(ph, fmt.Sprintf("$%d", len(args)))
	}

	var set string
	switch {
	case to == StatusRunning:
		args = append(args, opts.WorkerID)
		set = fmt.Sprintf(`status = $2, worker_id = $%d, heartbeat = $3,
       started_at = COALESCE(started_at, $3), last_activity = $3, updated_at = $3`, len(args))
	case to == StatusFailed:
		args = append(args, opts.LastError)
		set = fmt.Sprintf(`status = $2, worker_id = NULL, heartbeat = NULL,
       last_error = $%d, last_activity = $3, updated_at = $3`, len(args))
	default:
		set = `status = $2, worker_id = NULL, heartbeat = NULL, last_activity = $3, updated_at = $3`
	}

	q := `UPDATE campaigns SET ` + set + ` WHERE id = $1 AND status IN (` + strings.Join(ph, ",") + `)`
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) IncrementCounter(ctx context.Context, id string, field CounterField, delta int) error {
	if id == "" {
		return ErrInvalidArgument
	}
	switch field {
	case CounterProcessedContacts, CounterCompletedCalls, CounterFailedCalls:
	default:
		return fmt.Errorf("%w: counter field %q", ErrInvalidArgument, field)
	}
	now := s.clock().UTC()
	q := fmt.Sprintf(`UPDATE campaigns SET %s = %s + $2, updated_at = $3 WHERE id = $1`, field, field)
	res, err := s.db.ExecContext(ctx, q, id, delta, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) AdvanceCursor(ctx context.Context, id, workerID string, to int) (bool, error) {
	if id == "" || workerID == "" || to <= 0 {
		return false, ErrInvalidArgument
	}
	now := s.clock().UTC()
	const q = `
UPDATE campaigns
SET current_index = $3, last_activity = $4, updated_at = $4
WHERE id = $1 AND worker_id = $2 AND status = 'running' AND current_index < $3
`
	res, err := s.db.ExecContext(ctx, q, id, workerID, to, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) RefreshHeartbeat(ctx context.Context, id, workerID string, at time.Time) (bool, error) {
	if id == "" || workerID == "" {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE campaigns
SET heartbeat = $3, updated_at = $3
WHERE id = $1 AND worker_id = $2 AND status = 'running'
`
	res, err := s.db.ExecContext(ctx, q, id, workerID, at.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]Campaign, error) {
	q := `SELECT ` + campaignColumns + `
FROM campaigns
WHERE status = 'running' AND heartbeat < $1
ORDER BY heartbeat ASC`
	rows, err := s.db.QueryContext(ctx, q, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
