package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRegistry implements Registry on Postgres.
//
// NOTE: assumes an `active_calls` table with the columns scanned below and a
// UNIQUE constraint on call_id. provider_call_id should be indexed; callbacks
// look calls up by it.
type PGRegistry struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGRegistry(db *sql.DB) *PGRegistry {
	return &PGRegistry{db: db, clock: time.Now}
}

const activeCallColumns = `
call_id, client_id, campaign_id, provider_call_id, to_number, status, start_time, updated_at`

const terminalStatuses = `('completed','failed','timed_out')`

func scanActiveCall(row interface{ Scan(...any) error }) (ActiveCall, error) {
	var c ActiveCall
	var campaignID, providerCallID sql.NullString
	err := row.Scan(
		&c.CallID,
		&c.ClientID,
		&campaignID,
		&providerCallID,
		&c.To,
		&c.Status,
		&c.StartTime,
		&c.UpdatedAt,
	)
	if err != nil {
		return ActiveCall{}, err
	}
	c.CampaignID = campaignID.String
	c.ProviderCallID = providerCallID.String
	return c, nil
}

func (r *PGRegistry) Create(ctx context.Context, c ActiveCall) error {
	if c.CallID == "" || c.ClientID == "" {
		return ErrInvalidArgument
	}
	now := r.clock().UTC()
	start := c.StartTime
	if start.IsZero() {
		start = now
	}
	const q = `
INSERT INTO active_calls (call_id, client_id, campaign_id, to_number, status, start_time, updated_at)
VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q, c.CallID, c.ClientID, c.CampaignID, c.To, string(CallStatusInitiating), start, now)
	return err
}

func (r *PGRegistry) Get(ctx context.Context, callID string) (ActiveCall, error) {
	if callID == "" {
		return ActiveCall{}, ErrInvalidArgument
	}
	q := `SELECT ` + activeCallColumns + ` FROM active_calls WHERE call_id = $1`
	c, err := scanActiveCall(r.db.QueryRowContext(ctx, q, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return ActiveCall{}, ErrNotFound
	}
	return c, err
}

func (r *PGRegistry) GetByProviderCallID(ctx context.Context, providerCallID string) (ActiveCall, error) {
	if providerCallID == "" {
		return ActiveCall{}, ErrInvalidArgument
	}
	q := `SELECT ` + activeCallColumns + ` FROM active_calls WHERE provider_call_id = $1`
	c, err := scanActiveCall(r.db.QueryRowContext(ctx, q, providerCallID))
	if errors.Is(err, sql.ErrNoRows) {
		return ActiveCall{}, ErrNotFound
	}
	return c, err
}

func (r *PGRegistry) AttachProviderCallID(ctx context.Context, callID, providerCallID string) error {
	if callID == "" || providerCallID == "" {
		return ErrInvalidArgument
	}
	now := r.clock().UTC()
	const q = `UPDATE active_calls SET provider_call_id = $2, updated_at = $3 WHERE call_id = $1`
	res, err := r.db.ExecContext(ctx, q, callID, providerCallID, now)
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

func (r *PGRegistry) Transition(ctx context.Context, callID string, to CallStatus) (bool, error) {
	if callID == "" || to == "" {
		return false, ErrInvalidArgument
	}
	now := r.clock().UTC()
	q := `
UPDATE active_calls SET status = $2, updated_at = $3
WHERE call_id = $1 AND status NOT IN ` + terminalStatuses
	res, err := r.db.ExecContext(ctx, q, callID, string(to), now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PGRegistry) CountActive(ctx context.Context) (int, error) {
	q := `SELECT COUNT(*) FROM active_calls WHERE status NOT IN ` + terminalStatuses
	var n int
	err := r.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

func (r *PGRegistry) CountActiveForClient(ctx context.Context, clientID string) (int, error) {
	if clientID == "" {
		return 0, ErrInvalidArgument
	}
	q := `SELECT COUNT(*) FROM active_calls WHERE client_id = $1 AND status NOT IN ` + terminalStatuses
	var n int
	err := r.db.QueryRowContext(ctx, q, clientID).Scan(&n)
	return n, err
}

func (r *PGRegistry) ListStale(ctx context.Context, cutoff time.Time) ([]ActiveCall, error) {
	q := `SELECT ` + activeCallColumns + `
FROM active_calls
WHERE status NOT IN ` + terminalStatuses + ` AND start_time < $1
ORDER BY start_time ASC`
	rows, err := r.db.QueryContext(ctx, q, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActiveCall
	for rows.Next() {
		c, err := scanActiveCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
