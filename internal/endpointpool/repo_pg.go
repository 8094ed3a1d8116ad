package endpointpool

import (
	"context"
	"database/sql"
	"time"
)

// PGRepository implements Repository on Postgres.
//
// NOTE: assumes an `endpoint_pool` table with resource_id (pk),
// last_checked_out (timestamptz, NULL = free) and session_id columns, seeded
// with the fixed pool rows at provisioning time.
type PGRepository struct {
	db *sql.DB
}

func NewPGRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db}
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (r *PGRepository) List(ctx context.Context) ([]Entry, error) {
	const q = `
SELECT resource_id, last_checked_out, session_id
FROM endpoint_pool
ORDER BY resource_id ASC
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var checkedOut sql.NullTime
		var sessionID sql.NullString
		if err := rows.Scan(&e.ResourceID, &checkedOut, &sessionID); err != nil {
			return nil, err
		}
		if checkedOut.Valid {
			e.LastCheckedOut = checkedOut.Time
		}
		e.SessionID = sessionID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PGRepository) Claim(ctx context.Context, resourceID string, prev, now time.Time, sessionID string) (bool, error) {
	const q = `
UPDATE endpoint_pool
SET last_checked_out = $3, session_id = $4
WHERE resource_id = $1 AND last_checked_out IS NOT DISTINCT FROM $2
`
	res, err := r.db.ExecContext(ctx, q, resourceID, nullableTime(prev), now.UTC(), sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PGRepository) Release(ctx context.Context, resourceID string, prev time.Time) (bool, error) {
	const q = `
UPDATE endpoint_pool
SET last_checked_out = NULL, session_id = ''
WHERE resource_id = $1 AND last_checked_out IS NOT DISTINCT FROM $2
`
	res, err := r.db.ExecContext(ctx, q, resourceID, nullableTime(prev))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
