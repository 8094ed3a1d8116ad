package reporting

import (
	"context"
	"database/sql"
	"time"

	"dialer-platform/internal/calls"
)

// PGRepo serves reporting reads from the active_calls table. Terminal rows
// are retained there until archival, so the window queries see finished
// calls too.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) ListCalls(ctx context.Context, clientID string, from, to time.Time, campaignID string) ([]calls.ActiveCall, error) {
	const q = `
SELECT call_id, client_id, campaign_id, provider_call_id, to_number, status, start_time, updated_at
FROM active_calls
WHERE client_id = $1
  AND start_time >= $2 AND start_time < $3
  AND ($4 = '' OR campaign_id = $4)
ORDER BY start_time ASC
`
	rows, err := r.db.QueryContext(ctx, q, clientID, from.UTC(), to.UTC(), campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.ActiveCall
	for rows.Next() {
		var c calls.ActiveCall
		var cid, pid sql.NullString
		if err := rows.Scan(&c.CallID, &c.ClientID, &cid, &pid, &c.To, &c.Status, &c.StartTime, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.CampaignID = cid.String
		c.ProviderCallID = pid.String
		out = append(out, c)
	}
	return out, rows.Err()
}
