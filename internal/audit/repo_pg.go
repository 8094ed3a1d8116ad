package audit

import (
	"context"
	"database/sql"
)

// PGRepo appends audit events to Postgres.
//
// NOTE: assumes an `audit_events` table with an INSERT-only policy.
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, client_id, type, actor_user_id, worker_id, campaign_id, call_id, message, metadata, created_at
) VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8,NULLIF($9,''),$10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.ClientID, string(e.Type),
		e.ActorUserID, e.WorkerID, e.CampaignID, e.CallID,
		e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
