package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - client_id is required for tenancy isolation.
// - actor capture is best-effort; do not block engine flows on audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`

	// Type indicates the engine event category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event (if applicable).
	// Engine-originated events carry the worker id instead.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	WorkerID    string `json:"worker_id,omitempty" db:"worker_id"`

	// Target identifiers (optional, depending on the event type).
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`
	CallID     string `json:"call_id,omitempty" db:"call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCampaignClaimed   EventType = "campaign_claimed"
	EventTypeCampaignPaused    EventType = "campaign_paused"
	EventTypeCampaignResumed   EventType = "campaign_resumed"
	EventTypeCampaignCancelled EventType = "campaign_cancelled"
	EventTypeCampaignCompleted EventType = "campaign_completed"
	EventTypeCampaignFailed    EventType = "campaign_failed"
	EventTypeOrphanReclaimed   EventType = "orphan_reclaimed"
	EventTypeForcedRelease     EventType = "forced_release"
)
