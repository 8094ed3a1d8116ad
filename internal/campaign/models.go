package campaign

import "time"

// Campaign is a tenant-scoped dialing job over an ordered contact list.
//
// Multi-tenant invariant: ClientID is required on every row.
//
// Ownership invariant: WorkerID and Heartbeat are set iff Status is running.
// Every transition into running sets both; every transition out clears both.
// Transitions happen exclusively through Store.TryTransition so that pause,
// resume, cancel and orphan reclaim stay correct under concurrent callers.
type Campaign struct {
	ID       string `json:"id" db:"id"`
	ClientID string `json:"client_id" db:"client_id"`
	ListID   string `json:"list_id" db:"list_id"`

	Status Status `json:"status" db:"status"`

	// CurrentIndex is the cursor: the next contact ordinal to dispatch.
	// Non-decreasing while running. The cursor advances on dispatch
	// acknowledgment, not on call completion.
	CurrentIndex int `json:"current_index" db:"current_index"`

	TotalContacts     int `json:"total_contacts" db:"total_contacts"`
	ProcessedContacts int `json:"processed_contacts" db:"processed_contacts"`

	// Outcome tallies, updated by callback application and forced releases.
	CompletedCalls int `json:"completed_calls" db:"completed_calls"`
	FailedCalls    int `json:"failed_calls" db:"failed_calls"`

	// WorkerID identifies the process that owns this campaign while running.
	WorkerID string `json:"worker_id,omitempty" db:"worker_id"`

	// Heartbeat is the owning worker's last liveness signal.
	Heartbeat *time.Time `json:"heartbeat,omitempty" db:"heartbeat"`

	// StartedAt is set on the first transition into running; it anchors the
	// observed dispatch rate used for ETA computation.
	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`

	// LastError holds the stored message when the campaign transitions to failed.
	LastError string `json:"last_error,omitempty" db:"last_error"`

	LastActivity time.Time `json:"last_activity" db:"last_activity"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CounterField names a numeric Campaign column eligible for atomic increments.
// Store implementations must reject anything outside this set.
type CounterField string

const (
	CounterProcessedContacts CounterField = "processed_contacts"
	CounterCompletedCalls    CounterField = "completed_calls"
	CounterFailedCalls       CounterField = "failed_calls"
)
