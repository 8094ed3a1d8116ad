package calls

import "time"

// ActiveCall tracks one in-flight (or recently finished) outbound call.
//
// The row doubles as the admission reservation: creating it in `initiating`
// state is what consumes a concurrency slot, and transitioning it to a
// terminal state is what releases the slot. There is no separate counter
// table; global and per-client concurrency are COUNT queries over
// non-terminal rows.
//
// Multi-tenant invariant: ClientID is required on every row.
//
// CallID is minted internally at admission time. ProviderCallID is the
// provider's correlating identifier, attached after dispatch succeeds;
// inbound status callbacks are matched on it.
type ActiveCall struct {
	CallID         string `json:"call_id" db:"call_id"`
	ClientID       string `json:"client_id" db:"client_id"`
	CampaignID     string `json:"campaign_id,omitempty" db:"campaign_id"` // empty for ad hoc calls
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	To string `json:"to" db:"to_number"`

	Status CallStatus `json:"status" db:"status"`

	StartTime time.Time `json:"start_time" db:"start_time"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusInitiating CallStatus = "initiating"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusConnected  CallStatus = "connected"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusTimedOut   CallStatus = "timed_out"
)

// Terminal reports whether s releases the admission slot.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusTimedOut:
		return true
	default:
		return false
	}
}
