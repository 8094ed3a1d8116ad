package dialer

import (
	"context"
)

// Dispatcher is the provider-agnostic outbound-call interface used by the
// campaign processor.
//
// Rules:
// - No provider SDK calls outside dialer adapters.
// - Dispatch is a synchronous acknowledgment only: it returns once the
//   provider has accepted the call attempt. The real call outcome arrives
//   later through the provider's status callback webhook.
// - Keep request/response types provider-agnostic; raw provider payloads can
//   be stored in metadata if needed.
type Dispatcher interface {
	Name() string
	HealthCheck(ctx context.Context) error

	Dispatch(ctx context.Context, params CallParams) (DispatchResult, error)
}

// CallParams describes one outbound call attempt.
type CallParams struct {
	ClientID   string `json:"client_id"`
	CampaignID string `json:"campaign_id,omitempty"`

	// CallID is the internal reservation id; providers echo it back through
	// the status callback URL so inbound events can be correlated even
	// before the provider id is persisted.
	CallID string `json:"call_id"`

	// From and To are E.164 where possible.
	From string `json:"from"`
	To   string `json:"to"`

	// Variables carries per-contact dynamic fields for the call script.
	Variables map[string]string `json:"variables,omitempty"`
}

// DispatchResult is the provider's synchronous acknowledgment.
type DispatchResult struct {
	// ProviderCallID is the provider's unique identifier for this call.
	ProviderCallID string `json:"provider_call_id"`
}
