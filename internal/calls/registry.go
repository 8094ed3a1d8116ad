package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("active call not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Registry is the persistence contract for active calls.
//
// Counts are always derived from storage, never from process memory: workers
// run as independent, possibly ephemeral processes, and the registry is the
// only state they share. The small race window between a count and a
// concurrent insert is an accepted tradeoff (transient, bounded overshoot of
// the ceiling) rather than something to close with a distributed lock.
type Registry interface {
	// Create inserts the reservation row in `initiating` state.
	Create(ctx context.Context, c ActiveCall) error

	Get(ctx context.Context, callID string) (ActiveCall, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (ActiveCall, error)

	// AttachProviderCallID records the provider's correlating id after a
	// successful dispatch.
	AttachProviderCallID(ctx context.Context, callID, providerCallID string) error

	// Transition moves a call to a new status only if the stored status is
	// still non-terminal. It reports false (no error) when the call was
	// already terminal, which makes releases idempotent under duplicate
	// provider callbacks.
	Transition(ctx context.Context, callID string, to CallStatus) (bool, error)

	// CountActive returns the number of non-terminal rows, globally and for
	// one client.
	CountActive(ctx context.Context) (int, error)
	CountActiveForClient(ctx context.Context, clientID string) (int, error)

	// ListStale returns non-terminal calls started before the cutoff.
	// Input to the call-timeout sweep.
	ListStale(ctx context.Context, cutoff time.Time) ([]ActiveCall, error)
}
