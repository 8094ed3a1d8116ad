package campaign

import (
	"context"
	"errors"
	"fmt"

	"dialer-platform/internal/calls"
)

// CallbackApplier applies provider status callbacks to the registry and
// campaign tallies.
//
// Obligations:
// - idempotent: duplicate or late callbacks for a terminal call change nothing
// - a newly terminal status releases the admission slot (the registry row
//   itself) and tallies the outcome on the owning campaign
// - out-of-order callbacks after a terminal state are dropped, not replayed
type CallbackApplier struct {
	registry calls.Registry
	store    Store

	// OnRelease is invoked once per call when it first turns terminal.
	// The admission controller hooks its fast-path release here.
	OnRelease func(ctx context.Context, c calls.ActiveCall)
}

func NewCallbackApplier(registry calls.Registry, store Store) *CallbackApplier {
	return &CallbackApplier{registry: registry, store: store}
}

// Apply processes one callback. The first return reports whether the event
// changed state; false with a nil error means the callback was a duplicate
// (or arrived after the call turned terminal) and was ignored.
func (a *CallbackApplier) Apply(ctx context.Context, cb calls.StatusCallback) (bool, error) {
	if cb.ProviderCallID == "" {
		return false, calls.ErrInvalidArgument
	}
	if !calls.ValidCallbackStatus(cb.Status) {
		return false, fmt.Errorf("%w: %q", calls.ErrUnknownCallbackStatus, cb.Status)
	}

	call, err := a.registry.GetByProviderCallID(ctx, cb.ProviderCallID)
	if err != nil {
		return false, err
	}

	applied, err := a.registry.Transition(ctx, call.CallID, cb.Status)
	if err != nil {
		return false, err
	}
	if !applied {
		// Already terminal: duplicate or late event. No double-counting.
		return false, nil
	}
	if !cb.Status.Terminal() {
		return true, nil
	}

	if a.OnRelease != nil {
		call.Status = cb.Status
		a.OnRelease(ctx, call)
	}

	if call.CampaignID != "" {
		field := CounterFailedCalls
		if cb.Status == calls.CallStatusCompleted {
			field = CounterCompletedCalls
		}
		if err := a.store.IncrementCounter(ctx, call.CampaignID, field, 1); err != nil && !errors.Is(err, ErrNotFound) {
			return true, err
		}
	}
	return true, nil
}
