package endpointpool

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	ErrExhausted       = errors.New("endpoint pool exhausted")
	ErrNoCheckout      = errors.New("no checkout found for session")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Entry is one slot in the fixed endpoint pool. A zero LastCheckedOut means
// the slot is free; a non-zero value older than the freshness window means
// the checkout expired and the slot is reclaimable.
type Entry struct {
	ResourceID     string    `json:"resource_id" db:"resource_id"`
	LastCheckedOut time.Time `json:"last_checked_out" db:"last_checked_out"`
	SessionID      string    `json:"session_id" db:"session_id"`
}

// Free reports whether the entry holds no live checkout at the given time.
func (e Entry) Free(now time.Time, window time.Duration) bool {
	return e.LastCheckedOut.IsZero() || now.Sub(e.LastCheckedOut) > window
}

// Repository persists pool slots. Claim and Release are compare-and-set on
// the previously observed checkout time, so independent worker processes
// racing over the same slot resolve through the store.
type Repository interface {
	List(ctx context.Context) ([]Entry, error)

	// Claim marks the slot checked out iff its stored checkout time still
	// equals prev. Returns false when another process won the slot.
	Claim(ctx context.Context, resourceID string, prev, now time.Time, sessionID string) (bool, error)

	// Release frees the slot iff its stored checkout time still equals prev.
	Release(ctx context.Context, resourceID string, prev time.Time) (bool, error)
}

// Allocator hands out scarce endpoints for the duration of a session.
//
// Checkouts not returned within the freshness window expire implicitly: the
// slot becomes eligible for the next checkout without any sweeper touching
// it.
type Allocator struct {
	repo   Repository
	window time.Duration
	log    *slog.Logger
	clock  func() time.Time
}

func NewAllocator(repo Repository, window time.Duration, log *slog.Logger) *Allocator {
	if log == nil {
		log = slog.Default()
	}
	return &Allocator{repo: repo, window: window, log: log, clock: time.Now}
}

// Checkout claims the first eligible slot in pool order for the session.
// Slots lost to a concurrent claimer are skipped, not retried.
func (a *Allocator) Checkout(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrInvalidArgument
	}
	now := a.clock().UTC()
	entries, err := a.repo.List(ctx)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.Free(now, a.window) {
			continue
		}
		ok, err := a.repo.Claim(ctx, e.ResourceID, e.LastCheckedOut, now, sessionID)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if !e.LastCheckedOut.IsZero() {
			a.log.Warn("expired endpoint checkout reclaimed",
				"resource_id", e.ResourceID,
				"prev_session_id", e.SessionID,
				"age", now.Sub(e.LastCheckedOut).String(),
			)
		}
		return e.ResourceID, nil
	}
	return "", ErrExhausted
}

// Release frees the session's oldest live checkout. When a session identifier
// recurs across rotations, several slots can carry it at once; the earliest
// checkout is the one being returned, so that one wins.
func (a *Allocator) Release(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrInvalidArgument
	}
	for {
		entries, err := a.repo.List(ctx)
		if err != nil {
			return "", err
		}
		var oldest *Entry
		for i := range entries {
			e := entries[i]
			if e.SessionID != sessionID || e.LastCheckedOut.IsZero() {
				continue
			}
			if oldest == nil || e.LastCheckedOut.Before(oldest.LastCheckedOut) {
				oldest = &entries[i]
			}
		}
		if oldest == nil {
			return "", ErrNoCheckout
		}
		ok, err := a.repo.Release(ctx, oldest.ResourceID, oldest.LastCheckedOut)
		if err != nil {
			return "", err
		}
		if ok {
			return oldest.ResourceID, nil
		}
		// Lost a race on the selected slot; rescan.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}
