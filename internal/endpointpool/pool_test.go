package endpointpool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, window time.Duration, resources ...string) (*Allocator, *MemoryRepository, *time.Time) {
	t.Helper()
	repo := NewMemoryRepository(resources...)
	a := NewAllocator(repo, window, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.clock = func() time.Time { return now }
	return a, repo, &now
}

func TestAllocator_CheckoutExhaustsPool(t *testing.T) {
	a, _, _ := newTestAllocator(t, time.Minute, "ep-1", "ep-2", "ep-3")
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		id, err := a.Checkout(ctx, "sess")
		require.NoError(t, err)
		require.False(t, seen[id], "resource %s handed out twice", id)
		seen[id] = true
	}

	_, err := a.Checkout(ctx, "sess")
	require.ErrorIs(t, err, ErrExhausted)
}

func TestAllocator_ExpiredCheckoutIsReclaimable(t *testing.T) {
	a, _, now := newTestAllocator(t, time.Minute, "ep-1")
	ctx := context.Background()

	id, err := a.Checkout(ctx, "old-session")
	require.NoError(t, err)
	require.Equal(t, "ep-1", id)

	// Still inside the window: exhausted.
	*now = now.Add(59 * time.Second)
	_, err = a.Checkout(ctx, "new-session")
	require.ErrorIs(t, err, ErrExhausted)

	// Past the window: the stale checkout expires implicitly.
	*now = now.Add(2 * time.Second)
	id, err = a.Checkout(ctx, "new-session")
	require.NoError(t, err)
	require.Equal(t, "ep-1", id)
}

func TestAllocator_ReleaseFreesEarliestMatch(t *testing.T) {
	a, repo, now := newTestAllocator(t, time.Hour, "ep-1", "ep-2")
	ctx := context.Background()

	first, err := a.Checkout(ctx, "sess")
	require.NoError(t, err)

	*now = now.Add(10 * time.Second)
	second, err := a.Checkout(ctx, "sess")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// Same session holds both slots; releasing frees the older claim.
	released, err := a.Release(ctx, "sess")
	require.NoError(t, err)
	require.Equal(t, first, released)

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		switch e.ResourceID {
		case first:
			require.True(t, e.LastCheckedOut.IsZero())
			require.Empty(t, e.SessionID)
		case second:
			require.False(t, e.LastCheckedOut.IsZero())
			require.Equal(t, "sess", e.SessionID)
		}
	}

	released, err = a.Release(ctx, "sess")
	require.NoError(t, err)
	require.Equal(t, second, released)

	_, err = a.Release(ctx, "sess")
	require.ErrorIs(t, err, ErrNoCheckout)
}

func TestAllocator_CheckoutSkipsHeldSlot(t *testing.T) {
	a, repo, now := newTestAllocator(t, time.Minute, "ep-1", "ep-2")
	ctx := context.Background()

	// Another process already holds ep-1.
	ok, err := repo.Claim(ctx, "ep-1", time.Time{}, now.Add(time.Millisecond), "rival")
	require.NoError(t, err)
	require.True(t, ok)

	id, err := a.Checkout(ctx, "sess")
	require.NoError(t, err)
	require.Equal(t, "ep-2", id)
}
