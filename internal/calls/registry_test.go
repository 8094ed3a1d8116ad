package calls

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_ReservationLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	require.NoError(t, r.Create(ctx, ActiveCall{CallID: "c1", ClientID: "cl", CampaignID: "camp", To: "+1555"}))

	got, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, CallStatusInitiating, got.Status)

	require.NoError(t, r.AttachProviderCallID(ctx, "c1", "CA1"))
	byProvider, err := r.GetByProviderCallID(ctx, "CA1")
	require.NoError(t, err)
	require.Equal(t, "c1", byProvider.CallID)

	applied, err := r.Transition(ctx, "c1", CallStatusConnected)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = r.Transition(ctx, "c1", CallStatusCompleted)
	require.NoError(t, err)
	require.True(t, applied)

	// Terminal rows refuse further transitions.
	applied, err = r.Transition(ctx, "c1", CallStatusFailed)
	require.NoError(t, err)
	require.False(t, applied)

	got, err = r.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, CallStatusCompleted, got.Status)
}

func TestRegistry_CountsExcludeTerminal(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	require.NoError(t, r.Create(ctx, ActiveCall{CallID: "a1", ClientID: "cl-a"}))
	require.NoError(t, r.Create(ctx, ActiveCall{CallID: "a2", ClientID: "cl-a"}))
	require.NoError(t, r.Create(ctx, ActiveCall{CallID: "b1", ClientID: "cl-b"}))

	_, err := r.Transition(ctx, "a2", CallStatusCompleted)
	require.NoError(t, err)

	n, err := r.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = r.CountActiveForClient(ctx, "cl-a")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRegistry_ListStaleSkipsTerminal(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.Clock = func() time.Time { return now }

	old := now.Add(-10 * time.Minute)
	require.NoError(t, r.Create(ctx, ActiveCall{CallID: "stuck", ClientID: "cl", StartTime: old}))
	require.NoError(t, r.Create(ctx, ActiveCall{CallID: "done", ClientID: "cl", StartTime: old}))
	require.NoError(t, r.Create(ctx, ActiveCall{CallID: "fresh", ClientID: "cl", StartTime: now}))
	_, err := r.Transition(ctx, "done", CallStatusCompleted)
	require.NoError(t, err)

	stale, err := r.ListStale(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "stuck", stale[0].CallID)
}
