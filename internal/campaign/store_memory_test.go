package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newStoreWithCampaign(t *testing.T, total int) (*MemoryStore, Campaign) {
	t.Helper()
	s := NewMemoryStore()
	c := Campaign{ID: "camp-1", ClientID: "cl-1", ListID: "list-1", TotalContacts: total}
	require.NoError(t, s.Create(context.Background(), c))
	got, err := s.Get(context.Background(), c.ID)
	require.NoError(t, err)
	return s, got
}

func TestTryTransition_OwnershipBookkeeping(t *testing.T) {
	ctx := context.Background()
	s, c := newStoreWithCampaign(t, 10)

	ok, err := s.TryTransition(ctx, c.ID, []Status{StatusPending, StatusPaused}, StatusRunning, TransitionOpts{WorkerID: "w1"})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, got.Status)
	require.Equal(t, "w1", got.WorkerID)
	require.NotNil(t, got.Heartbeat)
	require.NotNil(t, got.StartedAt)

	// Leaving running clears ownership.
	ok, err = s.TryTransition(ctx, c.ID, []Status{StatusRunning}, StatusPaused, TransitionOpts{})
	require.NoError(t, err)
	require.True(t, ok)

	got, err = s.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, got.Status)
	require.Empty(t, got.WorkerID)
	require.Nil(t, got.Heartbeat)
	// StartedAt survives pause so the observed rate keeps its baseline.
	require.NotNil(t, got.StartedAt)
}

func TestTryTransition_PreconditionFailureIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s, c := newStoreWithCampaign(t, 10)

	ok, err := s.TryTransition(ctx, c.ID, []Status{StatusRunning}, StatusPaused, TransitionOpts{})
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

func TestTryTransition_RunningRequiresWorkerID(t *testing.T) {
	ctx := context.Background()
	s, c := newStoreWithCampaign(t, 10)

	_, err := s.TryTransition(ctx, c.ID, []Status{StatusPending}, StatusRunning, TransitionOpts{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTryTransition_FailedStoresLastError(t *testing.T) {
	ctx := context.Background()
	s, c := newStoreWithCampaign(t, 10)

	ok, err := s.TryTransition(ctx, c.ID, []Status{StatusPending}, StatusRunning, TransitionOpts{WorkerID: "w1"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TryTransition(ctx, c.ID, []Status{StatusRunning}, StatusFailed, TransitionOpts{LastError: "store unreachable"})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "store unreachable", got.LastError)
	require.Empty(t, got.WorkerID)
}

func TestAdvanceCursor_Conditions(t *testing.T) {
	ctx := context.Background()
	s, c := newStoreWithCampaign(t, 10)

	// Not running yet.
	ok, err := s.AdvanceCursor(ctx, c.ID, "w1", 1)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.TryTransition(ctx, c.ID, []Status{StatusPending}, StatusRunning, TransitionOpts{WorkerID: "w1"})
	require.NoError(t, err)

	ok, err = s.AdvanceCursor(ctx, c.ID, "w1", 1)
	require.NoError(t, err)
	require.True(t, ok)

	// Wrong worker.
	ok, err = s.AdvanceCursor(ctx, c.ID, "w2", 2)
	require.NoError(t, err)
	require.False(t, ok)

	// Non-increasing target.
	ok, err = s.AdvanceCursor(ctx, c.ID, "w1", 1)
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CurrentIndex)
}

func TestIncrementCounter_WhitelistAndNoStatusPrecondition(t *testing.T) {
	ctx := context.Background()
	s, c := newStoreWithCampaign(t, 10)

	require.NoError(t, s.IncrementCounter(ctx, c.ID, CounterProcessedContacts, 2))
	require.NoError(t, s.IncrementCounter(ctx, c.ID, CounterCompletedCalls, 1))
	require.NoError(t, s.IncrementCounter(ctx, c.ID, CounterFailedCalls, 1))
	require.ErrorIs(t, s.IncrementCounter(ctx, c.ID, CounterField("worker_id"), 1), ErrInvalidArgument)

	// Tallies still land after the campaign finishes.
	_, err := s.TryTransition(ctx, c.ID, []Status{StatusPending}, StatusCancelled, TransitionOpts{})
	require.NoError(t, err)
	require.NoError(t, s.IncrementCounter(ctx, c.ID, CounterCompletedCalls, 1))

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.ProcessedContacts)
	require.Equal(t, 2, got.CompletedCalls)
	require.Equal(t, 1, got.FailedCalls)
}

func TestRefreshHeartbeat_FalseAfterOwnershipLost(t *testing.T) {
	ctx := context.Background()
	s, c := newStoreWithCampaign(t, 10)

	_, err := s.TryTransition(ctx, c.ID, []Status{StatusPending}, StatusRunning, TransitionOpts{WorkerID: "w1"})
	require.NoError(t, err)

	ok, err := s.RefreshHeartbeat(ctx, c.ID, "w1", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.TryTransition(ctx, c.ID, []Status{StatusRunning}, StatusPaused, TransitionOpts{})
	require.NoError(t, err)

	ok, err = s.RefreshHeartbeat(ctx, c.ID, "w1", time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListStaleRunning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Clock = func() time.Time { return now }

	for _, id := range []string{"stale", "fresh"} {
		require.NoError(t, s.Create(ctx, Campaign{ID: id, ClientID: "cl", ListID: "l", TotalContacts: 1}))
		_, err := s.TryTransition(ctx, id, []Status{StatusPending}, StatusRunning, TransitionOpts{WorkerID: "w1"})
		require.NoError(t, err)
	}
	_, err := s.RefreshHeartbeat(ctx, "stale", "w1", now.Add(-5*time.Minute))
	require.NoError(t, err)

	out, err := s.ListStaleRunning(ctx, now.Add(-90*time.Second))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "stale", out[0].ID)
}
