package admission

import (
	"context"
	"testing"
	"time"

	"dialer-platform/internal/calls"

	"github.com/stretchr/testify/require"
)

type recordingTally struct {
	campaigns []string
}

func (r *recordingTally) TallyTimeout(ctx context.Context, campaignID string) error {
	r.campaigns = append(r.campaigns, campaignID)
	return nil
}

func TestSweepOnce_ForcesTimedOutRelease(t *testing.T) {
	ctx := context.Background()
	reg := calls.NewMemoryRegistry()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.Clock = func() time.Time { return now }

	require.NoError(t, reg.Create(ctx, calls.ActiveCall{CallID: "stuck", ClientID: "cl", CampaignID: "camp", StartTime: now.Add(-10 * time.Minute)}))
	require.NoError(t, reg.Create(ctx, calls.ActiveCall{CallID: "fresh", ClientID: "cl", CampaignID: "camp", StartTime: now.Add(-10 * time.Second)}))

	tally := &recordingTally{}
	s := NewTimeoutSweep(reg, tally, nil, time.Minute, 5*time.Minute, nil)
	s.clock = func() time.Time { return now }

	require.NoError(t, s.SweepOnce(ctx))

	stuck, err := reg.Get(ctx, "stuck")
	require.NoError(t, err)
	require.Equal(t, calls.CallStatusTimedOut, stuck.Status)

	fresh, err := reg.Get(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, calls.CallStatusInitiating, fresh.Status)

	require.Equal(t, []string{"camp"}, tally.campaigns)
}

func TestSweepOnce_SkipsCallSettledByLateCallback(t *testing.T) {
	ctx := context.Background()
	reg := calls.NewMemoryRegistry()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.Clock = func() time.Time { return now }

	require.NoError(t, reg.Create(ctx, calls.ActiveCall{CallID: "late", ClientID: "cl", CampaignID: "camp", StartTime: now.Add(-10 * time.Minute)}))

	// Callback lands between ListStale and the forced transition.
	applied, err := reg.Transition(ctx, "late", calls.CallStatusCompleted)
	require.NoError(t, err)
	require.True(t, applied)

	tally := &recordingTally{}
	s := NewTimeoutSweep(reg, tally, nil, time.Minute, 5*time.Minute, nil)
	s.clock = func() time.Time { return now }

	require.NoError(t, s.SweepOnce(ctx))

	got, err := reg.Get(ctx, "late")
	require.NoError(t, err)
	require.Equal(t, calls.CallStatusCompleted, got.Status)
	require.Empty(t, tally.campaigns)
}

func TestSweepOnce_AdHocCallSkipsTally(t *testing.T) {
	ctx := context.Background()
	reg := calls.NewMemoryRegistry()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.Clock = func() time.Time { return now }

	// No campaign id: an ad hoc call.
	require.NoError(t, reg.Create(ctx, calls.ActiveCall{CallID: "adhoc", ClientID: "cl", StartTime: now.Add(-10 * time.Minute)}))

	tally := &recordingTally{}
	s := NewTimeoutSweep(reg, tally, nil, time.Minute, 5*time.Minute, nil)
	s.clock = func() time.Time { return now }

	require.NoError(t, s.SweepOnce(ctx))

	got, err := reg.Get(ctx, "adhoc")
	require.NoError(t, err)
	require.Equal(t, calls.CallStatusTimedOut, got.Status)
	require.Empty(t, tally.campaigns)
}
