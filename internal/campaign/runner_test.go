package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunner_StartDrivesCampaignToCompletion(t *testing.T) {
	f := newEngineFixture(t, 5, nil)
	r := NewRunner(f.proc, "w1", nil)

	require.NoError(t, r.Start("camp-1"))
	// Idempotent while the loop may still be live.
	require.NoError(t, r.Start("camp-1"))

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := f.store.Get(context.Background(), "camp-1")
		require.NoError(t, err)
		if got.Status == StatusCompleted && !r.Running("camp-1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("campaign did not complete, status=%s", got.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.NoError(t, r.Shutdown(context.Background()))
	require.ErrorIs(t, r.Start("camp-1"), ErrRunnerClosed)
}

func TestNewWorkerID_Unique(t *testing.T) {
	a := NewWorkerID()
	b := NewWorkerID()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}
