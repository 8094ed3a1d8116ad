package campaign

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/metrics"
)

// OrphanSweep reclaims campaigns whose worker stopped heartbeating, typically
// after a crash or network partition. Reclaimed campaigns go back to paused
// with their cursor intact; they do not restart automatically.
type OrphanSweep struct {
	store     Store
	audit     *audit.Service
	interval  time.Duration
	threshold time.Duration
	log       *slog.Logger
	clock     func() time.Time
}

func NewOrphanSweep(store Store, auditSvc *audit.Service, interval, threshold time.Duration, log *slog.Logger) *OrphanSweep {
	if log == nil {
		log = slog.Default()
	}
	return &OrphanSweep{
		store:     store,
		audit:     auditSvc,
		interval:  interval,
		threshold: threshold,
		log:       log,
		clock:     time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping on a fixed interval.
func (s *OrphanSweep) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("orphan sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce reclaims every stale running campaign found in one pass and
// returns how many it reclaimed.
func (s *OrphanSweep) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.clock().UTC().Add(-s.threshold)
	stale, err := s.store.ListStaleRunning(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	for _, c := range stale {
		ok, err := s.store.TryTransition(ctx, c.ID, []Status{StatusRunning}, StatusPaused, TransitionOpts{})
		if err != nil {
			return reclaimed, err
		}
		if !ok {
			// Finished or was cancelled between list and transition.
			continue
		}
		// If the worker recovered between list and transition it loses
		// ownership here and stops at its next heartbeat refresh. The
		// campaign stays paused and resumable either way.
		reclaimed++
		metrics.OrphansReclaimedTotal.Inc()
		s.log.Warn("orphaned campaign reclaimed",
			"campaign_id", c.ID,
			"client_id", c.ClientID,
			"worker_id", c.WorkerID,
			"cursor", c.CurrentIndex,
		)
		if s.audit != nil {
			_ = s.audit.LogCampaignEvent(ctx, c.ClientID, c.ID, c.WorkerID, audit.EventTypeOrphanReclaimed, "stale heartbeat, ownership reclaimed")
		}
	}
	return reclaimed, nil
}

// TallyTimeout counts a timed-out call as a failure on its campaign.
// StoreTally adapts the campaign store for the call-timeout sweep.
type StoreTally struct {
	Store Store
}

func (t StoreTally) TallyTimeout(ctx context.Context, campaignID string) error {
	err := t.Store.IncrementCounter(ctx, campaignID, CounterFailedCalls, 1)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
