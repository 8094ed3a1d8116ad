package admission

import (
	"context"
	"log/slog"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/metrics"
)

// FailureTally records a timed-out call against its owning campaign.
// Wired to the campaign store's failure counter in process setup.
type FailureTally interface {
	TallyTimeout(ctx context.Context, campaignID string) error
}

// TimeoutSweep force-releases non-terminal calls whose provider callback
// never arrived. Without it, a lost callback would pin an admission slot
// forever.
type TimeoutSweep struct {
	registry   calls.Registry
	tally      FailureTally
	controller *Controller
	interval   time.Duration
	timeout    time.Duration
	log        *slog.Logger
	clock      func() time.Time
}

func NewTimeoutSweep(registry calls.Registry, tally FailureTally, controller *Controller, interval, timeout time.Duration, log *slog.Logger) *TimeoutSweep {
	if log == nil {
		log = slog.Default()
	}
	return &TimeoutSweep{
		registry:   registry,
		tally:      tally,
		controller: controller,
		interval:   interval,
		timeout:    timeout,
		log:        log,
		clock:      time.Now,
	}
}

// Run blocks until ctx is cancelled, sweeping on a fixed interval.
func (s *TimeoutSweep) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.log.Error("call timeout sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce releases every stuck call found in one pass.
func (s *TimeoutSweep) SweepOnce(ctx context.Context) error {
	cutoff := s.clock().UTC().Add(-s.timeout)
	stale, err := s.registry.ListStale(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, c := range stale {
		applied, err := s.registry.Transition(ctx, c.CallID, calls.CallStatusTimedOut)
		if err != nil {
			return err
		}
		if !applied {
			// A late callback won the race; nothing to release.
			continue
		}
		metrics.ForcedReleasesTotal.Inc()
		s.log.Warn("forced call release",
			"call_id", c.CallID,
			"client_id", c.ClientID,
			"campaign_id", c.CampaignID,
			"age", s.clock().UTC().Sub(c.StartTime).String(),
		)
		if s.controller != nil {
			s.controller.ReleaseFastPathFor(ctx, c.ClientID)
		}
		if c.CampaignID != "" && s.tally != nil {
			if err := s.tally.TallyTimeout(ctx, c.CampaignID); err != nil {
				return err
			}
		}
	}
	return nil
}
