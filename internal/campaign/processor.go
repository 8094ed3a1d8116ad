package campaign

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"dialer-platform/internal/admission"
	"dialer-platform/internal/audit"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/contacts"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/metrics"

	"golang.org/x/time/rate"
)

// Admission is the slot-acquisition contract the processor depends on.
// admission.Controller satisfies it.
type Admission interface {
	TryAcquire(ctx context.Context, clientID, campaignID, to string) (admission.Token, error)
	Release(ctx context.Context, tok admission.Token, outcome calls.CallStatus) error
}

// ProcessorConfig bounds the loop. Zero values get safe defaults.
type ProcessorConfig struct {
	// HeartbeatPeriod is the fixed liveness-refresh interval, independent of
	// per-contact pacing.
	HeartbeatPeriod time.Duration

	// Admission denials back off exponentially between these bounds.
	AdmissionBackoffMin time.Duration
	AdmissionBackoffMax time.Duration

	// DialRate paces dispatches (calls per second). Zero disables pacing.
	DialRate  rate.Limit
	DialBurst int

	// Transient store errors are retried this many times before the
	// campaign is failed.
	StoreRetryAttempts int
	StoreRetryDelay    time.Duration
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	out := c
	if out.HeartbeatPeriod <= 0 {
		out.HeartbeatPeriod = 30 * time.Second
	}
	if out.AdmissionBackoffMin <= 0 {
		out.AdmissionBackoffMin = 500 * time.Millisecond
	}
	if out.AdmissionBackoffMax <= 0 {
		out.AdmissionBackoffMax = 30 * time.Second
	}
	if out.DialBurst <= 0 {
		out.DialBurst = 1
	}
	if out.StoreRetryAttempts <= 0 {
		out.StoreRetryAttempts = 3
	}
	if out.StoreRetryDelay <= 0 {
		out.StoreRetryDelay = 250 * time.Millisecond
	}
	return out
}

// Processor advances one campaign's cursor through its contact list.
//
// Each campaign is a logically single-threaded cooperative loop; different
// campaigns (possibly in different processes) share nothing in memory. The
// loop suspends between contacts while polling status, while backing off on
// admission denial, and while awaiting the provider's synchronous
// acknowledgment. Pause and cancel are observed at the next status poll,
// never mid-dispatch.
//
// The cursor advances on dispatch acknowledgment, not on call completion,
// so a slow or missing terminal outcome never blocks forward progress.
// This is an at-least-once guarantee: a crash between dispatch and cursor
// persistence redials one contact on resume.
type Processor struct {
	store     Store
	registry  calls.Registry
	contacts  contacts.Source
	admission Admission
	dialer    dialer.Dispatcher
	audit     *audit.Service

	// FromNumber is the caller id presented on outbound calls.
	FromNumber string

	cfg   ProcessorConfig
	log   *slog.Logger
	clock func() time.Time
}

func NewProcessor(
	store Store,
	registry calls.Registry,
	source contacts.Source,
	adm Admission,
	d dialer.Dispatcher,
	auditSvc *audit.Service,
	fromNumber string,
	cfg ProcessorConfig,
	log *slog.Logger,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		store:      store,
		registry:   registry,
		contacts:   source,
		admission:  adm,
		dialer:     d,
		audit:      auditSvc,
		FromNumber: fromNumber,
		cfg:        cfg.withDefaults(),
		log:        log,
		clock:      time.Now,
	}
}

// Run claims the campaign and drives it until it finishes, loses ownership,
// or ctx is cancelled. A failed claim (another worker owns it) returns nil.
func (p *Processor) Run(ctx context.Context, campaignID, workerID string) error {
	claimed, err := p.store.TryTransition(ctx, campaignID,
		[]Status{StatusPending, StatusPaused}, StatusRunning,
		TransitionOpts{WorkerID: workerID})
	if err != nil {
		return err
	}
	if !claimed {
		p.log.Debug("campaign claim lost", "campaign_id", campaignID, "worker_id", workerID)
		return nil
	}

	c, err := p.store.Get(ctx, campaignID)
	if err != nil {
		return p.fail(ctx, campaignID, err)
	}

	log := p.log.With("campaign_id", c.ID, "client_id", c.ClientID, "worker_id", workerID)
	log.Info("campaign claimed", "cursor", c.CurrentIndex, "total", c.TotalContacts)
	if p.audit != nil {
		_ = p.audit.LogCampaignEvent(ctx, c.ClientID, c.ID, workerID, audit.EventTypeCampaignClaimed, "campaign claimed")
	}

	metrics.CampaignsRunning.Inc()
	defer metrics.CampaignsRunning.Dec()

	// Heartbeat refresher. A false refresh means ownership was taken away
	// (pause, cancel, or orphan reclaim by another sweep); the loop checks
	// the flag at its next poll.
	var lost atomic.Bool
	hbDone := make(chan struct{})
	hbCtx, hbStop := context.WithCancel(context.WithoutCancel(ctx))
	defer hbStop()
	go func() {
		defer close(hbDone)
		t := time.NewTicker(p.cfg.HeartbeatPeriod)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				ok, err := p.store.RefreshHeartbeat(hbCtx, c.ID, workerID, p.clock().UTC())
				if err != nil {
					log.Warn("heartbeat refresh failed", "err", err)
					continue
				}
				if !ok {
					lost.Store(true)
					return
				}
			}
		}
	}()
	defer func() { hbStop(); <-hbDone }()

	var limiter *rate.Limiter
	if p.cfg.DialRate > 0 {
		limiter = rate.NewLimiter(p.cfg.DialRate, p.cfg.DialBurst)
	}

	for i := c.CurrentIndex; i < c.TotalContacts; i++ {
		if lost.Load() {
			log.Info("campaign ownership lost, stopping")
			return nil
		}
		if ctx.Err() != nil {
			return p.park(context.WithoutCancel(ctx), c.ID, workerID, log)
		}

		// Re-read status: pause/cancel take effect here, between contacts.
		cur, err := p.getWithRetry(ctx, c.ID)
		if err != nil {
			return p.fail(context.WithoutCancel(ctx), c.ID, err)
		}
		if cur.Status != StatusRunning || cur.WorkerID != workerID {
			log.Info("campaign no longer owned", "status", string(cur.Status))
			return nil
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return p.park(context.WithoutCancel(ctx), c.ID, workerID, log)
			}
		}

		tok, proceed, err := p.acquireWithBackoff(ctx, &lost, cur)
		if err != nil {
			return p.fail(context.WithoutCancel(ctx), c.ID, err)
		}
		if !proceed {
			// Ownership moved or shutdown requested while backing off.
			if ctx.Err() != nil {
				return p.park(context.WithoutCancel(ctx), c.ID, workerID, log)
			}
			return nil
		}

		if err := p.dispatchContact(ctx, cur, i, tok, log); err != nil {
			return p.fail(context.WithoutCancel(ctx), c.ID, err)
		}

		advanced, err := p.advanceWithRetry(ctx, c.ID, workerID, i+1)
		if err != nil {
			return p.fail(context.WithoutCancel(ctx), c.ID, err)
		}
		if !advanced {
			// Ownership changed after dispatch: the at-least-once window.
			// The dispatched call is already in flight; the new owner will
			// redial contact i on resume.
			log.Warn("cursor advance refused, ownership lost after dispatch", "contact", i)
			return nil
		}
		if err := p.incrementWithRetry(ctx, c.ID, CounterProcessedContacts, 1); err != nil {
			return p.fail(context.WithoutCancel(ctx), c.ID, err)
		}
	}

	done, err := p.store.TryTransition(ctx, c.ID, []Status{StatusRunning}, StatusCompleted, TransitionOpts{})
	if err != nil {
		return p.fail(context.WithoutCancel(ctx), c.ID, err)
	}
	if done {
		log.Info("campaign completed", "total", c.TotalContacts)
		if p.audit != nil {
			_ = p.audit.LogCampaignEvent(ctx, c.ClientID, c.ID, workerID, audit.EventTypeCampaignCompleted, "campaign completed")
		}
	}
	return nil
}

// dispatchContact handles one contact: load, dispatch, settle the admission
// token. Dispatch errors are terminal for the contact, not the campaign.
func (p *Processor) dispatchContact(ctx context.Context, c Campaign, i int, tok admission.Token, log *slog.Logger) error {
	contact, err := p.contactWithRetry(ctx, c.ListID, i)
	if err != nil {
		// Treat an unreadable contact like a failed dispatch: settle and move on.
		if relErr := p.admission.Release(ctx, tok, calls.CallStatusFailed); relErr != nil {
			return relErr
		}
		log.Warn("contact load failed, skipping", "contact", i, "err", err)
		return p.incrementWithRetry(ctx, c.ID, CounterFailedCalls, 1)
	}

	res, err := p.dialer.Dispatch(ctx, dialer.CallParams{
		ClientID:   c.ClientID,
		CampaignID: c.ID,
		CallID:     tok.CallID,
		From:       p.FromNumber,
		To:         contact.Phone,
		Variables:  contact.Fields,
	})
	if err != nil {
		metrics.DispatchesTotal.WithLabelValues("error").Inc()
		log.Warn("dispatch failed", "contact", i, "to", contact.Phone, "err", err)
		if relErr := p.admission.Release(ctx, tok, calls.CallStatusFailed); relErr != nil {
			return relErr
		}
		return p.incrementWithRetry(ctx, c.ID, CounterFailedCalls, 1)
	}

	metrics.DispatchesTotal.WithLabelValues("ok").Inc()
	if err := p.registry.AttachProviderCallID(ctx, tok.CallID, res.ProviderCallID); err != nil {
		// The call is placed; losing the correlation only costs us the
		// eventual callback (the timeout sweep will settle the slot).
		log.Warn("provider call id attach failed", "call_id", tok.CallID, "err", err)
	}
	return nil
}

// acquireWithBackoff retries admission denials with bounded exponential
// backoff. Denial is backpressure, not an error. Returns proceed=false when
// the campaign stopped being ours while waiting.
func (p *Processor) acquireWithBackoff(ctx context.Context, lost *atomic.Bool, c Campaign) (admission.Token, bool, error) {
	backoff := p.cfg.AdmissionBackoffMin
	for {
		tok, err := p.admission.TryAcquire(ctx, c.ClientID, c.ID, "")
		if err == nil {
			return tok, true, nil
		}
		if !errors.Is(err, admission.ErrDenied) {
			return admission.Token{}, false, err
		}

		select {
		case <-ctx.Done():
			return admission.Token{}, false, nil
		case <-time.After(backoff):
		}
		if lost.Load() {
			return admission.Token{}, false, nil
		}

		cur, err := p.getWithRetry(ctx, c.ID)
		if err != nil {
			return admission.Token{}, false, err
		}
		if cur.Status != StatusRunning || cur.WorkerID != c.WorkerID {
			return admission.Token{}, false, nil
		}

		backoff *= 2
		if backoff > p.cfg.AdmissionBackoffMax {
			backoff = p.cfg.AdmissionBackoffMax
		}
	}
}

// park releases ownership on graceful shutdown so the campaign resumes
// cleanly elsewhere. A crash skips this and leaves the orphan sweep to do
// the same thing later.
func (p *Processor) park(ctx context.Context, campaignID, workerID string, log *slog.Logger) error {
	ok, err := p.store.TryTransition(ctx, campaignID, []Status{StatusRunning}, StatusPaused, TransitionOpts{})
	if err != nil {
		log.Warn("campaign park failed", "err", err)
		return err
	}
	if ok {
		log.Info("campaign parked for shutdown")
	}
	return nil
}

// fail records an unrecoverable error on the campaign. Transient errors were
// already retried by the time we get here.
func (p *Processor) fail(ctx context.Context, campaignID string, cause error) error {
	_, err := p.store.TryTransition(ctx, campaignID, []Status{StatusRunning}, StatusFailed,
		TransitionOpts{LastError: cause.Error()})
	if err != nil {
		p.log.Error("campaign fail transition errored", "campaign_id", campaignID, "cause", cause, "err", err)
	}
	if p.audit != nil {
		if c, getErr := p.store.Get(ctx, campaignID); getErr == nil {
			_ = p.audit.LogCampaignEvent(ctx, c.ClientID, c.ID, c.WorkerID, audit.EventTypeCampaignFailed, cause.Error())
		}
	}
	return cause
}

func (p *Processor) getWithRetry(ctx context.Context, id string) (Campaign, error) {
	var c Campaign
	err := p.withRetry(ctx, func() error {
		var err error
		c, err = p.store.Get(ctx, id)
		return err
	})
	return c, err
}

func (p *Processor) contactWithRetry(ctx context.Context, listID string, i int) (contacts.Contact, error) {
	var c contacts.Contact
	err := p.withRetry(ctx, func() error {
		var err error
		c, err = p.contacts.At(ctx, listID, i)
		if errors.Is(err, contacts.ErrNotFound) {
			// List shorter than total_contacts: not transient, don't retry.
			return nil
		}
		return err
	})
	if err == nil && c.Phone == "" {
		return contacts.Contact{}, contacts.ErrNotFound
	}
	return c, err
}

func (p *Processor) advanceWithRetry(ctx context.Context, id, workerID string, to int) (bool, error) {
	var ok bool
	err := p.withRetry(ctx, func() error {
		var err error
		ok, err = p.store.AdvanceCursor(ctx, id, workerID, to)
		return err
	})
	return ok, err
}

func (p *Processor) incrementWithRetry(ctx context.Context, id string, field CounterField, delta int) error {
	return p.withRetry(ctx, func() error {
		err := p.store.IncrementCounter(ctx, id, field, delta)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
}

// withRetry runs op with bounded retries for transient store errors.
func (p *Processor) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt <= p.cfg.StoreRetryAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.cfg.StoreRetryDelay):
		}
	}
	return err
}
