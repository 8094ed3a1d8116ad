package admission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/metrics"

	"github.com/google/uuid"
)

// ErrDenied means both a retry-later condition and nothing-was-reserved.
// Callers treat it as backpressure, not failure.
var ErrDenied = errors.New("admission denied")

// Token is a held admission slot. The reservation is the ActiveCall record
// itself; the token just carries its identity back to Release.
type Token struct {
	CallID     string
	ClientID   string
	CampaignID string
}

// FastPath is an optional, non-authoritative concurrency gate consulted
// before the registry. Redis-backed in production; its counters may drift
// (TTL recovers leaks) and it must never be the source of truth.
type FastPath interface {
	Acquire(ctx context.Context, key string, limit int, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Config bounds the controller.
type Config struct {
	// GlobalMax is the process-independent ceiling on concurrent calls.
	GlobalMax int

	// CallTimeout bounds how long a reservation may stay non-terminal before
	// the sweep force-releases it. Also sizes the fast-path TTL.
	CallTimeout time.Duration
}

// Controller enforces the global and per-client concurrency ceilings.
//
// Both counts are derived from the registry, not process memory: multiple
// worker processes share them without a distributed lock. An admission check
// racing a concurrent insert can transiently overshoot a ceiling by a small
// bounded amount; that is the documented tradeoff, not a bug.
type Controller struct {
	registry calls.Registry
	limits   *LimitPolicy
	fast     FastPath
	cfg      Config
	log      *slog.Logger
	clock    func() time.Time
}

func NewController(registry calls.Registry, limits *LimitPolicy, fast FastPath, cfg Config, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{registry: registry, limits: limits, fast: fast, cfg: cfg, log: log, clock: time.Now}
}

const (
	globalCapKey    = "admission:global"
	clientCapPrefix = "admission:client:"
)

func (c *Controller) fastTTL() time.Duration {
	// Slightly beyond the call timeout so the sweep wins before the TTL does.
	return c.cfg.CallTimeout + 30*time.Second
}

// TryAcquire reserves a slot for one outbound call.
//
// Order of checks: fast path (cheap, lossy), then the authoritative registry
// counts, then the reservation insert. A fast-path error degrades to the
// authoritative path alone; a registry denial rolls the fast path back.
func (c *Controller) TryAcquire(ctx context.Context, clientID, campaignID, to string) (Token, error) {
	if clientID == "" {
		return Token{}, calls.ErrInvalidArgument
	}

	clientMax, err := c.limits.MaxActiveCalls(ctx, clientID)
	if err != nil {
		return Token{}, err
	}

	fastHeld := false
	if c.fast != nil {
		ok, err := c.acquireFast(ctx, clientID, clientMax)
		if err != nil {
			c.log.Warn("admission fast path unavailable", "err", err)
		} else if !ok {
			metrics.AdmissionDenialsTotal.WithLabelValues("fast_path").Inc()
			return Token{}, ErrDenied
		} else {
			fastHeld = true
		}
	}

	release := func() {
		if fastHeld {
			c.releaseFast(context.WithoutCancel(ctx), clientID)
		}
	}

	global, err := c.registry.CountActive(ctx)
	if err != nil {
		release()
		return Token{}, err
	}
	if global >= c.cfg.GlobalMax {
		release()
		metrics.AdmissionDenialsTotal.WithLabelValues("global").Inc()
		return Token{}, ErrDenied
	}

	active, err := c.registry.CountActiveForClient(ctx, clientID)
	if err != nil {
		release()
		return Token{}, err
	}
	if active >= clientMax {
		release()
		metrics.AdmissionDenialsTotal.WithLabelValues("client").Inc()
		return Token{}, ErrDenied
	}

	tok := Token{CallID: uuid.NewString(), ClientID: clientID, CampaignID: campaignID}
	err = c.registry.Create(ctx, calls.ActiveCall{
		CallID:     tok.CallID,
		ClientID:   clientID,
		CampaignID: campaignID,
		To:         to,
		StartTime:  c.clock().UTC(),
	})
	if err != nil {
		release()
		return Token{}, err
	}
	return tok, nil
}

// Release moves the reserved call to a terminal state. Releasing a call that
// is already terminal is a no-op; duplicate provider callbacks and the
// timeout sweep may both race here.
func (c *Controller) Release(ctx context.Context, tok Token, outcome calls.CallStatus) error {
	if tok.CallID == "" {
		return calls.ErrInvalidArgument
	}
	if !outcome.Terminal() {
		return calls.ErrInvalidArgument
	}
	applied, err := c.registry.Transition(ctx, tok.CallID, outcome)
	if err != nil {
		return err
	}
	if applied {
		c.releaseFast(ctx, tok.ClientID)
	}
	return nil
}

// ReleaseFastPathFor decrements the fast-path counters after a call was
// transitioned terminal elsewhere (callback application, timeout sweep).
func (c *Controller) ReleaseFastPathFor(ctx context.Context, clientID string) {
	c.releaseFast(ctx, clientID)
}

func (c *Controller) acquireFast(ctx context.Context, clientID string, clientMax int) (bool, error) {
	ok, err := c.fast.Acquire(ctx, globalCapKey, c.cfg.GlobalMax, c.fastTTL())
	if err != nil || !ok {
		return ok, err
	}
	ok, err = c.fast.Acquire(ctx, clientCapPrefix+clientID, clientMax, c.fastTTL())
	if err != nil || !ok {
		_ = c.fast.Release(ctx, globalCapKey)
		return ok, err
	}
	return true, nil
}

func (c *Controller) releaseFast(ctx context.Context, clientID string) {
	if c.fast == nil {
		return
	}
	if err := c.fast.Release(ctx, globalCapKey); err != nil {
		c.log.Warn("fast path release failed", "key", "global", "err", err)
	}
	if clientID == "" {
		return
	}
	if err := c.fast.Release(ctx, clientCapPrefix+clientID); err != nil {
		c.log.Warn("fast path release failed", "client_id", clientID, "err", err)
	}
}
