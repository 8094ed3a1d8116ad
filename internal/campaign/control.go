package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialer-platform/internal/audit"

	"github.com/google/uuid"
)

// ErrConflict means the campaign's current status does not permit the
// requested action. Wrapped errors carry the observed status.
var ErrConflict = errors.New("campaign status conflict")

// Starter is how the control surface brings a loop to life. *Runner
// satisfies it.
type Starter interface {
	Start(campaignID string) error
}

// Control is the operator-facing campaign surface: create, pause, resume,
// cancel, progress. All mutations go through the store's conditional
// transition, so a control action and the worker loop can never disagree
// about the outcome.
type Control struct {
	store   Store
	starter Starter
	audit   *audit.Service
	clock   func() time.Time
}

func NewControl(store Store, starter Starter, auditSvc *audit.Service) *Control {
	return &Control{store: store, starter: starter, audit: auditSvc, clock: time.Now}
}

// CreateParams describes a new campaign over an existing contact list.
type CreateParams struct {
	ClientID      string
	ListID        string
	TotalContacts int
}

func (c *Control) Create(ctx context.Context, p CreateParams) (Campaign, error) {
	if p.ClientID == "" || p.ListID == "" || p.TotalContacts < 0 {
		return Campaign{}, ErrInvalidArgument
	}
	now := c.clock().UTC()
	camp := Campaign{
		ID:            uuid.NewString(),
		ClientID:      p.ClientID,
		ListID:        p.ListID,
		Status:        StatusPending,
		TotalContacts: p.TotalContacts,
		LastActivity:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.Create(ctx, camp); err != nil {
		return Campaign{}, err
	}
	return camp, nil
}

// get loads the campaign scoped to the client. A client-id mismatch is
// reported as not found so tenants cannot probe each other's ids.
func (c *Control) get(ctx context.Context, clientID, campaignID string) (Campaign, error) {
	camp, err := c.store.Get(ctx, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	if clientID != "" && camp.ClientID != clientID {
		return Campaign{}, ErrNotFound
	}
	return camp, nil
}

// Pause asks the running loop to stop at its next contact boundary. The
// status flips immediately; calls already in flight continue to completion.
func (c *Control) Pause(ctx context.Context, clientID, actorUserID, campaignID string) (Campaign, error) {
	camp, err := c.get(ctx, clientID, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	ok, err := c.store.TryTransition(ctx, campaignID, []Status{StatusRunning}, StatusPaused, TransitionOpts{})
	if err != nil {
		return Campaign{}, err
	}
	if !ok {
		cur, gerr := c.get(ctx, clientID, campaignID)
		if gerr != nil {
			return Campaign{}, gerr
		}
		return Campaign{}, fmt.Errorf("%w: cannot pause campaign in status %q", ErrConflict, cur.Status)
	}
	if c.audit != nil {
		_ = c.audit.LogControlAction(ctx, camp.ClientID, actorUserID, campaignID, audit.EventTypeCampaignPaused, "campaign paused")
	}
	return c.get(ctx, clientID, campaignID)
}

// Resume restarts a pending or paused campaign from its persisted cursor.
// The loop itself performs the claim; Resume only verifies eligibility and
// schedules the worker.
func (c *Control) Resume(ctx context.Context, clientID, actorUserID, campaignID string) (Campaign, error) {
	camp, err := c.get(ctx, clientID, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	switch camp.Status {
	case StatusPending, StatusPaused:
	case StatusRunning:
		return camp, nil
	default:
		return Campaign{}, fmt.Errorf("%w: cannot resume campaign in status %q", ErrConflict, camp.Status)
	}
	if c.starter == nil {
		return Campaign{}, errors.New("campaign: no worker available to resume")
	}
	if err := c.starter.Start(campaignID); err != nil {
		return Campaign{}, err
	}
	if c.audit != nil {
		_ = c.audit.LogControlAction(ctx, camp.ClientID, actorUserID, campaignID, audit.EventTypeCampaignResumed, "campaign resumed")
	}
	return camp, nil
}

// Cancel terminates the campaign from any non-terminal status. Terminal
// statuses conflict; cancel is not idempotent by design so operators see
// that nothing changed.
func (c *Control) Cancel(ctx context.Context, clientID, actorUserID, campaignID string) (Campaign, error) {
	camp, err := c.get(ctx, clientID, campaignID)
	if err != nil {
		return Campaign{}, err
	}
	ok, err := c.store.TryTransition(ctx, campaignID,
		[]Status{StatusPending, StatusRunning, StatusPaused}, StatusCancelled, TransitionOpts{})
	if err != nil {
		return Campaign{}, err
	}
	if !ok {
		cur, gerr := c.get(ctx, clientID, campaignID)
		if gerr != nil {
			return Campaign{}, gerr
		}
		return Campaign{}, fmt.Errorf("%w: cannot cancel campaign in status %q", ErrConflict, cur.Status)
	}
	if c.audit != nil {
		_ = c.audit.LogControlAction(ctx, camp.ClientID, actorUserID, campaignID, audit.EventTypeCampaignCancelled, "campaign cancelled")
	}
	return c.get(ctx, clientID, campaignID)
}

// Progress is a read-model snapshot for operators and dashboards.
type Progress struct {
	CampaignID        string  `json:"campaign_id"`
	ClientID          string  `json:"client_id"`
	Status            Status  `json:"status"`
	CurrentIndex      int     `json:"current_index"`
	TotalContacts     int     `json:"total_contacts"`
	ProcessedContacts int     `json:"processed_contacts"`
	CompletedCalls    int     `json:"completed_calls"`
	FailedCalls       int     `json:"failed_calls"`
	PercentComplete   float64 `json:"percent_complete"`

	// EstimatedCompletion extrapolates the observed dispatch rate since the
	// campaign first entered running. Absent until at least one contact is
	// processed while running.
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`

	// HeartbeatAgeSeconds is how stale the owning worker's liveness signal
	// is. Absent unless a worker owns the campaign.
	HeartbeatAgeSeconds *float64 `json:"heartbeat_age_seconds,omitempty"`

	WorkerID  string `json:"worker_id,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

func (c *Control) Progress(ctx context.Context, clientID, campaignID string) (Progress, error) {
	camp, err := c.get(ctx, clientID, campaignID)
	if err != nil {
		return Progress{}, err
	}
	now := c.clock().UTC()

	p := Progress{
		CampaignID:        camp.ID,
		ClientID:          camp.ClientID,
		Status:            camp.Status,
		CurrentIndex:      camp.CurrentIndex,
		TotalContacts:     camp.TotalContacts,
		ProcessedContacts: camp.ProcessedContacts,
		CompletedCalls:    camp.CompletedCalls,
		FailedCalls:       camp.FailedCalls,
		WorkerID:          camp.WorkerID,
		LastError:         camp.LastError,
	}
	if camp.TotalContacts > 0 {
		p.PercentComplete = float64(camp.ProcessedContacts) / float64(camp.TotalContacts) * 100
	}
	if camp.Status == StatusRunning && camp.StartedAt != nil && camp.ProcessedContacts > 0 {
		elapsed := now.Sub(*camp.StartedAt)
		if elapsed > 0 {
			perContact := elapsed / time.Duration(camp.ProcessedContacts)
			remaining := camp.TotalContacts - camp.ProcessedContacts
			if remaining > 0 {
				eta := now.Add(perContact * time.Duration(remaining))
				p.EstimatedCompletion = &eta
			}
		}
	}
	if camp.Heartbeat != nil {
		age := now.Sub(*camp.Heartbeat).Seconds()
		if age < 0 {
			age = 0
		}
		p.HeartbeatAgeSeconds = &age
	}
	return p, nil
}
