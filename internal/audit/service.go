package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.ClientID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCampaignEvent records an engine-originated campaign lifecycle event.
func (s *Service) LogCampaignEvent(ctx context.Context, clientID, campaignID, workerID string, typ EventType, message string) error {
	return s.Append(ctx, Event{
		ClientID:   clientID,
		Type:       typ,
		WorkerID:   workerID,
		CampaignID: campaignID,
		Message:    message,
	})
}

// LogControlAction records a user-originated control action (pause/resume/cancel).
func (s *Service) LogControlAction(ctx context.Context, clientID, actorUserID, campaignID string, typ EventType, message string) error {
	return s.Append(ctx, Event{
		ClientID:    clientID,
		Type:        typ,
		ActorUserID: actorUserID,
		CampaignID:  campaignID,
		Message:     message,
	})
}

// LogForcedRelease records a timeout-sweep slot release.
func (s *Service) LogForcedRelease(ctx context.Context, clientID, campaignID, callID string) error {
	return s.Append(ctx, Event{
		ClientID:   clientID,
		Type:       EventTypeForcedRelease,
		CampaignID: campaignID,
		CallID:     callID,
		Message:    "active call force-released after timeout",
	})
}
