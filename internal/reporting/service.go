package reporting

import (
	"context"
	"errors"
	"time"

	"dialer-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce client filtering.
// - Implementations should query call records only; campaign counters are
//   served by the progress endpoint, not by reporting.

type Repository interface {
	ListCalls(ctx context.Context, clientID string, from, to time.Time, campaignID string) ([]calls.ActiveCall, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.ClientID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.ClientID, req.Range.From, req.Range.To, req.CampaignID)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{ClientID: req.ClientID, CampaignID: req.CampaignID}
	for _, c := range rows {
		out.TotalCalls++
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		case calls.CallStatusTimedOut:
			out.TimedOutCalls++
		default:
			out.InFlightCalls++
		}
	}
	return out, nil
}

func (s *Service) DeliveryMetrics(ctx context.Context, req DeliveryMetricsRequest) (DeliveryMetrics, error) {
	if req.ClientID == "" || req.CampaignID == "" {
		return DeliveryMetrics{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return DeliveryMetrics{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return DeliveryMetrics{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.ClientID, req.Range.From, req.Range.To, req.CampaignID)
	if err != nil {
		return DeliveryMetrics{}, err
	}

	out := DeliveryMetrics{ClientID: req.ClientID, CampaignID: req.CampaignID}
	out.CallsAttempted = len(rows)
	for _, c := range rows {
		if c.Status == calls.CallStatusCompleted {
			out.CallsCompleted++
		}
	}
	if out.CallsAttempted > 0 {
		out.CompletionRate = float64(out.CallsCompleted) / float64(out.CallsAttempted)
	}
	return out, nil
}
