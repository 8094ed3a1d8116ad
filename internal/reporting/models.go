package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call-outcome metrics.
// Tenant isolation: ClientID is required.

type CallsSummaryRequest struct {
	ClientID   string    `json:"client_id"`
	Range      TimeRange `json:"range"`
	CampaignID string    `json:"campaign_id,omitempty"`
}

type CallsSummary struct {
	ClientID   string `json:"client_id"`
	CampaignID string `json:"campaign_id,omitempty"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	FailedCalls    int `json:"failed_calls"`
	TimedOutCalls  int `json:"timed_out_calls"`
	InFlightCalls  int `json:"in_flight_calls"`
}

// DeliveryMetricsRequest captures campaign delivery quality over a window.

type DeliveryMetricsRequest struct {
	ClientID   string    `json:"client_id"`
	Range      TimeRange `json:"range"`
	CampaignID string    `json:"campaign_id"`
}

type DeliveryMetrics struct {
	ClientID   string `json:"client_id"`
	CampaignID string `json:"campaign_id"`

	CallsAttempted int `json:"calls_attempted"`
	CallsCompleted int `json:"calls_completed"`

	CompletionRate float64 `json:"completion_rate"`
}
