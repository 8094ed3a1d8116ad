package calls

import (
	"errors"
	"time"
)

// StatusCallback is the normalized inbound provider event.
// Provider adapters translate their webhook payloads into this shape.
type StatusCallback struct {
	ProviderCallID string     `json:"provider_call_id"`
	Status         CallStatus `json:"status"`
	Timestamp      time.Time  `json:"timestamp"`
}

var ErrUnknownCallbackStatus = errors.New("unknown callback status")

// ValidCallbackStatus reports whether s is one of the four states providers
// are allowed to report.
func ValidCallbackStatus(s CallStatus) bool {
	switch s {
	case CallStatusRinging, CallStatusConnected, CallStatusCompleted, CallStatusFailed:
		return true
	default:
		return false
	}
}
