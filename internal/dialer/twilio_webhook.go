package dialer

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"dialer-platform/internal/calls"
)

// TwilioStatusForm captures the subset of status-callback fields we care
// about. Twilio sends application/x-www-form-urlencoded by default.
//
// Keep it minimal and provider-adapter-only. Idempotency and tally updates
// are not made here; they belong to calls.CallbackApplier.
type TwilioStatusForm struct {
	CallSid    string
	AccountSid string
	CallStatus string
	From       string
	To         string
	Timestamp  string
}

func ParseTwilioStatusCallback(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	f := TwilioStatusForm{
		CallSid:    r.PostFormValue("CallSid"),
		AccountSid: r.PostFormValue("AccountSid"),
		CallStatus: r.PostFormValue("CallStatus"),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		Timestamp:  r.PostFormValue("Timestamp"),
	}
	return f, nil
}

// ToStatusCallback normalizes Twilio's call status vocabulary into the
// engine's four callback states.
func (f TwilioStatusForm) ToStatusCallback(receivedAt time.Time) (calls.StatusCallback, error) {
	if f.CallSid == "" {
		return calls.StatusCallback{}, fmt.Errorf("dialer: status callback missing CallSid")
	}

	var status calls.CallStatus
	switch f.CallStatus {
	case "queued", "initiated", "ringing":
		status = calls.CallStatusRinging
	case "in-progress", "answered":
		status = calls.CallStatusConnected
	case "completed":
		status = calls.CallStatusCompleted
	case "busy", "failed", "no-answer", "canceled":
		status = calls.CallStatusFailed
	default:
		return calls.StatusCallback{}, fmt.Errorf("dialer: unknown CallStatus %q", f.CallStatus)
	}

	at := receivedAt
	if f.Timestamp != "" {
		// Twilio sends RFC1123-style timestamps; fall back to receipt time.
		if t, err := time.Parse(time.RFC1123Z, f.Timestamp); err == nil {
			at = t
		}
	}

	return calls.StatusCallback{
		ProviderCallID: f.CallSid,
		Status:         status,
		Timestamp:      at,
	}, nil
}
