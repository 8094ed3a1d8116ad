package dialer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioDialer places outbound calls through the Twilio Calls API.
//
// Only the boundary translation lives here; retry/backoff and failure
// accounting belong to the campaign processor.
type TwilioDialer struct {
	AccountSID string
	AuthToken  string

	// AnswerURL serves the call content (TwiML) once the callee picks up.
	// Call-script rendering is out of scope here; the URL is opaque.
	AnswerURL string

	// StatusCallbackURL receives provider status events. The internal call id
	// is appended as a query parameter for correlation.
	StatusCallbackURL string

	// BaseURL overrides the Twilio API endpoint in tests.
	BaseURL string

	HTTPClient *http.Client
}

const twilioDefaultBaseURL = "https://api.twilio.com"

func (d *TwilioDialer) Name() string { return "twilio" }

func (d *TwilioDialer) client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (d *TwilioDialer) baseURL() string {
	if d.BaseURL != "" {
		return strings.TrimRight(d.BaseURL, "/")
	}
	return twilioDefaultBaseURL
}

func (d *TwilioDialer) HealthCheck(ctx context.Context) error {
	if d.AccountSID == "" || d.AuthToken == "" {
		return errors.New("dialer: twilio credentials not configured")
	}
	return nil
}

type twilioCallResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"` // populated on API errors
	Code    int    `json:"code"`
}

func (d *TwilioDialer) Dispatch(ctx context.Context, params CallParams) (DispatchResult, error) {
	if params.To == "" || params.From == "" {
		return DispatchResult{}, errors.New("dialer: from and to are required")
	}
	if params.CallID == "" {
		return DispatchResult{}, errors.New("dialer: call_id is required")
	}

	form := url.Values{}
	form.Set("To", params.To)
	form.Set("From", params.From)
	form.Set("Url", d.AnswerURL)
	if d.StatusCallbackURL != "" {
		cb := d.StatusCallbackURL
		sep := "?"
		if strings.Contains(cb, "?") {
			sep = "&"
		}
		form.Set("StatusCallback", cb+sep+"call_id="+url.QueryEscape(params.CallID))
		form.Set("StatusCallbackMethod", "POST")
		for _, ev := range []string{"ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", d.baseURL(), d.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return DispatchResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(d.AccountSID, d.AuthToken)

	resp, err := d.client().Do(req)
	if err != nil {
		return DispatchResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return DispatchResult{}, err
	}

	var out twilioCallResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return DispatchResult{}, fmt.Errorf("dialer: twilio response decode: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DispatchResult{}, fmt.Errorf("dialer: twilio dispatch failed: status=%d code=%d %s", resp.StatusCode, out.Code, out.Message)
	}
	if out.Sid == "" {
		return DispatchResult{}, errors.New("dialer: twilio response missing sid")
	}
	return DispatchResult{ProviderCallID: out.Sid}, nil
}
