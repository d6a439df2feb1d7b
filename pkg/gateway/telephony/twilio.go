// Package telephony holds the out-of-band control client for the
// telephony provider. The media stream carries audio; ending the call
// itself requires a REST request against the provider API.
package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioConfig configures the call-control client.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	Timeout    time.Duration
}

// DefaultTwilioConfig returns settings for the hosted API.
func DefaultTwilioConfig(accountSID, authToken string) TwilioConfig {
	return TwilioConfig{
		AccountSID: accountSID,
		AuthToken:  authToken,
		BaseURL:    "https://api.twilio.com",
		Timeout:    10 * time.Second,
	}
}

// TwilioTerminator ends calls via the provider REST API.
type TwilioTerminator struct {
	config TwilioConfig
	client *http.Client
}

// NewTwilioTerminator builds a terminator. Pass nil to use a client
// with the configured timeout.
func NewTwilioTerminator(config TwilioConfig, client *http.Client) *TwilioTerminator {
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &TwilioTerminator{config: config, client: client}
}

// TerminateCall marks the call completed at the provider, which tears
// down the caller leg and the media stream with it.
func (t *TwilioTerminator) TerminateCall(ctx context.Context, callID string) error {
	if t.config.AccountSID == "" || t.config.AuthToken == "" {
		return fmt.Errorf("twilio: credentials not set")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json",
		t.config.BaseURL, t.config.AccountSID, callID)
	form := url.Values{"Status": []string{"completed"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.config.AccountSID, t.config.AuthToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
