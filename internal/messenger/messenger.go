// ABOUTME: Outbound chat transport interface and Twilio implementation
// ABOUTME: Sends WhatsApp messages via the Twilio REST API with basic auth

package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotConfigured is returned when the transport has no account credentials.
var ErrNotConfigured = errors.New("messenger is not configured")

// Messenger sends one outbound message to a contact.
type Messenger interface {
	Send(ctx context.Context, to, body string) error
}

const defaultTwilioBase = "https://api.twilio.com/2010-04-01"

// Twilio sends WhatsApp messages through the Twilio Messages API.
type Twilio struct {
	accountSID string
	authToken  string
	from       string // sender handle, E.164
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// TwilioOption configures the Twilio transport.
type TwilioOption func(*Twilio)

// WithBaseURL overrides the API base URL (tests point it at a fake server).
func WithBaseURL(base string) TwilioOption {
	return func(t *Twilio) { t.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) TwilioOption {
	return func(t *Twilio) { t.httpClient = c }
}

// NewTwilio creates the Twilio transport.
func NewTwilio(accountSID, authToken, from string, opts ...TwilioOption) *Twilio {
	t := &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    defaultTwilioBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default().With("component", "messenger"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send delivers one WhatsApp message. The whatsapp: channel prefix is added
// when the caller passes a bare phone number.
func (t *Twilio) Send(ctx context.Context, to, body string) error {
	if t.accountSID == "" || t.authToken == "" || t.from == "" {
		return ErrNotConfigured
	}

	form := url.Values{}
	form.Set("From", whatsappAddr(t.from))
	form.Set("To", whatsappAddr(to))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.accountSID, t.authToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("twilio HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.SID != "" {
		t.logger.Debug("message sent", "to", to, "sid", result.SID)
	}
	return nil
}

// whatsappAddr ensures the Twilio WhatsApp channel prefix.
func whatsappAddr(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
