package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultSMSLocalBase = "https://www.smslocal.com/dev/bulkV2"
)

// SMSLocal sends OTP SMS via the SMS Local bulk API (route=otp).
type SMSLocal struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocal returns a client for apiKey. Empty baseURL uses the public endpoint.
func NewSMSLocal(apiKey, baseURL, sender string) *SMSLocal {
	if baseURL == "" {
		baseURL = defaultSMSLocalBase
	}
	return &SMSLocal{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Send implements Notifier. The contact is reduced to its digits.
func (c *SMSLocal) Send(ctx context.Context, msg Message) error {
	if c.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}
	phone := digits(msg.Contact)
	if phone == "" {
		return fmt.Errorf("sms: contact has no digits")
	}
	body := map[string]any{
		"route":     "otp",
		"numbers":   phone,
		"variables": msg.Code,
	}
	if c.Sender != "" {
		body["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
