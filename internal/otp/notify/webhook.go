package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts deliveries to a provider gateway (WhatsApp or email) as JSON.
type Webhook struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// NewWebhook returns a Webhook for url; token is sent as a bearer token when set.
func NewWebhook(url, token string) *Webhook {
	return &Webhook{URL: url, Token: token, HTTPClient: &http.Client{Timeout: defaultTimeout}}
}

type webhookPayload struct {
	Channel     string    `json:"channel"`
	To          string    `json:"to"`
	Code        string    `json:"code"`
	ChequeID    string    `json:"chequeId"`
	ChallengeID string    `json:"challengeId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Send implements Notifier. Any 2xx response counts as delivered.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if w.URL == "" {
		return fmt.Errorf("notify: webhook URL not configured for channel %s", msg.Channel)
	}
	raw, err := json.Marshal(webhookPayload{
		Channel:     string(msg.Channel),
		To:          msg.Contact,
		Code:        msg.Code,
		ChequeID:    msg.ChequeID,
		ChallengeID: msg.ChallengeID,
		ExpiresAt:   msg.ExpiresAt,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Token != "" {
		req.Header.Set("Authorization", "Bearer "+w.Token)
	}
	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: %s webhook returned %s", msg.Channel, resp.Status)
	}
	return nil
}
