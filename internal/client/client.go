// Package client is a Go client for the custody HTTP API. Every call is
// admitted through a dispatch throttle, so a burst of client calls reaches the
// server at a bounded rate.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	auditdomain "cheque-custody/backend/internal/audit/domain"
	chequedomain "cheque-custody/backend/internal/cheque/domain"
	apperrors "cheque-custody/backend/internal/errors"
	overridedomain "cheque-custody/backend/internal/override/domain"
	"cheque-custody/backend/internal/throttle"
)

// APIError is a failure the server answered with that is not a custody error,
// e.g. a missing token or an internal error.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the custody API. Safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	throttle *throttle.Throttle

	mu    sync.RWMutex
	token string
}

// New returns a Client for baseURL. t may be shared with other clients; a nil
// httpClient uses a 30s-timeout default.
func New(baseURL string, t *throttle.Throttle, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", baseURL)
	}
	if t == nil {
		return nil, fmt.Errorf("client: throttle is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient, throttle: t}, nil
}

// SetToken sets the bearer token sent with every call.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type errorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remainingAttempts"`
	Locked            bool   `json:"locked"`
}

// decodeError turns an error response into a custody error when the code is
// one, so callers can match it with errors.Is.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(raw))}
	}
	kind := apperrors.Kind(body.Code)
	if !isKind(kind) {
		return &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Message}
	}
	e := apperrors.New(kind, "%s", body.Message)
	e.RemainingAttempts = body.RemainingAttempts
	e.Locked = body.Locked
	return e
}

func isKind(k apperrors.Kind) bool {
	switch k {
	case apperrors.KindInvalidState, apperrors.KindNotFound, apperrors.KindExpired,
		apperrors.KindInvalidCode, apperrors.KindLocked, apperrors.KindConflict,
		apperrors.KindValidation, apperrors.KindUnauthorized, apperrors.KindBusy:
		return true
	}
	return false
}

// send issues one request through the throttle and decodes a 2xx JSON body into out.
func (c *Client) send(ctx context.Context, method, path, contentType string, body func() io.Reader, out any) error {
	return c.throttle.Submit(ctx, func(ctx context.Context) error {
		var r io.Reader
		if body != nil {
			r = body()
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
		if err != nil {
			return err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		if tok := c.bearer(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("client: %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return decodeError(resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode %s %s: %w", method, path, err)
		}
		return nil
	})
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if in == nil {
		return c.send(ctx, method, path, "", nil, out)
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.send(ctx, method, path, "application/json", func() io.Reader { return bytes.NewReader(raw) }, out)
}

func chequePath(id string, suffix ...string) string {
	p := "/cheques/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// LoginResult is the session returned by Login.
type LoginResult struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Operator    struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"operator"`
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	in := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", in, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

// CreateChequeInput is the body of POST /cheques. DueDate is YYYY-MM-DD.
type CreateChequeInput struct {
	ChequeNo  string          `json:"chequeNo"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Bank      string          `json:"bank"`
	Branch    string          `json:"branch,omitempty"`
	PayerName string          `json:"payerName"`
	PayeeName string          `json:"payeeName"`
	DueDate   string          `json:"dueDate"`
}

// CreateCheque registers a signed cheque.
func (c *Client) CreateCheque(ctx context.Context, in CreateChequeInput) (*chequedomain.Cheque, error) {
	var out chequedomain.Cheque
	if err := c.doJSON(ctx, http.MethodPost, "/cheques", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCheque returns a cheque.
func (c *Client) GetCheque(ctx context.Context, id string) (*chequedomain.Cheque, error) {
	var out chequedomain.Cheque
	if err := c.doJSON(ctx, http.MethodGet, chequePath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) transition(ctx context.Context, id, action string, in any) (*chequedomain.Cheque, error) {
	var out chequedomain.Cheque
	if err := c.doJSON(ctx, http.MethodPost, chequePath(id, action), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkReady moves a signed cheque to dispatch.
func (c *Client) MarkReady(ctx context.Context, id string) (*chequedomain.Cheque, error) {
	return c.transition(ctx, id, "mark-ready", nil)
}

// ForwardToReception moves a dispatched cheque to reception.
func (c *Client) ForwardToReception(ctx context.Context, id, notes string) (*chequedomain.Cheque, error) {
	return c.transition(ctx, id, "forward-to-reception", map[string]string{"notes": notes})
}

// Cancel cancels a non-terminal cheque.
func (c *Client) Cancel(ctx context.Context, id, reason string) (*chequedomain.Cheque, error) {
	return c.transition(ctx, id, "cancel", map[string]string{"reason": reason})
}

// AuditTrail returns a cheque's audit entries.
func (c *Client) AuditTrail(ctx context.Context, id string) ([]*auditdomain.Entry, error) {
	var out []*auditdomain.Entry
	if err := c.doJSON(ctx, http.MethodGet, chequePath(id, "audit"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CustodyTrail returns a cheque's custody moves.
func (c *Client) CustodyTrail(ctx context.Context, id string) ([]*auditdomain.CustodyEntry, error) {
	var out []*auditdomain.CustodyEntry
	if err := c.doJSON(ctx, http.MethodGet, chequePath(id, "custody"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Challenge is an issued OTP challenge. Code is set only in dev OTP mode.
type Challenge struct {
	ID        string    `json:"otpId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Code      string    `json:"otpCode,omitempty"`
}

// GenerateOTP issues a challenge for a cheque at reception.
func (c *Client) GenerateOTP(ctx context.Context, chequeID, channel, contact string) (*Challenge, error) {
	var out Challenge
	in := map[string]string{"channel": channel, "toContact": contact}
	if err := c.doJSON(ctx, http.MethodPost, chequePath(chequeID, "generate-otp"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DevOTP reads a code back in dev OTP mode.
func (c *Client) DevOTP(ctx context.Context, challengeID string) (string, error) {
	var out Challenge
	if err := c.doJSON(ctx, http.MethodGet, "/dev/otp/"+url.PathEscape(challengeID), nil, &out); err != nil {
		return "", err
	}
	return out.Code, nil
}

// Recipient is the identity and proof submitted at handover.
type Recipient struct {
	Name          string `json:"recipientName"`
	IDType        string `json:"idType"`
	IDNumber      string `json:"idNumber"`
	PhotoPath     string `json:"recipientPhotoPath"`
	SignaturePath string `json:"signaturePath"`
}

// Handover is an issued cheque and its handover record.
type Handover struct {
	Cheque *chequedomain.Cheque         `json:"cheque"`
	Record *chequedomain.HandoverRecord `json:"handoverRecord"`
}

// VerifyOTP submits the code and recipient details. A wrong code returns an
// InvalidCode error carrying the remaining attempts.
func (c *Client) VerifyOTP(ctx context.Context, chequeID, code string, rcpt Recipient) (*Handover, error) {
	in := struct {
		OTP string `json:"otp"`
		Recipient
	}{OTP: code, Recipient: rcpt}
	var out Handover
	if err := c.doJSON(ctx, http.MethodPost, chequePath(chequeID, "verify-otp"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestOverride asks for a handover override after lockout.
func (c *Client) RequestOverride(ctx context.Context, chequeID, reason string) (*overridedomain.Request, error) {
	var out overridedomain.Request
	if err := c.doJSON(ctx, http.MethodPost, chequePath(chequeID, "handover-override"), map[string]string{"reason": reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOverrides returns a cheque's override requests.
func (c *Client) ListOverrides(ctx context.Context, chequeID string) ([]*overridedomain.Request, error) {
	var out []*overridedomain.Request
	if err := c.doJSON(ctx, http.MethodGet, chequePath(chequeID, "overrides"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) decide(ctx context.Context, overrideID, action string, in any) (*overridedomain.Request, error) {
	var out overridedomain.Request
	path := "/handover-overrides/" + url.PathEscape(overrideID) + "/" + action
	if err := c.doJSON(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApproveOverride approves a pending request.
func (c *Client) ApproveOverride(ctx context.Context, overrideID string) (*overridedomain.Request, error) {
	return c.decide(ctx, overrideID, "approve", nil)
}

// RejectOverride rejects a pending request.
func (c *Client) RejectOverride(ctx context.Context, overrideID, reason string) (*overridedomain.Request, error) {
	return c.decide(ctx, overrideID, "reject", map[string]string{"rejectedReason": reason})
}

// CompleteOverride issues the cheque under an approved override.
func (c *Client) CompleteOverride(ctx context.Context, chequeID string, rcpt Recipient) (*Handover, error) {
	var out Handover
	if err := c.doJSON(ctx, http.MethodPost, chequePath(chequeID, "complete-override"), rcpt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload stores a photo or signature and returns its path for a handover.
func (c *Client) Upload(ctx context.Context, kind, filename string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", kind); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, content); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	raw := buf.Bytes()
	var out struct {
		Path string `json:"path"`
	}
	err = c.send(ctx, http.MethodPost, "/files", mw.FormDataContentType(), func() io.Reader { return bytes.NewReader(raw) }, &out)
	if err != nil {
		return "", err
	}
	return out.Path, nil
}
