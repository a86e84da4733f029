// Package notify delivers OTP codes to recipients over SMS, WhatsApp, or email.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"cheque-custody/backend/internal/otp/domain"
)

// Message is one OTP delivery. Code is plaintext and must never be logged
// outside dev OTP mode.
type Message struct {
	ChequeID    string
	ChallengeID string
	Channel     domain.Channel
	Contact     string
	Code        string
	ExpiresAt   time.Time
}

// Notifier delivers a message. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Router sends each message through the notifier registered for its channel.
type Router struct {
	byChannel map[domain.Channel]Notifier
	fallback  Notifier
}

// NewRouter returns a Router. fallback handles channels without a registered notifier; it may be nil.
func NewRouter(fallback Notifier) *Router {
	return &Router{byChannel: make(map[domain.Channel]Notifier), fallback: fallback}
}

// Register sets the notifier for channel. A nil notifier is ignored.
func (r *Router) Register(channel domain.Channel, n Notifier) {
	if n == nil {
		return
	}
	r.byChannel[channel] = n
}

// Send implements Notifier.
func (r *Router) Send(ctx context.Context, msg Message) error {
	n, ok := r.byChannel[msg.Channel]
	if !ok {
		n = r.fallback
	}
	if n == nil {
		return fmt.Errorf("notify: no notifier configured for channel %s", msg.Channel)
	}
	return n.Send(ctx, msg)
}

// LogNotifier writes deliveries to the process log instead of sending them.
// The code is included only when RevealCode is set (dev OTP mode).
type LogNotifier struct {
	RevealCode bool
}

// Send implements Notifier.
func (n LogNotifier) Send(ctx context.Context, msg Message) error {
	code := "******"
	if n.RevealCode {
		code = msg.Code
	}
	log.Printf("notify: dev delivery cheque=%s challenge=%s channel=%s contact=%s code=%s",
		msg.ChequeID, msg.ChallengeID, msg.Channel, MaskContact(msg.Contact), code)
	return nil
}

// MaskContact hides all but the last four characters of a phone number or email address.
func MaskContact(contact string) string {
	r := []rune(contact)
	if len(r) <= 4 {
		return "****"
	}
	masked := make([]rune, len(r))
	for i := range r {
		if i < len(r)-4 {
			masked[i] = '*'
		} else {
			masked[i] = r[i]
		}
	}
	return string(masked)
}
