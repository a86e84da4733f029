package domain

import (
	"strings"
	"time"
)

// Channel is an out-of-band OTP delivery channel.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// ParseChannel normalizes s and reports whether it names a supported channel.
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ChannelSMS, ChannelWhatsApp, ChannelEmail:
		return c, true
	}
	return "", false
}

// DefaultMaxAttempts is the attempt budget of a fresh challenge.
const DefaultMaxAttempts = 3

// DefaultTTL is how long a challenge stays verifiable.
const DefaultTTL = 5 * time.Minute

// Challenge is an OTP challenge bound to one cheque. A challenge is active
// until it is consumed or invalidated; a locked challenge stays active so the
// override workflow can observe the lock.
type Challenge struct {
	ID                string
	ChequeID          string
	Channel           Channel
	Contact           string
	CodeHash          string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	AttemptsRemaining int
	Locked            bool
	ConsumedAt        *time.Time
	InvalidatedAt     *time.Time
}

// Active reports whether the challenge still occupies the cheque's slot.
func (c *Challenge) Active() bool {
	return c.ConsumedAt == nil && c.InvalidatedAt == nil
}

// Expired reports whether now is past ExpiresAt.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
