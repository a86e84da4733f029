package domain

import (
	"encoding/json"
	"time"
)

// Custody roles: who physically holds a cheque.
const (
	RoleNone      = ""
	RoleInitiator = "initiator"
	RoleDispatch  = "dispatch"
	RoleReception = "reception"
	RoleRecipient = "recipient"
)

// Audit actions.
const (
	ActionChequeCreated     = "cheque.created"
	ActionChequeMarkedReady = "cheque.marked_ready"
	ActionChequeForwarded   = "cheque.forwarded"
	ActionChequeIssued      = "cheque.issued"
	ActionChequeCancelled   = "cheque.cancelled"
	ActionOTPGenerated      = "otp.generated"
	ActionOTPSuperseded     = "otp.superseded"
	ActionOTPDeliveryFailed = "otp.delivery_failed"
	ActionOTPVerifyFailed   = "otp.verify_failed"
	ActionOTPExpired        = "otp.expired"
	ActionOTPLocked         = "otp.locked"
	ActionOTPVerified       = "otp.verified"
	ActionOverrideRequested = "override.requested"
	ActionOverrideApproved  = "override.approved"
	ActionOverrideRejected  = "override.rejected"
	ActionOverrideConsumed  = "override.consumed"
)

// CustodyEntry records a physical move of a cheque between roles. Append-only.
type CustodyEntry struct {
	ID        string    `json:"id"`
	ChequeID  string    `json:"chequeId"`
	FromRole  string    `json:"fromRole"`
	ToRole    string    `json:"toRole"`
	ActorID   string    `json:"actorId"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry records a protocol action with free-form JSON details. Append-only.
type Entry struct {
	ID        string          `json:"id"`
	ChequeID  string          `json:"chequeId"`
	ActorID   string          `json:"actorId"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"createdAt"`
}
