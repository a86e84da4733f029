package domain

import "time"

// Status is the lifecycle state of an override request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Request asks an approver to authorize a handover without OTP after the
// cheque's OTP channel was locked. An approved request authorizes exactly one
// handover; ConsumedAt is stamped when it is used.
type Request struct {
	ID             string     `json:"id"`
	ChequeID       string     `json:"chequeId"`
	RequestedBy    string     `json:"requestedBy"`
	Reason         string     `json:"reason"`
	Status         Status     `json:"status"`
	ApprovedBy     string     `json:"approvedBy,omitempty"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
	RejectedBy     string     `json:"rejectedBy,omitempty"`
	RejectedReason string     `json:"rejectedReason,omitempty"`
	RejectedAt     *time.Time `json:"rejectedAt,omitempty"`
	ConsumedAt     *time.Time `json:"consumedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Usable reports whether the request can authorize a handover.
func (r *Request) Usable() bool {
	return r.Status == StatusApproved && r.ConsumedAt == nil
}
