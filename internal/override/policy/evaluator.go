// Package policy decides whether an operator may approve or reject a handover
// override request. Decisions come from an OPA Rego module.
package policy

import "context"

// Actions an approver may take on a request.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Input describes one approval decision.
type Input struct {
	Action       string
	ApproverID   string
	ApproverRole string
	RequestID    string
	ChequeID     string
	RequestedBy  string
}

// Decision is the policy outcome. Reason explains a denial.
type Decision struct {
	Allow  bool
	Reason string
}

// Evaluator evaluates the override approval policy.
type Evaluator interface {
	Authorize(ctx context.Context, in Input) (Decision, error)
}
