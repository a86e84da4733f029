package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

const policyQuery = "data.custody.override"

// DefaultModule allows approvers and admins to decide on requests raised by someone else.
const DefaultModule = `package custody.override

approver_roles := {"approver", "admin"}

default allow := false

allow if {
	approver_roles[input.approver.role]
	input.approver.id != input.request.requested_by
}

default deny_reason := ""

deny_reason := "approver or admin role required" if {
	not approver_roles[input.approver.role]
}

deny_reason := "the requester cannot decide on their own override" if {
	approver_roles[input.approver.role]
	input.approver.id == input.request.requested_by
}
`

// OPAEvaluator evaluates a compiled Rego module exposing allow and deny_reason
// under package custody.override.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles module; an empty module uses DefaultModule.
func NewOPAEvaluator(ctx context.Context, module string) (*OPAEvaluator, error) {
	if module == "" {
		module = DefaultModule
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("override.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: compile override module: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// LoadModule reads a Rego module from path. An empty path returns DefaultModule.
func LoadModule(path string) (string, error) {
	if path == "" {
		return DefaultModule, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("policy: read %s: %w", path, err)
	}
	return string(b), nil
}

// Authorize implements Evaluator. Evaluation errors deny.
func (e *OPAEvaluator) Authorize(ctx context.Context, in Input) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return Decision{Reason: "policy evaluation failed"}, fmt.Errorf("policy: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{Reason: "policy returned no result"}, fmt.Errorf("policy: query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Reason: "policy returned no result"}, fmt.Errorf("policy: unexpected result %T", rs[0].Expressions[0].Value)
	}
	d := Decision{}
	d.Allow, _ = doc["allow"].(bool)
	d.Reason, _ = doc["deny_reason"].(string)
	if !d.Allow && d.Reason == "" {
		d.Reason = "denied by override policy"
	}
	return d, nil
}

// HealthCheck evaluates a fixed input to confirm the module still evaluates.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Authorize(ctx, Input{Action: ActionApprove, ApproverID: "health", ApproverRole: "admin", RequestedBy: "probe"})
	return err
}

func buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"action": in.Action,
		"approver": map[string]interface{}{
			"id":   in.ApproverID,
			"role": in.ApproverRole,
		},
		"request": map[string]interface{}{
			"id":           in.RequestID,
			"cheque_id":    in.ChequeID,
			"requested_by": in.RequestedBy,
		},
	}
}
