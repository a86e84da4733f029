package audit

import "strings"

// Severity classifies an audit action for downstream reporting.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityAlert   Severity = "alert"
)

// Descriptor holds the resource, verb, and severity derived from an audit action.
type Descriptor struct {
	Resource string
	Verb     string
	Severity Severity
}

// Actions that reporting must surface prominently.
var actionSeverity = map[string]Severity{
	"otp.verify_failed":   SeverityWarning,
	"otp.expired":         SeverityWarning,
	"otp.delivery_failed": SeverityWarning,
	"cheque.cancelled":    SeverityWarning,
	"otp.locked":          SeverityAlert,
	"override.requested":  SeverityAlert,
	"override.approved":   SeverityAlert,
	"override.rejected":   SeverityWarning,
	"override.consumed":   SeverityAlert,
}

// Describe splits an action (e.g. "otp.locked") into resource and verb and
// assigns its severity. Unknown shapes map to resource "unknown".
func Describe(action string) Descriptor {
	sev, ok := actionSeverity[action]
	if !ok {
		sev = SeverityInfo
	}
	dot := strings.Index(action, ".")
	if dot <= 0 || dot == len(action)-1 {
		return Descriptor{Resource: "unknown", Verb: strings.ToLower(action), Severity: sev}
	}
	return Descriptor{Resource: action[:dot], Verb: action[dot+1:], Severity: sev}
}
