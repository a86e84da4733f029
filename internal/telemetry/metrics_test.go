package telemetry

import (
	"context"
	"testing"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.OTPGenerated(ctx, "sms")
	m.OTPVerifyFailed(ctx)
	m.OTPLocked(ctx)
	m.HandoverCompleted(ctx, "otp")
	m.OverrideDecision(ctx, "approved")
	m.DispatchStarted(ctx)
	m.DispatchFinished(ctx)
}

func TestNewMetrics_GlobalNoopProvider(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.OTPGenerated(ctx, "email")
	m.DispatchStarted(ctx)
	m.DispatchFinished(ctx)
}
