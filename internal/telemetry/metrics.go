package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "cheque-custody"

// Metrics holds the custody counters. Instruments come from the global MeterProvider,
// so call NewMetrics after Providers.SetGlobal. The zero value and nil are no-ops.
type Metrics struct {
	otpGenerated     metric.Int64Counter
	otpVerifyFailed  metric.Int64Counter
	otpLocked        metric.Int64Counter
	handovers        metric.Int64Counter
	overrideDecision metric.Int64Counter
	dispatchInFlight metric.Int64UpDownCounter
}

// NewMetrics creates the custody instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error
	if m.otpGenerated, err = meter.Int64Counter("custody.otp.generated", metric.WithDescription("OTP challenges issued")); err != nil {
		return nil, err
	}
	if m.otpVerifyFailed, err = meter.Int64Counter("custody.otp.verify_failed", metric.WithDescription("OTP verifications that did not match")); err != nil {
		return nil, err
	}
	if m.otpLocked, err = meter.Int64Counter("custody.otp.locked", metric.WithDescription("OTP channels locked after exhausting attempts")); err != nil {
		return nil, err
	}
	if m.handovers, err = meter.Int64Counter("custody.handover.completed", metric.WithDescription("Cheques handed over, by method")); err != nil {
		return nil, err
	}
	if m.overrideDecision, err = meter.Int64Counter("custody.override.decisions", metric.WithDescription("Override approvals and rejections")); err != nil {
		return nil, err
	}
	if m.dispatchInFlight, err = meter.Int64UpDownCounter("custody.dispatch.in_flight", metric.WithDescription("Outbound calls currently executing")); err != nil {
		return nil, err
	}
	return m, nil
}

// OTPGenerated counts an issued challenge on channel.
func (m *Metrics) OTPGenerated(ctx context.Context, channel string) {
	if m == nil || m.otpGenerated == nil {
		return
	}
	m.otpGenerated.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// OTPVerifyFailed counts a mismatched code.
func (m *Metrics) OTPVerifyFailed(ctx context.Context) {
	if m == nil || m.otpVerifyFailed == nil {
		return
	}
	m.otpVerifyFailed.Add(ctx, 1)
}

// OTPLocked counts a channel lock.
func (m *Metrics) OTPLocked(ctx context.Context) {
	if m == nil || m.otpLocked == nil {
		return
	}
	m.otpLocked.Add(ctx, 1)
}

// HandoverCompleted counts an issued cheque; method is "otp" or "override".
func (m *Metrics) HandoverCompleted(ctx context.Context, method string) {
	if m == nil || m.handovers == nil {
		return
	}
	m.handovers.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// OverrideDecision counts an approval or rejection.
func (m *Metrics) OverrideDecision(ctx context.Context, decision string) {
	if m == nil || m.overrideDecision == nil {
		return
	}
	m.overrideDecision.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// DispatchStarted and DispatchFinished track throttled calls in flight.
func (m *Metrics) DispatchStarted(ctx context.Context) {
	if m == nil || m.dispatchInFlight == nil {
		return
	}
	m.dispatchInFlight.Add(ctx, 1)
}

func (m *Metrics) DispatchFinished(ctx context.Context) {
	if m == nil || m.dispatchInFlight == nil {
		return
	}
	m.dispatchInFlight.Add(ctx, -1)
}
