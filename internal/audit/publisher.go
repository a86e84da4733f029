package audit

import (
	"context"
	"log"
	"time"

	"cheque-custody/backend/internal/audit/domain"
	"cheque-custody/backend/internal/telemetry"
	telemetrydomain "cheque-custody/backend/internal/telemetry/domain"
	"cheque-custody/backend/internal/telemetry/producer"
)

// publishTimeout bounds one best-effort publish of committed entries.
const publishTimeout = 5 * time.Second

// Publisher fans committed audit entries out to reporting consumers (Kafka
// and OpenTelemetry logs). Publishing is best-effort: failures are logged and
// never affect the caller, since the entries are already durable.
type Publisher struct {
	producer producer.Producer
	emitter  telemetry.EventEmitter
}

// NewPublisher returns a Publisher. producer and emitter may be nil.
func NewPublisher(p producer.Producer, emitter telemetry.EventEmitter) *Publisher {
	return &Publisher{producer: p, emitter: emitter}
}

// Publish sends the recorder's entries asynchronously. Call only after commit.
func (p *Publisher) Publish(rec *Recorder) {
	if p == nil || rec == nil || len(rec.Entries()) == 0 {
		return
	}
	events := make([]*telemetrydomain.Event, 0, len(rec.Entries()))
	for _, e := range rec.Entries() {
		events = append(events, ToEvent(e))
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		p.publish(ctx, events)
	}()
}

func (p *Publisher) publish(ctx context.Context, events []*telemetrydomain.Event) {
	for _, ev := range events {
		if p.producer != nil {
			if err := p.producer.Emit(ctx, ev); err != nil {
				log.Printf("audit: failed to publish event %s/%s: %v", ev.ChequeID, ev.EventType, err)
			}
		}
		telemetry.EmitAsync(p.emitter, ev)
	}
}

// ToEvent converts an audit entry into a reporting event.
func ToEvent(e *domain.Entry) *telemetrydomain.Event {
	d := Describe(e.Action)
	return &telemetrydomain.Event{
		ID:        e.ID,
		ChequeID:  e.ChequeID,
		ActorID:   e.ActorID,
		EventType: e.Action,
		Resource:  d.Resource,
		Severity:  string(d.Severity),
		Source:    "custody",
		Details:   e.Details,
		CreatedAt: e.CreatedAt,
	}
}
