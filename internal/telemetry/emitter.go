package telemetry

import (
	"context"

	"cheque-custody/backend/internal/telemetry/domain"
)

// EventEmitter emits custody events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}
