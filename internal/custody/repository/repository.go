// Package repository persists cheques and everything they own (OTP challenges,
// handover records, override requests, audit and custody entries). All writes
// happen inside a unit of work scoped to one cheque, which serializes concurrent
// operations on that cheque.
package repository

import (
	"context"
	"time"

	auditdomain "cheque-custody/backend/internal/audit/domain"
	chequedomain "cheque-custody/backend/internal/cheque/domain"
	otpdomain "cheque-custody/backend/internal/otp/domain"
	overridedomain "cheque-custody/backend/internal/override/domain"
)

// DefaultLockTimeout bounds how long a unit of work waits for a busy cheque.
const DefaultLockTimeout = 2 * time.Second

// Repository is implemented by PostgresRepository and MemoryRepository.
// Read methods return (nil, nil) when the record does not exist.
type Repository interface {
	// CreateCheque inserts c and runs fn in the same unit of work. A duplicate
	// cheque number fails with a Conflict error.
	CreateCheque(ctx context.Context, c *chequedomain.Cheque, fn func(tx Tx) error) error
	// WithinCheque locks the cheque and runs fn. fn's writes commit only if it
	// returns nil. Unknown cheques fail with NotFound; lock contention past the
	// lock timeout fails with Busy.
	WithinCheque(ctx context.Context, chequeID string, fn func(tx Tx) error) error

	GetCheque(ctx context.Context, id string) (*chequedomain.Cheque, error)
	GetHandover(ctx context.Context, chequeID string) (*chequedomain.HandoverRecord, error)
	GetOverride(ctx context.Context, id string) (*overridedomain.Request, error)
	ListOverrides(ctx context.Context, chequeID string) ([]*overridedomain.Request, error)
	// ListAudit and ListCustody return entries in append order, including
	// entries that share a timestamp.
	ListAudit(ctx context.Context, chequeID string) ([]*auditdomain.Entry, error)
	ListCustody(ctx context.Context, chequeID string) ([]*auditdomain.CustodyEntry, error)
}

// Tx is a unit of work holding the lock of a single cheque. Every method acts
// on that cheque.
type Tx interface {
	// Cheque returns the locked cheque, reflecting status updates made in this unit of work.
	Cheque() *chequedomain.Cheque
	UpdateChequeStatus(ctx context.Context, status chequedomain.Status, at time.Time) error

	// ActiveChallenge returns the challenge that is neither consumed nor invalidated.
	ActiveChallenge(ctx context.Context) (*otpdomain.Challenge, error)
	InsertChallenge(ctx context.Context, c *otpdomain.Challenge) error
	UpdateChallenge(ctx context.Context, c *otpdomain.Challenge) error

	InsertHandover(ctx context.Context, h *chequedomain.HandoverRecord) error

	GetOverride(ctx context.Context, id string) (*overridedomain.Request, error)
	PendingOverride(ctx context.Context) (*overridedomain.Request, error)
	// UsableOverride returns the oldest approved request not yet consumed.
	UsableOverride(ctx context.Context) (*overridedomain.Request, error)
	InsertOverride(ctx context.Context, r *overridedomain.Request) error
	UpdateOverride(ctx context.Context, r *overridedomain.Request) error

	AppendAudit(ctx context.Context, e *auditdomain.Entry) error
	AppendCustody(ctx context.Context, e *auditdomain.CustodyEntry) error
}
