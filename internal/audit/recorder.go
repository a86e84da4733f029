package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"cheque-custody/backend/internal/audit/domain"
)

// Appender persists trail entries inside the caller's transaction.
type Appender interface {
	AppendAudit(ctx context.Context, e *domain.Entry) error
	AppendCustody(ctx context.Context, e *domain.CustodyEntry) error
}

// Recorder appends audit and custody entries through a transactional Appender
// and remembers what it wrote so the entries can be published after commit.
type Recorder struct {
	tx      Appender
	now     time.Time
	entries []*domain.Entry
	moves   []*domain.CustodyEntry
}

// NewRecorder returns a Recorder stamping entries with now.
func NewRecorder(tx Appender, now time.Time) *Recorder {
	return &Recorder{tx: tx, now: now}
}

// Record appends an audit entry. details is marshalled to a JSON object; nil becomes {}.
func (r *Recorder) Record(ctx context.Context, chequeID, actorID, action string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	e := &domain.Entry{
		ID:        uuid.New().String(),
		ChequeID:  chequeID,
		ActorID:   actorID,
		Action:    action,
		Details:   raw,
		CreatedAt: r.now,
	}
	if err := r.tx.AppendAudit(ctx, e); err != nil {
		return err
	}
	r.entries = append(r.entries, e)
	return nil
}

// Move appends a custody entry for a physical move between roles.
func (r *Recorder) Move(ctx context.Context, chequeID, actorID, fromRole, toRole, notes string) error {
	e := &domain.CustodyEntry{
		ID:        uuid.New().String(),
		ChequeID:  chequeID,
		FromRole:  fromRole,
		ToRole:    toRole,
		ActorID:   actorID,
		Notes:     notes,
		CreatedAt: r.now,
	}
	if err := r.tx.AppendCustody(ctx, e); err != nil {
		return err
	}
	r.moves = append(r.moves, e)
	return nil
}

// Entries returns the audit entries recorded so far.
func (r *Recorder) Entries() []*domain.Entry {
	return r.entries
}

// Moves returns the custody entries recorded so far.
func (r *Recorder) Moves() []*domain.CustodyEntry {
	return r.moves
}
