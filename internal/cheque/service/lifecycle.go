// Package service implements the cheque lifecycle: creation, the guarded status
// transitions, cancellation, and read access to a cheque's trails.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cheque-custody/backend/internal/audit"
	auditdomain "cheque-custody/backend/internal/audit/domain"
	"cheque-custody/backend/internal/cheque/domain"
	"cheque-custody/backend/internal/custody/repository"
	apperrors "cheque-custody/backend/internal/errors"
)

// Publisher ships committed audit entries to reporting. *audit.Publisher implements it.
type Publisher interface {
	Publish(rec *audit.Recorder)
}

// CreateInput holds the fields of a new cheque.
type CreateInput struct {
	ChequeNo    string
	Amount      decimal.Decimal
	Currency    string
	Bank        string
	Branch      string
	PayerName   string
	PayeeName   string
	DueDate     time.Time
	InitiatorID string
}

// Lifecycle owns cheque status. Every transition commits together with its
// audit and custody entries.
type Lifecycle struct {
	repo      repository.Repository
	publisher Publisher
	nowF      func() time.Time
}

// NewLifecycle returns a Lifecycle. publisher may be nil; now defaults to time.Now.
func NewLifecycle(repo repository.Repository, publisher Publisher, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{repo: repo, publisher: publisher, nowF: now}
}

func (l *Lifecycle) now() time.Time {
	return l.nowF().UTC()
}

func (l *Lifecycle) publish(rec *audit.Recorder) {
	if l.publisher != nil && rec != nil {
		l.publisher.Publish(rec)
	}
}

// Create registers a signed cheque held by its initiator.
func (l *Lifecycle) Create(ctx context.Context, in CreateInput) (*domain.Cheque, error) {
	now := l.now()
	c := &domain.Cheque{
		ID:          uuid.New().String(),
		ChequeNo:    strings.TrimSpace(in.ChequeNo),
		Amount:      in.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
		Bank:        strings.TrimSpace(in.Bank),
		Branch:      strings.TrimSpace(in.Branch),
		PayerName:   strings.TrimSpace(in.PayerName),
		PayeeName:   strings.TrimSpace(in.PayeeName),
		DueDate:     in.DueDate,
		Status:      domain.StatusSigned,
		InitiatorID: in.InitiatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Currency == "" {
		c.Currency = domain.DefaultCurrency
	}
	if err := c.Validate(); err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}
	var rec *audit.Recorder
	err := l.repo.CreateCheque(ctx, c, func(tx repository.Tx) error {
		rec = audit.NewRecorder(tx, now)
		if err := rec.Record(ctx, c.ID, c.InitiatorID, auditdomain.ActionChequeCreated, map[string]any{
			"chequeNo": c.ChequeNo,
			"amount":   c.Amount.StringFixed(2),
			"currency": c.Currency,
		}); err != nil {
			return err
		}
		return rec.Move(ctx, c.ID, c.InitiatorID, auditdomain.RoleNone, auditdomain.RoleInitiator, "")
	})
	if err != nil {
		return nil, err
	}
	l.publish(rec)
	return c, nil
}

// Get returns the cheque or NotFound.
func (l *Lifecycle) Get(ctx context.Context, id string) (*domain.Cheque, error) {
	c, err := l.repo.GetCheque(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperrors.NotFound("cheque %s not found", id)
	}
	return c, nil
}

// AuditTrail returns the cheque's audit entries in order.
func (l *Lifecycle) AuditTrail(ctx context.Context, id string) ([]*auditdomain.Entry, error) {
	if _, err := l.Get(ctx, id); err != nil {
		return nil, err
	}
	return l.repo.ListAudit(ctx, id)
}

// CustodyTrail returns the cheque's custody moves in order.
func (l *Lifecycle) CustodyTrail(ctx context.Context, id string) ([]*auditdomain.CustodyEntry, error) {
	if _, err := l.Get(ctx, id); err != nil {
		return nil, err
	}
	return l.repo.ListCustody(ctx, id)
}

// Handover returns the handover record of an issued cheque.
func (l *Lifecycle) Handover(ctx context.Context, id string) (*domain.HandoverRecord, error) {
	if _, err := l.Get(ctx, id); err != nil {
		return nil, err
	}
	h, err := l.repo.GetHandover(ctx, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperrors.NotFound("cheque %s has no handover record", id)
	}
	return h, nil
}

type move struct {
	to       domain.Status
	fromRole string
	toRole   string
	action   string
}

// MarkReady moves a signed cheque to dispatch.
func (l *Lifecycle) MarkReady(ctx context.Context, id, actorID string) (*domain.Cheque, error) {
	return l.advance(ctx, id, actorID, "", move{
		to:       domain.StatusReadyForDispatch,
		fromRole: auditdomain.RoleInitiator,
		toRole:   auditdomain.RoleDispatch,
		action:   auditdomain.ActionChequeMarkedReady,
	})
}

// ForwardToReception moves a dispatched cheque to reception. notes are kept on the custody entry.
func (l *Lifecycle) ForwardToReception(ctx context.Context, id, actorID, notes string) (*domain.Cheque, error) {
	return l.advance(ctx, id, actorID, strings.TrimSpace(notes), move{
		to:       domain.StatusWithReception,
		fromRole: auditdomain.RoleDispatch,
		toRole:   auditdomain.RoleReception,
		action:   auditdomain.ActionChequeForwarded,
	})
}

func (l *Lifecycle) advance(ctx context.Context, id, actorID, notes string, m move) (*domain.Cheque, error) {
	now := l.now()
	var out *domain.Cheque
	var rec *audit.Recorder
	err := l.repo.WithinCheque(ctx, id, func(tx repository.Tx) error {
		c := tx.Cheque()
		if !domain.CanTransition(c.Status, m.to) {
			return apperrors.InvalidState("cheque %s is %s; cannot move to %s", id, c.Status, m.to)
		}
		if err := tx.UpdateChequeStatus(ctx, m.to, now); err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, now)
		if err := rec.Move(ctx, id, actorID, m.fromRole, m.toRole, notes); err != nil {
			return err
		}
		details := map[string]any{"from": string(c.Status), "to": string(m.to)}
		if notes != "" {
			details["notes"] = notes
		}
		if err := rec.Record(ctx, id, actorID, m.action, details); err != nil {
			return err
		}
		out = tx.Cheque()
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.publish(rec)
	return out, nil
}

// Cancel ends the lifecycle of a non-terminal cheque and invalidates any active OTP challenge.
func (l *Lifecycle) Cancel(ctx context.Context, id, actorID, reason string) (*domain.Cheque, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("cancellation reason is required")
	}
	now := l.now()
	var out *domain.Cheque
	var rec *audit.Recorder
	err := l.repo.WithinCheque(ctx, id, func(tx repository.Tx) error {
		c := tx.Cheque()
		if !domain.CanTransition(c.Status, domain.StatusCancelled) {
			return apperrors.InvalidState("cheque %s is %s and cannot be cancelled", id, c.Status)
		}
		if err := tx.UpdateChequeStatus(ctx, domain.StatusCancelled, now); err != nil {
			return err
		}
		ch, err := tx.ActiveChallenge(ctx)
		if err != nil {
			return err
		}
		if ch != nil {
			ch.InvalidatedAt = &now
			if err := tx.UpdateChallenge(ctx, ch); err != nil {
				return err
			}
		}
		rec = audit.NewRecorder(tx, now)
		if err := rec.Record(ctx, id, actorID, auditdomain.ActionChequeCancelled, map[string]any{
			"reason": reason,
			"from":   string(c.Status),
		}); err != nil {
			return err
		}
		out = tx.Cheque()
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.publish(rec)
	return out, nil
}

// CompleteHandover issues the cheque locked by tx to the recipient in record.
// It runs inside the caller's unit of work so the handover commits or rolls back
// with the caller's own writes. The cheque must be WITH_RECEPTION.
func (l *Lifecycle) CompleteHandover(ctx context.Context, tx repository.Tx, rec *audit.Recorder, record *domain.HandoverRecord) (*domain.Cheque, error) {
	c := tx.Cheque()
	if !domain.CanTransition(c.Status, domain.StatusIssued) {
		return nil, apperrors.InvalidState("cheque %s is %s; handover requires %s", c.ID, c.Status, domain.StatusWithReception)
	}
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.ChequeID = c.ID
	if err := tx.UpdateChequeStatus(ctx, domain.StatusIssued, record.HandedAt); err != nil {
		return nil, err
	}
	if err := tx.InsertHandover(ctx, record); err != nil {
		return nil, err
	}
	if err := rec.Move(ctx, c.ID, record.HandedBy, auditdomain.RoleReception, auditdomain.RoleRecipient, record.RecipientName); err != nil {
		return nil, err
	}
	details := map[string]any{
		"handoverId":    record.ID,
		"recipientName": record.RecipientName,
		"isOverride":    record.IsOverride,
	}
	if record.IsOverride {
		details["overrideRequestId"] = record.OverrideRequestID
		details["overrideApprovedBy"] = record.OverrideApprovedBy
	}
	if err := rec.Record(ctx, c.ID, record.HandedBy, auditdomain.ActionChequeIssued, details); err != nil {
		return nil, err
	}
	return tx.Cheque(), nil
}
