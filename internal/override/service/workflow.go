// Package service implements the manual override of a locked OTP channel: a
// reception operator asks for an override, a different operator with approval
// rights decides, and an approved request authorizes exactly one handover.
package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"cheque-custody/backend/internal/audit"
	auditdomain "cheque-custody/backend/internal/audit/domain"
	chequedomain "cheque-custody/backend/internal/cheque/domain"
	"cheque-custody/backend/internal/custody/repository"
	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/override/domain"
	"cheque-custody/backend/internal/override/policy"
	"cheque-custody/backend/internal/telemetry"
)

// HandoverCompleter issues a cheque inside a unit of work. *chequeservice.Lifecycle implements it.
type HandoverCompleter interface {
	CompleteHandover(ctx context.Context, tx repository.Tx, rec *audit.Recorder, record *chequedomain.HandoverRecord) (*chequedomain.Cheque, error)
}

// Publisher ships committed audit entries to reporting.
type Publisher interface {
	Publish(rec *audit.Recorder)
}

// Actor is the authenticated operator deciding on a request.
type Actor struct {
	ID   string
	Role string
}

// HandoverInput is what reception submits when handing over under an approved override.
type HandoverInput struct {
	Recipient chequedomain.Recipient
	Proof     chequedomain.Proof
}

// HandoverResult is the issued cheque and its handover record.
type HandoverResult struct {
	Cheque   *chequedomain.Cheque         `json:"cheque"`
	Handover *chequedomain.HandoverRecord `json:"handoverRecord"`
}

// Workflow manages override requests.
type Workflow struct {
	repo      repository.Repository
	handover  HandoverCompleter
	policy    policy.Evaluator
	publisher Publisher
	metrics   *telemetry.Metrics
	nowF      func() time.Time
}

// NewWorkflow returns a Workflow. publisher and metrics may be nil; now defaults to time.Now.
func NewWorkflow(repo repository.Repository, handover HandoverCompleter, eval policy.Evaluator, publisher Publisher, metrics *telemetry.Metrics, now func() time.Time) *Workflow {
	if now == nil {
		now = time.Now
	}
	return &Workflow{
		repo:      repo,
		handover:  handover,
		policy:    eval,
		publisher: publisher,
		metrics:   metrics,
		nowF:      now,
	}
}

func (w *Workflow) now() time.Time {
	return w.nowF().UTC()
}

func (w *Workflow) publish(rec *audit.Recorder) {
	if w.publisher != nil && rec != nil {
		w.publisher.Publish(rec)
	}
}

// Request opens a PENDING override for a cheque whose OTP channel is locked.
func (w *Workflow) Request(ctx context.Context, chequeID, requestedBy, reason string) (*domain.Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("override reason is required")
	}
	now := w.now()
	req := &domain.Request{
		ID:          uuid.New().String(),
		ChequeID:    chequeID,
		RequestedBy: requestedBy,
		Reason:      reason,
		Status:      domain.StatusPending,
		CreatedAt:   now,
	}
	var rec *audit.Recorder
	err := w.repo.WithinCheque(ctx, chequeID, func(tx repository.Tx) error {
		c := tx.Cheque()
		if c.Status != chequedomain.StatusWithReception {
			return apperrors.InvalidState("cheque %s is %s; override requires %s", chequeID, c.Status, chequedomain.StatusWithReception)
		}
		ch, err := tx.ActiveChallenge(ctx)
		if err != nil {
			return err
		}
		if ch == nil || !ch.Locked {
			return apperrors.InvalidState("override is only available once the OTP channel is locked")
		}
		pending, err := tx.PendingOverride(ctx)
		if err != nil {
			return err
		}
		if pending != nil {
			return apperrors.Conflict("override %s is already pending for cheque %s", pending.ID, chequeID)
		}
		usable, err := tx.UsableOverride(ctx)
		if err != nil {
			return err
		}
		if usable != nil {
			return apperrors.Conflict("override %s is already approved for cheque %s", usable.ID, chequeID)
		}
		if err := tx.InsertOverride(ctx, req); err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, now)
		return rec.Record(ctx, chequeID, requestedBy, auditdomain.ActionOverrideRequested, map[string]any{
			"overrideId":  req.ID,
			"reason":      reason,
			"challengeId": ch.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	w.publish(rec)
	return req, nil
}

// Approve moves a PENDING request to APPROVED. The approver must pass the approval policy.
func (w *Workflow) Approve(ctx context.Context, overrideID string, approver Actor) (*domain.Request, error) {
	return w.decide(ctx, overrideID, approver, policy.ActionApprove, "")
}

// Reject moves a PENDING request to REJECTED. The OTP channel stays locked.
func (w *Workflow) Reject(ctx context.Context, overrideID string, approver Actor, rejectedReason string) (*domain.Request, error) {
	rejectedReason = strings.TrimSpace(rejectedReason)
	if rejectedReason == "" {
		return nil, apperrors.Validation("rejection reason is required")
	}
	return w.decide(ctx, overrideID, approver, policy.ActionReject, rejectedReason)
}

func (w *Workflow) decide(ctx context.Context, overrideID string, approver Actor, action, rejectedReason string) (*domain.Request, error) {
	existing, err := w.Get(ctx, overrideID)
	if err != nil {
		return nil, err
	}
	now := w.now()
	var (
		out *domain.Request
		rec *audit.Recorder
	)
	err = w.repo.WithinCheque(ctx, existing.ChequeID, func(tx repository.Tx) error {
		req, err := tx.GetOverride(ctx, overrideID)
		if err != nil {
			return err
		}
		if req == nil {
			return apperrors.NotFound("override %s not found", overrideID)
		}
		if req.Status != domain.StatusPending {
			return apperrors.InvalidState("override %s is %s", overrideID, req.Status)
		}
		if err := w.authorize(ctx, req, approver, action); err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, now)
		details := map[string]any{"overrideId": req.ID, "requestedBy": req.RequestedBy}
		auditAction := auditdomain.ActionOverrideApproved
		if action == policy.ActionApprove {
			req.Status = domain.StatusApproved
			req.ApprovedBy = approver.ID
			req.ApprovedAt = &now
		} else {
			req.Status = domain.StatusRejected
			req.RejectedBy = approver.ID
			req.RejectedReason = rejectedReason
			req.RejectedAt = &now
			details["rejectedReason"] = rejectedReason
			auditAction = auditdomain.ActionOverrideRejected
		}
		if err := tx.UpdateOverride(ctx, req); err != nil {
			return err
		}
		out = req
		return rec.Record(ctx, req.ChequeID, approver.ID, auditAction, details)
	})
	if err != nil {
		return nil, err
	}
	w.publish(rec)
	w.metrics.OverrideDecision(ctx, string(out.Status))
	return out, nil
}

func (w *Workflow) authorize(ctx context.Context, req *domain.Request, approver Actor, action string) error {
	d, err := w.policy.Authorize(ctx, policy.Input{
		Action:       action,
		ApproverID:   approver.ID,
		ApproverRole: approver.Role,
		RequestID:    req.ID,
		ChequeID:     req.ChequeID,
		RequestedBy:  req.RequestedBy,
	})
	if err != nil {
		log.Printf("override: policy evaluation for %s failed: %v", req.ID, err)
		return apperrors.Unauthorized("override decision denied")
	}
	if !d.Allow {
		return apperrors.Unauthorized("%s", d.Reason)
	}
	return nil
}

// CompleteHandoverViaOverride issues the cheque under its approved, unused
// override. The request and the locked challenge are consumed in the same
// unit of work as the handover.
func (w *Workflow) CompleteHandoverViaOverride(ctx context.Context, chequeID string, in HandoverInput, actorID string) (*HandoverResult, error) {
	now := w.now()
	var (
		rec    *audit.Recorder
		result *HandoverResult
	)
	err := w.repo.WithinCheque(ctx, chequeID, func(tx repository.Tx) error {
		req, err := tx.UsableOverride(ctx)
		if err != nil {
			return err
		}
		if req == nil {
			return apperrors.NotFound("cheque %s has no approved override", chequeID)
		}
		c := tx.Cheque()
		if c.Status != chequedomain.StatusWithReception {
			return apperrors.InvalidState("cheque %s is %s; handover requires %s", chequeID, c.Status, chequedomain.StatusWithReception)
		}
		if missing := chequedomain.MissingFields(in.Recipient, in.Proof); len(missing) > 0 {
			return apperrors.Validation("missing handover fields: %s", strings.Join(missing, ", "))
		}
		req.ConsumedAt = &now
		if err := tx.UpdateOverride(ctx, req); err != nil {
			return err
		}
		ch, err := tx.ActiveChallenge(ctx)
		if err != nil {
			return err
		}
		if ch != nil {
			ch.ConsumedAt = &now
			if err := tx.UpdateChallenge(ctx, ch); err != nil {
				return err
			}
		}
		rec = audit.NewRecorder(tx, now)
		if err := rec.Record(ctx, chequeID, actorID, auditdomain.ActionOverrideConsumed, map[string]any{
			"overrideId": req.ID,
			"approvedBy": req.ApprovedBy,
		}); err != nil {
			return err
		}
		record := &chequedomain.HandoverRecord{
			RecipientName:      strings.TrimSpace(in.Recipient.Name),
			IDType:             strings.TrimSpace(in.Recipient.IDType),
			IDNumber:           strings.TrimSpace(in.Recipient.IDNumber),
			RecipientPhotoRef:  strings.TrimSpace(in.Proof.PhotoRef),
			SignatureRef:       strings.TrimSpace(in.Proof.SignatureRef),
			HandedBy:           actorID,
			HandedAt:           now,
			IsOverride:         true,
			OverrideRequestID:  req.ID,
			OverrideApprovedBy: req.ApprovedBy,
			OverrideReason:     req.Reason,
		}
		issued, err := w.handover.CompleteHandover(ctx, tx, rec, record)
		if err != nil {
			return err
		}
		result = &HandoverResult{Cheque: issued, Handover: record}
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.publish(rec)
	w.metrics.HandoverCompleted(ctx, "override")
	return result, nil
}

// Get returns the request or NotFound.
func (w *Workflow) Get(ctx context.Context, overrideID string) (*domain.Request, error) {
	req, err := w.repo.GetOverride(ctx, overrideID)
	if err != nil {
		return nil, fmt.Errorf("override: get %s: %w", overrideID, err)
	}
	if req == nil {
		return nil, apperrors.NotFound("override %s not found", overrideID)
	}
	return req, nil
}

// List returns the cheque's requests, oldest first.
func (w *Workflow) List(ctx context.Context, chequeID string) ([]*domain.Request, error) {
	c, err := w.repo.GetCheque(ctx, chequeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperrors.NotFound("cheque %s not found", chequeID)
	}
	return w.repo.ListOverrides(ctx, chequeID)
}
