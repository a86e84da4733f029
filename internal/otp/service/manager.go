// Package service implements the OTP challenge manager: issuing a time-boxed code
// bound to a cheque and verifying it, with per-channel lockout, as the
// authorization for a physical handover.
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
	"cheque-custody/backend/internal/devotp"
	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/otp"
	"cheque-custody/backend/internal/otp/domain"
	"cheque-custody/backend/internal/otp/notify"
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

// Config tunes challenges. Zero values use the domain defaults.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	// DevMode returns the plaintext code to the caller and keeps it in the dev OTP store.
	DevMode bool
}

// GenerateResult is returned by Generate. Code is set only in dev mode.
type GenerateResult struct {
	ChallengeID string    `json:"otpId"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Code        string    `json:"otpCode,omitempty"`
}

// VerifyInput is what the reception operator submits at handover.
type VerifyInput struct {
	Code      string
	Recipient chequedomain.Recipient
	Proof     chequedomain.Proof
}

// VerifyResult is the issued cheque and its handover record.
type VerifyResult struct {
	Cheque   *chequedomain.Cheque         `json:"cheque"`
	Handover *chequedomain.HandoverRecord `json:"handoverRecord"`
}

// Manager issues and verifies OTP challenges.
type Manager struct {
	repo      repository.Repository
	handover  HandoverCompleter
	notifier  notify.Notifier
	devStore  devotp.Store
	publisher Publisher
	metrics   *telemetry.Metrics
	cfg       Config
	nowF      func() time.Time
}

// NewManager returns a Manager. devStore is used only when cfg.DevMode is set;
// publisher, metrics, and devStore may be nil. now defaults to time.Now.
func NewManager(
	repo repository.Repository,
	handover HandoverCompleter,
	notifier notify.Notifier,
	devStore devotp.Store,
	publisher Publisher,
	metrics *telemetry.Metrics,
	cfg Config,
	now func() time.Time,
) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = domain.DefaultMaxAttempts
	}
	if now == nil {
		now = time.Now
	}
	if !cfg.DevMode {
		devStore = nil
	}
	return &Manager{
		repo:      repo,
		handover:  handover,
		notifier:  notifier,
		devStore:  devStore,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		nowF:      now,
	}
}

func (m *Manager) now() time.Time {
	return m.nowF().UTC()
}

func (m *Manager) publish(rec *audit.Recorder) {
	if m.publisher != nil && rec != nil {
		m.publisher.Publish(rec)
	}
}

func (m *Manager) forgetCode(ctx context.Context, challengeID string) {
	if m.devStore != nil {
		m.devStore.Delete(ctx, challengeID)
	}
}

// Generate issues a new challenge for a cheque at reception, superseding any
// active one, and delivers the code after the challenge is committed.
func (m *Manager) Generate(ctx context.Context, chequeID, channel, contact, actorID string) (*GenerateResult, error) {
	ch, ok := domain.ParseChannel(channel)
	if !ok {
		return nil, apperrors.Validation("unsupported OTP channel %q", channel)
	}
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, apperrors.Validation("contact is required")
	}
	code, err := otp.GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("otp: generate code: %w", err)
	}
	now := m.now()
	challenge := &domain.Challenge{
		ID:                uuid.New().String(),
		ChequeID:          chequeID,
		Channel:           ch,
		Contact:           contact,
		CodeHash:          otp.HashCode(code),
		IssuedAt:          now,
		ExpiresAt:         now.Add(m.cfg.TTL),
		AttemptsRemaining: m.cfg.MaxAttempts,
	}

	var rec *audit.Recorder
	var superseded string
	err = m.repo.WithinCheque(ctx, chequeID, func(tx repository.Tx) error {
		c := tx.Cheque()
		if c.Status != chequedomain.StatusWithReception {
			return apperrors.InvalidState("cheque %s is %s; OTP requires %s", chequeID, c.Status, chequedomain.StatusWithReception)
		}
		active, err := tx.ActiveChallenge(ctx)
		if err != nil {
			return err
		}
		if active != nil && active.Locked {
			return apperrors.Locked("OTP channel is locked; request a handover override")
		}
		rec = audit.NewRecorder(tx, now)
		if active != nil {
			active.InvalidatedAt = &now
			if err := tx.UpdateChallenge(ctx, active); err != nil {
				return err
			}
			if err := rec.Record(ctx, chequeID, actorID, auditdomain.ActionOTPSuperseded, map[string]any{
				"challengeId":  active.ID,
				"supersededBy": challenge.ID,
			}); err != nil {
				return err
			}
			superseded = active.ID
		}
		if err := tx.InsertChallenge(ctx, challenge); err != nil {
			return err
		}
		return rec.Record(ctx, chequeID, actorID, auditdomain.ActionOTPGenerated, map[string]any{
			"challengeId": challenge.ID,
			"channel":     string(ch),
			"contact":     notify.MaskContact(contact),
			"expiresAt":   challenge.ExpiresAt,
		})
	})
	if err != nil {
		return nil, err
	}
	m.publish(rec)
	if superseded != "" {
		m.forgetCode(ctx, superseded)
	}
	if m.devStore != nil {
		m.devStore.Put(ctx, challenge.ID, code, challenge.ExpiresAt)
	}

	msg := notify.Message{
		ChequeID:    chequeID,
		ChallengeID: challenge.ID,
		Channel:     ch,
		Contact:     contact,
		Code:        code,
		ExpiresAt:   challenge.ExpiresAt,
	}
	if err := m.notifier.Send(ctx, msg); err != nil {
		log.Printf("otp: delivery failed cheque=%s challenge=%s channel=%s: %v", chequeID, challenge.ID, ch, err)
		m.abandon(ctx, challenge, actorID, err)
		return nil, fmt.Errorf("otp: deliver challenge %s: %w", challenge.ID, err)
	}
	m.metrics.OTPGenerated(ctx, string(ch))

	res := &GenerateResult{ChallengeID: challenge.ID, ExpiresAt: challenge.ExpiresAt}
	if m.cfg.DevMode {
		res.Code = code
	}
	return res, nil
}

// abandon invalidates a challenge whose code could not be delivered, unless it
// has already left the active slot.
func (m *Manager) abandon(ctx context.Context, challenge *domain.Challenge, actorID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	m.forgetCode(ctx, challenge.ID)
	now := m.now()
	var rec *audit.Recorder
	err := m.repo.WithinCheque(ctx, challenge.ChequeID, func(tx repository.Tx) error {
		active, err := tx.ActiveChallenge(ctx)
		if err != nil || active == nil || active.ID != challenge.ID {
			return err
		}
		active.InvalidatedAt = &now
		if err := tx.UpdateChallenge(ctx, active); err != nil {
			return err
		}
		rec = audit.NewRecorder(tx, now)
		return rec.Record(ctx, challenge.ChequeID, actorID, auditdomain.ActionOTPDeliveryFailed, map[string]any{
			"challengeId": challenge.ID,
			"channel":     string(challenge.Channel),
			"error":       cause.Error(),
		})
	})
	if err != nil {
		log.Printf("otp: invalidate undelivered challenge %s: %v", challenge.ID, err)
		return
	}
	m.publish(rec)
}

// Verify checks code against the cheque's active challenge and, on a match with
// complete recipient details, issues the cheque. The check and the attempt
// bookkeeping form one critical section per cheque. Failed attempts are
// committed before the failure is returned.
func (m *Manager) Verify(ctx context.Context, chequeID string, in VerifyInput, actorID string) (*VerifyResult, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, apperrors.Validation("otp is required")
	}
	now := m.now()
	var (
		rec      *audit.Recorder
		outcome  error
		result   *VerifyResult
		finished string
	)
	err := m.repo.WithinCheque(ctx, chequeID, func(tx repository.Tx) error {
		ch, err := tx.ActiveChallenge(ctx)
		if err != nil {
			return err
		}
		if ch == nil {
			return apperrors.NotFound("cheque %s has no active OTP challenge", chequeID)
		}
		if ch.Locked {
			return apperrors.Locked("OTP channel is locked; request a handover override")
		}
		rec = audit.NewRecorder(tx, now)

		if ch.Expired(now) {
			ch.InvalidatedAt = &now
			if err := tx.UpdateChallenge(ctx, ch); err != nil {
				return err
			}
			finished = ch.ID
			outcome = apperrors.New(apperrors.KindExpired, "OTP expired at %s; generate a new one", ch.ExpiresAt.Format(time.RFC3339))
			return rec.Record(ctx, chequeID, actorID, auditdomain.ActionOTPExpired, map[string]any{
				"challengeId": ch.ID,
				"expiresAt":   ch.ExpiresAt,
			})
		}

		if !otp.CodeEqual(strings.TrimSpace(in.Code), ch.CodeHash) {
			ch.AttemptsRemaining--
			if ch.AttemptsRemaining <= 0 {
				ch.AttemptsRemaining = 0
				ch.Locked = true
			}
			if err := tx.UpdateChallenge(ctx, ch); err != nil {
				return err
			}
			if ch.Locked {
				finished = ch.ID
				outcome = apperrors.Locked("OTP channel locked after too many failed attempts; request a handover override")
				return rec.Record(ctx, chequeID, actorID, auditdomain.ActionOTPLocked, map[string]any{
					"challengeId": ch.ID,
					"attempts":    m.cfg.MaxAttempts,
				})
			}
			outcome = apperrors.InvalidCode(ch.AttemptsRemaining)
			return rec.Record(ctx, chequeID, actorID, auditdomain.ActionOTPVerifyFailed, map[string]any{
				"challengeId":       ch.ID,
				"remainingAttempts": ch.AttemptsRemaining,
			})
		}

		ch.ConsumedAt = &now
		if err := tx.UpdateChallenge(ctx, ch); err != nil {
			return err
		}
		finished = ch.ID
		if err := rec.Record(ctx, chequeID, actorID, auditdomain.ActionOTPVerified, map[string]any{
			"challengeId": ch.ID,
		}); err != nil {
			return err
		}
		if missing := chequedomain.MissingFields(in.Recipient, in.Proof); len(missing) > 0 {
			outcome = apperrors.Validation("missing handover fields: %s", strings.Join(missing, ", "))
			return nil
		}
		record := &chequedomain.HandoverRecord{
			RecipientName:     strings.TrimSpace(in.Recipient.Name),
			IDType:            strings.TrimSpace(in.Recipient.IDType),
			IDNumber:          strings.TrimSpace(in.Recipient.IDNumber),
			RecipientPhotoRef: strings.TrimSpace(in.Proof.PhotoRef),
			SignatureRef:      strings.TrimSpace(in.Proof.SignatureRef),
			HandedBy:          actorID,
			HandedAt:          now,
		}
		c, err := m.handover.CompleteHandover(ctx, tx, rec, record)
		if err != nil {
			return err
		}
		result = &VerifyResult{Cheque: c, Handover: record}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(rec)
	if finished != "" {
		m.forgetCode(ctx, finished)
	}
	if outcome != nil {
		switch {
		case apperrors.IsKind(outcome, apperrors.KindLocked):
			m.metrics.OTPVerifyFailed(ctx)
			m.metrics.OTPLocked(ctx)
		case apperrors.IsKind(outcome, apperrors.KindInvalidCode):
			m.metrics.OTPVerifyFailed(ctx)
		}
		return nil, outcome
	}
	m.metrics.HandoverCompleted(ctx, "otp")
	return result, nil
}
