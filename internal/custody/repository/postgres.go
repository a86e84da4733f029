package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	auditdomain "cheque-custody/backend/internal/audit/domain"
	chequedomain "cheque-custody/backend/internal/cheque/domain"
	apperrors "cheque-custody/backend/internal/errors"
	otpdomain "cheque-custody/backend/internal/otp/domain"
	overridedomain "cheque-custody/backend/internal/override/domain"
)

// Postgres error codes the repository translates.
const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	chequeNoUniqueIndex = "cheques_cheque_no_key"
)

const chequeColumns = `id, cheque_no, amount, currency, bank, branch, payer_name, payee_name, due_date, status, initiator_id, created_at, updated_at`

const challengeColumns = `id, cheque_id, channel, contact, code_hash, issued_at, expires_at, attempts_remaining, locked, consumed_at, invalidated_at`

const overrideColumns = `id, cheque_id, requested_by, reason, status, approved_by, approved_at, rejected_by, rejected_reason, rejected_at, consumed_at, created_at`

// PostgresRepository stores custody data in Postgres. WithinCheque holds the
// cheque row lock (SELECT ... FOR UPDATE) for the whole unit of work.
type PostgresRepository struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgresRepository returns a repository backed by db. lockTimeout <= 0 uses DefaultLockTimeout.
func NewPostgresRepository(db *sql.DB, lockTimeout time.Duration) *PostgresRepository {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &PostgresRepository{db: db, lockTimeout: lockTimeout}
}

// translate maps lock contention to Busy and leaves other errors wrapped for the caller.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return apperrors.ErrBusy
		case pgUniqueViolation:
			return apperrors.Conflict("%s: %s", op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *PostgresRepository) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate("begin", err)
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		_ = tx.Rollback()
		return nil, translate("set lock_timeout", err)
	}
	return tx, nil
}

func finish(tx *sql.Tx, fnErr error) error {
	if fnErr != nil {
		_ = tx.Rollback()
		return fnErr
	}
	if err := tx.Commit(); err != nil {
		return translate("commit", err)
	}
	return nil
}

// CreateCheque implements Repository.
func (r *PostgresRepository) CreateCheque(ctx context.Context, c *chequedomain.Cheque, fn func(tx Tx) error) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO cheques (`+chequeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.ChequeNo, c.Amount, c.Currency, c.Bank, c.Branch, c.PayerName, c.PayeeName,
		c.DueDate, string(c.Status), c.InitiatorID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == chequeNoUniqueIndex {
			return apperrors.Conflict("cheque number %s already exists", c.ChequeNo)
		}
		return translate("insert cheque", err)
	}
	cp := *c
	ptx := &postgresTx{tx: tx, cheque: &cp}
	if fn == nil {
		return finish(tx, nil)
	}
	return finish(tx, fn(ptx))
}

// WithinCheque implements Repository.
func (r *PostgresRepository) WithinCheque(ctx context.Context, chequeID string, fn func(tx Tx) error) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	c, err := scanCheque(tx.QueryRowContext(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE id = $1 FOR UPDATE`, chequeID))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("cheque %s not found", chequeID)
		}
		return translate("lock cheque", err)
	}
	return finish(tx, fn(&postgresTx{tx: tx, cheque: c}))
}

// GetCheque implements Repository.
func (r *PostgresRepository) GetCheque(ctx context.Context, id string) (*chequedomain.Cheque, error) {
	c, err := scanCheque(r.db.QueryRowContext(ctx, `SELECT `+chequeColumns+` FROM cheques WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("get cheque", err)
	}
	return c, nil
}

// GetHandover implements Repository.
func (r *PostgresRepository) GetHandover(ctx context.Context, chequeID string) (*chequedomain.HandoverRecord, error) {
	var h chequedomain.HandoverRecord
	var reqID, approvedBy, reason sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id, cheque_id, recipient_name, id_type, id_number, recipient_photo_ref,
			signature_ref, handed_by, handed_at, is_override, override_request_id, override_approved_by, override_reason
		FROM handover_records WHERE cheque_id = $1`, chequeID).Scan(
		&h.ID, &h.ChequeID, &h.RecipientName, &h.IDType, &h.IDNumber, &h.RecipientPhotoRef,
		&h.SignatureRef, &h.HandedBy, &h.HandedAt, &h.IsOverride, &reqID, &approvedBy, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("get handover", err)
	}
	h.OverrideRequestID = reqID.String
	h.OverrideApprovedBy = approvedBy.String
	h.OverrideReason = reason.String
	return &h, nil
}

// GetOverride implements Repository.
func (r *PostgresRepository) GetOverride(ctx context.Context, id string) (*overridedomain.Request, error) {
	o, err := scanOverride(r.db.QueryRowContext(ctx, `SELECT `+overrideColumns+` FROM override_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("get override", err)
	}
	return o, nil
}

// ListOverrides implements Repository.
func (r *PostgresRepository) ListOverrides(ctx context.Context, chequeID string) ([]*overridedomain.Request, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+overrideColumns+` FROM override_requests
		WHERE cheque_id = $1 ORDER BY created_at, id`, chequeID)
	if err != nil {
		return nil, translate("list overrides", err)
	}
	defer rows.Close()
	var out []*overridedomain.Request
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, translate("scan override", err)
		}
		out = append(out, o)
	}
	return out, translate("list overrides", rows.Err())
}

// Log entries written in one unit of work share created_at, so trails are
// ordered by the insert sequence.
const (
	listAuditQuery = `SELECT id, cheque_id, actor_id, action, details, created_at
		FROM audit_log WHERE cheque_id = $1 ORDER BY seq`
	listCustodyQuery = `SELECT id, cheque_id, from_role, to_role, actor_id, notes, created_at
		FROM custody_log WHERE cheque_id = $1 ORDER BY seq`
)

// ListAudit implements Repository.
func (r *PostgresRepository) ListAudit(ctx context.Context, chequeID string) ([]*auditdomain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, listAuditQuery, chequeID)
	if err != nil {
		return nil, translate("list audit", err)
	}
	defer rows.Close()
	var out []*auditdomain.Entry
	for rows.Next() {
		var e auditdomain.Entry
		var details []byte
		if err := rows.Scan(&e.ID, &e.ChequeID, &e.ActorID, &e.Action, &details, &e.CreatedAt); err != nil {
			return nil, translate("scan audit", err)
		}
		e.Details = details
		out = append(out, &e)
	}
	return out, translate("list audit", rows.Err())
}

// ListCustody implements Repository.
func (r *PostgresRepository) ListCustody(ctx context.Context, chequeID string) ([]*auditdomain.CustodyEntry, error) {
	rows, err := r.db.QueryContext(ctx, listCustodyQuery, chequeID)
	if err != nil {
		return nil, translate("list custody", err)
	}
	defer rows.Close()
	var out []*auditdomain.CustodyEntry
	for rows.Next() {
		var e auditdomain.CustodyEntry
		if err := rows.Scan(&e.ID, &e.ChequeID, &e.FromRole, &e.ToRole, &e.ActorID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, translate("scan custody", err)
		}
		out = append(out, &e)
	}
	return out, translate("list custody", rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheque(row rowScanner) (*chequedomain.Cheque, error) {
	var c chequedomain.Cheque
	var status string
	err := row.Scan(&c.ID, &c.ChequeNo, &c.Amount, &c.Currency, &c.Bank, &c.Branch, &c.PayerName,
		&c.PayeeName, &c.DueDate, &status, &c.InitiatorID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = chequedomain.Status(status)
	return &c, nil
}

func scanChallenge(row rowScanner) (*otpdomain.Challenge, error) {
	var c otpdomain.Challenge
	var channel string
	var consumed, invalidated sql.NullTime
	err := row.Scan(&c.ID, &c.ChequeID, &channel, &c.Contact, &c.CodeHash, &c.IssuedAt, &c.ExpiresAt,
		&c.AttemptsRemaining, &c.Locked, &consumed, &invalidated)
	if err != nil {
		return nil, err
	}
	c.Channel = otpdomain.Channel(channel)
	c.ConsumedAt = nullTimeToPtr(consumed)
	c.InvalidatedAt = nullTimeToPtr(invalidated)
	return &c, nil
}

func scanOverride(row rowScanner) (*overridedomain.Request, error) {
	var o overridedomain.Request
	var status string
	var approvedBy, rejectedBy, rejectedReason sql.NullString
	var approvedAt, rejectedAt, consumedAt sql.NullTime
	err := row.Scan(&o.ID, &o.ChequeID, &o.RequestedBy, &o.Reason, &status, &approvedBy, &approvedAt,
		&rejectedBy, &rejectedReason, &rejectedAt, &consumedAt, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = overridedomain.Status(status)
	o.ApprovedBy = approvedBy.String
	o.ApprovedAt = nullTimeToPtr(approvedAt)
	o.RejectedBy = rejectedBy.String
	o.RejectedReason = rejectedReason.String
	o.RejectedAt = nullTimeToPtr(rejectedAt)
	o.ConsumedAt = nullTimeToPtr(consumedAt)
	return &o, nil
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func ptrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// postgresTx runs statements on a transaction that holds the cheque row lock.
type postgresTx struct {
	tx     *sql.Tx
	cheque *chequedomain.Cheque
}

func (t *postgresTx) Cheque() *chequedomain.Cheque {
	c := *t.cheque
	return &c
}

func (t *postgresTx) UpdateChequeStatus(ctx context.Context, status chequedomain.Status, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE cheques SET status = $2, updated_at = $3 WHERE id = $1`,
		t.cheque.ID, string(status), at)
	if err != nil {
		return translate("update cheque status", err)
	}
	t.cheque.Status = status
	t.cheque.UpdatedAt = at
	return nil
}

func (t *postgresTx) ActiveChallenge(ctx context.Context) (*otpdomain.Challenge, error) {
	c, err := scanChallenge(t.tx.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM otp_challenges
		WHERE cheque_id = $1 AND consumed_at IS NULL AND invalidated_at IS NULL`, t.cheque.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("active challenge", err)
	}
	return c, nil
}

func (t *postgresTx) InsertChallenge(ctx context.Context, c *otpdomain.Challenge) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO otp_challenges (`+challengeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.ChequeID, string(c.Channel), c.Contact, c.CodeHash, c.IssuedAt, c.ExpiresAt,
		c.AttemptsRemaining, c.Locked, ptrToNullTime(c.ConsumedAt), ptrToNullTime(c.InvalidatedAt))
	return translate("insert challenge", err)
}

func (t *postgresTx) UpdateChallenge(ctx context.Context, c *otpdomain.Challenge) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE otp_challenges
		SET attempts_remaining = $2, locked = $3, consumed_at = $4, invalidated_at = $5
		WHERE id = $1`,
		c.ID, c.AttemptsRemaining, c.Locked, ptrToNullTime(c.ConsumedAt), ptrToNullTime(c.InvalidatedAt))
	if err != nil {
		return translate("update challenge", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("challenge %s not found", c.ID)
	}
	return nil
}

func (t *postgresTx) InsertHandover(ctx context.Context, h *chequedomain.HandoverRecord) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO handover_records (id, cheque_id, recipient_name, id_type, id_number,
			recipient_photo_ref, signature_ref, handed_by, handed_at, is_override, override_request_id,
			override_approved_by, override_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		h.ID, h.ChequeID, h.RecipientName, h.IDType, h.IDNumber, h.RecipientPhotoRef, h.SignatureRef,
		h.HandedBy, h.HandedAt, h.IsOverride, nullString(h.OverrideRequestID), nullString(h.OverrideApprovedBy),
		nullString(h.OverrideReason))
	return translate("insert handover", err)
}

func (t *postgresTx) queryOverride(ctx context.Context, where string, args ...any) (*overridedomain.Request, error) {
	o, err := scanOverride(t.tx.QueryRowContext(ctx, `SELECT `+overrideColumns+` FROM override_requests WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("get override", err)
	}
	return o, nil
}

func (t *postgresTx) GetOverride(ctx context.Context, id string) (*overridedomain.Request, error) {
	return t.queryOverride(ctx, `id = $1 AND cheque_id = $2`, id, t.cheque.ID)
}

func (t *postgresTx) PendingOverride(ctx context.Context) (*overridedomain.Request, error) {
	return t.queryOverride(ctx, `cheque_id = $1 AND status = 'PENDING'`, t.cheque.ID)
}

func (t *postgresTx) UsableOverride(ctx context.Context) (*overridedomain.Request, error) {
	return t.queryOverride(ctx, `cheque_id = $1 AND status = 'APPROVED' AND consumed_at IS NULL
		ORDER BY created_at, id LIMIT 1`, t.cheque.ID)
}

func (t *postgresTx) InsertOverride(ctx context.Context, r *overridedomain.Request) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO override_requests (`+overrideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID, r.ChequeID, r.RequestedBy, r.Reason, string(r.Status), nullString(r.ApprovedBy),
		ptrToNullTime(r.ApprovedAt), nullString(r.RejectedBy), nullString(r.RejectedReason),
		ptrToNullTime(r.RejectedAt), ptrToNullTime(r.ConsumedAt), r.CreatedAt)
	return translate("insert override", err)
}

func (t *postgresTx) UpdateOverride(ctx context.Context, r *overridedomain.Request) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE override_requests
		SET status = $2, approved_by = $3, approved_at = $4, rejected_by = $5, rejected_reason = $6,
			rejected_at = $7, consumed_at = $8
		WHERE id = $1`,
		r.ID, string(r.Status), nullString(r.ApprovedBy), ptrToNullTime(r.ApprovedAt), nullString(r.RejectedBy),
		nullString(r.RejectedReason), ptrToNullTime(r.RejectedAt), ptrToNullTime(r.ConsumedAt))
	if err != nil {
		return translate("update override", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("override request %s not found", r.ID)
	}
	return nil
}

func (t *postgresTx) AppendAudit(ctx context.Context, e *auditdomain.Entry) error {
	details := string(e.Details)
	if details == "" {
		details = "{}"
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO audit_log (id, cheque_id, actor_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)`, e.ID, e.ChequeID, e.ActorID, e.Action, details, e.CreatedAt)
	return translate("append audit", err)
}

func (t *postgresTx) AppendCustody(ctx context.Context, e *auditdomain.CustodyEntry) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO custody_log (id, cheque_id, from_role, to_role, actor_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, e.ID, e.ChequeID, e.FromRole, e.ToRole, e.ActorID, e.Notes, e.CreatedAt)
	return translate("append custody", err)
}
