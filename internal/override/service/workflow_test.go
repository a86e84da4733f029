package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	auditdomain "cheque-custody/backend/internal/audit/domain"
	chequedomain "cheque-custody/backend/internal/cheque/domain"
	chequeservice "cheque-custody/backend/internal/cheque/service"
	"cheque-custody/backend/internal/custody/repository"
	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/otp/notify"
	otpservice "cheque-custody/backend/internal/otp/service"
	"cheque-custody/backend/internal/override/domain"
	"cheque-custody/backend/internal/override/policy"
)

type lastCode struct {
	mu   sync.Mutex
	code string
}

func (n *lastCode) Send(ctx context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code = msg.Code
	return nil
}

func (n *lastCode) get() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.code
}

// staticPolicy returns a fixed decision or error.
type staticPolicy struct {
	decision policy.Decision
	err      error
}

func (p staticPolicy) Authorize(ctx context.Context, in policy.Input) (policy.Decision, error) {
	return p.decision, p.err
}

type harness struct {
	repo      *repository.MemoryRepository
	lifecycle *chequeservice.Lifecycle
	otp       *otpservice.Manager
	notifier  *lastCode
	workflow  *Workflow
}

var (
	requester = "op-reception"
	approver  = Actor{ID: "op-approver", Role: "approver"}
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	repo := repository.NewMemoryRepository(time.Second)
	lc := chequeservice.NewLifecycle(repo, nil, now)
	n := &lastCode{}
	eval, err := policy.NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return &harness{
		repo:      repo,
		lifecycle: lc,
		otp:       otpservice.NewManager(repo, lc, n, nil, nil, nil, otpservice.Config{}, now),
		notifier:  n,
		workflow:  NewWorkflow(repo, lc, eval, nil, nil, now),
	}
}

func (h *harness) atReception(t *testing.T, no string) string {
	t.Helper()
	ctx := context.Background()
	c, err := h.lifecycle.Create(ctx, chequeservice.CreateInput{
		ChequeNo: no, Amount: decimal.RequireFromString("500.00"), Bank: "HDFC",
		PayerName: "Acme", PayeeName: "Initech", DueDate: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), InitiatorID: "op-init",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.lifecycle.MarkReady(ctx, c.ID, "op-init"); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if _, err := h.lifecycle.ForwardToReception(ctx, c.ID, "op-disp", ""); err != nil {
		t.Fatalf("ForwardToReception: %v", err)
	}
	return c.ID
}

// locked walks a cheque to reception and exhausts its OTP attempts.
func (h *harness) locked(t *testing.T, no string) string {
	t.Helper()
	ctx := context.Background()
	id := h.atReception(t, no)
	if _, err := h.otp.Generate(ctx, id, "sms", "+919800000000", requester); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	bad := "000000"
	if h.notifier.get() == bad {
		bad = "111111"
	}
	var err error
	for i := 0; i < 3; i++ {
		_, err = h.otp.Verify(ctx, id, otpservice.VerifyInput{Code: bad}, requester)
	}
	if !errors.Is(err, apperrors.ErrLocked) {
		t.Fatalf("third wrong code: err = %v, want Locked", err)
	}
	return id
}

func handoverInput() HandoverInput {
	return HandoverInput{
		Recipient: chequedomain.Recipient{Name: "Asha Rao", IDType: "AADHAAR", IDNumber: "1234-5678-9012"},
		Proof:     chequedomain.Proof{PhotoRef: "photo/a.jpg", SignatureRef: "signature/a.png"},
	}
}

func TestScenarioB_LockOverrideIssue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B1")

	if _, err := h.otp.Generate(ctx, id, "sms", "+919800000000", requester); !errors.Is(err, apperrors.ErrLocked) {
		t.Fatalf("Generate after lock: err = %v, want Locked", err)
	}
	req, err := h.workflow.Request(ctx, id, requester, "recipient phone lost")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.Status != domain.StatusPending {
		t.Errorf("status = %q, want %q", req.Status, domain.StatusPending)
	}
	approved, err := h.workflow.Approve(ctx, req.ID, approver)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != domain.StatusApproved || approved.ApprovedBy != approver.ID || approved.ApprovedAt == nil {
		t.Errorf("approved = %+v", approved)
	}
	res, err := h.workflow.CompleteHandoverViaOverride(ctx, id, handoverInput(), requester)
	if err != nil {
		t.Fatalf("CompleteHandoverViaOverride: %v", err)
	}
	if res.Cheque.Status != chequedomain.StatusIssued {
		t.Errorf("cheque status = %q, want %q", res.Cheque.Status, chequedomain.StatusIssued)
	}
	hr := res.Handover
	if !hr.IsOverride || hr.OverrideRequestID != req.ID || hr.OverrideApprovedBy != approver.ID || hr.OverrideReason != "recipient phone lost" {
		t.Errorf("handover record = %+v", hr)
	}
	got, err := h.workflow.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ConsumedAt == nil {
		t.Error("override should be consumed")
	}
	if _, err := h.workflow.CompleteHandoverViaOverride(ctx, id, handoverInput(), requester); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second use: err = %v, want NotFound", err)
	}

	entries, _ := h.repo.ListAudit(ctx, id)
	want := []string{auditdomain.ActionOverrideRequested, auditdomain.ActionOverrideApproved, auditdomain.ActionOverrideConsumed, auditdomain.ActionChequeIssued}
	var tail []string
	for _, e := range entries[len(entries)-len(want):] {
		tail = append(tail, e.Action)
	}
	for i := range want {
		if tail[i] != want[i] {
			t.Errorf("audit[%d] = %q, want %q", i, tail[i], want[i])
		}
	}
}

func TestApprove_SelfApprovalUnauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B2")
	req, err := h.workflow.Request(ctx, id, "op-lead", "no phone")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	_, err = h.workflow.Approve(ctx, req.ID, Actor{ID: "op-lead", Role: "approver"})
	if !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("err = %v, want Unauthorized", err)
	}
	got, _ := h.workflow.Get(ctx, req.ID)
	if got.Status != domain.StatusPending {
		t.Errorf("status = %q, want %q", got.Status, domain.StatusPending)
	}
}

func TestApprove_RoleRequired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B3")
	req, _ := h.workflow.Request(ctx, id, requester, "no phone")
	if _, err := h.workflow.Approve(ctx, req.ID, Actor{ID: "op-x", Role: "reception"}); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Errorf("err = %v, want Unauthorized", err)
	}
}

func TestApprove_PolicyErrorDenies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B4")
	req, _ := h.workflow.Request(ctx, id, requester, "no phone")
	h.workflow.policy = staticPolicy{decision: policy.Decision{Allow: true}, err: errors.New("boom")}
	if _, err := h.workflow.Approve(ctx, req.ID, approver); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Errorf("err = %v, want Unauthorized", err)
	}
}

func TestApprove_NotPendingAndUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B5")
	req, _ := h.workflow.Request(ctx, id, requester, "no phone")
	if _, err := h.workflow.Approve(ctx, req.ID, approver); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := h.workflow.Approve(ctx, req.ID, approver); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("second approve: err = %v, want InvalidState", err)
	}
	if _, err := h.workflow.Approve(ctx, "missing", approver); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown: err = %v, want NotFound", err)
	}
}

func TestRequest_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.atReception(t, "CHQ-B6")
	if _, err := h.workflow.Request(ctx, id, requester, "  "); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("empty reason: err = %v, want Validation", err)
	}
	if _, err := h.workflow.Request(ctx, id, requester, "no phone"); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("no challenge: err = %v, want InvalidState", err)
	}
	if _, err := h.otp.Generate(ctx, id, "sms", "+919800000000", requester); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := h.workflow.Request(ctx, id, requester, "no phone"); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("unlocked challenge: err = %v, want InvalidState", err)
	}

	locked := h.locked(t, "CHQ-B7")
	if _, err := h.workflow.Request(ctx, locked, requester, "no phone"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := h.workflow.Request(ctx, locked, requester, "again"); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("second pending: err = %v, want Conflict", err)
	}
	if _, err := h.workflow.Request(ctx, "missing", requester, "no phone"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown cheque: err = %v, want NotFound", err)
	}
}

func TestRequest_ConflictWhileApprovedUnused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B12")
	req, err := h.workflow.Request(ctx, id, requester, "no phone")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := h.workflow.Approve(ctx, req.ID, approver); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := h.workflow.Request(ctx, id, requester, "another one"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("request with approved override outstanding: err = %v, want Conflict", err)
	}
	list, _ := h.workflow.List(ctx, id)
	if len(list) != 1 {
		t.Errorf("List = %d requests, want 1", len(list))
	}
	if _, err := h.workflow.CompleteHandoverViaOverride(ctx, id, handoverInput(), requester); err != nil {
		t.Fatalf("CompleteHandoverViaOverride: %v", err)
	}
}

func TestReject_ThenResubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B8")
	req, _ := h.workflow.Request(ctx, id, requester, "no phone")

	if _, err := h.workflow.Reject(ctx, req.ID, approver, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("empty reason: err = %v, want Validation", err)
	}
	rejected, err := h.workflow.Reject(ctx, req.ID, approver, "identity unclear")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != domain.StatusRejected || rejected.RejectedReason != "identity unclear" || rejected.RejectedBy != approver.ID {
		t.Errorf("rejected = %+v", rejected)
	}
	if _, err := h.workflow.CompleteHandoverViaOverride(ctx, id, handoverInput(), requester); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("complete after reject: err = %v, want NotFound", err)
	}
	if _, err := h.otp.Generate(ctx, id, "sms", "+919800000000", requester); !errors.Is(err, apperrors.ErrLocked) {
		t.Errorf("channel should stay locked, err = %v", err)
	}
	again, err := h.workflow.Request(ctx, id, requester, "second attempt with manager present")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	list, err := h.workflow.List(ctx, id)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != req.ID || list[1].ID != again.ID {
		t.Errorf("List = %d requests, want [rejected, pending]", len(list))
	}
}

func TestCompleteHandoverViaOverride_MissingFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B9")
	req, _ := h.workflow.Request(ctx, id, requester, "no phone")
	if _, err := h.workflow.Approve(ctx, req.ID, Actor{ID: "op-admin", Role: "admin"}); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	in := handoverInput()
	in.Proof.SignatureRef = ""
	if _, err := h.workflow.CompleteHandoverViaOverride(ctx, id, in, requester); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("err = %v, want Validation", err)
	}
	got, _ := h.workflow.Get(ctx, req.ID)
	if got.ConsumedAt != nil {
		t.Error("a failed handover must not consume the override")
	}
	c, _ := h.lifecycle.Get(ctx, id)
	if c.Status != chequedomain.StatusWithReception {
		t.Errorf("status = %q, want %q", c.Status, chequedomain.StatusWithReception)
	}
}

func TestCompleteHandoverViaOverride_CancelledCheque(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.locked(t, "CHQ-B10")
	req, _ := h.workflow.Request(ctx, id, requester, "no phone")
	if _, err := h.workflow.Approve(ctx, req.ID, approver); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := h.lifecycle.Cancel(ctx, id, "op-admin", "recipient withdrew"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := h.workflow.CompleteHandoverViaOverride(ctx, id, handoverInput(), requester); !errors.Is(err, apperrors.ErrInvalidState) {
		t.Errorf("err = %v, want InvalidState", err)
	}
}
