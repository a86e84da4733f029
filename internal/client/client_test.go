package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"cheque-custody/backend/internal/artifact"
	artifacthandler "cheque-custody/backend/internal/artifact/handler"
	chequedomain "cheque-custody/backend/internal/cheque/domain"
	chequehandler "cheque-custody/backend/internal/cheque/handler"
	chequeservice "cheque-custody/backend/internal/cheque/service"
	"cheque-custody/backend/internal/custody/repository"
	"cheque-custody/backend/internal/devotp"
	devotphandler "cheque-custody/backend/internal/devotp/handler"
	apperrors "cheque-custody/backend/internal/errors"
	operatorhandler "cheque-custody/backend/internal/operator/handler"
	operatorrepo "cheque-custody/backend/internal/operator/repository"
	operatorservice "cheque-custody/backend/internal/operator/service"
	otphandler "cheque-custody/backend/internal/otp/handler"
	"cheque-custody/backend/internal/otp/notify"
	otpservice "cheque-custody/backend/internal/otp/service"
	overridedomain "cheque-custody/backend/internal/override/domain"
	overridehandler "cheque-custody/backend/internal/override/handler"
	"cheque-custody/backend/internal/override/policy"
	overrideservice "cheque-custody/backend/internal/override/service"
	"cheque-custody/backend/internal/security"
	"cheque-custody/backend/internal/server"
	"cheque-custody/backend/internal/throttle"
)

const password = "correct-horse"

// stack is a full in-memory custody service behind an httptest server.
type stack struct {
	url      string
	throttle *throttle.Throttle
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	operators := operatorservice.NewAuthService(operatorrepo.NewMemoryRepository(), security.NewHasher(bcrypt.MinCost), tokens)
	for _, role := range []string{"initiator", "dispatch", "reception", "approver"} {
		if _, err := operators.Create(ctx, operatorservice.CreateInput{Name: role, Email: role + "@bank.test", Role: role, Password: password}); err != nil {
			t.Fatalf("create %s: %v", role, err)
		}
	}

	repo := repository.NewMemoryRepository(time.Second)
	lifecycle := chequeservice.NewLifecycle(repo, nil, nil)
	codes := devotp.NewMemoryStore()
	manager := otpservice.NewManager(repo, lifecycle, notify.LogNotifier{}, codes, nil, nil, otpservice.Config{DevMode: true}, nil)
	eval, err := policy.NewOPAEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	workflow := overrideservice.NewWorkflow(repo, lifecycle, eval, nil, nil, nil)
	store, err := artifact.NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	serverThrottle := throttle.New(throttle.Config{MaxConcurrent: 4, MinInterval: -1}, nil)
	t.Cleanup(func() { serverThrottle.Close() })
	router := server.NewRouter(server.Deps{
		Tokens:   tokens,
		Throttle: serverThrottle,
		Public: []func(*http.Request) bool{
			func(r *http.Request) bool { return r.URL.Path == operatorhandler.LoginPath },
			devotphandler.IsPublic,
		},
		Handlers: []server.RouteRegistrar{
			operatorhandler.NewHandler(operators),
			chequehandler.NewHandler(lifecycle),
			otphandler.NewHandler(manager, store),
			overridehandler.NewHandler(workflow, store),
			artifacthandler.NewHandler(store),
			devotphandler.NewHandler(codes),
		},
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	clientThrottle := throttle.New(throttle.Config{MaxConcurrent: 2, MinInterval: -1}, nil)
	t.Cleanup(func() { clientThrottle.Close() })
	return &stack{url: srv.URL, throttle: clientThrottle}
}

func (s *stack) login(t *testing.T, role string) *Client {
	t.Helper()
	c, err := New(s.url, s.throttle, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Login(context.Background(), role+"@bank.test", password)
	if err != nil {
		t.Fatalf("Login %s: %v", role, err)
	}
	if res.Operator.Role != role {
		t.Fatalf("role = %q, want %q", res.Operator.Role, role)
	}
	return c
}

// atReception creates a cheque and walks it to reception.
func (s *stack) atReception(t *testing.T, no string) string {
	t.Helper()
	ctx := context.Background()
	ini, disp := s.login(t, "initiator"), s.login(t, "dispatch")
	c, err := ini.CreateCheque(ctx, CreateChequeInput{
		ChequeNo:  no,
		Amount:    decimal.RequireFromString("12500.00"),
		Bank:      "ICICI",
		PayerName: "Acme",
		PayeeName: "Initech",
		DueDate:   "2026-11-01",
	})
	if err != nil {
		t.Fatalf("CreateCheque: %v", err)
	}
	if _, err := ini.MarkReady(ctx, c.ID); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	if _, err := disp.ForwardToReception(ctx, c.ID, "tray 2"); err != nil {
		t.Fatalf("ForwardToReception: %v", err)
	}
	return c.ID
}

func (s *stack) proof(t *testing.T, rcp *Client) Recipient {
	t.Helper()
	ctx := context.Background()
	photo, err := rcp.Upload(ctx, artifact.KindPhoto, "face.jpg", strings.NewReader("jpeg"))
	if err != nil {
		t.Fatalf("Upload photo: %v", err)
	}
	sig, err := rcp.Upload(ctx, artifact.KindSignature, "sig.png", strings.NewReader("png"))
	if err != nil {
		t.Fatalf("Upload signature: %v", err)
	}
	return Recipient{Name: "Meera Shah", IDType: "AADHAAR", IDNumber: "1234-5678-9012", PhotoPath: photo, SignaturePath: sig}
}

func TestHandoverWithOTP(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	id := s.atReception(t, "100001")
	rcp := s.login(t, "reception")

	ch, err := rcp.GenerateOTP(ctx, id, "sms", "+919811111111")
	if err != nil {
		t.Fatalf("GenerateOTP: %v", err)
	}
	if ch.Code == "" {
		t.Fatal("dev mode should return the code")
	}
	dev, err := New(s.url, s.throttle, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	code, err := dev.DevOTP(ctx, ch.ID)
	if err != nil || code != ch.Code {
		t.Fatalf("DevOTP = (%q, %v), want %q", code, err, ch.Code)
	}

	h, err := rcp.VerifyOTP(ctx, id, ch.Code, s.proof(t, rcp))
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if h.Cheque.Status != chequedomain.StatusIssued || h.Record.IsOverride || h.Record.RecipientName != "Meera Shah" {
		t.Errorf("handover = %+v / %+v", h.Cheque, h.Record)
	}
	custody, err := rcp.CustodyTrail(ctx, id)
	if err != nil {
		t.Fatalf("CustodyTrail: %v", err)
	}
	if len(custody) != 4 {
		t.Errorf("custody entries = %d, want 4", len(custody))
	}
}

func TestLockoutAndOverride(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	id := s.atReception(t, "100002")
	rcp, appr := s.login(t, "reception"), s.login(t, "approver")
	rcpt := s.proof(t, rcp)

	ch, err := rcp.GenerateOTP(ctx, id, "sms", "+919822222222")
	if err != nil {
		t.Fatalf("GenerateOTP: %v", err)
	}
	wrong := "000000"
	if ch.Code == wrong {
		wrong = "999999"
	}
	for want := 2; want >= 1; want-- {
		_, err := rcp.VerifyOTP(ctx, id, wrong, rcpt)
		var e *apperrors.Error
		if !errors.As(err, &e) || e.Kind != apperrors.KindInvalidCode {
			t.Fatalf("err = %v, want InvalidCode", err)
		}
		if e.RemainingAttempts == nil || *e.RemainingAttempts != want {
			t.Fatalf("remaining = %v, want %d", e.RemainingAttempts, want)
		}
	}
	_, err = rcp.VerifyOTP(ctx, id, wrong, rcpt)
	if !errors.Is(err, apperrors.ErrLocked) {
		t.Fatalf("third attempt err = %v, want Locked", err)
	}
	if _, err := rcp.VerifyOTP(ctx, id, ch.Code, rcpt); !errors.Is(err, apperrors.ErrLocked) {
		t.Fatalf("correct code after lock err = %v, want Locked", err)
	}

	req, err := rcp.RequestOverride(ctx, id, "recipient's phone is dead")
	if err != nil {
		t.Fatalf("RequestOverride: %v", err)
	}
	if _, err := rcp.ApproveOverride(ctx, req.ID); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("reception approving err = %v, want Unauthorized", err)
	}
	approved, err := appr.ApproveOverride(ctx, req.ID)
	if err != nil {
		t.Fatalf("ApproveOverride: %v", err)
	}
	if approved.Status != overridedomain.StatusApproved {
		t.Errorf("status = %q, want APPROVED", approved.Status)
	}

	h, err := rcp.CompleteOverride(ctx, id, rcpt)
	if err != nil {
		t.Fatalf("CompleteOverride: %v", err)
	}
	if !h.Record.IsOverride || h.Record.OverrideRequestID != req.ID || h.Record.OverrideApprovedBy == "" {
		t.Errorf("record = %+v", h.Record)
	}
	if _, err := rcp.CompleteOverride(ctx, id, rcpt); err == nil {
		t.Error("second CompleteOverride should fail")
	}
}

func TestUnauthenticated(t *testing.T) {
	s := newStack(t)
	c, err := New(s.url, s.throttle, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.GetCheque(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("err = %v, want 401 APIError", err)
	}
	if _, err := c.Login(context.Background(), "reception@bank.test", "nope-nope"); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Errorf("bad login err = %v, want Unauthorized", err)
	}
}

func TestClientThrottleBoundsInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		inFlight.Add(-1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c","status":"SIGNED"}`))
	}))
	defer srv.Close()

	th := throttle.New(throttle.Config{MaxConcurrent: 2, MinInterval: -1}, nil)
	defer th.Close()
	c, err := New(srv.URL, th, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetCheque(context.Background(), "c"); err != nil {
				t.Errorf("GetCheque: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := peak.Load(); got > 2 {
		t.Errorf("peak in-flight = %d, want <= 2", got)
	}
}

func TestNew_Validates(t *testing.T) {
	th := throttle.New(throttle.Config{}, nil)
	defer th.Close()
	if _, err := New("", th, nil); err == nil {
		t.Error("empty base URL should fail")
	}
	if _, err := New("http://localhost:8080", nil, nil); err == nil {
		t.Error("nil throttle should fail")
	}
}
