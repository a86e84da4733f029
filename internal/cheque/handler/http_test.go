package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	auditdomain "cheque-custody/backend/internal/audit/domain"
	"cheque-custody/backend/internal/cheque/domain"
	"cheque-custody/backend/internal/cheque/service"
	"cheque-custody/backend/internal/custody/repository"
	"cheque-custody/backend/internal/server/middleware"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRouter(t *testing.T) *mux.Router {
	t.Helper()
	repo := repository.NewMemoryRepository(0)
	h := NewHandler(service.NewLifecycle(repo, nil, func() time.Time { return fixedNow }))
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body, actor, role string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if actor != "" {
		req = req.WithContext(middleware.WithActor(req.Context(), actor, role))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

const createBody = `{"chequeNo":"000123","amount":"1500.00","bank":"SBI","branch":"MG Road","payerName":"Acme","payeeName":"Initech","dueDate":"2026-03-10"}`

func createCheque(t *testing.T, r http.Handler) *domain.Cheque {
	t.Helper()
	rec := do(r, http.MethodPost, "/cheques", createBody, "op-init", "initiator")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var c domain.Cheque
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode cheque: %v", err)
	}
	return &c
}

func TestCreateAndGet(t *testing.T) {
	r := newRouter(t)
	c := createCheque(t, r)
	if c.Status != domain.StatusSigned || c.InitiatorID != "op-init" || c.Currency != "INR" {
		t.Errorf("cheque = %+v", c)
	}
	if got := c.Amount.StringFixed(2); got != "1500.00" {
		t.Errorf("amount = %q, want %q", got, "1500.00")
	}

	rec := do(r, http.MethodGet, "/cheques/"+c.ID, "", "op-x", "reception")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	rec = do(r, http.MethodGet, "/cheques/missing", "", "op-x", "reception")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

func TestCreate_Errors(t *testing.T) {
	r := newRouter(t)
	tests := []struct {
		name, body, role string
		want             int
	}{
		{"wrong role", createBody, "reception", http.StatusForbidden},
		{"unknown field", `{"chequeNo":"1","extra":true}`, "initiator", http.StatusBadRequest},
		{"bad due date", `{"chequeNo":"1","dueDate":"tomorrow"}`, "initiator", http.StatusBadRequest},
		{"missing fields", `{"chequeNo":"1"}`, "initiator", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, http.MethodPost, "/cheques", tt.body, "op-1", tt.role)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	createCheque(t, r)
	if rec := do(r, http.MethodPost, "/cheques", createBody, "op-1", "initiator"); rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}
}

func TestTransitions(t *testing.T) {
	r := newRouter(t)
	c := createCheque(t, r)
	base := "/cheques/" + c.ID

	steps := []struct {
		name, path, body, role string
		want                   int
		wantStatus             domain.Status
	}{
		{"dispatch cannot mark ready", base + "/mark-ready", "", "dispatch", http.StatusForbidden, ""},
		{"forward before ready", base + "/forward-to-reception", "", "dispatch", http.StatusConflict, ""},
		{"mark ready", base + "/mark-ready", "", "initiator", http.StatusOK, domain.StatusReadyForDispatch},
		{"mark ready twice", base + "/mark-ready", "", "initiator", http.StatusConflict, ""},
		{"forward", base + "/forward-to-reception", `{"notes":"bag 4"}`, "dispatch", http.StatusOK, domain.StatusWithReception},
		{"cancel without reason", base + "/cancel", `{}`, "admin", http.StatusBadRequest, ""},
		{"reception cannot cancel", base + "/cancel", `{"reason":"x"}`, "reception", http.StatusForbidden, ""},
		{"cancel", base + "/cancel", `{"reason":"payee closed account"}`, "approver", http.StatusOK, domain.StatusCancelled},
		{"cancel terminal", base + "/cancel", `{"reason":"again"}`, "admin", http.StatusConflict, ""},
	}
	for _, s := range steps {
		rec := do(r, http.MethodPost, s.path, s.body, "op-"+s.role, s.role)
		if rec.Code != s.want {
			t.Fatalf("%s: status = %d, want %d (%s)", s.name, rec.Code, s.want, rec.Body.String())
		}
		if s.wantStatus == "" {
			continue
		}
		var got domain.Cheque
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s: decode: %v", s.name, err)
		}
		if got.Status != s.wantStatus {
			t.Errorf("%s: status = %q, want %q", s.name, got.Status, s.wantStatus)
		}
	}

	rec := do(r, http.MethodGet, base+"/custody", "", "op-1", "reception")
	var custody []*auditdomain.CustodyEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &custody); err != nil {
		t.Fatalf("decode custody: %v", err)
	}
	if len(custody) != 3 {
		t.Errorf("custody entries = %d, want 3", len(custody))
	}

	rec = do(r, http.MethodGet, base+"/audit", "", "op-1", "reception")
	var entries []*auditdomain.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("audit entries = %d, want 4", len(entries))
	}

	if rec := do(r, http.MethodGet, base+"/handover", "", "op-1", "reception"); rec.Code != http.StatusNotFound {
		t.Errorf("handover status = %d, want 404", rec.Code)
	}
}

func TestParseDueDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2026-03-10", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), false},
		{"2026-03-10T08:30:00+05:30", time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), false},
		{"", time.Time{}, false},
		{"10/03/2026", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := parseDueDate(tt.in)
		if tt.wantErr != (err != nil) {
			t.Errorf("parseDueDate(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseDueDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
