package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"cheque-custody/backend/internal/security"
	"cheque-custody/backend/internal/server/middleware"
	"cheque-custody/backend/internal/throttle"
)

type whoami struct{}

func (whoami) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		id, _ := middleware.GetActorID(r.Context())
		w.Write([]byte(id))
	}).Methods(http.MethodGet)
	r.HandleFunc("/open", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("open"))
	}).Methods(http.MethodGet)
}

func TestNewRouter(t *testing.T) {
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := tokens.IssueAccess("op-3", "dispatch")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	th := throttle.New(throttle.Config{MaxConcurrent: 2, MinInterval: -1}, nil)
	defer th.Close()

	r := NewRouter(Deps{
		Tokens:   tokens,
		Throttle: th,
		Health: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}),
		Public:   []func(*http.Request) bool{func(r *http.Request) bool { return r.URL.Path == "/open" }},
		Handlers: []RouteRegistrar{whoami{}},
	})

	tests := []struct {
		name, method, path, token string
		want                      int
		wantBody                  string
	}{
		{"health is public", http.MethodGet, HealthPath, "", http.StatusOK, "ok"},
		{"public route", http.MethodGet, "/open", "", http.StatusOK, "open"},
		{"no token", http.MethodGet, "/whoami", "", http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"token", http.MethodGet, "/whoami", token, http.StatusOK, "op-3"},
		{"unknown route", http.MethodGet, "/nope", token, http.StatusNotFound, "NOT_FOUND"},
		{"wrong method", http.MethodDelete, "/whoami", token, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl any) {
	m.services = append(m.services, desc.ServiceName)
}

func TestRegisterServices(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, healthpb.UnimplementedHealthServer{})
	if len(reg.services) != 1 || reg.services[0] != "grpc.health.v1.Health" {
		t.Errorf("services = %v, want [grpc.health.v1.Health]", reg.services)
	}
}
