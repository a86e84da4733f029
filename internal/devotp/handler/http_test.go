package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"cheque-custody/backend/internal/devotp"
)

func TestGet(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	store := devotp.NewMemoryStoreWithClock(func() time.Time { return now })
	store.Put(context.Background(), "ch-1", "482913", now.Add(5*time.Minute))
	r := mux.NewRouter()
	NewHandler(store).RegisterRoutes(r)

	tests := []struct {
		path     string
		want     int
		wantBody string
	}{
		{"/dev/otp/ch-1", http.StatusOK, `"otpCode":"482913"`},
		{"/dev/otp/ch-2", http.StatusNotFound, `"code":"NOT_FOUND"`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.want)
		}
		if !strings.Contains(rec.Body.String(), tt.wantBody) {
			t.Errorf("%s: body = %s, want %s", tt.path, rec.Body.String(), tt.wantBody)
		}
	}
}

func TestIsPublic(t *testing.T) {
	if !IsPublic(httptest.NewRequest(http.MethodGet, "/dev/otp/abc", nil)) {
		t.Error("dev OTP route should be public")
	}
	if IsPublic(httptest.NewRequest(http.MethodGet, "/cheques/abc", nil)) {
		t.Error("cheque route should not be public")
	}
}
