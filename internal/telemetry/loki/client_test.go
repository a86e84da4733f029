package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_EmptyURL(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Error("expected error for empty base URL")
	}
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", srv.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	created := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	raw := []byte(`{"chequeId":"chq-1","eventType":"otp.locked","resource":"otp","severity":"alert","source":"custody","createdAt":"2026-10-16T09:30:00Z"}`)
	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if path != "/loki/api/v1/push" {
		t.Errorf("path = %q, want %q", path, "/loki/api/v1/push")
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	want := map[string]string{"job": Job, "event_type": "otp.locked", "resource": "otp", "severity": "alert", "source": "custody"}
	for k, v := range want {
		if s.Stream[k] != v {
			t.Errorf("label %q = %q, want %q", k, s.Stream[k], v)
		}
	}
	if _, ok := s.Stream["cheque_id"]; ok {
		t.Error("cheque_id should not be a label")
	}
	if s.Values[0][0] != fmtNano(created) {
		t.Errorf("timestamp = %q, want %q", s.Values[0][0], fmtNano(created))
	}
	if s.Values[0][1] != string(raw) {
		t.Errorf("line = %q, want raw payload", s.Values[0][1])
	}
}

func TestPushEventJSON_InvalidJSONPushedRaw(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	if err := c.PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 || len(got.Streams[0].Stream) != 1 {
		t.Errorf("stream labels = %v, want only job", got.Streams)
	}
}

func TestPush_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, nil)
	if err := c.Push(context.Background(), time.Now(), "x", nil); err == nil {
		t.Error("expected error for 400 response")
	}
}

func fmtNano(ts time.Time) string {
	b, _ := json.Marshal(ts.UnixNano())
	return string(b)
}
