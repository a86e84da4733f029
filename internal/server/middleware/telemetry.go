package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	telemetrydomain "cheque-custody/backend/internal/telemetry/domain"
	"cheque-custody/backend/internal/telemetry/producer"
)

// requestMetadata is the JSON shape stored in Event.Details for http.request events.
type requestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"durationMs"`
	ClientIP   string `json:"clientIp"`
}

// RequestEvents emits an http.request event to p after each request. Best-effort:
// failures are logged and never affect the response. A nil p disables it.
// skip lists route templates not to emit (e.g. /healthz).
func RequestEvents(p producer.Producer, skip map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if p == nil {
				return
			}
			route := routeTemplate(r)
			if skip[route] {
				return
			}
			meta, _ := json.Marshal(requestMetadata{
				Method:     r.Method,
				Route:      route,
				Status:     rec.code(),
				DurationMs: time.Since(start).Milliseconds(),
				ClientIP:   ClientIP(r),
			})
			actorID, _ := GetActorID(r.Context())
			event := &telemetrydomain.Event{
				ID:        uuid.New().String(),
				ChequeID:  mux.Vars(r)["id"],
				ActorID:   actorID,
				EventType: "http.request",
				Resource:  route,
				Severity:  severityFor(rec.code()),
				Source:    "http",
				Details:   meta,
				CreatedAt: time.Now().UTC(),
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := p.Emit(ctx, event); err != nil {
					log.Printf("telemetry: request event emit failed: %v", err)
				}
			}()
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func severityFor(status int) string {
	switch {
	case status >= 500:
		return "alert"
	case status >= 400:
		return "warning"
	default:
		return "info"
	}
}
