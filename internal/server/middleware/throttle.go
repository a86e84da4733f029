package middleware

import (
	"context"
	"errors"
	"net/http"

	"cheque-custody/backend/internal/server/respond"
	"cheque-custody/backend/internal/throttle"
)

// Throttle admits each request through t, so at most t's concurrency limit of
// requests run at once and consecutive starts are spaced. A request whose
// client goes away while queued never runs.
func Throttle(t *throttle.Throttle) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := t.Submit(r.Context(), func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
			switch {
			case err == nil:
			case errors.Is(err, throttle.ErrClosed):
				respond.JSON(w, http.StatusServiceUnavailable, respond.ErrorBody{Code: "UNAVAILABLE", Message: "server is shutting down"})
			default:
				respond.JSON(w, http.StatusServiceUnavailable, respond.ErrorBody{Code: "UNAVAILABLE", Message: "request cancelled before it was admitted"})
			}
		})
	}
}
