// Package middleware holds the HTTP middleware chain of the custody API:
// bearer authentication, admission through the dispatch throttle, request
// logging, and request telemetry.
package middleware

import (
	"net/http"
	"strings"

	"cheque-custody/backend/internal/server/respond"
)

const bearerPrefix = "bearer "

// TokenValidator validates access tokens. *security.TokenProvider implements it.
type TokenValidator interface {
	ValidateAccess(token string) (operatorID, role string, err error)
}

// Auth validates the Bearer access token and puts the operator's id and role in
// the request context. Requests for which public returns true pass through
// without a token.
func Auth(tokens TokenValidator, public func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public != nil && public(r) {
				next.ServeHTTP(w, r)
				return
			}
			token := extractBearer(r)
			if token == "" {
				unauthenticated(w)
				return
			}
			id, role, err := tokens.ValidateAccess(token)
			if err != nil {
				unauthenticated(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), id, role)))
		})
	}
}

func unauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="cheque-custody"`)
	respond.JSON(w, http.StatusUnauthorized, respond.ErrorBody{
		Code:    "UNAUTHENTICATED",
		Message: "missing or invalid authorization",
	})
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
