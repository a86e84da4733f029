// Package respond writes JSON responses and maps custody errors to HTTP statuses.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every failure.
type ErrorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
	Locked            bool   `json:"locked,omitempty"`
}

var statusByKind = map[apperrors.Kind]int{
	apperrors.KindValidation:   http.StatusBadRequest,
	apperrors.KindUnauthorized: http.StatusForbidden,
	apperrors.KindNotFound:     http.StatusNotFound,
	apperrors.KindConflict:     http.StatusConflict,
	apperrors.KindInvalidState: http.StatusConflict,
	apperrors.KindExpired:      http.StatusGone,
	apperrors.KindInvalidCode:  http.StatusUnprocessableEntity,
	apperrors.KindLocked:       http.StatusLocked,
	apperrors.KindBusy:         http.StatusServiceUnavailable,
}

// Status returns the HTTP status for err.
func Status(err error) int {
	if e, ok := apperrors.As(err); ok {
		if s, ok := statusByKind[e.Kind]; ok {
			return s
		}
	}
	return http.StatusInternalServerError
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", err, nil)
	}
}

// Error writes err. Taxonomy errors are surfaced as-is; anything else is logged
// with the request and answered with a generic 500.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperrors.As(err)
	if !ok {
		logger.Error("request failed", err, logger.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		JSON(w, http.StatusInternalServerError, ErrorBody{Code: "INTERNAL", Message: "internal error"})
		return
	}
	JSON(w, Status(err), ErrorBody{
		Code:              string(e.Kind),
		Message:           e.Error(),
		RemainingAttempts: e.RemainingAttempts,
		Locked:            e.Locked,
	})
}

// Decode reads a JSON body into v. An empty body leaves v untouched; malformed
// JSON or unknown fields fail with a Validation error.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Validation("invalid request body: %v", err)
	}
	return nil
}
