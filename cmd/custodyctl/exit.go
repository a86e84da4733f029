package main

import (
	"errors"
	"net/http"

	"cheque-custody/backend/internal/client"
	apperrors "cheque-custody/backend/internal/errors"
)

// Exit codes. Scripts branch on these instead of parsing messages.
const (
	exitCodeFailure       = 1
	exitCodeUsage         = 2
	exitCodeDenied        = 3
	exitCodeNotFound      = 4
	exitCodeStateConflict = 5
	exitCodeCodeRejected  = 6
	exitCodeBusy          = 7
)

func exitCode(err error) int {
	if appErr, ok := apperrors.As(err); ok {
		switch appErr.Kind {
		case apperrors.KindValidation:
			return exitCodeUsage
		case apperrors.KindUnauthorized:
			return exitCodeDenied
		case apperrors.KindNotFound:
			return exitCodeNotFound
		case apperrors.KindInvalidState, apperrors.KindConflict:
			return exitCodeStateConflict
		case apperrors.KindInvalidCode, apperrors.KindExpired, apperrors.KindLocked:
			return exitCodeCodeRejected
		case apperrors.KindBusy:
			return exitCodeBusy
		}
		return exitCodeFailure
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return exitCodeDenied
	}
	return exitCodeFailure
}
