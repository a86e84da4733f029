// Package handler serves GET /dev/otp/{challengeId}. It is registered only in
// dev OTP mode.
package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"cheque-custody/backend/internal/devotp"
	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/server/respond"
)

// PathPrefix is served without authentication.
const PathPrefix = "/dev/otp/"

// Handler reads codes back from a dev OTP store.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a Handler over store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the dev OTP route on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(PathPrefix+"{challengeId}", h.get).Methods(http.MethodGet)
}

// IsPublic reports whether r targets the dev OTP route.
func IsPublic(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, PathPrefix)
}

type codeResponse struct {
	ChallengeID string `json:"otpId"`
	Code        string `json:"otpCode"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["challengeId"]
	code, ok := h.store.Get(r.Context(), id)
	if !ok {
		respond.Error(w, r, apperrors.NotFound("no dev OTP for challenge %s", id))
		return
	}
	respond.JSON(w, http.StatusOK, codeResponse{ChallengeID: id, Code: code})
}
