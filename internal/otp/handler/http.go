// Package handler exposes OTP generation and verification over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	chequedomain "cheque-custody/backend/internal/cheque/domain"
	"cheque-custody/backend/internal/otp/service"
	"cheque-custody/backend/internal/platform/rbac"
	"cheque-custody/backend/internal/server/respond"
)

// Manager is the subset of *service.Manager the handler drives.
type Manager interface {
	Generate(ctx context.Context, chequeID, channel, contact, actorID string) (*service.GenerateResult, error)
	Verify(ctx context.Context, chequeID string, in service.VerifyInput, actorID string) (*service.VerifyResult, error)
}

// ProofChecker confirms that proof references name uploaded artifacts. *artifact.Store implements it.
type ProofChecker interface {
	CheckProof(photoRef, signatureRef string) error
}

// Handler serves the OTP routes under /cheques/{id}.
type Handler struct {
	manager Manager
	proofs  ProofChecker
}

// NewHandler returns a Handler. proofs may be nil to skip the artifact check.
func NewHandler(manager Manager, proofs ProofChecker) *Handler {
	return &Handler{manager: manager, proofs: proofs}
}

// RegisterRoutes mounts the OTP routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cheques/{id}/generate-otp", h.generate).Methods(http.MethodPost)
	r.HandleFunc("/cheques/{id}/verify-otp", h.verify).Methods(http.MethodPost)
}

type generateRequest struct {
	Channel   string `json:"channel"`
	ToContact string `json:"toContact"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	actorID, err := rbac.Require(r.Context(), rbac.Reception...)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req generateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.manager.Generate(r.Context(), mux.Vars(r)["id"], req.Channel, req.ToContact, actorID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, res)
}

type verifyRequest struct {
	OTP                string `json:"otp"`
	RecipientName      string `json:"recipientName"`
	IDType             string `json:"idType"`
	IDNumber           string `json:"idNumber"`
	RecipientPhotoPath string `json:"recipientPhotoPath"`
	SignaturePath      string `json:"signaturePath"`
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	actorID, err := rbac.Require(r.Context(), rbac.Reception...)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req verifyRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	// A bad artifact reference is rejected before the challenge sees the code,
	// so it never costs an attempt.
	if h.proofs != nil {
		if err := h.proofs.CheckProof(req.RecipientPhotoPath, req.SignaturePath); err != nil {
			respond.Error(w, r, err)
			return
		}
	}
	res, err := h.manager.Verify(r.Context(), mux.Vars(r)["id"], service.VerifyInput{
		Code: req.OTP,
		Recipient: chequedomain.Recipient{
			Name:     req.RecipientName,
			IDType:   req.IDType,
			IDNumber: req.IDNumber,
		},
		Proof: chequedomain.Proof{
			PhotoRef:     req.RecipientPhotoPath,
			SignatureRef: req.SignaturePath,
		},
	}, actorID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}
