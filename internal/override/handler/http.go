// Package handler exposes the handover override workflow over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	chequedomain "cheque-custody/backend/internal/cheque/domain"
	"cheque-custody/backend/internal/override/domain"
	"cheque-custody/backend/internal/override/service"
	"cheque-custody/backend/internal/platform/rbac"
	"cheque-custody/backend/internal/server/respond"
)

// Workflow is the subset of *service.Workflow the handler drives.
type Workflow interface {
	Request(ctx context.Context, chequeID, requestedBy, reason string) (*domain.Request, error)
	Approve(ctx context.Context, overrideID string, approver service.Actor) (*domain.Request, error)
	Reject(ctx context.Context, overrideID string, approver service.Actor, rejectedReason string) (*domain.Request, error)
	CompleteHandoverViaOverride(ctx context.Context, chequeID string, in service.HandoverInput, actorID string) (*service.HandoverResult, error)
	Get(ctx context.Context, overrideID string) (*domain.Request, error)
	List(ctx context.Context, chequeID string) ([]*domain.Request, error)
}

// ProofChecker confirms that proof references name uploaded artifacts. *artifact.Store implements it.
type ProofChecker interface {
	CheckProof(photoRef, signatureRef string) error
}

// Handler serves the override routes.
type Handler struct {
	workflow Workflow
	proofs   ProofChecker
}

// NewHandler returns a Handler. proofs may be nil to skip the artifact check.
func NewHandler(workflow Workflow, proofs ProofChecker) *Handler {
	return &Handler{workflow: workflow, proofs: proofs}
}

// RegisterRoutes mounts the override routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cheques/{id}/handover-override", h.request).Methods(http.MethodPost)
	r.HandleFunc("/cheques/{id}/complete-override", h.complete).Methods(http.MethodPost)
	r.HandleFunc("/cheques/{id}/overrides", h.list).Methods(http.MethodGet)
	r.HandleFunc("/handover-overrides/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/handover-overrides/{id}/approve", h.approve).Methods(http.MethodPost)
	r.HandleFunc("/handover-overrides/{id}/reject", h.reject).Methods(http.MethodPost)
}

type requestBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	actorID, err := rbac.Require(r.Context(), rbac.Reception...)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var body requestBody
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, r, err)
		return
	}
	req, err := h.workflow.Request(r.Context(), mux.Vars(r)["id"], actorID, body.Reason)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, req)
}

type completeBody struct {
	RecipientName      string `json:"recipientName"`
	IDType             string `json:"idType"`
	IDNumber           string `json:"idNumber"`
	RecipientPhotoPath string `json:"recipientPhotoPath"`
	SignaturePath      string `json:"signaturePath"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	actorID, err := rbac.Require(r.Context(), rbac.Reception...)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var body completeBody
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, r, err)
		return
	}
	if h.proofs != nil {
		if err := h.proofs.CheckProof(body.RecipientPhotoPath, body.SignaturePath); err != nil {
			respond.Error(w, r, err)
			return
		}
	}
	res, err := h.workflow.CompleteHandoverViaOverride(r.Context(), mux.Vars(r)["id"], service.HandoverInput{
		Recipient: chequedomain.Recipient{
			Name:     body.RecipientName,
			IDType:   body.IDType,
			IDNumber: body.IDNumber,
		},
		Proof: chequedomain.Proof{
			PhotoRef:     body.RecipientPhotoPath,
			SignatureRef: body.SignaturePath,
		},
	}, actorID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.workflow.List(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []*domain.Request{}
	}
	respond.JSON(w, http.StatusOK, reqs)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	req, err := h.workflow.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, req)
}

// approve and reject admit any authenticated operator; the override policy
// decides whether the caller may decide.
func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, role, err := rbac.Caller(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	req, err := h.workflow.Approve(r.Context(), mux.Vars(r)["id"], service.Actor{ID: id, Role: string(role)})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, req)
}

type rejectBody struct {
	RejectedReason string `json:"rejectedReason"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, role, err := rbac.Caller(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var body rejectBody
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, r, err)
		return
	}
	req, err := h.workflow.Reject(r.Context(), mux.Vars(r)["id"], service.Actor{ID: id, Role: string(role)}, body.RejectedReason)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, req)
}
