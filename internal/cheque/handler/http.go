// Package handler exposes the cheque lifecycle over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	auditdomain "cheque-custody/backend/internal/audit/domain"
	"cheque-custody/backend/internal/cheque/domain"
	"cheque-custody/backend/internal/cheque/service"
	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/platform/rbac"
	"cheque-custody/backend/internal/server/respond"
)

// Lifecycle is the subset of *service.Lifecycle the handler drives.
type Lifecycle interface {
	Create(ctx context.Context, in service.CreateInput) (*domain.Cheque, error)
	Get(ctx context.Context, id string) (*domain.Cheque, error)
	AuditTrail(ctx context.Context, id string) ([]*auditdomain.Entry, error)
	CustodyTrail(ctx context.Context, id string) ([]*auditdomain.CustodyEntry, error)
	Handover(ctx context.Context, id string) (*domain.HandoverRecord, error)
	MarkReady(ctx context.Context, id, actorID string) (*domain.Cheque, error)
	ForwardToReception(ctx context.Context, id, actorID, notes string) (*domain.Cheque, error)
	Cancel(ctx context.Context, id, actorID, reason string) (*domain.Cheque, error)
}

// Handler serves the /cheques routes.
type Handler struct {
	lifecycle Lifecycle
}

// NewHandler returns a Handler backed by lifecycle.
func NewHandler(lifecycle Lifecycle) *Handler {
	return &Handler{lifecycle: lifecycle}
}

// RegisterRoutes mounts the cheque routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/cheques", h.create).Methods(http.MethodPost)
	r.HandleFunc("/cheques/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/cheques/{id}/audit", h.audit).Methods(http.MethodGet)
	r.HandleFunc("/cheques/{id}/custody", h.custody).Methods(http.MethodGet)
	r.HandleFunc("/cheques/{id}/handover", h.handover).Methods(http.MethodGet)
	r.HandleFunc("/cheques/{id}/mark-ready", h.markReady).Methods(http.MethodPost)
	r.HandleFunc("/cheques/{id}/forward-to-reception", h.forward).Methods(http.MethodPost)
	r.HandleFunc("/cheques/{id}/cancel", h.cancel).Methods(http.MethodPost)
}

type createRequest struct {
	ChequeNo  string          `json:"chequeNo"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Bank      string          `json:"bank"`
	Branch    string          `json:"branch"`
	PayerName string          `json:"payerName"`
	PayeeName string          `json:"payeeName"`
	DueDate   string          `json:"dueDate"`
}

// parseDueDate accepts a calendar date or an RFC 3339 timestamp.
func parseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperrors.Validation("dueDate must be YYYY-MM-DD or RFC 3339")
	}
	return t.UTC(), nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actorID, err := rbac.Require(r.Context(), rbac.Initiators...)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req createRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	c, err := h.lifecycle.Create(r.Context(), service.CreateInput{
		ChequeNo:    req.ChequeNo,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Bank:        req.Bank,
		Branch:      req.Branch,
		PayerName:   req.PayerName,
		PayeeName:   req.PayeeName,
		DueDate:     due,
		InitiatorID: actorID,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, c)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	c, err := h.lifecycle.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

func (h *Handler) audit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.lifecycle.AuditTrail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if entries == nil {
		entries = []*auditdomain.Entry{}
	}
	respond.JSON(w, http.StatusOK, entries)
}

func (h *Handler) custody(w http.ResponseWriter, r *http.Request) {
	entries, err := h.lifecycle.CustodyTrail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if entries == nil {
		entries = []*auditdomain.CustodyEntry{}
	}
	respond.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handover(w http.ResponseWriter, r *http.Request) {
	rec, err := h.lifecycle.Handover(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, rec)
}

func (h *Handler) markReady(w http.ResponseWriter, r *http.Request) {
	actorID, err := rbac.Require(r.Context(), rbac.Initiators...)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	c, err := h.lifecycle.MarkReady(r.Context(), mux.Vars(r)["id"], actorID)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

type forwardRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	actorID, err := rbac.Require(r.Context(), rbac.Dispatch...)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req forwardRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	c, err := h.lifecycle.ForwardToReception(r.Context(), mux.Vars(r)["id"], actorID, req.Notes)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actorID, err := rbac.Require(r.Context(), rbac.Cancellers...)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	var req cancelRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	c, err := h.lifecycle.Cancel(r.Context(), mux.Vars(r)["id"], actorID, req.Reason)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}
