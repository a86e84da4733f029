// Package handler exposes operator login and account management over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"cheque-custody/backend/internal/operator/domain"
	"cheque-custody/backend/internal/operator/service"
	"cheque-custody/backend/internal/platform/rbac"
	"cheque-custody/backend/internal/server/respond"
)

// LoginPath is the only operator route served without a token.
const LoginPath = "/auth/login"

// Service is the subset of *service.AuthService the handler drives.
type Service interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Create(ctx context.Context, in service.CreateInput) (*domain.Operator, error)
	Get(ctx context.Context, id string) (*domain.Operator, error)
	List(ctx context.Context) ([]*domain.Operator, error)
}

// Handler serves /auth and /operators.
type Handler struct {
	svc Service
}

// NewHandler returns a Handler backed by svc.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the operator routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc(LoginPath, h.login).Methods(http.MethodPost)
	r.HandleFunc("/operators/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/operators", h.list).Methods(http.MethodGet)
	r.HandleFunc("/operators", h.create).Methods(http.MethodPost)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	id, _, err := rbac.Caller(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, o)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.Require(r.Context(), rbac.Admins...); err != nil {
		respond.Error(w, r, err)
		return
	}
	ops, err := h.svc.List(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	if ops == nil {
		ops = []*domain.Operator{}
	}
	respond.JSON(w, http.StatusOK, ops)
}

type createRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.Require(r.Context(), rbac.Admins...); err != nil {
		respond.Error(w, r, err)
		return
	}
	var req createRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	o, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
		Password: req.Password,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, o)
}
