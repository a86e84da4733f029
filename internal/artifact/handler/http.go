// Package handler serves artifact uploads over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/platform/rbac"
	"cheque-custody/backend/internal/server/respond"
)

// multipartOverhead is allowed on top of the file limit for headers and form fields.
const multipartOverhead = 64 << 10

// memoryLimit is how much of a multipart body is kept in memory before spilling to disk.
const memoryLimit = 1 << 20

// Store saves uploaded artifacts. *artifact.Store implements it.
type Store interface {
	Save(ctx context.Context, kind, filename string, r io.Reader) (string, error)
	MaxBytes() int64
}

// Handler serves POST /files.
type Handler struct {
	store Store
}

// NewHandler returns a Handler writing to store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the upload route on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/files", h.upload).Methods(http.MethodPost)
}

type uploadResponse struct {
	Path string `json:"path"`
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.Require(r.Context(), rbac.Reception...); err != nil {
		respond.Error(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.store.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(memoryLimit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(w, r, apperrors.Validation("file exceeds %d bytes", h.store.MaxBytes()))
			return
		}
		respond.Error(w, r, apperrors.Validation("expected a multipart form with a file"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, r, apperrors.Validation("file is required"))
		return
	}
	defer file.Close()

	rel, err := h.store.Save(r.Context(), r.FormValue("kind"), header.Filename, file)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, uploadResponse{Path: rel})
}
