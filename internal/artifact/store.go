// Package artifact stores proof-of-handover files (recipient photos and
// signatures) on local disk and hands out the relative path recorded on the
// handover record.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	apperrors "cheque-custody/backend/internal/errors"
)

// Kinds of artifact.
const (
	KindPhoto     = "photo"
	KindSignature = "signature"
)

// DefaultMaxBytes is the upload limit when none is configured.
const DefaultMaxBytes int64 = 10 << 20

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".pdf":  true,
}

// Store writes artifacts under a root directory, one subdirectory per kind.
type Store struct {
	root     string
	maxBytes int64
}

// NewStore creates root if needed. maxBytes <= 0 uses DefaultMaxBytes.
func NewStore(root string, maxBytes int64) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("artifact: root directory is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	for _, kind := range []string{KindPhoto, KindSignature} {
		if err := os.MkdirAll(filepath.Join(root, kind), 0o750); err != nil {
			return nil, fmt.Errorf("artifact: create %s: %w", kind, err)
		}
	}
	return &Store{root: root, maxBytes: maxBytes}, nil
}

// MaxBytes returns the upload limit.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save copies r into a new file for kind and returns its path relative to the
// store root (e.g. "photo/<uuid>.jpg"). Oversized input fails with a Validation
// error and leaves nothing behind.
func (s *Store) Save(ctx context.Context, kind, filename string, r io.Reader) (string, error) {
	if kind != KindPhoto && kind != KindSignature {
		return "", apperrors.Validation("kind must be %q or %q", KindPhoto, KindSignature)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", apperrors.Validation("unsupported file type %q", ext)
	}
	rel := path.Join(kind, uuid.New().String()+ext)
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("artifact: create file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(contextReader{ctx: ctx, r: r}, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = apperrors.Validation("file exceeds %d bytes", s.maxBytes)
	}
	if err == nil && n == 0 {
		err = apperrors.Validation("file is empty")
	}
	if err != nil {
		_ = os.Remove(full)
		if apperrors.IsTaxonomy(err) {
			return "", err
		}
		return "", fmt.Errorf("artifact: write %s: %w", rel, err)
	}
	return rel, nil
}

// Exists reports whether rel names a stored artifact.
func (s *Store) Exists(rel string) bool {
	full, ok := s.resolve(rel)
	if !ok {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}

// CheckProof fails with a Validation error when a non-empty photo or signature
// reference does not name a stored artifact of that kind. Empty references are
// left to the caller's required-field check.
func (s *Store) CheckProof(photoRef, signatureRef string) error {
	for _, ref := range []struct{ kind, rel, field string }{
		{KindPhoto, photoRef, "recipientPhotoPath"},
		{KindSignature, signatureRef, "signaturePath"},
	} {
		if ref.rel == "" {
			continue
		}
		if !strings.HasPrefix(ref.rel, ref.kind+"/") || !s.Exists(ref.rel) {
			return apperrors.Validation("%s does not name an uploaded %s", ref.field, ref.kind)
		}
	}
	return nil
}

// resolve maps rel to a file under root, rejecting paths that escape it.
func (s *Store) resolve(rel string) (string, bool) {
	clean := path.Clean("/" + rel)[1:]
	if clean == "" || clean != rel {
		return "", false
	}
	kind, _, ok := strings.Cut(clean, "/")
	if !ok || (kind != KindPhoto && kind != KindSignature) {
		return "", false
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), true
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
