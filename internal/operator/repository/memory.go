package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/operator/domain"
)

// MemoryRepository keeps operators in process.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Operator
	byEmail map[string]string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.Operator),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	r.mu.RLock()
	id, ok := r.byEmail[strings.ToLower(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) Create(ctx context.Context, o *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(o.Email)
	if _, taken := r.byEmail[key]; taken {
		return apperrors.Conflict("operator %s already exists", o.Email)
	}
	cp := *o
	cp.Email = key
	r.byID[o.ID] = &cp
	r.byEmail[key] = o.ID
	return nil
}

// List returns operators ordered by email.
func (r *MemoryRepository) List(ctx context.Context) ([]*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Operator, 0, len(r.byID))
	for _, o := range r.byID {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}
