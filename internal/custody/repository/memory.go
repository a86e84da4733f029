package repository

import (
	"context"
	"sync"
	"time"

	auditdomain "cheque-custody/backend/internal/audit/domain"
	chequedomain "cheque-custody/backend/internal/cheque/domain"
	apperrors "cheque-custody/backend/internal/errors"
	otpdomain "cheque-custody/backend/internal/otp/domain"
	overridedomain "cheque-custody/backend/internal/override/domain"
)

// chequeState is everything owned by one cheque. Committed states are never
// mutated; a unit of work edits a copy that replaces the original on commit.
type chequeState struct {
	cheque     chequedomain.Cheque
	challenges []*otpdomain.Challenge
	overrides  []*overridedomain.Request
	handover   *chequedomain.HandoverRecord
	audit      []*auditdomain.Entry
	custody    []*auditdomain.CustodyEntry
}

func (s *chequeState) clone() *chequeState {
	return &chequeState{
		cheque:     s.cheque,
		challenges: append([]*otpdomain.Challenge(nil), s.challenges...),
		overrides:  append([]*overridedomain.Request(nil), s.overrides...),
		handover:   s.handover,
		audit:      append([]*auditdomain.Entry(nil), s.audit...),
		custody:    append([]*auditdomain.CustodyEntry(nil), s.custody...),
	}
}

type chequeSlot struct {
	lock  chan struct{}
	state *chequeState
}

func newSlot() *chequeSlot {
	return &chequeSlot{lock: make(chan struct{}, 1)}
}

// MemoryRepository keeps custody data in process. It is used by tests and by
// the server when DATABASE_URL is empty.
type MemoryRepository struct {
	mu          sync.RWMutex
	slots       map[string]*chequeSlot
	byNumber    map[string]string
	overrideIdx map[string]string
	lockTimeout time.Duration
}

// NewMemoryRepository returns an empty repository. lockTimeout <= 0 uses DefaultLockTimeout.
func NewMemoryRepository(lockTimeout time.Duration) *MemoryRepository {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &MemoryRepository{
		slots:       make(map[string]*chequeSlot),
		byNumber:    make(map[string]string),
		overrideIdx: make(map[string]string),
		lockTimeout: lockTimeout,
	}
}

func (r *MemoryRepository) acquire(ctx context.Context, slot *chequeSlot) error {
	timer := time.NewTimer(r.lockTimeout)
	defer timer.Stop()
	select {
	case slot.lock <- struct{}{}:
		return nil
	case <-timer.C:
		return apperrors.ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateCheque implements Repository.
func (r *MemoryRepository) CreateCheque(ctx context.Context, c *chequedomain.Cheque, fn func(tx Tx) error) error {
	r.mu.RLock()
	_, dup := r.byNumber[c.ChequeNo]
	r.mu.RUnlock()
	if dup {
		return apperrors.Conflict("cheque number %s already exists", c.ChequeNo)
	}
	tx := &memoryTx{state: &chequeState{cheque: *c}}
	if fn != nil {
		if err := fn(tx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byNumber[c.ChequeNo]; dup {
		return apperrors.Conflict("cheque number %s already exists", c.ChequeNo)
	}
	slot := newSlot()
	slot.state = tx.state
	r.slots[c.ID] = slot
	r.byNumber[c.ChequeNo] = c.ID
	r.indexOverrides(tx.state)
	return nil
}

// WithinCheque implements Repository.
func (r *MemoryRepository) WithinCheque(ctx context.Context, chequeID string, fn func(tx Tx) error) error {
	r.mu.RLock()
	slot := r.slots[chequeID]
	r.mu.RUnlock()
	if slot == nil {
		return apperrors.NotFound("cheque %s not found", chequeID)
	}
	if err := r.acquire(ctx, slot); err != nil {
		return err
	}
	defer func() { <-slot.lock }()

	r.mu.RLock()
	tx := &memoryTx{state: slot.state.clone()}
	r.mu.RUnlock()
	if err := fn(tx); err != nil {
		return err
	}
	r.mu.Lock()
	slot.state = tx.state
	r.indexOverrides(tx.state)
	r.mu.Unlock()
	return nil
}

// indexOverrides must be called with r.mu held.
func (r *MemoryRepository) indexOverrides(s *chequeState) {
	for _, o := range s.overrides {
		r.overrideIdx[o.ID] = o.ChequeID
	}
}

func (r *MemoryRepository) state(chequeID string) *chequeState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if slot := r.slots[chequeID]; slot != nil {
		return slot.state
	}
	return nil
}

// GetCheque implements Repository.
func (r *MemoryRepository) GetCheque(ctx context.Context, id string) (*chequedomain.Cheque, error) {
	s := r.state(id)
	if s == nil {
		return nil, nil
	}
	c := s.cheque
	return &c, nil
}

// GetHandover implements Repository.
func (r *MemoryRepository) GetHandover(ctx context.Context, chequeID string) (*chequedomain.HandoverRecord, error) {
	s := r.state(chequeID)
	if s == nil || s.handover == nil {
		return nil, nil
	}
	h := *s.handover
	return &h, nil
}

// GetOverride implements Repository.
func (r *MemoryRepository) GetOverride(ctx context.Context, id string) (*overridedomain.Request, error) {
	r.mu.RLock()
	chequeID, ok := r.overrideIdx[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	s := r.state(chequeID)
	if s == nil {
		return nil, nil
	}
	return findOverride(s.overrides, id), nil
}

// ListOverrides implements Repository. Requests are returned oldest first.
func (r *MemoryRepository) ListOverrides(ctx context.Context, chequeID string) ([]*overridedomain.Request, error) {
	s := r.state(chequeID)
	if s == nil {
		return nil, nil
	}
	out := make([]*overridedomain.Request, len(s.overrides))
	for i, o := range s.overrides {
		cp := *o
		out[i] = &cp
	}
	return out, nil
}

// ListAudit implements Repository. Entries are returned in append order.
func (r *MemoryRepository) ListAudit(ctx context.Context, chequeID string) ([]*auditdomain.Entry, error) {
	s := r.state(chequeID)
	if s == nil {
		return nil, nil
	}
	out := make([]*auditdomain.Entry, len(s.audit))
	for i, e := range s.audit {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

// ListCustody implements Repository. Entries are returned in append order.
func (r *MemoryRepository) ListCustody(ctx context.Context, chequeID string) ([]*auditdomain.CustodyEntry, error) {
	s := r.state(chequeID)
	if s == nil {
		return nil, nil
	}
	out := make([]*auditdomain.CustodyEntry, len(s.custody))
	for i, e := range s.custody {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func findOverride(list []*overridedomain.Request, id string) *overridedomain.Request {
	for _, o := range list {
		if o.ID == id {
			cp := *o
			return &cp
		}
	}
	return nil
}

// memoryTx edits a private copy of one cheque's state. Stored records are
// copies so callers cannot mutate committed data through returned pointers.
type memoryTx struct {
	state *chequeState
}

func (t *memoryTx) Cheque() *chequedomain.Cheque {
	c := t.state.cheque
	return &c
}

func (t *memoryTx) UpdateChequeStatus(ctx context.Context, status chequedomain.Status, at time.Time) error {
	t.state.cheque.Status = status
	t.state.cheque.UpdatedAt = at
	return nil
}

func (t *memoryTx) ActiveChallenge(ctx context.Context) (*otpdomain.Challenge, error) {
	for i := len(t.state.challenges) - 1; i >= 0; i-- {
		if c := t.state.challenges[i]; c.Active() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) InsertChallenge(ctx context.Context, c *otpdomain.Challenge) error {
	if active, _ := t.ActiveChallenge(ctx); active != nil && c.Active() {
		return apperrors.Conflict("cheque %s already has an active challenge", c.ChequeID)
	}
	cp := *c
	t.state.challenges = append(t.state.challenges, &cp)
	return nil
}

func (t *memoryTx) UpdateChallenge(ctx context.Context, c *otpdomain.Challenge) error {
	for i, existing := range t.state.challenges {
		if existing.ID == c.ID {
			cp := *c
			t.state.challenges[i] = &cp
			return nil
		}
	}
	return apperrors.NotFound("challenge %s not found", c.ID)
}

func (t *memoryTx) InsertHandover(ctx context.Context, h *chequedomain.HandoverRecord) error {
	if t.state.handover != nil {
		return apperrors.Conflict("cheque %s already has a handover record", h.ChequeID)
	}
	cp := *h
	t.state.handover = &cp
	return nil
}

func (t *memoryTx) GetOverride(ctx context.Context, id string) (*overridedomain.Request, error) {
	return findOverride(t.state.overrides, id), nil
}

func (t *memoryTx) PendingOverride(ctx context.Context) (*overridedomain.Request, error) {
	for _, o := range t.state.overrides {
		if o.Status == overridedomain.StatusPending {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) UsableOverride(ctx context.Context) (*overridedomain.Request, error) {
	for _, o := range t.state.overrides {
		if o.Usable() {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) InsertOverride(ctx context.Context, r *overridedomain.Request) error {
	if r.Status == overridedomain.StatusPending {
		if p, _ := t.PendingOverride(ctx); p != nil {
			return apperrors.Conflict("cheque %s already has a pending override request", r.ChequeID)
		}
	}
	cp := *r
	t.state.overrides = append(t.state.overrides, &cp)
	return nil
}

func (t *memoryTx) UpdateOverride(ctx context.Context, r *overridedomain.Request) error {
	for i, existing := range t.state.overrides {
		if existing.ID == r.ID {
			cp := *r
			t.state.overrides[i] = &cp
			return nil
		}
	}
	return apperrors.NotFound("override request %s not found", r.ID)
}

func (t *memoryTx) AppendAudit(ctx context.Context, e *auditdomain.Entry) error {
	cp := *e
	t.state.audit = append(t.state.audit, &cp)
	return nil
}

func (t *memoryTx) AppendCustody(ctx context.Context, e *auditdomain.CustodyEntry) error {
	cp := *e
	t.state.custody = append(t.state.custody, &cp)
	return nil
}
