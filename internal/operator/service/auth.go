// Package service authenticates operators and manages their accounts.
package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "cheque-custody/backend/internal/errors"
	"cheque-custody/backend/internal/operator/domain"
	"cheque-custody/backend/internal/operator/repository"
	"cheque-custody/backend/internal/security"
)

const minPasswordLen = 8

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken string           `json:"accessToken"`
	ExpiresAt   time.Time        `json:"expiresAt"`
	Operator    *domain.Operator `json:"operator"`
}

// CreateInput holds the fields of a new operator account.
type CreateInput struct {
	Name     string
	Email    string
	Role     string
	Password string
}

// AuthService implements operator login and account creation.
type AuthService struct {
	repo   repository.Repository
	hasher *security.Hasher
	tokens *security.TokenProvider
	nowF   func() time.Time
}

// NewAuthService returns an AuthService.
func NewAuthService(repo repository.Repository, hasher *security.Hasher, tokens *security.TokenProvider) *AuthService {
	return &AuthService{repo: repo, hasher: hasher, tokens: tokens, nowF: time.Now}
}

// Login checks the operator's password and issues an access token carrying
// the operator's id and role. Unknown email and wrong password fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}
	o, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if o == nil {
		s.hasher.CompareDummy(password)
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	if err := s.hasher.Compare(o.PasswordHash, password); err != nil {
		log.Printf("operator: failed login for %s", o.ID)
		return nil, apperrors.Unauthorized("invalid credentials")
	}
	token, exp, err := s.tokens.IssueAccess(o.ID, string(o.Role))
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: token, ExpiresAt: exp, Operator: o}, nil
}

// Create registers an operator account.
func (s *AuthService) Create(ctx context.Context, in CreateInput) (*domain.Operator, error) {
	role, ok := domain.ParseRole(in.Role)
	if !ok {
		return nil, apperrors.Validation("unknown role %q", in.Role)
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperrors.Validation("password must be at least %d characters", minPasswordLen)
	}
	o := &domain.Operator{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Role:      role,
		CreatedAt: s.nowF().UTC(),
	}
	if err := o.Validate(); err != nil {
		return nil, apperrors.Validation("%s", err.Error())
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	o.PasswordHash = hash
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Get returns the operator or NotFound.
func (s *AuthService) Get(ctx context.Context, id string) (*domain.Operator, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperrors.NotFound("operator %s not found", id)
	}
	return o, nil
}

// List returns all operators.
func (s *AuthService) List(ctx context.Context) ([]*domain.Operator, error) {
	return s.repo.List(ctx)
}
