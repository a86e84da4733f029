// Package rbac gates custody operations on the caller's operator role.
package rbac

import (
	"context"

	apperrors "cheque-custody/backend/internal/errors"
	operatordomain "cheque-custody/backend/internal/operator/domain"
	"cheque-custody/backend/internal/server/middleware"
)

// Role sets for the custody endpoints. Admin may do everything.
var (
	Initiators = []operatordomain.Role{operatordomain.RoleInitiator, operatordomain.RoleAdmin}
	Dispatch   = []operatordomain.Role{operatordomain.RoleDispatch, operatordomain.RoleAdmin}
	Reception  = []operatordomain.Role{operatordomain.RoleReception, operatordomain.RoleAdmin}
	Cancellers = []operatordomain.Role{operatordomain.RoleInitiator, operatordomain.RoleApprover, operatordomain.RoleAdmin}
	Admins     = []operatordomain.Role{operatordomain.RoleAdmin}
)

// Caller returns the authenticated operator id and role from ctx.
func Caller(ctx context.Context) (id string, role operatordomain.Role, err error) {
	id, okID := middleware.GetActorID(ctx)
	r, okRole := middleware.GetActorRole(ctx)
	if !okID || !okRole {
		return "", "", apperrors.Unauthorized("operator context required")
	}
	return id, operatordomain.Role(r), nil
}

// Require ensures the caller is authenticated and holds one of roles.
// Returns the caller's id on success and an Unauthorized error otherwise.
func Require(ctx context.Context, roles ...operatordomain.Role) (string, error) {
	id, role, err := Caller(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		if r == role {
			return id, nil
		}
	}
	return "", apperrors.Unauthorized("role %q may not perform this operation", role)
}
