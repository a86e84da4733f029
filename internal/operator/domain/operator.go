package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is what an operator may do in the custody protocol.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleDispatch  Role = "dispatch"
	RoleReception Role = "reception"
	RoleApprover  Role = "approver"
	RoleAdmin     Role = "admin"
)

// ParseRole returns the Role for s, or false when s is not a known role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleInitiator, RoleDispatch, RoleReception, RoleApprover, RoleAdmin:
		return r, true
	}
	return "", false
}

// Operator is a staff member who moves or decides on cheques.
type Operator struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate returns the first problem with o, or nil.
func (o *Operator) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return errors.New("name is required")
	}
	if !strings.Contains(o.Email, "@") {
		return errors.New("a valid email is required")
	}
	if _, ok := ParseRole(string(o.Role)); !ok {
		return errors.New("unknown role")
	}
	return nil
}
