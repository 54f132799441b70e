package domain

import (
	"context"
	"errors"
)

// User is the authenticated caller as carried in a verified token.
type User struct {
	ID    string
	Email string
	Role  Role
}

// Role represents a user's access level
type Role string

const (
	// RoleAdmin has full access to all operations
	RoleAdmin Role = "admin"

	// RoleAdvisor originates loans and records payments for their clients
	RoleAdvisor Role = "advisor"

	// RoleAuditor can view loans and payments, no mutations
	RoleAuditor Role = "auditor"

	// RoleClient can view their loans and upload payment proofs
	RoleClient Role = "client"
)

// Capabilities is the permission set a role grants.
type Capabilities struct {
	CanEdit         bool
	CanViewPayments bool
	CanReschedule   bool
	CanSubmitProof  bool
}

var roleCapabilities = map[Role]Capabilities{
	RoleAdmin:   {CanEdit: true, CanViewPayments: true, CanReschedule: true, CanSubmitProof: true},
	RoleAdvisor: {CanEdit: true, CanViewPayments: true, CanSubmitProof: true},
	RoleAuditor: {CanViewPayments: true},
	RoleClient:  {CanSubmitProof: true},
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Capabilities returns the permission set of r. Unknown roles get none.
func (r Role) Capabilities() Capabilities {
	return roleCapabilities[r]
}

func (r Role) CanEdit() bool         { return r.Capabilities().CanEdit }
func (r Role) CanViewPayments() bool { return r.Capabilities().CanViewPayments }
func (r Role) CanReschedule() bool   { return r.Capabilities().CanReschedule }
func (r Role) CanSubmitProof() bool  { return r.Capabilities().CanSubmitProof }

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)

type userContextKey struct{}

// ContextWithUser attaches the authenticated user to ctx.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*User)
	return u, ok && u != nil
}

// OperatorRef identifies who performed an operation: the authenticated user
// id, or SystemOperator for unauthenticated and scheduled calls.
func OperatorRef(ctx context.Context) string {
	if u, ok := UserFromContext(ctx); ok && u.ID != "" {
		return u.ID
	}
	return SystemOperator
}
