package domain

import (
	"context"
	"slices"
	"time"
)

// RoleAdmin is the role code granting administrator rights.
const RoleAdmin = "admin"

// User is the read-only view of an account that this service needs.
// swagger:model User
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Principal is the identity carried by a verified token.
type Principal struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// Actor returns the lifecycle actor for this principal.
func (p Principal) Actor() Actor {
	if p.HasRole(RoleAdmin) {
		return Admin(p.UserID)
	}
	return Owner(p.UserID)
}

// TokenIssuer issues tokens (e.g. JWT) for an authenticated user.
type TokenIssuer interface {
	Issue(userID, email string, roles []string, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a token and returns the authenticated principal.
type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

// UserRepository looks up users. GetByID returns ErrNotFound for unknown ids.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
