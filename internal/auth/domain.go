package auth

import (
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/token"
)

// DefaultRole is assigned to principals whose account has no role.
const DefaultRole = "User"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Username     string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	RoleID       *int64
	RoleName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal converts the account into the identity encoded in access tokens.
func (u User) Principal() token.Principal {
	role := u.RoleName
	if role == "" {
		role = DefaultRole
	}
	return token.Principal{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     role,
	}
}

// RefreshToken is the persisted, hashed form of an issued refresh token.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// LoginResult bundles the authenticated user with the issued credentials.
type LoginResult struct {
	User User
	Pair token.Pair
}
