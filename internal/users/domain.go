package users

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// User represents a user account for management.
type User struct {
	ID          int64
	Username    string
	Email       string
	Name        string
	IsActive    bool
	RoleID      *int64
	RoleName    string
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateInput carries a new account.
type CreateInput struct {
	Username string `validate:"required,min=3,max=64,alphanumunicode"`
	Email    string `validate:"required,email,max=255"`
	Name     string `validate:"required,max=255"`
	Password string `validate:"required,min=8,max=72"`
	RoleID   *int64 `validate:"omitempty,gt=0"`
	IsActive bool
}

// ProfileInput carries editable account fields.
type ProfileInput struct {
	Email    string `validate:"required,email,max=255"`
	Name     string `validate:"required,max=255"`
	RoleID   *int64 `validate:"omitempty,gt=0"`
	IsActive bool
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = fmt.Errorf("users: user %w", httpx.ErrNotFound)
	// ErrDuplicate indicates the username or email is taken.
	ErrDuplicate = fmt.Errorf("users: username or email already exists: %w", httpx.ErrDuplicate)
	// ErrUnknownRole rejects assignments to a missing role.
	ErrUnknownRole = fmt.Errorf("users: role does not exist: %w", httpx.ErrValidation)
	// ErrWrongPassword rejects password changes with a bad current password.
	ErrWrongPassword = fmt.Errorf("users: current password is incorrect: %w", httpx.ErrValidation)
)
