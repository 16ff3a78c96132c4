package roles

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Role groups permissions. Roles may inherit from a parent role.
type Role struct {
	ID               int64
	Name             string
	Description      string
	IsAdministrative bool
	CanEditModel     bool
	ParentRoleID     *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Input carries role create and update payloads.
type Input struct {
	Name             string `validate:"required,max=100"`
	Description      string `validate:"max=500"`
	IsAdministrative bool
	CanEditModel     bool
	ParentRoleID     *int64 `validate:"omitempty,gt=0"`
}

var (
	// ErrNotFound indicates the role does not exist.
	ErrNotFound = fmt.Errorf("roles: role %w", httpx.ErrNotFound)
	// ErrDuplicateName indicates another role already uses the name.
	ErrDuplicateName = fmt.Errorf("roles: name already exists: %w", httpx.ErrDuplicate)
	// ErrCycle rejects parent assignments that would loop back to the role.
	ErrCycle = fmt.Errorf("roles: parent chain would form a cycle: %w", httpx.ErrValidation)
	// ErrParentNotFound rejects unknown parent roles.
	ErrParentNotFound = fmt.Errorf("roles: parent role not found: %w", httpx.ErrValidation)
	// ErrRoleInUse blocks deleting roles still assigned to users or child roles.
	ErrRoleInUse = fmt.Errorf("roles: role is still in use: %w", httpx.ErrDuplicate)
)
