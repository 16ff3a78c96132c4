package roles

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Service handles role business logic.
type Service struct {
	repo      RepositoryPort
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validator: validator.New()}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole returns one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	if id <= 0 {
		return Role{}, ErrNotFound
	}
	return s.repo.GetRole(ctx, id)
}

// Hierarchy returns the current parent index.
func (s *Service) Hierarchy(ctx context.Context) (Hierarchy, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return Hierarchy{}, err
	}
	return NewHierarchy(roles), nil
}

// CreateRole validates and stores a new role.
func (s *Service) CreateRole(ctx context.Context, in Input) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validator.Struct(in); err != nil {
		return Role{}, validationError(err)
	}
	role := in.apply(Role{})
	return s.repo.CreateRole(ctx, role, func(h Hierarchy) error {
		return h.CheckParent(0, role.ParentRoleID)
	})
}

// UpdateRole rewrites a role. Re-parenting is checked against the locked
// hierarchy inside the write transaction.
func (s *Service) UpdateRole(ctx context.Context, id int64, in Input) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validator.Struct(in); err != nil {
		return Role{}, validationError(err)
	}
	current, err := s.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	role := in.apply(current)
	return s.repo.UpdateRole(ctx, role, func(h Hierarchy) error {
		if !h.Contains(id) {
			return ErrNotFound
		}
		return h.CheckParent(id, role.ParentRoleID)
	})
}

// DeleteRole removes an unreferenced role.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}
	return s.repo.DeleteRole(ctx, id)
}

func (in Input) apply(r Role) Role {
	r.Name = in.Name
	r.Description = in.Description
	r.IsAdministrative = in.IsAdministrative
	r.CanEditModel = in.CanEditModel
	r.ParentRoleID = in.ParentRoleID
	return r
}

// FieldErrors maps form fields to messages.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "roles: " + strings.Join(parts, "; ")
}

// Unwrap lets FieldErrors match httpx.ErrValidation.
func (e FieldErrors) Unwrap() error {
	return httpx.ErrValidation
}

var formFields = map[string]string{
	"Name":         "name",
	"Description":  "description",
	"ParentRoleID": "parent_role_id",
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := FieldErrors{}
	for _, fe := range fieldErrs {
		field := formFields[fe.Field()]
		switch fe.Tag() {
		case "required":
			out[field] = "is required"
		case "max":
			out[field] = "must be at most " + fe.Param() + " characters"
		default:
			out[field] = "is invalid"
		}
	}
	return out
}
