package users

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, u User, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, u User) (User, error)
	PasswordHash(ctx context.Context, id int64) (string, error)
	SetPasswordHash(ctx context.Context, id int64, hash string) error
}

// TokenRevoker drops every refresh token a user holds.
type TokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID int64, now time.Time) error
}

// Service handles user business logic.
type Service struct {
	repo       RepositoryPort
	revoker    TokenRevoker
	bcryptCost int
	validator  *validator.Validate
	now        func() time.Time
}

// NewService builds Service instance. A cost outside bcrypt's range falls back
// to bcrypt.DefaultCost. revoker may be nil.
func NewService(repo RepositoryPort, bcryptCost int, revoker TokenRevoker) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, revoker: revoker, bcryptCost: bcryptCost, validator: validator.New(), now: time.Now}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, ErrNotFound
	}
	return s.repo.GetUser(ctx, id)
}

// CreateUser validates the input, hashes the password and stores the account.
func (s *Service) CreateUser(ctx context.Context, in CreateInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Struct(in); err != nil {
		return User{}, validationError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, User{
		Username: in.Username,
		Email:    in.Email,
		Name:     in.Name,
		IsActive: in.IsActive,
		RoleID:   in.RoleID,
	}, string(hash))
}

// UpdateUser rewrites profile, role and active flag. Deactivating an account
// revokes its refresh tokens.
func (s *Service) UpdateUser(ctx context.Context, id int64, in ProfileInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Struct(in); err != nil {
		return User{}, validationError(err)
	}
	current, err := s.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	current.Email = in.Email
	current.Name = in.Name
	current.RoleID = in.RoleID
	wasActive := current.IsActive
	current.IsActive = in.IsActive
	updated, err := s.repo.UpdateUser(ctx, current)
	if err != nil {
		return User{}, err
	}
	if wasActive && !updated.IsActive && s.revoker != nil {
		if err := s.revoker.RevokeAllForUser(ctx, id, s.now().UTC()); err != nil {
			return updated, fmt.Errorf("users: revoke tokens: %w", err)
		}
	}
	return updated, nil
}

// ChangePassword replaces the password after checking the current one. An
// empty current password skips the check for administrative resets.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string) error {
	if len(next) < 8 || len(next) > 72 {
		return FieldErrors{"password": "must be between 8 and 72 characters"}
	}
	if current != "" {
		hash, err := s.repo.PasswordHash(ctx, id)
		if err != nil {
			return err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)); err != nil {
			return ErrWrongPassword
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, id, string(hash)); err != nil {
		return err
	}
	if s.revoker != nil {
		return s.revoker.RevokeAllForUser(ctx, id, s.now().UTC())
	}
	return nil
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
	return "users: " + strings.Join(parts, "; ")
}

// Unwrap lets FieldErrors match httpx.ErrValidation.
func (e FieldErrors) Unwrap() error {
	return httpx.ErrValidation
}

var formFields = map[string]string{
	"Username": "username",
	"Email":    "email",
	"Name":     "name",
	"Password": "password",
	"RoleID":   "role_id",
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
		case "email":
			out[field] = "must be a valid email address"
		case "min":
			out[field] = "must be at least " + fe.Param() + " characters"
		case "max":
			out[field] = "must be at most " + fe.Param() + " characters"
		case "alphanumunicode":
			out[field] = "may only contain letters and digits"
		default:
			out[field] = "is invalid"
		}
	}
	return out
}
