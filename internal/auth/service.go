package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/token"
)

var (
	// ErrUserNotFound indicates no account matched the lookup.
	ErrUserNotFound = fmt.Errorf("auth: user %w", httpx.ErrNotFound)
	// ErrInvalidRefreshToken covers unknown, expired and revoked refresh tokens.
	ErrInvalidRefreshToken = fmt.Errorf("auth: invalid refresh token: %w", httpx.ErrUnauthorized)
	// ErrRefreshTokenReused is returned when an already rotated token is presented again.
	ErrRefreshTokenReused = fmt.Errorf("auth: refresh token reused: %w", httpx.ErrUnauthorized)
)

// RefreshObserver records refresh outcomes.
type RefreshObserver interface {
	ObserveRefresh(outcome string)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *token.Service
	clock    func() time.Time
	observer RefreshObserver
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *token.Service) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithObserver attaches a refresh outcome observer.
func (s *Service) WithObserver(o RefreshObserver) *Service {
	s.observer = o
	return s
}

// Authenticate validates username-or-email/password credentials.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByLogin(ctx, login)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the user and issues a credential pair.
func (s *Service) Login(ctx context.Context, login, password string) (LoginResult, error) {
	user, err := s.Authenticate(ctx, login, password)
	if err != nil {
		return LoginResult{}, err
	}
	pair, err := s.issue(ctx, *user)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.repo.TouchLastLogin(ctx, user.ID, s.clock()); err != nil {
		return LoginResult{}, fmt.Errorf("auth: touch last login: %w", err)
	}
	return LoginResult{User: *user, Pair: pair}, nil
}

// Rotate exchanges a refresh token for a new pair. Consuming the presented
// token and storing the new one happen atomically; presenting a consumed
// token again revokes every token held by its owner.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (token.Pair, error) {
	result, err := s.Refresh(ctx, refreshToken)
	if err != nil {
		return token.Pair{}, err
	}
	return result.Pair, nil
}

// Refresh is Rotate returning the account alongside the new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		s.observe("invalid")
		return LoginResult{}, ErrInvalidRefreshToken
	}
	var pair token.Pair
	user, err := s.repo.RotateRefreshToken(ctx, token.HashRefreshToken(refreshToken), s.clock(), func(u User) (string, time.Time, error) {
		issued, err := s.tokens.Issue(u.Principal())
		if err != nil {
			return "", time.Time{}, err
		}
		pair = issued
		return token.HashRefreshToken(issued.RefreshToken), issued.RefreshExpiresAt, nil
	})
	switch {
	case errors.Is(err, ErrRefreshTokenReused):
		s.observe("reused")
		return LoginResult{}, err
	case errors.Is(err, ErrInvalidRefreshToken):
		s.observe("invalid")
		return LoginResult{}, err
	case err != nil:
		s.observe("error")
		return LoginResult{}, err
	}
	s.observe("rotated")
	return LoginResult{User: *user, Pair: pair}, nil
}

// Revoke invalidates a refresh token. Unknown tokens are not an error.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return s.repo.RevokeRefreshToken(ctx, token.HashRefreshToken(refreshToken), s.clock())
}

// PurgeExpired removes refresh tokens that can no longer be used.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.PurgeRefreshTokens(ctx, s.clock().Add(-retention))
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

func (s *Service) issue(ctx context.Context, user User) (token.Pair, error) {
	pair, err := s.tokens.Issue(user.Principal())
	if err != nil {
		return token.Pair{}, err
	}
	if err := s.repo.StoreRefreshToken(ctx, user.ID, token.HashRefreshToken(pair.RefreshToken), pair.RefreshExpiresAt); err != nil {
		return token.Pair{}, err
	}
	return pair, nil
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveRefresh(outcome)
	}
}
