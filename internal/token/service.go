// Package token issues and validates the credential pairs used by the web UI
// and the REST API.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the smallest accepted HS256 signing key, in bytes.
const MinSecretLength = 32

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	refreshTokenBytes = 32
)

var (
	// ErrWeakSigningKey is returned when the signing key is too short.
	ErrWeakSigningKey = errors.New("token: signing key must be at least 32 bytes")
	// ErrIssuerRequired is returned when no issuer is configured.
	ErrIssuerRequired = errors.New("token: issuer required")
	// ErrAudienceRequired is returned when no audience is configured.
	ErrAudienceRequired = errors.New("token: audience required")
	// ErrInvalidPrincipal is returned when a principal cannot be encoded.
	ErrInvalidPrincipal = errors.New("token: principal requires a user id")
)

// Config carries the signing parameters.
type Config struct {
	SecretKey  string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Pair is an access token together with the refresh token minted alongside it.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Service signs and verifies access tokens.
type Service struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      func() time.Time
	parser     *jwt.Parser
}

// NewService validates the configuration and builds a Service.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.SecretKey) < MinSecretLength {
		return nil, ErrWeakSigningKey
	}
	if cfg.Issuer == "" {
		return nil, ErrIssuerRequired
	}
	if cfg.Audience == "" {
		return nil, ErrAudienceRequired
	}
	s := &Service{
		secret:     []byte(cfg.SecretKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      func() time.Time { return time.Now().UTC() },
	}
	if s.accessTTL <= 0 {
		s.accessTTL = defaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = defaultRefreshTTL
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock),
	)
	return s, nil
}

// AccessTTL returns the access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// RefreshTTL returns the refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Issue signs an access token for the principal and mints a fresh refresh token.
func (s *Service) Issue(p Principal) (Pair, error) {
	if p.UserID <= 0 {
		return Pair{}, ErrInvalidPrincipal
	}
	now := s.clock().Truncate(time.Second)
	accessExp := now.Add(s.accessTTL)
	claims := claimsFor(p, s.issuer, s.audience, now, accessExp)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Pair{}, fmt.Errorf("token: sign: %w", err)
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return Pair{}, fmt.Errorf("token: refresh: %w", err)
	}
	return Pair{
		AccessToken:      signed,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

// Validate verifies signature, issuer, audience and lifetime of the access
// token. Any failure yields false.
func (s *Service) Validate(accessToken string) (Principal, bool) {
	if s == nil || accessToken == "" {
		return Principal{}, false
	}
	var claims Claims
	parsed, err := s.parser.ParseWithClaims(accessToken, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, false
	}
	p, err := claims.principal()
	if err != nil {
		return Principal{}, false
	}
	return p, true
}

// HashRefreshToken returns the storage form of a raw refresh token.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func newRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func formatSubject(id int64) string {
	return strconv.FormatInt(id, 10)
}
