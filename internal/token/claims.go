package token

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsVersion identifies the principal encoding carried in access tokens.
const ClaimsVersion = 1

var errClaimsVersion = errors.New("token: unsupported claims version")

// Principal is the authenticated identity derived from a validated token.
type Principal struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool {
	return p.UserID > 0
}

// Claims is the fixed JWT payload. Fields map one to one onto Principal.
type Claims struct {
	jwt.RegisteredClaims
	Version  int    `json:"ver"`
	Username string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

func claimsFor(p Principal, issuer, audience string, issuedAt, expiresAt time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   formatSubject(p.UserID),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Version:  ClaimsVersion,
		Username: p.Username,
		Email:    p.Email,
		Role:     p.Role,
	}
}

func (c Claims) principal() (Principal, error) {
	if c.Version != ClaimsVersion {
		return Principal{}, errClaimsVersion
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Principal{}, ErrInvalidPrincipal
	}
	p := Principal{
		UserID:   id,
		Username: c.Username,
		Email:    c.Email,
		Role:     c.Role,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return p, nil
}
